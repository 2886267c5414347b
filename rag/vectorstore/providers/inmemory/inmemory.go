// Package inmemory provides a dependency-free VectorStore backed by a
// Go map, computing similarity in-process. It is the default store for
// tests and small deployments.
package inmemory

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/rag/vectorstore"
	"github.com/veridex/veridex/schema"
)

func init() {
	vectorstore.Register("inmemory", func(cfg config.ProviderConfig) (vectorstore.VectorStore, error) {
		return New(), nil
	})
}

type entry struct {
	doc       schema.Document
	embedding []float32
}

// Store is an in-memory VectorStore.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Add upserts docs and their embeddings, overwriting any existing entry
// with the same document ID.
func (s *Store) Add(ctx context.Context, docs []schema.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("vectorstore/inmemory: docs length (%d) does not match embeddings length (%d)", len(docs), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		s.entries[doc.ID] = entry{doc: doc, embedding: embeddings[i]}
	}
	return nil
}

// Search returns the k nearest documents to query.
func (s *Store) Search(ctx context.Context, query []float32, k int, opts ...vectorstore.SearchOption) ([]schema.Document, error) {
	cfg := vectorstore.ResolveSearchConfig(opts...)

	s.mu.RLock()
	candidates := make([]schema.Document, 0, len(s.entries))
	scores := make([]float64, 0, len(s.entries))
	for _, e := range s.entries {
		if !vectorstore.MatchesFilter(e.doc, cfg.Filter) {
			continue
		}
		var score float64
		switch cfg.Strategy {
		case vectorstore.DotProduct:
			score = dotProduct(query, e.embedding)
		case vectorstore.Euclidean:
			score = -euclideanDistance(query, e.embedding)
		default:
			score = cosineSimilarity(query, e.embedding)
		}
		if score < cfg.Threshold {
			continue
		}
		doc := e.doc
		doc.Score = score
		candidates = append(candidates, doc)
		scores = append(scores, score)
	}
	s.mu.RUnlock()

	sortByScoreDesc(candidates, scores)

	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Delete removes the given document IDs. Unknown IDs are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

// Get returns every document whose metadata matches filter exactly, with
// no similarity ranking. The returned documents carry their stored
// embeddings so callers can re-add them elsewhere without recomputing.
func (s *Store) Get(ctx context.Context, filter map[string]any) ([]schema.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []schema.Document
	for _, e := range s.entries {
		if vectorstore.MatchesFilter(e.doc, filter) {
			doc := e.doc
			doc.Embedding = e.embedding
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func sortByScoreDesc(docs []schema.Document, scores []float64) {
	for i := 1; i < len(docs); i++ {
		for j := i; j > 0 && scores[j] > scores[j-1]; j-- {
			docs[j], docs[j-1] = docs[j-1], docs[j]
			scores[j], scores[j-1] = scores[j-1], scores[j]
		}
	}
}

func matchesFilter(doc schema.Document, filter map[string]any) bool {
	return vectorstore.MatchesFilter(doc, filter)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func dotProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func euclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
