package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sync"
	"time"
)

// embeddingTTL is the lifetime of a stored embedding entry, matching the
// response cache's embedding-key expiry.
const embeddingTTL = 86400 * time.Second

// maxSemanticScan bounds how many recently stored embeddings are compared
// against an incoming query during a semantic lookup, so a long-lived cache
// can't turn GetSemantic into an unbounded linear scan.
const maxSemanticScan = 100

// SemanticCache wraps a Cache to provide similarity-based lookups using
// embedding vectors. A lookup first tries an exact key match (the embedding
// hashes to the same key it was stored under); if that misses, it falls
// back to scanning the most recently stored embeddings and returning the
// value for the closest one by cosine similarity, provided it clears the
// configured threshold.
type SemanticCache struct {
	cache     Cache
	threshold float64

	mu    sync.Mutex
	index []semanticEntry
}

// semanticEntry records the embedding a value was stored under, so
// GetSemantic can rank it against a query embedding without the underlying
// Cache needing to support key iteration.
type semanticEntry struct {
	key       string
	embedding []float32
}

// NewSemanticCache creates a SemanticCache wrapping the given Cache.
// The threshold (0–1) controls the minimum cosine similarity required
// for a semantic match. A threshold of 0.95 requires very high similarity;
// 0.8 is more permissive.
func NewSemanticCache(cache Cache, threshold float64) *SemanticCache {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	return &SemanticCache{
		cache:     cache,
		threshold: threshold,
	}
}

// GetSemantic looks up a value by embedding. It first checks for an exact
// match on the embedding's hash key; if none is stored, it scans up to the
// last maxSemanticScan stored embeddings and returns the value whose
// embedding has the highest cosine similarity to the query, as long as that
// similarity meets the threshold.
//
// The threshold parameter overrides the SemanticCache's default threshold
// for this single lookup. Pass 0 or a negative value to use the default.
func (sc *SemanticCache) GetSemantic(ctx context.Context, embedding []float32, threshold float64) (any, bool, error) {
	if threshold <= 0 {
		threshold = sc.threshold
	}

	key := embeddingKey(embedding)
	if val, ok, err := sc.cache.Get(ctx, key); err != nil || ok {
		return val, ok, err
	}

	bestKey, bestScore := sc.bestMatch(embedding)
	if bestKey == "" || bestScore < threshold {
		return nil, false, nil
	}
	return sc.cache.Get(ctx, bestKey)
}

// bestMatch returns the indexed key with the highest cosine similarity to
// embedding, and that similarity score. It returns ("", -1) if the index is
// empty.
func (sc *SemanticCache) bestMatch(embedding []float32) (string, float64) {
	sc.mu.Lock()
	entries := make([]semanticEntry, len(sc.index))
	copy(entries, sc.index)
	sc.mu.Unlock()

	bestKey := ""
	bestScore := -1.0
	for _, e := range entries {
		score := cosineSimilarity(embedding, e.embedding)
		if score > bestScore {
			bestScore = score
			bestKey = e.key
		}
	}
	return bestKey, bestScore
}

// SetSemantic stores a value keyed by the hash of its embedding vector and
// records the embedding so later GetSemantic calls can find it by
// similarity. The embedding can later be looked up via GetSemantic, either
// by the same vector (exact match) or a similar one.
func (sc *SemanticCache) SetSemantic(ctx context.Context, embedding []float32, value any) error {
	key := embeddingKey(embedding)
	if err := sc.cache.Set(ctx, key, value, embeddingTTL); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	for i, e := range sc.index {
		if e.key == key {
			sc.index[i].embedding = embedding
			return nil
		}
	}
	sc.index = append(sc.index, semanticEntry{key: key, embedding: embedding})
	if len(sc.index) > maxSemanticScan {
		sc.index = sc.index[len(sc.index)-maxSemanticScan:]
	}
	return nil
}

// Cache returns the underlying Cache instance.
func (sc *SemanticCache) Cache() Cache {
	return sc.cache
}

// embeddingKey produces a deterministic cache key from an embedding vector
// by hashing the float32 values.
func embeddingKey(embedding []float32) string {
	h := sha256.New()
	for _, v := range embedding {
		fmt.Fprintf(h, "%v,", v)
	}
	return fmt.Sprintf("sem:%x", h.Sum(nil))
}

// cosineSimilarity returns the cosine similarity between two vectors. It
// returns 0 for empty or mismatched-length vectors, or when either vector
// has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
