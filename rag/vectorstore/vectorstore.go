// Package vectorstore provides the vector storage abstraction for the
// retrieval pipeline: a VectorStore interface, a provider registry, search
// option composition, and composable middleware, mirroring the shape of the
// llm and embedding packages.
//
// Providers register themselves via init():
//
//	import _ "github.com/veridex/veridex/rag/vectorstore/providers/redis"
//
//	store, err := vectorstore.New("redis", cfg)
package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/schema"
)

// VectorStore stores document embeddings and serves nearest-neighbor
// similarity search over them.
type VectorStore interface {
	// Add upserts documents and their embeddings. len(docs) must equal
	// len(embeddings).
	Add(ctx context.Context, docs []schema.Document, embeddings [][]float32) error

	// Search returns the k nearest documents to query, subject to the given
	// SearchOptions (filter, threshold, strategy).
	Search(ctx context.Context, query []float32, k int, opts ...SearchOption) ([]schema.Document, error)

	// Delete removes documents by ID. Deleting a non-existent ID is a no-op.
	Delete(ctx context.Context, ids []string) error

	// Get returns every document whose metadata matches filter exactly (an
	// AND of equalities), with no similarity ranking and no threshold gate.
	// Document.ID and Document.Metadata together stand in for the
	// ids[]/metadatas[] returned by a fetch-by-filter operation. Unlike
	// Search, Get also populates Document.Embedding, so a caller cloning
	// matched documents elsewhere in the store (see ingest/dedup) can
	// re-add them without recomputing embeddings.
	Get(ctx context.Context, filter map[string]any) ([]schema.Document, error)
}

// SearchStrategy selects the distance/similarity function used by Search.
type SearchStrategy int

const (
	// Cosine ranks by cosine similarity (the default).
	Cosine SearchStrategy = iota
	// DotProduct ranks by raw dot product.
	DotProduct
	// Euclidean ranks by negative Euclidean distance (closer is better).
	Euclidean
)

// String returns the lowercase name of the strategy.
func (s SearchStrategy) String() string {
	switch s {
	case Cosine:
		return "cosine"
	case DotProduct:
		return "dot_product"
	case Euclidean:
		return "euclidean"
	default:
		return "unknown"
	}
}

// SearchConfig holds the resolved options for a Search call.
type SearchConfig struct {
	Filter    map[string]any
	Threshold float64
	Strategy  SearchStrategy
}

// SearchOption configures a Search call.
type SearchOption func(*SearchConfig)

// WithFilter restricts results to documents whose metadata matches every
// key/value pair in filter (AND of equalities).
func WithFilter(filter map[string]any) SearchOption {
	return func(cfg *SearchConfig) {
		cfg.Filter = filter
	}
}

// WithThreshold drops results scoring below threshold.
func WithThreshold(threshold float64) SearchOption {
	return func(cfg *SearchConfig) {
		cfg.Threshold = threshold
	}
}

// WithStrategy selects the similarity/distance function.
func WithStrategy(strategy SearchStrategy) SearchOption {
	return func(cfg *SearchConfig) {
		cfg.Strategy = strategy
	}
}

// ResolveSearchConfig applies opts over the zero value and returns the
// resolved SearchConfig. Providers call this at the top of Search.
func ResolveSearchConfig(opts ...SearchOption) SearchConfig {
	var cfg SearchConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Factory constructs a VectorStore from a provider configuration.
type Factory func(cfg config.ProviderConfig) (VectorStore, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register associates a provider name with a Factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a VectorStore for the named provider.
func New(name string, cfg config.ProviderConfig) (VectorStore, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vectorstore: unknown provider %q", name)
	}
	return factory(cfg)
}

// List returns the names of all registered providers, sorted alphabetically.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MatchesFilter reports whether doc's metadata satisfies every key/value
// pair in filter. A nil or empty filter matches everything. Shared by
// providers that implement filtering in Go rather than in a remote query
// language.
func MatchesFilter(doc schema.Document, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	if doc.Metadata == nil {
		return false
	}
	for k, v := range filter {
		if doc.Metadata[k] != v {
			return false
		}
	}
	return true
}
