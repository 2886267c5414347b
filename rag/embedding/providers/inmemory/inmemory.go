// Package inmemory provides a deterministic, dependency-free Embedder. It
// hashes each text into a pseudo-random unit vector, giving stable,
// reproducible embeddings without calling an external provider. It is the
// default fallback embedder and doubles as a test fixture across the
// retrieval pipeline.
package inmemory

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/rag/embedding"
)

const defaultDimensions = 128

func init() {
	embedding.Register("inmemory", func(cfg config.ProviderConfig) (embedding.Embedder, error) {
		return New(cfg)
	})
}

// Embedder is a deterministic hash-based Embedder.
type Embedder struct {
	dimensions int
}

// New creates a new in-memory Embedder. The "dimensions" option controls
// vector length (default 128); a zero or negative value falls back to the
// default.
func New(cfg config.ProviderConfig) (*Embedder, error) {
	dims := defaultDimensions
	if v, ok := config.GetOption[float64](cfg, "dimensions"); ok && v > 0 {
		dims = int(v)
	}
	return &Embedder{dimensions: dims}, nil
}

// Embed converts a batch of texts into deterministic unit vectors.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.vectorFor(text)
	}
	return vectors, nil
}

// EmbedSingle embeds a single text.
func (e *Embedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return e.vectorFor(text), nil
}

// Dimensions returns the configured vector length.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// vectorFor deterministically derives a unit-length vector from text by
// seeding a PRNG from its FNV-1a hash.
func (e *Embedder) vectorFor(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, e.dimensions)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
