// Package embedding provides the text-embedding abstraction for the
// retrieval pipeline: an Embedder interface, a provider registry, and
// composable middleware, mirroring the llm package's shape.
//
// Providers register themselves via init():
//
//	import _ "github.com/veridex/veridex/rag/embedding/providers/openai"
//
//	emb, err := embedding.New("openai", cfg)
package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/veridex/veridex/config"
)

// Embedder converts text into dense vector representations.
type Embedder interface {
	// Embed converts a batch of texts into their vector embeddings.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle embeds a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the length of vectors this embedder produces.
	Dimensions() int
}

// Factory constructs an Embedder from a provider configuration.
type Factory func(cfg config.ProviderConfig) (Embedder, error)

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

// New constructs an Embedder for the named provider.
func New(name string, cfg config.ProviderConfig) (Embedder, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("embedding: unknown provider %q", name)
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
