// Package splitter breaks long documents into smaller chunks suitable for
// embedding and retrieval. Three strategies are registered by default:
// "recursive" (separator-based with fallback to character splitting),
// "markdown" (heading-aware), and "token" (chunked by estimated token
// count via an llm.Tokenizer).
package splitter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/schema"
)

// Splitter breaks text (or documents) into chunks.
type Splitter interface {
	// Split breaks text into chunks, each no longer than the splitter's
	// configured chunk size where the text allows it.
	Split(ctx context.Context, text string) ([]string, error)

	// SplitDocuments splits each document's content and returns one
	// Document per chunk, with chunk_index/chunk_total/parent_id metadata
	// attached and the parent's own metadata preserved.
	SplitDocuments(ctx context.Context, docs []schema.Document) ([]schema.Document, error)
}

// Factory constructs a Splitter from a provider configuration.
type Factory func(cfg config.ProviderConfig) (Splitter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register associates a splitter name with a Factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a Splitter for the named strategy.
func New(name string, cfg config.ProviderConfig) (Splitter, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("splitter: unknown splitter %q", name)
	}
	return factory(cfg)
}

// List returns the names of all registered splitters, sorted alphabetically.
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

// splitDocumentsHelper implements the common SplitDocuments logic shared by
// every Splitter: split each document's content, then stamp parent_id,
// chunk_index, and chunk_total onto a copy of the parent's metadata.
func splitDocumentsHelper(ctx context.Context, s Splitter, docs []schema.Document) ([]schema.Document, error) {
	var result []schema.Document
	for _, doc := range docs {
		chunks, err := s.Split(ctx, doc.Content)
		if err != nil {
			return nil, err
		}

		for i, chunk := range chunks {
			meta := make(map[string]any, len(doc.Metadata)+3)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["parent_id"] = doc.ID
			meta["chunk_index"] = i
			meta["chunk_total"] = len(chunks)

			result = append(result, schema.Document{
				ID:       fmt.Sprintf("%s-%d", doc.ID, i),
				Content:  chunk,
				Metadata: meta,
			})
		}
	}
	return result, nil
}
