// Package artifactstore provides the scoped, per-document workspace store
// used during ingestion: a filesystem-backed directory tree per document,
// holding the extraction stages' intermediate text, images, tables, charts
// and parsed JSON until the pipeline orchestrator persists the final
// record and tears the workspace down.
//
// Providers register themselves via init():
//
//	import _ "github.com/veridex/veridex/artifactstore/providers/local"
//
//	store, err := artifactstore.New("local", artifactstore.Config{Root: "/var/lib/veridex/work"})
package artifactstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Standard subdirectories created under every document workspace.
const (
	TextDir   = "text"
	ImagesDir = "images"
	TablesDir = "tables"
	ChartsDir = "charts"
	ParsedDir = "parsed"
	AudioDir  = "audio"

	// OCRProcessedDir and VLMProcessedDir nest under ImagesDir, separating
	// images resolved by OCR from those resolved by a vision model.
	OCRProcessedDir = "ocr_processed"
	VLMProcessedDir = "vlm_processed"
)

// WorkspaceDirs lists every top-level subdirectory NewWorkspace creates.
var WorkspaceDirs = []string{TextDir, ImagesDir, TablesDir, ChartsDir, ParsedDir, AudioDir}

// ArtifactStore is the per-document workspace store. Every method operates
// relative to a single document's workspace, identified by its doc ID.
type ArtifactStore interface {
	// NewWorkspace allocates a fresh workspace for input, rooted at
	// basename(input) + "__" + an 8-hex suffix, and creates its standard
	// subdirectories. It returns the resulting doc ID.
	NewWorkspace(ctx context.Context, input string) (docID string, err error)

	// Write stores data at relPath within docID's workspace, creating any
	// missing parent directories. Writing to an existing relPath
	// overwrites it, matching the write-idempotent contract extractors
	// rely on when re-run.
	Write(ctx context.Context, docID, relPath string, data []byte) error

	// Read returns the contents previously written to relPath within
	// docID's workspace.
	Read(ctx context.Context, docID, relPath string) ([]byte, error)

	// List returns the names of files directly inside subdir within
	// docID's workspace (non-recursive), sorted.
	List(ctx context.Context, docID, subdir string) ([]string, error)

	// WorkspacePath returns the filesystem path of docID's workspace root,
	// for extractor libraries that require a real path rather than byte
	// slices.
	WorkspacePath(docID string) string

	// Cleanup removes docID's entire workspace. It is a no-op if the
	// workspace does not exist. Fast-tracked ingests, which never call
	// NewWorkspace, have nothing to clean up.
	Cleanup(ctx context.Context, docID string) error
}

// Config configures an ArtifactStore provider.
type Config struct {
	// Root is the directory under which every document workspace is
	// created. Required.
	Root string
}

// Factory constructs an ArtifactStore from Config. Providers register one
// via Register in their init() function.
type Factory func(cfg Config) (ArtifactStore, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a named artifact store factory to the global registry. It
// is intended to be called from provider init() functions. Registering a
// duplicate name overwrites the previous factory.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// New creates an ArtifactStore by looking up the named factory in the
// registry and calling it with cfg.
func New(name string, cfg Config) (ArtifactStore, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("artifactstore: unknown provider %q (registered: %v)", name, List())
	}
	return f(cfg)
}

// List returns the names of all registered providers, sorted alphabetically.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
