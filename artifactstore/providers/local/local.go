// Package local provides a filesystem-backed artifactstore.ArtifactStore,
// rooted at a configured directory. It registers itself under the name
// "local" in the artifact store registry.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/veridex/veridex/artifactstore"
)

func init() {
	artifactstore.Register("local", func(cfg artifactstore.Config) (artifactstore.ArtifactStore, error) {
		return New(cfg)
	})
}

// Store is a filesystem-backed artifactstore.ArtifactStore.
type Store struct {
	root string
}

// New creates a Store rooted at cfg.Root, creating the directory if it does
// not exist.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("artifactstore/local: root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("artifactstore/local: create root: %w", err)
	}
	return &Store{root: cfg.Root}, nil
}

// Config is an alias of artifactstore.Config, named locally so callers can
// write local.Config{Root: ...} without importing the parent package too.
type Config = artifactstore.Config

// NewWorkspace allocates docID = basename(input) + "__" + an 8-hex suffix
// and creates its standard subdirectories under the store's root.
func (s *Store) NewWorkspace(_ context.Context, input string) (string, error) {
	base := filepath.Base(input)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	docID := base + "__" + suffix

	for _, dir := range artifactstore.WorkspaceDirs {
		if err := os.MkdirAll(filepath.Join(s.root, docID, dir), 0o755); err != nil {
			return "", fmt.Errorf("artifactstore/local: create %s/%s: %w", docID, dir, err)
		}
	}
	return docID, nil
}

// Write stores data at relPath within docID's workspace, creating any
// missing parent directories and overwriting any existing file.
func (s *Store) Write(_ context.Context, docID, relPath string, data []byte) error {
	full := filepath.Join(s.root, docID, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("artifactstore/local: create parent dir for %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("artifactstore/local: write %s: %w", relPath, err)
	}
	return nil
}

// Read returns the contents previously written to relPath within docID's
// workspace.
func (s *Store) Read(_ context.Context, docID, relPath string) ([]byte, error) {
	full := filepath.Join(s.root, docID, relPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("artifactstore/local: read %s: %w", relPath, err)
	}
	return data, nil
}

// List returns the names of files directly inside subdir within docID's
// workspace, sorted. A missing subdirectory returns an empty slice.
func (s *Store) List(_ context.Context, docID, subdir string) ([]string, error) {
	full := filepath.Join(s.root, docID, subdir)
	entries, err := os.ReadDir(full)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("artifactstore/local: list %s: %w", subdir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// WorkspacePath returns the filesystem path of docID's workspace root.
func (s *Store) WorkspacePath(docID string) string {
	return filepath.Join(s.root, docID)
}

// Cleanup removes docID's entire workspace. It is a no-op if the workspace
// does not exist.
func (s *Store) Cleanup(_ context.Context, docID string) error {
	if err := os.RemoveAll(filepath.Join(s.root, docID)); err != nil {
		return fmt.Errorf("artifactstore/local: cleanup %s: %w", docID, err)
	}
	return nil
}

var _ artifactstore.ArtifactStore = (*Store)(nil)
