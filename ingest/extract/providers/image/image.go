// Package image handles image-only inputs (png/jpg/gif/webp/bmp): the
// extractor itself produces no text, it copies the source image into the
// workspace for the vision stage (C6) to resolve via OCR/VLM. It registers
// itself under schema.SourceImage.
package image

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

func init() {
	extract.Register(schema.SourceImage, func(cfg extract.Config) (extract.Extractor, error) {
		return New(cfg)
	})
}

// Extractor copies a standalone image file into its workspace, leaving
// text/content.txt empty for C6/C7 to populate.
type Extractor struct {
	store artifactstore.ArtifactStore
}

// New constructs an Extractor backed by cfg.Store.
func New(cfg extract.Config) (*Extractor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("extract/image: store is required")
	}
	return &Extractor{store: cfg.Store}, nil
}

// Extract allocates a workspace, copies path's bytes into
// images/<basename>, and writes an empty text/content.txt so later stages
// can append to it uniformly.
func (e *Extractor) Extract(ctx context.Context, path string) (schema.Extraction, error) {
	docID, err := e.store.NewWorkspace(ctx, path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/image: new workspace: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/image: read %s: %w", path, err)
	}

	relPath := filepath.Join(artifactstore.ImagesDir, filepath.Base(path))
	if err := e.store.Write(ctx, docID, relPath, data); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/image: write image: %w", err)
	}
	if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.TextDir, "content.txt"), nil); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/image: write content: %w", err)
	}

	return schema.Extraction{
		WorkspaceDir: e.store.WorkspacePath(docID),
		DocID:        docID,
		SourceKind:   schema.SourceImage,
		ImagePaths:   []string{relPath},
	}, nil
}
