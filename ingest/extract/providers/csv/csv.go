// Package csv extracts a single preprocessed table from a .csv file using
// the standard library's encoding/csv. It registers itself under
// schema.SourceCSV.
package csv

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

func init() {
	extract.Register(schema.SourceCSV, func(cfg extract.Config) (extract.Extractor, error) {
		return New(cfg)
	})
}

// Extractor reads a .csv file into a single preprocessed schema.Table.
//
// encoding/csv is the standard library's CSV reader; no example repo in the
// corpus imports a third-party CSV parser, and the stdlib package already
// handles quoting/escaping correctly, so no ecosystem library is needed.
type Extractor struct {
	store artifactstore.ArtifactStore
}

// New constructs an Extractor backed by cfg.Store.
func New(cfg extract.Config) (*Extractor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("extract/csv: store is required")
	}
	return &Extractor{store: cfg.Store}, nil
}

// Extract reads path as CSV and writes a single tables/tables.json table.
func (e *Extractor) Extract(ctx context.Context, path string) (schema.Extraction, error) {
	docID, err := e.store.NewWorkspace(ctx, path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/csv: new workspace: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/csv: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/csv: parse %s: %w", path, err)
	}

	headers, data := extract.NormalizeTable(rows)
	table := schema.Table{Headers: headers, Data: data}

	summary := fmt.Sprintf("CSV with %d rows, columns: %s\n", len(data), strings.Join(headers, ", "))
	if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.TextDir, "content.txt"), []byte(summary)); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/csv: write content: %w", err)
	}

	tablesJSON, err := json.Marshal([]schema.Table{table})
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/csv: marshal table: %w", err)
	}
	if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.TablesDir, "tables.json"), tablesJSON); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/csv: write table: %w", err)
	}

	return schema.Extraction{
		WorkspaceDir: e.store.WorkspacePath(docID),
		DocID:        docID,
		SourceKind:   schema.SourceCSV,
	}, nil
}
