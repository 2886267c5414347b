// Package excel extracts sheets (as tables) and chart metadata from
// .xlsx/.xls/.xlsm workbooks using github.com/xuri/excelize/v2. It
// registers itself under schema.SourceExcel.
package excel

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

func init() {
	extract.Register(schema.SourceExcel, func(cfg extract.Config) (extract.Extractor, error) {
		return New(cfg)
	})
}

// Extractor reads every sheet of a workbook into a schema.Table (tables +
// chart metadata per §4.C5/SUPPLEMENTED FEATURES) and writes
// tables/tables.json and, when charts are present, charts/charts.json.
type Extractor struct {
	store artifactstore.ArtifactStore
}

// New constructs an Extractor backed by cfg.Store.
func New(cfg extract.Config) (*Extractor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("extract/excel: store is required")
	}
	return &Extractor{store: cfg.Store}, nil
}

// Extract opens the workbook at path, turns each non-empty sheet into a
// preprocessed schema.Table, and collects chart metadata per sheet.
func (e *Extractor) Extract(ctx context.Context, path string) (schema.Extraction, error) {
	docID, err := e.store.NewWorkspace(ctx, path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/excel: new workspace: %w", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/excel: open %s: %w", path, err)
	}
	defer f.Close()

	var tables []schema.Table
	var charts []schema.Chart
	var summary strings.Builder

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		headers, data := extract.NormalizeTable(rows)
		tables = append(tables, schema.Table{Sheet: sheet, Headers: headers, Data: data})

		fmt.Fprintf(&summary, "Sheet %q: %d rows, columns: %s\n", sheet, len(data), strings.Join(headers, ", "))

		sheetCharts, err := f.GetCharts(sheet)
		if err != nil {
			continue
		}
		for _, c := range sheetCharts {
			charts = append(charts, schema.Chart{
				Sheet: sheet,
				Kind:  string(c.Type),
			})
		}
	}

	if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.TextDir, "content.txt"), []byte(summary.String())); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/excel: write content: %w", err)
	}

	tablesJSON, err := json.Marshal(tables)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/excel: marshal tables: %w", err)
	}
	if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.TablesDir, "tables.json"), tablesJSON); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/excel: write tables: %w", err)
	}

	if len(charts) > 0 {
		chartsJSON, err := json.Marshal(charts)
		if err != nil {
			return schema.Extraction{}, fmt.Errorf("extract/excel: marshal charts: %w", err)
		}
		if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.ChartsDir, "charts.json"), chartsJSON); err != nil {
			return schema.Extraction{}, fmt.Errorf("extract/excel: write charts: %w", err)
		}
	}

	return schema.Extraction{
		WorkspaceDir: e.store.WorkspacePath(docID),
		DocID:        docID,
		SourceKind:   schema.SourceExcel,
	}, nil
}
