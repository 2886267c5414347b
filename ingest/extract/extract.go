// Package extract is the format dispatcher and registry for document
// extraction (C5): a uniform contract — extract(input) produces a workspace
// directory, discovered image paths, a doc ID and a source kind — behind
// which each format-specific extractor is a black-box collaborator.
//
// Providers register themselves under a schema.SourceKind via init():
//
//	import _ "github.com/veridex/veridex/ingest/extract/providers/pdf"
//
//	x, err := extract.New(schema.SourcePDF, extract.Config{Store: workspace})
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/schema"
)

// Extractor is a format-specific collaborator that turns an input (a local
// path or a URL, depending on kind) into a schema.Extraction, writing its
// artifacts (text/content.txt, optional tables/tables.json, optional
// images) to the configured artifactstore.ArtifactStore workspace.
type Extractor interface {
	Extract(ctx context.Context, input string) (schema.Extraction, error)
}

// Config configures an Extractor provider.
type Config struct {
	// Store is the workspace store an extractor allocates into via
	// NewWorkspace and writes artifacts to via Write. Required.
	Store artifactstore.ArtifactStore

	// Options carries provider-specific settings (e.g. a Transcriber for
	// audio/video, an HTTP client for url/youtube, image caps).
	Options map[string]any
}

// Factory constructs an Extractor from Config. Providers register one via
// Register in their init() function.
type Factory func(cfg Config) (Extractor, error)

var (
	mu       sync.RWMutex
	registry = make(map[schema.SourceKind]Factory)
)

// Register adds a named extractor factory to the global registry, keyed by
// the source kind it handles. Registering a duplicate kind overwrites the
// previous factory.
func Register(kind schema.SourceKind, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[kind] = f
}

// New creates an Extractor for kind by looking up its factory in the
// registry and calling it with cfg.
func New(kind schema.SourceKind, cfg Config) (Extractor, error) {
	mu.RLock()
	f, ok := registry[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("extract: unknown source kind %q (registered: %v)", kind, List())
	}
	return f(cfg)
}

// List returns the source kinds with a registered extractor, sorted.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for kind := range registry {
		names = append(names, string(kind))
	}
	sort.Strings(names)
	return names
}

// extByKind maps a lowercased file extension (with leading dot) to the
// source kind that handles it, per the dispatch table.
var extByKind = map[string]schema.SourceKind{
	".pdf":  schema.SourcePDF,
	".docx": schema.SourceWord,
	".xlsx": schema.SourceExcel,
	".xls":  schema.SourceExcel,
	".xlsm": schema.SourceExcel,
	".csv":  schema.SourceCSV,
	".pptx": schema.SourcePowerPoint,
	".png":  schema.SourceImage,
	".jpg":  schema.SourceImage,
	".jpeg": schema.SourceImage,
	".gif":  schema.SourceImage,
	".webp": schema.SourceImage,
	".bmp":  schema.SourceImage,
	".mp3":  schema.SourceAudio,
	".wav":  schema.SourceAudio,
	".m4a":  schema.SourceAudio,
	".flac": schema.SourceAudio,
	".mp4":  schema.SourceVideo,
	".mov":  schema.SourceVideo,
	".mkv":  schema.SourceVideo,
	".webm": schema.SourceVideo,
}

// DetectKind resolves input to a source kind, by URL form first (youtube,
// then any other http(s) URL) and by file extension otherwise.
func DetectKind(input string) (schema.SourceKind, error) {
	if isYouTubeURL(input) {
		return schema.SourceYouTube, nil
	}
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return schema.SourceURL, nil
	}
	ext := strings.ToLower(filepath.Ext(input))
	kind, ok := extByKind[ext]
	if !ok {
		return "", fmt.Errorf("extract: unsupported extension %q", ext)
	}
	return kind, nil
}

func isYouTubeURL(input string) bool {
	return strings.Contains(input, "youtube.com/watch") ||
		strings.Contains(input, "youtu.be/") ||
		strings.Contains(input, "youtube.com/shorts/")
}

// Dispatch detects input's source kind and runs the matching registered
// extractor, constructed from cfg.
func Dispatch(ctx context.Context, input string, cfg Config) (schema.Extraction, error) {
	kind, err := DetectKind(input)
	if err != nil {
		return schema.Extraction{}, err
	}
	x, err := New(kind, cfg)
	if err != nil {
		return schema.Extraction{}, err
	}
	return x.Extract(ctx, input)
}

// FileHash returns the lowercase hex SHA-256 of the file at path, used by
// the deduplicator (C9) to detect identical uploads.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("extract: hash %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("extract: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NormalizeTable applies the C5 tabular preprocessing rules: trim and
// normalize every cell, drop rows that are entirely empty (except the
// header row), drop columns whose data cells are all empty, and collapse
// integer-valued floats (e.g. "3.0") to plain integers ("3"). The first
// row of rows is treated as the header.
func NormalizeTable(rows [][]string) (headers []string, data [][]string) {
	if len(rows) == 0 {
		return nil, nil
	}

	trimmed := make([][]string, len(rows))
	width := 0
	for i, row := range rows {
		trimmed[i] = make([]string, len(row))
		for j, cell := range row {
			trimmed[i][j] = collapseNumeric(strings.TrimSpace(cell))
		}
		if len(row) > width {
			width = len(row)
		}
	}
	for i, row := range trimmed {
		if len(row) < width {
			padded := make([]string, width)
			copy(padded, row)
			trimmed[i] = padded
		}
	}

	keepCol := make([]bool, width)
	for col := range keepCol {
		for _, row := range trimmed[1:] {
			if row[col] != "" {
				keepCol[col] = true
				break
			}
		}
	}

	dropCols := func(row []string) []string {
		out := make([]string, 0, width)
		for col, v := range row {
			if keepCol[col] {
				out = append(out, v)
			}
		}
		return out
	}

	headers = dropCols(trimmed[0])

	for _, row := range trimmed[1:] {
		allEmpty := true
		for _, v := range row {
			if v != "" {
				allEmpty = false
				break
			}
		}
		if allEmpty {
			continue
		}
		data = append(data, dropCols(row))
	}
	return headers, data
}

// collapseNumeric rewrites integer-valued floats ("3.0", "42.00") to plain
// integers ("3", "42"); any other value is returned unchanged.
func collapseNumeric(cell string) string {
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return cell
	}
	if f == float64(int64(f)) && (strings.Contains(cell, ".")) {
		return strconv.FormatInt(int64(f), 10)
	}
	return cell
}
