// Package pdf extracts text and embedded images from PDF documents using
// github.com/ledongthuc/pdf. It registers itself under schema.SourcePDF.
package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

func init() {
	extract.Register(schema.SourcePDF, func(cfg extract.Config) (extract.Extractor, error) {
		return New(cfg)
	})
}

// Extractor reads a PDF file page by page, concatenating plain text into
// text/content.txt and writing recoverable embedded raster images under
// images/.
type Extractor struct {
	store artifactstore.ArtifactStore
}

// New constructs an Extractor backed by cfg.Store.
func New(cfg extract.Config) (*Extractor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("extract/pdf: store is required")
	}
	return &Extractor{store: cfg.Store}, nil
}

// Extract opens the PDF at path, reads every page's text, and best-effort
// recovers embedded JPEG/PNG raster images from each page's XObject
// resources, writing them to the workspace.
func (e *Extractor) Extract(ctx context.Context, path string) (schema.Extraction, error) {
	docID, err := e.store.NewWorkspace(ctx, path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/pdf: new workspace: %w", err)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/pdf: open %s: %w", path, err)
	}
	defer f.Close()

	var text strings.Builder
	var imagePaths []string

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("extract/pdf: page text extraction failed", "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")

		for _, img := range extractPageImages(page, i) {
			relPath := filepath.Join(artifactstore.ImagesDir, img.name)
			if err := e.store.Write(ctx, docID, relPath, img.data); err != nil {
				slog.Debug("extract/pdf: write image failed", "image", img.name, "error", err)
				continue
			}
			imagePaths = append(imagePaths, relPath)
		}
	}

	if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.TextDir, "content.txt"), []byte(text.String())); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/pdf: write content: %w", err)
	}

	return schema.Extraction{
		WorkspaceDir: e.store.WorkspacePath(docID),
		DocID:        docID,
		SourceKind:   schema.SourcePDF,
		ImagePaths:   imagePaths,
	}, nil
}

type pageImage struct {
	name string
	data []byte
}

// extractPageImages recovers raster images from a PDF page's XObject
// resources. Only DCTDecode (JPEG, stored raw) and uncompressed streams are
// handled; other filters (JPXDecode, CCITTFaxDecode, …) are skipped, and
// any panic from the underlying library's filter chain on an unsupported
// combination is recovered and the image dropped rather than aborting the
// whole document.
func extractPageImages(page pdf.Page, pageNum int) (out []pageImage) {
	resources := page.Resources()
	if resources.IsNull() {
		return nil
	}
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return nil
	}

	for idx, name := range xobjects.Keys() {
		xobj := xobjects.Key(name)
		if xobj.Key("Subtype").Name() != "Image" || xobj.Key("ImageMask").Bool() {
			continue
		}
		width := xobj.Key("Width").Int64()
		height := xobj.Key("Height").Int64()
		if width < 32 || height < 32 {
			continue
		}

		data, ext := readImage(xobj, pageNum, name)
		if data == nil {
			continue
		}
		out = append(out, pageImage{
			name: fmt.Sprintf("page%03d_%02d.%s", pageNum, idx, ext),
			data: data,
		})
	}
	return out
}

func readImage(xobj pdf.Value, pageNum int, name string) (data []byte, ext string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("extract/pdf: recovered panic reading image stream", "page", pageNum, "name", name, "panic", r)
			data, ext = nil, ""
		}
	}()

	filter := xobj.Key("Filter").Name()
	rc := xobj.Reader()
	defer rc.Close()

	buf := make([]byte, 0, 65536)
	tmp := make([]byte, 32768)
	for {
		n, err := rc.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	if len(buf) == 0 {
		return nil, ""
	}
	if filter == "DCTDecode" {
		return buf, "jpg"
	}
	return buf, "png"
}
