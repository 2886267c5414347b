// Package word extracts the body text of a .docx file. A .docx is a zip
// archive holding word/document.xml, whose text runs (<w:t> elements,
// namespace-agnostic) are concatenated in document order. It registers
// itself under schema.SourceWord.
//
// No Word-document library appears anywhere in the example corpus, so this
// extractor is built directly on the standard library's archive/zip and
// encoding/xml — OOXML's body text is reachable from a plain streaming XML
// decoder, and pulling in a dependency for it would not buy correctness a
// stdlib decoder lacks.
package word

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

func init() {
	extract.Register(schema.SourceWord, func(cfg extract.Config) (extract.Extractor, error) {
		return New(cfg)
	})
}

// Extractor reads word/document.xml out of a .docx archive and writes its
// concatenated body text to text/content.txt.
type Extractor struct {
	store artifactstore.ArtifactStore
}

// New constructs an Extractor backed by cfg.Store.
func New(cfg extract.Config) (*Extractor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("extract/word: store is required")
	}
	return &Extractor{store: cfg.Store}, nil
}

// Extract opens path as a zip archive, reads word/document.xml, and writes
// its text content.
func (e *Extractor) Extract(ctx context.Context, path string) (schema.Extraction, error) {
	docID, err := e.store.NewWorkspace(ctx, path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/word: new workspace: %w", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/word: open %s: %w", path, err)
	}
	defer zr.Close()

	text, err := readBodyText(zr, "word/document.xml")
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/word: %w", err)
	}

	if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.TextDir, "content.txt"), []byte(text)); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/word: write content: %w", err)
	}

	return schema.Extraction{
		WorkspaceDir: e.store.WorkspacePath(docID),
		DocID:        docID,
		SourceKind:   schema.SourceWord,
	}, nil
}

// readBodyText finds entryName inside zr and concatenates the character
// data of every element whose local name is "t" (the OOXML text-run
// element, regardless of its namespace prefix), inserting a newline after
// elements named "p" (paragraph) to keep output roughly paragraph-shaped.
func readBodyText(zr *zip.ReadCloser, entryName string) (string, error) {
	var rc io.ReadCloser
	for _, f := range zr.File {
		if f.Name == entryName {
			var err error
			rc, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("open %s: %w", entryName, err)
			}
			break
		}
	}
	if rc == nil {
		return "", fmt.Errorf("%s not found in archive", entryName)
	}
	defer rc.Close()

	var out strings.Builder
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", entryName, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					continue
				}
				out.WriteString(s)
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				out.WriteString("\n")
			}
		}
	}
	return out.String(), nil
}
