// Package powerpoint extracts slide text from a .pptx file. A .pptx is a
// zip archive holding one ppt/slides/slideN.xml per slide, each containing
// <a:t> text runs (namespace-agnostic local name "t"). It registers itself
// under schema.SourcePowerPoint.
//
// As with .docx, no PowerPoint library appears in the example corpus; the
// slide XML is reachable with the standard library's archive/zip and
// encoding/xml, same as the word extractor.
package powerpoint

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

func init() {
	extract.Register(schema.SourcePowerPoint, func(cfg extract.Config) (extract.Extractor, error) {
		return New(cfg)
	})
}

var slideEntryRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// Extractor reads every ppt/slides/slideN.xml out of a .pptx archive, in
// slide order, and writes their concatenated text to text/content.txt.
type Extractor struct {
	store artifactstore.ArtifactStore
}

// New constructs an Extractor backed by cfg.Store.
func New(cfg extract.Config) (*Extractor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("extract/powerpoint: store is required")
	}
	return &Extractor{store: cfg.Store}, nil
}

// Extract opens path as a zip archive and writes the concatenated slide
// text, one "[Slide N]" block per slide, to text/content.txt.
func (e *Extractor) Extract(ctx context.Context, path string) (schema.Extraction, error) {
	docID, err := e.store.NewWorkspace(ctx, path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/powerpoint: new workspace: %w", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/powerpoint: open %s: %w", path, err)
	}
	defer zr.Close()

	type slide struct {
		num   int
		entry *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideEntryRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, entry: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var text strings.Builder
	for _, s := range slides {
		content, err := readSlideText(s.entry)
		if err != nil {
			continue
		}
		fmt.Fprintf(&text, "[Slide %d]\n%s\n", s.num, content)
	}

	if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.TextDir, "content.txt"), []byte(text.String())); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/powerpoint: write content: %w", err)
	}

	return schema.Extraction{
		WorkspaceDir: e.store.WorkspacePath(docID),
		DocID:        docID,
		SourceKind:   schema.SourcePowerPoint,
	}, nil
}

func readSlideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
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
			return "", err
		}
		if t, ok := tok.(xml.StartElement); ok && t.Name.Local == "t" {
			var s string
			if err := dec.DecodeElement(&s, &t); err == nil {
				out.WriteString(s)
				out.WriteString(" ")
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}
