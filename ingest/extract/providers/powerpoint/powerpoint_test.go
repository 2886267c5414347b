package powerpoint

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veridex/veridex/artifactstore"
	localstore "github.com/veridex/veridex/artifactstore/providers/local"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

func slideXML(text string) string {
	return `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
<p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld>
</p:sld>`
}

func writeFixturePptx(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for i, text := range []string{"First slide", "Second slide"} {
		w, err := zw.Create(filepath.ToSlash(filepath.Join("ppt", "slides", "slide"+string(rune('1'+i))+".xml")))
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		if _, err := w.Write([]byte(slideXML(text))); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(extract.Config{})
	if err == nil {
		t.Fatal("expected error for missing store")
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	pptxPath := filepath.Join(dir, "deck.pptx")
	writeFixturePptx(t, pptxPath)

	store, err := localstore.New(artifactstore.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	x, err := New(extract.Config{Store: store})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	ctx := context.Background()
	ext, err := x.Extract(ctx, pptxPath)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if ext.SourceKind != schema.SourcePowerPoint {
		t.Errorf("SourceKind = %q, want powerpoint", ext.SourceKind)
	}

	data, err := store.Read(ctx, ext.DocID, filepath.Join(artifactstore.TextDir, "content.txt"))
	if err != nil {
		t.Fatalf("read content: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "First slide") || !strings.Contains(text, "Second slide") {
		t.Errorf("content = %q, want both slides", text)
	}
	if strings.Index(text, "First slide") > strings.Index(text, "Second slide") {
		t.Errorf("content = %q, want slide order preserved", text)
	}
}

var _ extract.Extractor = (*Extractor)(nil)
