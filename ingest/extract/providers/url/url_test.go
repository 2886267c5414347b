package url

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veridex/veridex/artifactstore"
	localstore "github.com/veridex/veridex/artifactstore/providers/local"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

const fixtureHTML = `<!doctype html>
<html><head><title>ignored</title><style>.x{}</style></head>
<body>
<p>Hello visitors</p>
<img src="/photo1.png">
<img src="https://other-origin.example/photo2.png">
<script>console.log("nope")</script>
</body></html>`

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(extract.Config{})
	if err == nil {
		t.Fatal("expected error for missing store")
	}
}

func TestExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fixtureHTML))
	}))
	defer srv.Close()

	store, err := localstore.New(artifactstore.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	x, err := New(extract.Config{Store: store})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	ctx := context.Background()
	ext, err := x.Extract(ctx, srv.URL+"/page")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if ext.SourceKind != schema.SourceURL {
		t.Errorf("SourceKind = %q, want url", ext.SourceKind)
	}
	if len(ext.ImagePaths) != 1 {
		t.Fatalf("ImagePaths = %v, want 1 same-origin image", ext.ImagePaths)
	}
	if !strings.Contains(ext.ImagePaths[0], "/photo1.png") {
		t.Errorf("ImagePaths[0] = %q, want photo1.png", ext.ImagePaths[0])
	}

	data, err := store.Read(ctx, ext.DocID, filepath.Join(artifactstore.TextDir, "content.txt"))
	if err != nil {
		t.Fatalf("read content: %v", err)
	}
	if !strings.Contains(string(data), "Hello visitors") {
		t.Errorf("content = %q, want visible text", data)
	}
	if strings.Contains(string(data), "console.log") {
		t.Errorf("content = %q, want script content excluded", data)
	}
}

func TestExtract_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store, err := localstore.New(artifactstore.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	x, err := New(extract.Config{Store: store})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	_, err = x.Extract(context.Background(), srv.URL+"/missing")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}

var _ extract.Extractor = (*Extractor)(nil)
