package audio

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/veridex/veridex/artifactstore"
	localstore "github.com/veridex/veridex/artifactstore/providers/local"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

type stubTranscriber struct {
	text string
	err  error
}

func (s stubTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	return s.text, s.err
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(extract.Config{})
	if err == nil {
		t.Fatal("expected error for missing store")
	}
}

func TestExtract_NoTranscriber(t *testing.T) {
	store, err := localstore.New(artifactstore.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	x, err := New(extract.Config{Store: store})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	_, err = x.Extract(context.Background(), "call.mp3")
	if err == nil {
		t.Fatal("expected error with no transcriber configured")
	}
}

func TestExtract_Audio(t *testing.T) {
	store, err := localstore.New(artifactstore.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	x, err := New(extract.Config{
		Store:   store,
		Options: map[string]any{"transcriber": stubTranscriber{text: "hello there"}},
	})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	ctx := context.Background()
	ext, err := x.Extract(ctx, "call.mp3")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if ext.SourceKind != schema.SourceAudio {
		t.Errorf("SourceKind = %q, want audio", ext.SourceKind)
	}

	data, err := store.Read(ctx, ext.DocID, filepath.Join(artifactstore.TextDir, "content.txt"))
	if err != nil {
		t.Fatalf("read content: %v", err)
	}
	if string(data) != "hello there" {
		t.Errorf("content = %q, want transcript", data)
	}
}

func TestExtract_Video(t *testing.T) {
	store, err := localstore.New(artifactstore.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	x, err := New(extract.Config{
		Store:   store,
		Options: map[string]any{"transcriber": stubTranscriber{text: "video transcript"}},
	})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	ext, err := x.Extract(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if ext.SourceKind != schema.SourceVideo {
		t.Errorf("SourceKind = %q, want video", ext.SourceKind)
	}
}

var _ extract.Extractor = (*Extractor)(nil)
