// Package audio handles audio and video inputs by delegating transcription
// to an injected Transcriber. No ASR/Whisper SDK appears anywhere in the
// example corpus, so rather than hand-roll a specific provider's wire
// protocol, the extractor depends only on this package's own interface —
// any backend (a local whisper.cpp server, a cloud speech API) can be
// wired in by the caller without the extractor importing its client. It
// registers itself under both schema.SourceAudio and schema.SourceVideo.
package audio

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/schema"
)

// Transcriber turns an audio or video file at path into a transcript.
// Video inputs are expected to have their audio track demuxed by the
// implementation; this package does no media handling of its own.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

func init() {
	factory := func(cfg extract.Config) (extract.Extractor, error) { return New(cfg) }
	extract.Register(schema.SourceAudio, factory)
	extract.Register(schema.SourceVideo, factory)
}

// Extractor writes a Transcriber's output as the document's text content.
type Extractor struct {
	store       artifactstore.ArtifactStore
	transcriber Transcriber
}

// New constructs an Extractor backed by cfg.Store and a Transcriber taken
// from cfg.Options["transcriber"]. A missing transcriber is allowed at
// construction time; Extract then fails per-call with a clear error,
// mirroring how the vision stage degrades per-image rather than at
// startup.
func New(cfg extract.Config) (*Extractor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("extract/audio: store is required")
	}
	t, _ := cfg.Options["transcriber"].(Transcriber)
	return &Extractor{store: cfg.Store, transcriber: t}, nil
}

// Extract transcribes path and writes the transcript to text/content.txt.
func (e *Extractor) Extract(ctx context.Context, path string) (schema.Extraction, error) {
	docID, err := e.store.NewWorkspace(ctx, path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/audio: new workspace: %w", err)
	}

	kind := schema.SourceAudio
	if ext := filepath.Ext(path); ext == ".mp4" || ext == ".mov" || ext == ".mkv" || ext == ".webm" {
		kind = schema.SourceVideo
	}

	if e.transcriber == nil {
		return schema.Extraction{}, fmt.Errorf("extract/audio: no transcriber configured")
	}
	transcript, err := e.transcriber.Transcribe(ctx, path)
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/audio: transcribe %s: %w", path, err)
	}

	if err := e.store.Write(ctx, docID, filepath.Join(artifactstore.TextDir, "content.txt"), []byte(transcript)); err != nil {
		return schema.Extraction{}, fmt.Errorf("extract/audio: write content: %w", err)
	}

	return schema.Extraction{
		WorkspaceDir: e.store.WorkspacePath(docID),
		DocID:        docID,
		SourceKind:   kind,
	}, nil
}
