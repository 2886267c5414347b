// Package pipeline implements the Pipeline Orchestrator (C10): the
// sequential ingest algorithm that runs an input through dedup, extraction,
// image understanding, structuring, chunking and vector indexing, saving
// the resulting document record to the object store regardless of which
// downstream stage (beyond extraction) failed.
package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/ingest/chunk"
	"github.com/veridex/veridex/ingest/dedup"
	"github.com/veridex/veridex/ingest/extract"
	"github.com/veridex/veridex/ingest/structure"
	"github.com/veridex/veridex/ingest/vision"
	"github.com/veridex/veridex/objectstore"
	"github.com/veridex/veridex/rag/embedding"
	"github.com/veridex/veridex/rag/vectorstore"
	"github.com/veridex/veridex/schema"
)

// Outcome classifies how an ingest completed.
type Outcome int

const (
	// Ingested means the full pipeline ran and produced a new record.
	Ingested Outcome = iota
	// FastTracked means the identical file was already indexed under the
	// same session; no pipeline stage ran.
	FastTracked
	// Cloned means a prior session's chunks and record were cloned into
	// the current session; no extraction/structuring ran.
	Cloned
)

// Input is one ingest request, matching spec.md's input descriptor.
type Input struct {
	// InputPath is a local file path, a web URL, or a YouTube URL.
	InputPath       string
	SessionID       string
	Author          string
	UserDescription string
	UseVision       bool
}

// Result is the outcome of running Run over an Input.
type Result struct {
	Outcome  Outcome
	SourceID string
	Record   schema.DocumentRecord
}

// Config wires an Orchestrator to its C1-C9 collaborators.
type Config struct {
	Artifacts   artifactstore.ArtifactStore
	Dedup       *dedup.Deduplicator
	Vision      *vision.Arbiter // optional: nil disables image understanding
	Structure   *structure.Agent
	Chunker     *chunk.Chunker
	Embedder    embedding.Embedder
	VectorStore vectorstore.VectorStore
	ObjectStore objectstore.ObjectStore

	// ExtractOptions is passed through to extract.Config.Options for
	// every dispatched extractor (transcribers, HTTP clients, image caps).
	ExtractOptions map[string]any
}

// Orchestrator runs the C10 ingest algorithm.
type Orchestrator struct {
	artifacts   artifactstore.ArtifactStore
	dedup       *dedup.Deduplicator
	vision      *vision.Arbiter
	structure   *structure.Agent
	chunker     *chunk.Chunker
	embedder    embedding.Embedder
	vectorstore vectorstore.VectorStore
	objectstore objectstore.ObjectStore
	extractOpts map[string]any
}

// New constructs an Orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Artifacts == nil {
		return nil, fmt.Errorf("pipeline: Artifacts is required")
	}
	if cfg.Dedup == nil {
		return nil, fmt.Errorf("pipeline: Dedup is required")
	}
	if cfg.Structure == nil {
		return nil, fmt.Errorf("pipeline: Structure is required")
	}
	if cfg.Chunker == nil {
		return nil, fmt.Errorf("pipeline: Chunker is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("pipeline: Embedder is required")
	}
	if cfg.VectorStore == nil {
		return nil, fmt.Errorf("pipeline: VectorStore is required")
	}
	if cfg.ObjectStore == nil {
		return nil, fmt.Errorf("pipeline: ObjectStore is required")
	}
	return &Orchestrator{
		artifacts:   cfg.Artifacts,
		dedup:       cfg.Dedup,
		vision:      cfg.Vision,
		structure:   cfg.Structure,
		chunker:     cfg.Chunker,
		embedder:    cfg.Embedder,
		vectorstore: cfg.VectorStore,
		objectstore: cfg.ObjectStore,
		extractOpts: cfg.ExtractOptions,
	}, nil
}

// Run executes the C10 algorithm over in: dedup check, extraction, optional
// image understanding, structuring, session persistence, and conditional
// chunking + vector indexing, in that order. Extraction failure aborts the
// ingest; every later stage's failure is recovered and logged, with the
// record still persisted with whatever data is available.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Result, error) {
	fileHash, err := contentHash(in.InputPath)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: hash input: %w", err)
	}

	dedupResult, err := o.dedup.Check(ctx, dedup.Input{SessionID: in.SessionID, FileHash: fileHash})
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: dedup check: %w", err)
	}
	switch dedupResult.Outcome {
	case dedup.FastTracked:
		return Result{Outcome: FastTracked}, nil
	case dedup.Cloned:
		return Result{Outcome: Cloned, SourceID: dedupResult.SourceID}, nil
	}

	sourceID := uuid.NewString()

	extraction, err := extract.Dispatch(ctx, in.InputPath, extract.Config{
		Store:   o.artifacts,
		Options: o.extractOpts,
	})
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: extract: %w", err)
	}
	defer o.artifacts.Cleanup(ctx, extraction.DocID)

	if in.UseVision && o.vision != nil && len(extraction.ImagePaths) > 0 {
		if _, _, err := o.vision.Process(ctx, extraction.DocID, extraction.ImagePaths); err != nil {
			slog.WarnContext(ctx, "pipeline: image understanding failed, continuing without it",
				"doc_id", extraction.DocID, "error", err)
		}
	}

	record, err := o.structure.Structure(ctx, structure.Input{
		DocID:           extraction.DocID,
		SourceID:        sourceID,
		SourceKind:      extraction.SourceKind,
		FileHash:        fileHash,
		Author:          in.Author,
		UserDescription: in.UserDescription,
	})
	if err != nil {
		slog.WarnContext(ctx, "pipeline: structuring failed, persisting partial record",
			"doc_id", extraction.DocID, "error", err)
		record = schema.DocumentRecord{
			SourceID: sourceID,
			Source:   extraction.SourceKind,
			FileHash: fileHash,
			Author:   in.Author,
		}
	}

	if err := o.objectstore.UpsertSession(ctx, objectstore.UpsertSessionInput{
		SessionID:   in.SessionID,
		ArrayPushes: []objectstore.ArrayPush{{Array: "files", Value: record}},
		Inc:         []objectstore.IncField{{Field: "files_count", By: 1}},
	}); err != nil {
		slog.WarnContext(ctx, "pipeline: session save failed", "doc_id", extraction.DocID, "error", err)
	}

	if err := o.indexChunks(ctx, extraction.DocID, in.SessionID, fileHash, record); err != nil {
		slog.WarnContext(ctx, "pipeline: chunking/indexing failed", "doc_id", extraction.DocID, "error", err)
	}

	return Result{Outcome: Ingested, SourceID: sourceID, Record: record}, nil
}

// indexChunks re-checks C3.exists(file_hash) (a prior pipeline run may have
// indexed this hash concurrently between C9's check and now), and, if
// still absent, chunks the record and adds the embedded chunks to the
// vector store.
func (o *Orchestrator) indexChunks(ctx context.Context, docID, sessionID, fileHash string, record schema.DocumentRecord) error {
	existing, err := o.vectorstore.Get(ctx, map[string]any{"file_hash": fileHash})
	if err != nil {
		return fmt.Errorf("check existing chunks: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	chunks, err := o.chunker.Chunk(ctx, chunk.Input{DocID: docID, SessionID: sessionID, Record: record})
	if err != nil {
		return fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := o.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embed: returned %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	docs := make([]schema.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = schema.Document{
			ID:       fmt.Sprintf("%s__%d", record.SourceID, i),
			Content:  c.Text,
			Metadata: c.Metadata,
		}
	}
	if err := o.vectorstore.Add(ctx, docs, embeddings); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	return nil
}

// contentHash returns the SHA-256 of a local file's bytes, or the MD5 of a
// URL string, matching spec.md's "file: SHA-256 of bytes; url: MD5(url)".
func contentHash(input string) (string, error) {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		sum := md5.Sum([]byte(input))
		return hex.EncodeToString(sum[:]), nil
	}
	return extract.FileHash(input)
}
