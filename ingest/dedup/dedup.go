// Package dedup implements the Deduplicator / Fast-Track (C9): a
// content-hash short-circuit that skips re-ingesting bytes already seen,
// either within the current session or globally across sessions.
package dedup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/veridex/veridex/objectstore"
	"github.com/veridex/veridex/rag/vectorstore"
	"github.com/veridex/veridex/schema"
)

// Outcome classifies the result of a Check call.
type Outcome int

const (
	// NoShortCircuit means the caller should proceed through the full
	// ingest pipeline.
	NoShortCircuit Outcome = iota
	// FastTracked means the identical file was already indexed under the
	// same session; the caller should skip every downstream stage.
	FastTracked
	// Cloned means the file was already indexed under a different
	// session; its chunks and document record were cloned into the
	// current session, so the caller should skip extraction/structuring.
	Cloned
)

// Result is the outcome of a Check call.
type Result struct {
	Outcome Outcome
	// SourceID is the original source_id, populated when Outcome is
	// Cloned (the caller reports it as this ingest's source_id).
	SourceID string
}

// Input is one ingest's dedup check.
type Input struct {
	SessionID string
	FileHash  string
}

// Config wires a Deduplicator to its C3 and C2 collaborators.
type Config struct {
	VectorStore vectorstore.VectorStore
	ObjectStore objectstore.ObjectStore
}

// Deduplicator implements C9.
type Deduplicator struct {
	vs vectorstore.VectorStore
	os objectstore.ObjectStore
}

// New constructs a Deduplicator from cfg.
func New(cfg Config) (*Deduplicator, error) {
	if cfg.VectorStore == nil {
		return nil, fmt.Errorf("dedup: VectorStore is required")
	}
	if cfg.ObjectStore == nil {
		return nil, fmt.Errorf("dedup: ObjectStore is required")
	}
	return &Deduplicator{vs: cfg.VectorStore, os: cfg.ObjectStore}, nil
}

// Check runs the three-way dedup decision for in.
func (d *Deduplicator) Check(ctx context.Context, in Input) (Result, error) {
	sameSession, err := d.vs.Get(ctx, map[string]any{"file_hash": in.FileHash, "session_id": in.SessionID})
	if err != nil {
		return Result{}, fmt.Errorf("dedup: same-session lookup: %w", err)
	}
	if len(sameSession) > 0 {
		return Result{Outcome: FastTracked}, nil
	}

	allChunks, err := d.vs.Get(ctx, map[string]any{"file_hash": in.FileHash})
	if err != nil {
		return Result{}, fmt.Errorf("dedup: global lookup: %w", err)
	}
	if len(allChunks) == 0 {
		return Result{Outcome: NoShortCircuit}, nil
	}

	firstSession, err := d.firstIndexingSession(ctx, allChunks)
	if err != nil {
		return Result{}, fmt.Errorf("dedup: resolve first session: %w", err)
	}

	if err := d.cloneChunks(ctx, in, firstSession, allChunks); err != nil {
		return Result{}, fmt.Errorf("dedup: clone chunks: %w", err)
	}

	record, err := d.os.FindOneByArrayField(ctx, objectstore.ArrayFieldQuery{
		Array: "files", Field: "file_hash", Value: in.FileHash,
	})
	if err != nil {
		return Result{}, fmt.Errorf("dedup: find document record: %w", err)
	}
	if record == nil {
		return Result{Outcome: Cloned}, nil
	}

	var original schema.DocumentRecord
	for _, f := range record.Files {
		if f.FileHash == in.FileHash {
			original = f
			break
		}
	}

	if err := d.os.UpsertSession(ctx, objectstore.UpsertSessionInput{
		SessionID:   in.SessionID,
		ArrayPushes: []objectstore.ArrayPush{{Array: "files", Value: original}},
		Inc:         []objectstore.IncField{{Field: "files_count", By: 1}},
	}); err != nil {
		return Result{}, fmt.Errorf("dedup: upsert cloned record: %w", err)
	}

	return Result{Outcome: Cloned, SourceID: original.SourceID}, nil
}

// firstIndexingSession picks, among the distinct session_id values present
// on chunks, the one whose C2 session document has the earliest CreatedAt.
// Chunks carry no timestamp of their own, so the session document's
// CreatedAt stands in for "first indexed".
func (d *Deduplicator) firstIndexingSession(ctx context.Context, chunks []schema.Document) (string, error) {
	seen := make(map[string]bool)
	var sessionIDs []string
	for _, c := range chunks {
		sid, _ := c.Metadata["session_id"].(string)
		if sid == "" || seen[sid] {
			continue
		}
		seen[sid] = true
		sessionIDs = append(sessionIDs, sid)
	}
	sort.Strings(sessionIDs)

	var best string
	var bestCreated time.Time
	for _, sid := range sessionIDs {
		sess, err := d.os.GetSession(ctx, sid)
		if err != nil {
			return "", err
		}
		if sess == nil {
			continue
		}
		if best == "" || sess.CreatedAt.Before(bestCreated) {
			best = sid
			bestCreated = sess.CreatedAt
		}
	}
	return best, nil
}

// cloneChunks copies every chunk belonging to firstSession, rewriting its
// session_id metadata to in.SessionID and assigning a fresh vector-store ID
// scoped to the new session so the clone does not overwrite the original.
func (d *Deduplicator) cloneChunks(ctx context.Context, in Input, firstSession string, chunks []schema.Document) error {
	var docs []schema.Document
	var embeddings [][]float32
	for i, c := range chunks {
		sid, _ := c.Metadata["session_id"].(string)
		if sid != firstSession {
			continue
		}

		meta := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta["session_id"] = in.SessionID

		clone := schema.Document{
			ID:       fmt.Sprintf("%s__%s__clone__%d", in.SessionID, in.FileHash, i),
			Content:  c.Content,
			Metadata: meta,
		}
		docs = append(docs, clone)
		embeddings = append(embeddings, c.Embedding)
	}
	if len(docs) == 0 {
		return nil
	}
	return d.vs.Add(ctx, docs, embeddings)
}
