package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	objectstore "github.com/veridex/veridex/objectstore"
	objinmem "github.com/veridex/veridex/objectstore/providers/inmemory"
	"github.com/veridex/veridex/rag/vectorstore"
	vsinmem "github.com/veridex/veridex/rag/vectorstore/providers/inmemory"
	"github.com/veridex/veridex/schema"
)

func newTestDeduplicator(t *testing.T) (*Deduplicator, vectorstore.VectorStore, objectstore.ObjectStore) {
	t.Helper()
	vs := vsinmem.New()
	os := objinmem.New()
	d, err := New(Config{VectorStore: vs, ObjectStore: os})
	require.NoError(t, err)
	return d, vs, os
}

func TestNew_RequiresVectorStore(t *testing.T) {
	_, err := New(Config{ObjectStore: objinmem.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VectorStore")
}

func TestNew_RequiresObjectStore(t *testing.T) {
	_, err := New(Config{VectorStore: vsinmem.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ObjectStore")
}

func TestCheck_NoShortCircuit(t *testing.T) {
	d, _, _ := newTestDeduplicator(t)

	result, err := d.Check(context.Background(), Input{SessionID: "s1", FileHash: "hash-a"})
	require.NoError(t, err)
	assert.Equal(t, NoShortCircuit, result.Outcome)
}

func TestCheck_FastTracked(t *testing.T) {
	d, vs, _ := newTestDeduplicator(t)

	err := vs.Add(context.Background(), []schema.Document{
		{
			ID:      "chunk1",
			Content: "hello",
			Metadata: map[string]any{
				"file_hash":  "hash-a",
				"session_id": "s1",
			},
		},
	}, [][]float32{{0.1, 0.2}})
	require.NoError(t, err)

	result, err := d.Check(context.Background(), Input{SessionID: "s1", FileHash: "hash-a"})
	require.NoError(t, err)
	assert.Equal(t, FastTracked, result.Outcome)
}

func TestCheck_Cloned(t *testing.T) {
	d, vs, os := newTestDeduplicator(t)
	ctx := context.Background()

	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	record := schema.DocumentRecord{
		SourceID: "source-1",
		Source:   schema.SourcePDF,
		FileHash: "hash-a",
		Summary:  "a document",
	}

	require.NoError(t, os.UpsertSession(ctx, objectstore.UpsertSessionInput{
		SessionID:   "session-first",
		Patch:       map[string]any{"created_at": earlier},
		ArrayPushes: []objectstore.ArrayPush{{Array: "files", Value: record}},
	}))
	require.NoError(t, os.UpsertSession(ctx, objectstore.UpsertSessionInput{
		SessionID: "session-second",
		Patch:     map[string]any{"created_at": later},
	}))

	err := vs.Add(ctx, []schema.Document{
		{
			ID:      "chunk-first-1",
			Content: "first session chunk one",
			Metadata: map[string]any{
				"file_hash":  "hash-a",
				"session_id": "session-first",
			},
		},
		{
			ID:      "chunk-first-2",
			Content: "first session chunk two",
			Metadata: map[string]any{
				"file_hash":  "hash-a",
				"session_id": "session-first",
			},
		},
		{
			ID:      "chunk-second-1",
			Content: "second session chunk",
			Metadata: map[string]any{
				"file_hash":  "hash-a",
				"session_id": "session-second",
			},
		},
	}, [][]float32{
		{0.1, 0.2},
		{0.3, 0.4},
		{0.5, 0.6},
	})
	require.NoError(t, err)

	result, err := d.Check(ctx, Input{SessionID: "session-new", FileHash: "hash-a"})
	require.NoError(t, err)
	assert.Equal(t, Cloned, result.Outcome)
	assert.Equal(t, "source-1", result.SourceID)

	cloned, err := vs.Get(ctx, map[string]any{"file_hash": "hash-a", "session_id": "session-new"})
	require.NoError(t, err)
	require.Len(t, cloned, 2, "only session-first's chunks should be cloned")
	for _, c := range cloned {
		assert.Equal(t, "session-new", c.Metadata["session_id"])
		require.NotEmpty(t, c.Embedding, "clone must preserve the original embedding")
	}

	newSession, err := os.GetSession(ctx, "session-new")
	require.NoError(t, err)
	require.NotNil(t, newSession)
	require.Len(t, newSession.Files, 1)
	assert.Equal(t, "source-1", newSession.Files[0].SourceID)
	assert.Equal(t, 1, newSession.FilesCount)
}

func TestCheck_Cloned_NoDocumentRecord(t *testing.T) {
	d, vs, os := newTestDeduplicator(t)
	ctx := context.Background()

	require.NoError(t, os.UpsertSession(ctx, objectstore.UpsertSessionInput{
		SessionID: "session-first",
	}))

	err := vs.Add(ctx, []schema.Document{
		{
			ID:      "chunk-first-1",
			Content: "first session chunk",
			Metadata: map[string]any{
				"file_hash":  "hash-a",
				"session_id": "session-first",
			},
		},
	}, [][]float32{{0.1, 0.2}})
	require.NoError(t, err)

	result, err := d.Check(ctx, Input{SessionID: "session-new", FileHash: "hash-a"})
	require.NoError(t, err)
	assert.Equal(t, Cloned, result.Outcome)
	assert.Empty(t, result.SourceID)
}
