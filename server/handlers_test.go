package server

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	local "github.com/veridex/veridex/artifactstore/providers/local"
	"github.com/veridex/veridex/cache"
	cacheinmem "github.com/veridex/veridex/cache/providers/inmemory"
	"github.com/veridex/veridex/ingest/chunk"
	"github.com/veridex/veridex/ingest/dedup"
	_ "github.com/veridex/veridex/ingest/extract/providers/csv"
	"github.com/veridex/veridex/ingest/pipeline"
	"github.com/veridex/veridex/ingest/structure"
	"github.com/veridex/veridex/internal/testutil/mockembedder"
	"github.com/veridex/veridex/jobqueue"
	"github.com/veridex/veridex/llm"
	objinmem "github.com/veridex/veridex/objectstore/providers/inmemory"
	"github.com/veridex/veridex/query"
	vsinmem "github.com/veridex/veridex/rag/vectorstore/providers/inmemory"
	"github.com/veridex/veridex/schema"
)

// stubModel is a llm.ChatModel test double that returns a canned response.
type stubModel struct {
	response string
}

func (m stubModel) Generate(ctx context.Context, msgs []schema.Message, opts ...llm.GenerateOption) (*schema.AIMessage, error) {
	return schema.NewAIMessage(m.response), nil
}
func (m stubModel) Stream(ctx context.Context, msgs []schema.Message, opts ...llm.GenerateOption) iter.Seq2[schema.StreamChunk, error] {
	return func(yield func(schema.StreamChunk, error) bool) {
		for _, word := range strings.Fields(m.response) {
			if !yield(schema.StreamChunk{Delta: word + " "}, nil) {
				return
			}
		}
	}
}
func (m stubModel) BindTools(tools []schema.ToolDefinition) llm.ChatModel { return m }
func (m stubModel) ModelID() string                                      { return "stub" }

// testStack bundles every collaborator Handlers needs, all in-memory, so
// the HTTP surface can be exercised end to end without network or disk
// dependencies beyond a scratch upload directory.
type testStack struct {
	handlers *Handlers
	vs       *vsinmem.Store
	objStore *objinmem.Store
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	store, err := local.New(local.Config{Root: t.TempDir()})
	require.NoError(t, err)

	vs := vsinmem.New()
	objStore := objinmem.New()
	embedder := mockembedder.New(mockembedder.WithEmbeddings([][]float32{{0.1, 0.2}}))

	sa, err := structure.New(structure.Config{Store: store, Model: stubModel{response: "summary"}})
	require.NoError(t, err)
	d, err := dedup.New(dedup.Config{VectorStore: vs, ObjectStore: objStore})
	require.NoError(t, err)

	orch, err := pipeline.New(pipeline.Config{
		Artifacts:   store,
		Dedup:       d,
		Structure:   sa,
		Chunker:     chunk.New(chunk.Config{}),
		Embedder:    embedder,
		VectorStore: vs,
		ObjectStore: objStore,
	})
	require.NoError(t, err)

	q, err := jobqueue.New(jobqueue.Config{Orchestrator: orch})
	require.NoError(t, err)
	q.Start(context.Background())
	t.Cleanup(q.Close)

	rc := cache.NewResponseCache(cacheinmem.New(cache.Config{}), 0.92)
	engine, err := query.New(query.Config{
		VectorStore:   vs,
		ObjectStore:   objStore,
		ResponseCache: rc,
		Embedder:      embedder,
		Model:         stubModel{response: "the answer"},
	})
	require.NoError(t, err)

	return &testStack{
		handlers: &Handlers{
			Queue:       q,
			Engine:      engine,
			VectorStore: vs,
			ObjectStore: objStore,
			UploadDir:   t.TempDir(),
		},
		vs:       vs,
		objStore: objStore,
	}
}

func (s *testStack) router(t *testing.T) http.Handler {
	t.Helper()
	adapter := NewStdlibAdapter(Config{})
	require.NoError(t, s.handlers.Register(adapter))
	return adapter.mux
}

func TestHandleExtract(t *testing.T) {
	t.Run("accepts a multipart upload and enqueues a task", func(t *testing.T) {
		stack := newTestStack(t)
		router := stack.router(t)

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("files", "report.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte("name,amount\nwidget,10\n"))
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("session_id", "s1"))
		require.NoError(t, mw.WriteField("author", "alice"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/extract", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp extractResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "queued", resp.Status)
		assert.NotEmpty(t, resp.TaskID)
		assert.Equal(t, "s1", resp.SessionID)
		assert.NotEmpty(t, resp.Message)
	})

	t.Run("rejects a request with no files and no links", func(t *testing.T) {
		stack := newTestStack(t)
		router := stack.router(t)

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("session_id", "s1"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/extract", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	stack := newTestStack(t)
	router := stack.router(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"status\":\"healthy\"")
}

func TestHandleChat(t *testing.T) {
	stack := newTestStack(t)
	router := stack.router(t)

	body, err := json.Marshal(query.Input{Message: "hello"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result query.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "the answer", result.Answer)
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	stack := newTestStack(t)
	router := stack.router(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatStream(t *testing.T) {
	stack := newTestStack(t)
	router := stack.router(t)

	body, err := json.Marshal(query.Input{Message: "hello"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat/stream", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	respBody := rec.Body.String()
	assert.Contains(t, respBody, "data: the ")
	assert.Contains(t, respBody, "data: [DONE]")
}

func TestHandleHistory(t *testing.T) {
	stack := newTestStack(t)
	router := stack.router(t)

	require.NoError(t, stack.objStore.AppendMessage(context.Background(), "s1", schema.ChatMessage{
		Role: "user", Content: "hi", Timestamp: time.Now(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat/history/s1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"session_id\":\"s1\"")

	req = httptest.NewRequest(http.MethodDelete, "/chat/history/s1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandleListDocuments_RequiresSessionID(t *testing.T) {
	stack := newTestStack(t)
	router := stack.router(t)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListDocuments_NoSession(t *testing.T) {
	stack := newTestStack(t)
	router := stack.router(t)

	req := httptest.NewRequest(http.MethodGet, "/documents?session_id=missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"files\":[]")
}

func TestHandleDeleteDocuments(t *testing.T) {
	stack := newTestStack(t)
	router := stack.router(t)

	require.NoError(t, stack.vs.Add(context.Background(),
		[]schema.Document{{ID: "doc-1", Content: "x", Metadata: map[string]any{"session_id": "s1"}}},
		[][]float32{{0.1, 0.2}},
	))

	req := httptest.NewRequest(http.MethodDelete, "/documents?session_id=s1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	docs, err := stack.vs.Get(context.Background(), map[string]any{"session_id": "s1"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestHandleDeleteDocuments_RequiresSessionID(t *testing.T) {
	stack := newTestStack(t)
	router := stack.router(t)

	req := httptest.NewRequest(http.MethodDelete, "/documents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

