package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veridex/veridex/core"
	"github.com/veridex/veridex/jobqueue"
	"github.com/veridex/veridex/objectstore"
	"github.com/veridex/veridex/query"
	"github.com/veridex/veridex/rag/vectorstore"
)

// Handlers wires the route handlers described by spec.md §6 to their
// collaborators: the ingest job queue, the query engine, the vector store
// and object store.
type Handlers struct {
	Queue       *jobqueue.Queue
	Engine      *query.Engine
	VectorStore vectorstore.VectorStore
	ObjectStore objectstore.ObjectStore

	// UploadDir is where POST /extract writes uploaded files before
	// enqueuing them; defaults to os.TempDir() when empty.
	UploadDir string
}

// Register wires every handler onto adapter using net/http's
// "METHOD /path" route patterns.
func (h *Handlers) Register(adapter ServerAdapter) error {
	routes := map[string]http.HandlerFunc{
		"GET /health":                       h.handleHealth,
		"POST /extract":                     h.handleExtract,
		"POST /chat":                        h.handleChat,
		"POST /chat/stream":                 h.handleChatStream,
		"GET /chat/history/{session_id}":    h.handleGetHistory,
		"DELETE /chat/history/{session_id}": h.handleDeleteHistory,
		"GET /documents":                    h.handleListDocuments,
		"DELETE /documents":                 h.handleDeleteDocuments,
	}
	for pattern, handler := range routes {
		if err := adapter.RegisterHandler(pattern, handler); err != nil {
			return fmt.Errorf("server: register %s: %w", pattern, err)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// extractResponse is the POST /extract response body: the queue accepted
// the task and will process it asynchronously.
type extractResponse struct {
	Status    string `json:"status"`
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *Handlers) handleExtract(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
		return
	}

	uploadDir := h.UploadDir
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}

	var refs []jobqueue.FileRef
	if r.MultipartForm != nil {
		for _, headers := range r.MultipartForm.File {
			for _, fh := range headers {
				path, err := h.saveUpload(uploadDir, fh)
				if err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
				refs = append(refs, jobqueue.FileRef{
					Path:        path,
					Name:        fh.Filename,
					ContentType: fh.Header.Get("Content-Type"),
				})
			}
		}
	}

	var links []string
	if raw := r.FormValue("links"); raw != "" {
		links = strings.Split(raw, ",")
		for i := range links {
			links[i] = strings.TrimSpace(links[i])
		}
	}

	if len(refs) == 0 && len(links) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("at least one of files or links is required"))
		return
	}

	useVision, _ := strconv.ParseBool(r.FormValue("use_vision"))

	task := jobqueue.Task{
		FileRefs:        refs,
		Links:           links,
		Author:          r.FormValue("author"),
		UseVision:       useVision,
		SessionID:       r.FormValue("session_id"),
		UserDescription: r.FormValue("user_description"),
		CallbackURL:     r.FormValue("callback_url"),
	}

	ctx := core.WithSessionID(r.Context(), task.SessionID)
	taskID, err := h.Queue.Submit(ctx, task)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, extractResponse{
		Status:    "queued",
		TaskID:    taskID,
		SessionID: task.SessionID,
		Message:   "ingestion task queued",
	})
}

func (h *Handlers) saveUpload(dir string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := uuid.NewString() + "__" + filepath.Base(fh.Filename)
	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload destination: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

func (h *Handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	var in query.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	ctx := core.WithSessionID(r.Context(), in.SessionID)
	result, err := h.Engine.Chat(ctx, in)
	if err != nil {
		slog.ErrorContext(ctx, "server: chat failed", "request_id", core.GetRequestID(ctx), "session_id", in.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var in query.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	ctx := core.WithSessionID(r.Context(), in.SessionID)

	sw, err := NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	_, err = h.Engine.ChatStream(ctx, in, func(delta string) {
		_ = sw.WriteEvent(SSEEvent{Data: delta})
	})
	if err != nil {
		slog.ErrorContext(ctx, "server: chat stream failed", "request_id", core.GetRequestID(ctx), "session_id", in.SessionID, "error", err)
	}
	_ = sw.WriteEvent(SSEEvent{Data: "[DONE]"})
}

func (h *Handlers) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	ctx := core.WithSessionID(r.Context(), sessionID)
	msgs, err := h.ObjectStore.ReadMessages(ctx, sessionID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "messages": msgs})
}

func (h *Handlers) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	ctx := core.WithSessionID(r.Context(), sessionID)
	if err := h.ObjectStore.DeleteChat(ctx, sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}
	ctx := core.WithSessionID(r.Context(), sessionID)
	session, err := h.ObjectStore.GetSession(ctx, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if session == nil {
		writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "files": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	sourceID := r.URL.Query().Get("source_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}

	ctx := core.WithSessionID(r.Context(), sessionID)

	filter := map[string]any{"session_id": sessionID}
	if sourceID != "" {
		filter["source_id"] = sourceID
	}

	docs, err := h.VectorStore.Get(ctx, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	if err := h.VectorStore.Delete(ctx, ids); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if sourceID != "" {
		err = h.ObjectStore.PullFromArray(ctx, sessionID, "files", objectstore.Predicate{Field: "source_id", Value: sourceID})
	} else {
		err = h.ObjectStore.DeleteSession(ctx, sessionID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// healthCheckSessionID is a sentinel session ID used only to probe store
// reachability; it is never expected to exist.
const healthCheckSessionID = "__health_check__"

// handleHealth reports the vector and object store connectivity, matching
// spec.md's liveness/readiness probe.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]core.HealthStatus{
		"vector_store": pingVectorStore(r.Context(), h.VectorStore),
		"object_store": pingObjectStore(r.Context(), h.ObjectStore),
	}

	overall := core.HealthHealthy
	for _, c := range checks {
		if c.Status != core.HealthHealthy {
			overall = core.HealthUnhealthy
		}
	}

	status := http.StatusOK
	if overall != core.HealthHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func pingVectorStore(ctx context.Context, vs vectorstore.VectorStore) core.HealthStatus {
	if _, err := vs.Get(ctx, map[string]any{"session_id": healthCheckSessionID}); err != nil {
		return core.HealthStatus{Status: core.HealthUnhealthy, Message: err.Error(), Timestamp: time.Now()}
	}
	return core.HealthStatus{Status: core.HealthHealthy, Timestamp: time.Now()}
}

func pingObjectStore(ctx context.Context, store objectstore.ObjectStore) core.HealthStatus {
	if _, err := store.GetSession(ctx, healthCheckSessionID); err != nil {
		return core.HealthStatus{Status: core.HealthUnhealthy, Message: err.Error(), Timestamp: time.Now()}
	}
	return core.HealthStatus{Status: core.HealthHealthy, Timestamp: time.Now()}
}
