// Package server provides the HTTP front end (§6 External Interfaces):
// a transport-agnostic ServerAdapter behind a provider registry (stdlib
// net/http by default, gin in adapters/gin), composable middleware and
// lifecycle hooks, an SSE writer for the streaming chat endpoint, and the
// route handlers wiring the query engine, job queue, vector store, and
// object store to the wire contract.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veridex/veridex/core"
)

// ServerAdapter is implemented by each transport backend. Route patterns
// use Go's net/http "METHOD /path" convention (e.g. "POST /chat") so the
// same pattern works whether the adapter dispatches through a stdlib
// http.ServeMux or translates the method/path split for another router.
type ServerAdapter interface {
	// RegisterHandler wires handler to pattern.
	RegisterHandler(pattern string, handler http.Handler) error

	// Serve blocks, serving traffic on addr until ctx is done, at which
	// point it shuts down gracefully and returns ctx.Err().
	Serve(ctx context.Context, addr string) error

	// Shutdown gracefully stops a running Serve call. It is a no-op if no
	// server is running.
	Shutdown(ctx context.Context) error
}

// Config carries provider-specific construction options.
type Config struct {
	// Hooks are invoked around every request handled by the adapter.
	Hooks Hooks
}

// Factory builds a ServerAdapter from Config. Providers register one via
// Register in an init() function.
type Factory func(cfg Config) (ServerAdapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func init() {
	Register("stdlib", func(cfg Config) (ServerAdapter, error) {
		return NewStdlibAdapter(cfg), nil
	})
}

// Register makes a named adapter provider available via New.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a ServerAdapter using the named provider's factory.
func New(name string, cfg Config) (ServerAdapter, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("server: unknown provider %q (registered: %v)", name, List())
	}
	return factory(cfg)
}

// List returns the names of every registered adapter provider, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StdlibAdapter is the default ServerAdapter, backed by net/http.ServeMux
// and http.Server.
type StdlibAdapter struct {
	cfg Config
	mux *http.ServeMux

	mu     sync.Mutex
	server *http.Server
}

// NewStdlibAdapter constructs a StdlibAdapter.
func NewStdlibAdapter(cfg Config) *StdlibAdapter {
	return &StdlibAdapter{cfg: cfg, mux: http.NewServeMux()}
}

// RegisterHandler wires handler to pattern on the adapter's ServeMux,
// running the adapter's configured Hooks around every call.
func (a *StdlibAdapter) RegisterHandler(pattern string, handler http.Handler) error {
	if handler == nil {
		return errors.New("server: handler is required")
	}
	a.mux.Handle(pattern, a.withHooks(handler))
	return nil
}

// withHooks wraps handler with BeforeRequest/AfterRequest/OnError, and
// stamps every request's context with a request ID so downstream handlers
// and logging can correlate a single request (core.GetRequestID).
func (a *StdlibAdapter) withHooks(handler http.Handler) http.Handler {
	hooks := ComposeHooks(a.cfg.Hooks)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = withRequestID(w, r)
		if err := hooks.BeforeRequest(r.Context(), r); err != nil {
			err = hooks.OnError(r.Context(), err)
			writeError(w, http.StatusForbidden, err)
			return
		}
		sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(sw, r)
		hooks.AfterRequest(r.Context(), r, sw.status)
	})
}

// withRequestID stamps r's context with a request ID (reusing an incoming
// X-Request-Id header when present) and echoes it back on the response.
func withRequestID(w http.ResponseWriter, r *http.Request) *http.Request {
	id := r.Header.Get("X-Request-Id")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", id)
	return r.WithContext(core.WithRequestID(r.Context(), id))
}

// statusRecorder captures the status code a handler writes so hooks can
// observe it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// Flush satisfies http.Flusher so hook-wrapped handlers can still stream
// (e.g. POST /chat/stream's SSE response) through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Serve listens on addr and blocks until ctx is done, then shuts down
// gracefully and returns ctx.Err().
func (a *StdlibAdapter) Serve(ctx context.Context, addr string) error {
	a.mu.Lock()
	a.server = &http.Server{Addr: addr, Handler: a.mux}
	server := a.server
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	}
}

// Shutdown gracefully stops a running Serve call.
func (a *StdlibAdapter) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
