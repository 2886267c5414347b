// Package gin provides a server.ServerAdapter backed by gin-gonic/gin, with
// gin-contrib/cors wired in as default middleware.
package gin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/veridex/veridex/core"
	"github.com/veridex/veridex/server"
)

func init() {
	server.Register("gin", func(cfg server.Config) (server.ServerAdapter, error) {
		return New(cfg), nil
	})
}

// Adapter is a server.ServerAdapter backed by a gin.Engine.
type Adapter struct {
	cfg    server.Config
	engine *gin.Engine
	server *http.Server
}

// New constructs an Adapter with CORS enabled for all origins and the
// configured hooks run around every request.
func New(cfg server.Config) *Adapter {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
	}))

	a := &Adapter{cfg: cfg, engine: engine}
	engine.Use(a.hooksMiddleware())
	return a
}

// hooksMiddleware runs cfg.Hooks.BeforeRequest/AfterRequest/OnError around
// every request gin dispatches, stamping the request's context with a
// request ID first so downstream handlers and logging can correlate a
// single request (core.GetRequestID).
func (a *Adapter) hooksMiddleware() gin.HandlerFunc {
	hooks := server.ComposeHooks(a.cfg.Hooks)
	return func(c *gin.Context) {
		id := c.Request.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-Id", id)
		c.Request = c.Request.WithContext(core.WithRequestID(c.Request.Context(), id))

		if err := hooks.BeforeRequest(c.Request.Context(), c.Request); err != nil {
			err = hooks.OnError(c.Request.Context(), err)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.Next()
		hooks.AfterRequest(c.Request.Context(), c.Request, c.Writer.Status())
	}
}

// RegisterHandler translates a net/http "METHOD /path" pattern (with
// {name} wildcards) into a gin route wrapping handler.
func (a *Adapter) RegisterHandler(pattern string, handler http.Handler) error {
	if handler == nil {
		return errors.New("server/adapters/gin: handler is required")
	}
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		return errors.New("server/adapters/gin: pattern must be \"METHOD /path\"")
	}
	a.engine.Handle(method, ginPath(path), func(c *gin.Context) {
		for _, p := range c.Params {
			c.Request.SetPathValue(p.Key, p.Value)
		}
		handler.ServeHTTP(c.Writer, c.Request)
	})
	return nil
}

// ginPath rewrites net/http's "{name}" path wildcards into gin's ":name"
// form.
func ginPath(path string) string {
	return strings.NewReplacer("{", ":", "}", "").Replace(path)
}

// Serve listens on addr and blocks until ctx is done, then shuts down
// gracefully and returns ctx.Err().
func (a *Adapter) Serve(ctx context.Context, addr string) error {
	a.server = &http.Server{Addr: addr, Handler: a.engine}

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	}
}

// Shutdown gracefully stops a running Serve call.
func (a *Adapter) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
