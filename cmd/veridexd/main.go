// Command veridexd runs the document-ingestion and RAG chat service: the
// HTTP front end (server), the ingest job queue (jobqueue) draining onto
// the ingest pipeline (ingest/pipeline), and the chat query engine
// (query), wired to whichever providers the config selects.
//
// Configuration is environment-driven (VERIDEX_* variables) by default;
// set VERIDEX_CONFIG_FILE to a JSON path to load from a file instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veridex/veridex/artifactstore"
	_ "github.com/veridex/veridex/artifactstore/providers/local"
	"github.com/veridex/veridex/cache"
	_ "github.com/veridex/veridex/cache/providers/inmemory"
	_ "github.com/veridex/veridex/cache/providers/redis"
	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/core"
	"github.com/veridex/veridex/ingest/chunk"
	"github.com/veridex/veridex/ingest/dedup"
	_ "github.com/veridex/veridex/ingest/extract/providers/audio"
	_ "github.com/veridex/veridex/ingest/extract/providers/csv"
	_ "github.com/veridex/veridex/ingest/extract/providers/excel"
	_ "github.com/veridex/veridex/ingest/extract/providers/image"
	_ "github.com/veridex/veridex/ingest/extract/providers/pdf"
	_ "github.com/veridex/veridex/ingest/extract/providers/powerpoint"
	_ "github.com/veridex/veridex/ingest/extract/providers/url"
	_ "github.com/veridex/veridex/ingest/extract/providers/word"
	_ "github.com/veridex/veridex/ingest/extract/providers/youtube"
	"github.com/veridex/veridex/ingest/pipeline"
	"github.com/veridex/veridex/ingest/structure"
	"github.com/veridex/veridex/jobqueue"
	"github.com/veridex/veridex/llm"
	_ "github.com/veridex/veridex/llm/providers/anthropic"
	_ "github.com/veridex/veridex/llm/providers/bedrock"
	_ "github.com/veridex/veridex/llm/providers/ollama"
	_ "github.com/veridex/veridex/llm/providers/openai"
	"github.com/veridex/veridex/o11y"
	"github.com/veridex/veridex/objectstore"
	_ "github.com/veridex/veridex/objectstore/providers/inmemory"
	_ "github.com/veridex/veridex/objectstore/providers/mongodb"
	"github.com/veridex/veridex/query"
	"github.com/veridex/veridex/rag/embedding"
	_ "github.com/veridex/veridex/rag/embedding/providers/inmemory"
	_ "github.com/veridex/veridex/rag/embedding/providers/ollama"
	_ "github.com/veridex/veridex/rag/embedding/providers/openai"
	"github.com/veridex/veridex/rag/vectorstore"
	_ "github.com/veridex/veridex/rag/vectorstore/providers/inmemory"
	_ "github.com/veridex/veridex/rag/vectorstore/providers/pgvector"
	_ "github.com/veridex/veridex/rag/vectorstore/providers/redis"
	"github.com/veridex/veridex/server"
	_ "github.com/veridex/veridex/server/adapters/gin"
	_ "github.com/veridex/veridex/workflow/providers/inmemory"
	_ "github.com/veridex/veridex/workflow/providers/temporal"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// AppConfig is the service's full configuration surface, loaded via
// config.LoadFromEnv (VERIDEX_* variables) or config.Load (a JSON file
// named by VERIDEX_CONFIG_FILE).
type AppConfig struct {
	Addr      string `json:"addr" default:":8080"`
	Adapter   string `json:"adapter" default:"stdlib"`
	LogLevel  string `json:"log_level" default:"info"`
	LogFormat string `json:"log_format" default:"json"`
	UploadDir string `json:"upload_dir" default:"/tmp/veridex-uploads"`

	ArtifactRoot string `json:"artifact_root" default:"/tmp/veridex-workspaces"`

	CallbackToken          string  `json:"callback_token"`
	ResponseCacheThreshold float64 `json:"response_cache_threshold" default:"0.92"`

	ShutdownTimeout time.Duration `json:"shutdown_timeout" default:"30000000000"`

	LLM         config.ProviderConfig `json:"llm"`
	Embedder    config.ProviderConfig `json:"embedder"`
	VectorStore config.ProviderConfig `json:"vector_store"`
	Cache       config.ProviderConfig `json:"cache"`

	ObjectStoreProvider string `json:"object_store_provider" default:"inmemory"`
}

func loadConfig() (AppConfig, error) {
	if path := os.Getenv("VERIDEX_CONFIG_FILE"); path != "" {
		return config.Load[AppConfig](path)
	}
	return config.LoadFromEnv[AppConfig]("VERIDEX")
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "veridexd: loading config: %v\n", err)
		os.Exit(1)
	}

	logOpts := []o11y.LogOption{o11y.WithLogLevel(cfg.LogLevel)}
	if cfg.LogFormat == "json" {
		logOpts = append(logOpts, o11y.WithJSON())
	}
	logger := o11y.NewLogger(logOpts...)
	slog.SetDefault(logger.Slog())

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Error(context.Background(), "failed to build application", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info(ctx, "received shutdown signal", "signal", sig.String())
		cancel()
	}()

	logger.Info(ctx, "starting veridexd", "version", version, "build_time", buildTime, "addr", cfg.Addr, "adapter", cfg.Adapter)
	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "veridexd exited with error", "error", err)
		os.Exit(1)
	}
}

// app bundles every wired collaborator and the HTTP adapter serving them.
type app struct {
	cfg     AppConfig
	logger  *o11y.Logger
	queue   *jobqueue.Queue
	adapter server.ServerAdapter
	lc      *core.App
}

// queueLifecycle adapts *jobqueue.Queue to core.Lifecycle so it can be
// started and drained by core.App alongside the rest of the service.
type queueLifecycle struct {
	queue *jobqueue.Queue
}

func (q queueLifecycle) Start(ctx context.Context) error {
	q.queue.Start(ctx)
	return nil
}

func (q queueLifecycle) Stop(ctx context.Context) error {
	q.queue.Close()
	return nil
}

func (q queueLifecycle) Health() core.HealthStatus {
	return core.HealthStatus{Status: core.HealthHealthy, Timestamp: time.Now()}
}

// adapterLifecycle adapts server.ServerAdapter's Serve/Shutdown into
// core.Lifecycle. Start launches Serve in the background since, unlike the
// queue, it blocks for the life of the process; Stop defers to Shutdown.
type adapterLifecycle struct {
	adapter  server.ServerAdapter
	addr     string
	logger   *o11y.Logger
	serveCtx context.Context
	errCh    chan error
}

func (a *adapterLifecycle) Start(ctx context.Context) error {
	a.errCh = make(chan error, 1)
	go func() { a.errCh <- a.adapter.Serve(a.serveCtx, a.addr) }()
	return nil
}

func (a *adapterLifecycle) Stop(ctx context.Context) error {
	if err := a.adapter.Shutdown(ctx); err != nil {
		return err
	}
	if a.errCh != nil {
		<-a.errCh
	}
	return nil
}

func (a *adapterLifecycle) Health() core.HealthStatus {
	return core.HealthStatus{Status: core.HealthHealthy, Timestamp: time.Now()}
}

func newApp(cfg AppConfig, logger *o11y.Logger) (*app, error) {
	artifacts, err := artifactstore.New("local", artifactstore.Config{Root: cfg.ArtifactRoot})
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}

	vs, err := vectorstore.New(providerOr(cfg.VectorStore.Provider, "inmemory"), cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}

	objStore, err := objectstore.New(providerOr(cfg.ObjectStoreProvider, "inmemory"), objectstore.Config{})
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}

	backingCache, err := cache.New(providerOr(cfg.Cache.Provider, "inmemory"), cache.Config{})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	responseCache := cache.NewResponseCache(backingCache, cfg.ResponseCacheThreshold)

	embedder, err := embedding.New(providerOr(cfg.Embedder.Provider, "inmemory"), cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	model, err := llm.New(cfg.LLM.Provider, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("chat model: %w", err)
	}

	structureAgent, err := structure.New(structure.Config{Store: artifacts, Model: model})
	if err != nil {
		return nil, fmt.Errorf("structure agent: %w", err)
	}

	deduplicator, err := dedup.New(dedup.Config{VectorStore: vs, ObjectStore: objStore})
	if err != nil {
		return nil, fmt.Errorf("deduplicator: %w", err)
	}

	// OCR has no production implementation in this build (spec.md keeps
	// it an externally-supplied interface), so the vision arbiter stays
	// disabled: pipeline.Config.Vision nil skips image understanding.
	orchestrator, err := pipeline.New(pipeline.Config{
		Artifacts:   artifacts,
		Dedup:       deduplicator,
		Structure:   structureAgent,
		Chunker:     chunk.New(chunk.Config{}),
		Embedder:    embedder,
		VectorStore: vs,
		ObjectStore: objStore,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest pipeline: %w", err)
	}

	queue, err := jobqueue.New(jobqueue.Config{
		Orchestrator:  orchestrator,
		CallbackToken: cfg.CallbackToken,
	})
	if err != nil {
		return nil, fmt.Errorf("job queue: %w", err)
	}

	engine, err := query.New(query.Config{
		VectorStore:   vs,
		ObjectStore:   objStore,
		ResponseCache: responseCache,
		Embedder:      embedder,
		Model:         model,
	})
	if err != nil {
		return nil, fmt.Errorf("query engine: %w", err)
	}

	handlers := &server.Handlers{
		Queue:       queue,
		Engine:      engine,
		VectorStore: vs,
		ObjectStore: objStore,
		UploadDir:   cfg.UploadDir,
	}

	adapter, err := server.New(cfg.Adapter, server.Config{
		Hooks: server.Hooks{
			AfterRequest: func(ctx context.Context, r *http.Request, status int) {
				logger.Info(ctx, "request handled", "method", r.Method, "path", r.URL.Path, "status", status)
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("server adapter %q: %w", cfg.Adapter, err)
	}
	if err := handlers.Register(adapter); err != nil {
		return nil, fmt.Errorf("registering routes: %w", err)
	}

	return &app{cfg: cfg, logger: logger, queue: queue, adapter: adapter}, nil
}

// Run starts the job queue workers and the HTTP adapter as core.Lifecycle
// components under a core.App, blocking until ctx is cancelled, then shuts
// both down in reverse start order.
func (a *app) Run(ctx context.Context) error {
	adapterLC := &adapterLifecycle{adapter: a.adapter, addr: a.cfg.Addr, logger: a.logger, serveCtx: ctx}

	lc := core.NewApp()
	lc.Register(queueLifecycle{queue: a.queue}, adapterLC)
	a.lc = lc

	if err := lc.Start(ctx); err != nil {
		return fmt.Errorf("starting components: %w", err)
	}

	err := <-adapterLC.errCh
	a.shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *app) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.lc.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "component shutdown error", "error", err)
	}
	a.logger.Info(shutdownCtx, "shutdown complete")
}

func providerOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
