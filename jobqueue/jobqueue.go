// Package jobqueue implements the Job Queue + Worker (C12): a durable FIFO
// queue that accepts ingest tasks and runs a bounded pool of workers over
// them, fanning each task's files and links out to the pipeline
// orchestrator and reporting completion via an HTTP callback.
package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veridex/veridex/core"
	"github.com/veridex/veridex/ingest/pipeline"
	"github.com/veridex/veridex/internal/httpclient"
	"github.com/veridex/veridex/workflow"
)

// DefaultConcurrency is how many tasks a Queue runs at once when
// Config.Concurrency is unset, matching spec.md's "bounded worker
// concurrency, default 1".
const DefaultConcurrency = 1

// DefaultItemConcurrency bounds how many files/links within a single task
// are dispatched at once.
const DefaultItemConcurrency = 4

// DefaultSoftTimeout and DefaultHardTimeout bound a single item's and a
// single task's running time when Config leaves them unset.
const (
	DefaultSoftTimeout = 2 * time.Minute
	DefaultHardTimeout = 15 * time.Minute
)

// queueDepth is the FIFO buffer's capacity. A full buffer makes Submit
// return an error rather than block indefinitely; callers are expected to
// retry or surface backpressure to the caller of the HTTP surface.
const queueDepth = 256

// FileRef is one uploaded file awaiting ingestion, already saved to a local
// path by the caller (typically the HTTP layer, before handing the task to
// the queue).
type FileRef struct {
	Path        string
	Name        string
	ContentType string
}

// Task is one ingest request, matching spec.md's job payload: a batch of
// files and links ingested together under one session.
type Task struct {
	FileRefs        []FileRef
	Links           []string
	Author          string
	UseVision       bool
	SessionID       string
	UserDescription string

	// CallbackURL, if set, receives a POST with the TaskResult once every
	// item has been dispatched (success or failure).
	CallbackURL string
}

// ItemOutcome is the per-file or per-link result of one task.
type ItemOutcome struct {
	Kind     string `json:"kind"` // "file" or "link"
	Ref      string `json:"ref"`  // file name or link URL
	SourceID string `json:"source_id,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Error    string `json:"error,omitempty"`
}

// TaskResult is the outcome of running a Task to completion, and the body
// POSTed to Task.CallbackURL.
type TaskResult struct {
	TaskID      string        `json:"task_id"`
	SessionID   string        `json:"session_id"`
	Status      string        `json:"status"`
	Items       []ItemOutcome `json:"items,omitempty"`
	FailedCount int           `json:"failed_count"`
	Error       string        `json:"error,omitempty"`
}

// Task-level result statuses, matching spec.md's callback contract.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Config wires a Queue to its collaborators.
type Config struct {
	Orchestrator *pipeline.Orchestrator

	// Executor runs each task as a workflow. Defaults to an in-process
	// workflow.NewExecutor(), suitable for a single node; swap in a
	// Temporal-backed executor (workflow.New("temporal", ...)) for
	// durability across process restarts.
	Executor workflow.DurableExecutor

	// Concurrency bounds how many tasks run at once. Defaults to
	// DefaultConcurrency.
	Concurrency int

	// ItemConcurrency bounds how many files/links within one task are
	// dispatched at once. Defaults to DefaultItemConcurrency.
	ItemConcurrency int

	// SoftTimeout bounds a single file/link's dispatch; HardTimeout bounds
	// the whole task. Both default when zero.
	SoftTimeout time.Duration
	HardTimeout time.Duration

	// RetryPolicy governs per-item retries on failure. Defaults to
	// workflow.DefaultRetryPolicy().
	RetryPolicy *workflow.RetryPolicy

	// CallbackToken is sent as a bearer token on the completion callback.
	CallbackToken string

	// HTTPClient is used for the completion callback. Defaults to a fresh
	// httpclient.Client carrying CallbackToken.
	HTTPClient *httpclient.Client
}

// Queue is a bounded-concurrency FIFO job queue over ingest tasks.
type Queue struct {
	cfg Config

	tasks chan queuedTask
	wg    sync.WaitGroup

	closeOnce sync.Once
}

type queuedTask struct {
	id   string
	task Task
}

// New constructs a Queue from cfg.
func New(cfg Config) (*Queue, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("jobqueue: Orchestrator is required")
	}
	if cfg.Executor == nil {
		cfg.Executor = workflow.NewExecutor()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ItemConcurrency <= 0 {
		cfg.ItemConcurrency = DefaultItemConcurrency
	}
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = DefaultSoftTimeout
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = DefaultHardTimeout
	}
	if cfg.RetryPolicy == nil {
		policy := workflow.DefaultRetryPolicy()
		cfg.RetryPolicy = &policy
	}
	if cfg.HTTPClient == nil {
		opts := []httpclient.Option{httpclient.WithTimeout(30 * time.Second)}
		if cfg.CallbackToken != "" {
			opts = append(opts, httpclient.WithBearerToken(cfg.CallbackToken))
		}
		cfg.HTTPClient = httpclient.New(opts...)
	}
	return &Queue{cfg: cfg, tasks: make(chan queuedTask, queueDepth)}, nil
}

// Start launches cfg.Concurrency worker goroutines that drain the queue
// until ctx is done or Close is called. Start returns immediately; call
// Close to drain and wait for in-flight tasks to finish.
func (q *Queue) Start(ctx context.Context) {
	for range q.cfg.Concurrency {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Close stops accepting new tasks and waits for every worker to drain the
// queue and finish its current task.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.tasks) })
	q.wg.Wait()
}

// Submit enqueues task and returns its ID immediately; the task runs
// asynchronously on one of the worker goroutines started by Start. Submit
// returns an error if the queue's buffer is full or ctx is done first.
func (q *Queue) Submit(ctx context.Context, task Task) (string, error) {
	id := "job-" + uuid.NewString()
	select {
	case q.tasks <- queuedTask{id: id, task: task}:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", fmt.Errorf("jobqueue: queue is full (depth %d)", queueDepth)
	}
}

// worker drains q.tasks until the channel is closed, running one task at a
// time, bounding this goroutine's share of Config.Concurrency.
func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for qt := range q.tasks {
		q.run(ctx, qt)
	}
}

// run executes one task to completion: dispatch, callback, cleanup, in that
// order, with cleanup always running regardless of outcome.
func (q *Queue) run(ctx context.Context, qt queuedTask) {
	defer cleanupFiles(qt.task)

	handle, err := q.cfg.Executor.Execute(ctx, q.workflowFunc(qt.task), workflow.WorkflowOptions{
		ID:      qt.id,
		Input:   qt.task,
		Timeout: q.cfg.HardTimeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "jobqueue: failed to start task", "task_id", qt.id, "error", err)
		q.callback(ctx, qt.task, TaskResult{
			TaskID: qt.id, SessionID: qt.task.SessionID,
			Status: StatusFailed, FailedCount: 1, Error: err.Error(),
		})
		return
	}

	raw, err := handle.Result(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "jobqueue: task failed", "task_id", qt.id, "error", err)
		q.callback(ctx, qt.task, TaskResult{
			TaskID: qt.id, SessionID: qt.task.SessionID,
			Status: StatusFailed, FailedCount: 1, Error: err.Error(),
		})
		return
	}

	result, _ := raw.(TaskResult)
	result.TaskID = qt.id
	if result.Status == "" {
		result.Status = StatusCompleted
	}
	q.callback(ctx, qt.task, result)
}

// jobItem is one file or link dispatched within a task's workflow.
type jobItem struct {
	kind string
	ref  string
	path string
}

// buildItems flattens a task's file refs and links into dispatch items.
func buildItems(task Task) []jobItem {
	items := make([]jobItem, 0, len(task.FileRefs)+len(task.Links))
	for _, f := range task.FileRefs {
		items = append(items, jobItem{kind: "file", ref: f.Name, path: f.Path})
	}
	for _, link := range task.Links {
		items = append(items, jobItem{kind: "link", ref: link, path: link})
	}
	return items
}

// workflowFunc builds the WorkflowFunc that dispatches task's items through
// a bounded, gather-style fan-out: every item runs independently and a
// failing item is recorded on its own ItemOutcome rather than aborting the
// rest, matching spec.md's "return_exceptions=true" gather semantics.
func (q *Queue) workflowFunc(task Task) workflow.WorkflowFunc {
	return func(wctx workflow.WorkflowContext, _ any) (any, error) {
		items := buildItems(task)
		result := TaskResult{SessionID: task.SessionID}
		if len(items) == 0 {
			return result, nil
		}

		activity := ingestActivity(q.cfg.Orchestrator, task)
		activityOpts := []workflow.ActivityOption{
			workflow.WithActivityTimeout(q.cfg.SoftTimeout),
			workflow.WithActivityRetry(*q.cfg.RetryPolicy),
		}

		batchResults := core.BatchInvoke(wctx, func(_ context.Context, item jobItem) (ItemOutcome, error) {
			raw, err := wctx.ExecuteActivity(activity, item, activityOpts...)
			if err != nil {
				return ItemOutcome{Kind: item.kind, Ref: item.ref, Error: err.Error()}, nil
			}
			outcome, _ := raw.(ItemOutcome)
			return outcome, nil
		}, items, core.BatchOptions{MaxConcurrency: q.cfg.ItemConcurrency})

		for _, br := range batchResults {
			outcome := br.Value
			if br.Err != nil && outcome.Error == "" {
				outcome.Error = br.Err.Error()
			}
			if outcome.Error != "" {
				result.FailedCount++
			}
			result.Items = append(result.Items, outcome)
		}
		return result, nil
	}
}

// ingestActivity builds the ActivityFunc that runs one item through the
// pipeline orchestrator.
func ingestActivity(orch *pipeline.Orchestrator, task Task) workflow.ActivityFunc {
	return func(ctx context.Context, input any) (any, error) {
		item, _ := input.(jobItem)
		res, err := orch.Run(ctx, pipeline.Input{
			InputPath:       item.path,
			SessionID:       task.SessionID,
			Author:          task.Author,
			UserDescription: task.UserDescription,
			UseVision:       task.UseVision,
		})
		if err != nil {
			return nil, err
		}
		return ItemOutcome{
			Kind:     item.kind,
			Ref:      item.ref,
			SourceID: res.SourceID,
			Outcome:  outcomeString(res.Outcome),
		}, nil
	}
}

// outcomeString renders a pipeline.Outcome for inclusion in a TaskResult.
func outcomeString(o pipeline.Outcome) string {
	switch o {
	case pipeline.Ingested:
		return "ingested"
	case pipeline.FastTracked:
		return "fast_tracked"
	case pipeline.Cloned:
		return "cloned"
	default:
		return "unknown"
	}
}

// cleanupFiles removes every uploaded file backing task's FileRefs,
// regardless of how the task completed.
func cleanupFiles(task Task) {
	for _, f := range task.FileRefs {
		if f.Path == "" {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			slog.Warn("jobqueue: failed to clean up uploaded file", "path", f.Path, "error", err)
		}
	}
}

// callback POSTs result to task.CallbackURL, if set. A callback failure is
// logged, not returned: the task itself already ran to completion.
func (q *Queue) callback(ctx context.Context, task Task, result TaskResult) {
	if task.CallbackURL == "" {
		return
	}
	resp, err := q.cfg.HTTPClient.Do(ctx, http.MethodPost, task.CallbackURL, result, nil)
	if err != nil {
		slog.ErrorContext(ctx, "jobqueue: callback request failed", "url", task.CallbackURL, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		slog.ErrorContext(ctx, "jobqueue: callback returned non-2xx", "url", task.CallbackURL, "status", resp.StatusCode)
	}
}
