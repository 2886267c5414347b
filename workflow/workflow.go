// Package workflow provides a durable-execution abstraction for long-running,
// resumable business processes: workflows that sleep, wait on external
// signals, call retriable activities, and survive process restarts.
//
// DurableExecutor is the primary interface. The in-process Executor runs
// workflows as goroutines and is suitable for tests and single-node
// deployments; the temporal provider bridges the same WorkflowFunc contract
// onto a real Temporal cluster for production durability.
//
// Providers register themselves via init() so that importing a provider
// package is sufficient to make it available through the registry:
//
//	import _ "github.com/veridex/veridex/workflow/providers/temporal"
//
//	exec, err := workflow.New("temporal", workflow.Config{Extra: map[string]any{
//	    "client": temporalClient,
//	}})
package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// WorkflowStatus describes the current lifecycle state of a workflow run.
type WorkflowStatus string

const (
	StatusRunning   WorkflowStatus = "running"
	StatusCompleted WorkflowStatus = "completed"
	StatusFailed    WorkflowStatus = "failed"
	StatusCanceled  WorkflowStatus = "canceled"
)

// EventType identifies the kind of event emitted over a workflow's lifetime,
// for use by hooks and observability integrations.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventWorkflowCanceled  EventType = "workflow_canceled"
	EventActivityStarted   EventType = "activity_started"
	EventActivityCompleted EventType = "activity_completed"
	EventActivityFailed    EventType = "activity_failed"
	EventSignalReceived    EventType = "signal_received"
	EventTimerFired        EventType = "timer_fired"
)

// RetryPolicy governs how ExecuteActivity (and, for the temporal provider,
// the underlying Temporal activity) retries a failing call.
type RetryPolicy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
}

// DefaultRetryPolicy returns the policy used when none is supplied.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        3,
		InitialInterval:    100 * time.Millisecond,
		BackoffCoefficient: 2.0,
		MaxInterval:        10 * time.Second,
	}
}

// computeInterval returns the backoff delay before the given retry attempt
// (0-indexed), capped at MaxInterval when one is set.
func computeInterval(p RetryPolicy, attempt int) time.Duration {
	interval := p.InitialInterval
	for i := 0; i < attempt; i++ {
		interval = time.Duration(float64(interval) * p.BackoffCoefficient)
		if p.MaxInterval > 0 && interval > p.MaxInterval {
			return p.MaxInterval
		}
	}
	if p.MaxInterval > 0 && interval > p.MaxInterval {
		return p.MaxInterval
	}
	return interval
}

// executeWithRetry runs fn until it succeeds, the policy's attempt budget is
// exhausted, or ctx is done, sleeping the computed backoff between attempts.
func executeWithRetry(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		timer := time.NewTimer(computeInterval(p, attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// Signal is a named, payload-carrying event delivered to a running workflow.
type Signal struct {
	Name    string
	Payload any
}

// ActivityFunc is an idempotent unit of work a workflow delegates to, run
// outside the workflow's own replay semantics.
type ActivityFunc func(ctx context.Context, input any) (any, error)

// activityOptions carries per-call ExecuteActivity configuration.
type activityOptions struct {
	retry   *RetryPolicy
	timeout time.Duration
}

// ActivityOption customizes a single ExecuteActivity call.
type ActivityOption func(*activityOptions)

// WithActivityRetry overrides the retry policy used for one activity call.
func WithActivityRetry(policy RetryPolicy) ActivityOption {
	return func(o *activityOptions) { o.retry = &policy }
}

// WithActivityTimeout bounds how long one activity call may run.
func WithActivityTimeout(d time.Duration) ActivityOption {
	return func(o *activityOptions) { o.timeout = d }
}

// ResolveActivityOptions applies opts and returns the resulting retry policy
// (nil if WithActivityRetry was never called) and timeout (zero if
// WithActivityTimeout was never called). It lets other packages (e.g. a
// DurableExecutor provider) read what ActivityOption configured without
// needing access to the unexported activityOptions type.
func ResolveActivityOptions(opts ...ActivityOption) (retry *RetryPolicy, timeout time.Duration) {
	cfg := activityOptions{}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg.retry, cfg.timeout
}

// WorkflowContext is the workflow-side handle a WorkflowFunc receives. It
// embeds context.Context so ordinary cancellation and deadline checks work,
// and adds the durable-execution primitives: sleeping without blocking a
// real goroutine forever, waiting on named signals, and calling activities.
type WorkflowContext interface {
	context.Context

	// Sleep pauses the workflow for d, or returns early with an error if the
	// workflow's context is done first.
	Sleep(d time.Duration) error

	// ReceiveSignal returns a channel that receives payloads sent to this
	// workflow under the given signal name.
	ReceiveSignal(name string) <-chan any

	// ExecuteActivity runs fn, retrying per opts (DefaultRetryPolicy if none
	// is given via WithActivityRetry) and bounded by WithActivityTimeout.
	ExecuteActivity(fn ActivityFunc, input any, opts ...ActivityOption) (any, error)
}

// WorkflowFunc is the workflow entry point: deterministic business logic
// that reads its input, drives activities and signals through ctx, and
// returns a result or an error.
type WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

// WorkflowOptions configures a single Execute call.
type WorkflowOptions struct {
	// ID identifies the workflow run; generated if empty.
	ID string
	// Input is passed through to the WorkflowFunc unchanged.
	Input any
	// Timeout bounds the workflow's total running time. Zero means no
	// executor-imposed timeout.
	Timeout time.Duration
}

// WorkflowHandle references a started workflow run.
type WorkflowHandle interface {
	ID() string
	RunID() string
	// Status reports the handle's last-known lifecycle state.
	Status() WorkflowStatus
	// Result blocks until the workflow finishes or ctx is done, returning
	// the workflow's return value or error.
	Result(ctx context.Context) (any, error)
}

// DurableExecutor starts, signals, queries, and cancels workflows. It is the
// seam middleware wraps and providers (in-process, Temporal) implement.
type DurableExecutor interface {
	Execute(ctx context.Context, fn WorkflowFunc, opts WorkflowOptions) (WorkflowHandle, error)
	Signal(ctx context.Context, workflowID string, signal Signal) error
	Query(ctx context.Context, workflowID string, queryType string) (any, error)
	Cancel(ctx context.Context, workflowID string) error
}

// WorkflowState is the persisted snapshot of a workflow run, as recorded by
// a WorkflowStore.
type WorkflowState struct {
	WorkflowID  string
	RunID       string
	Status      WorkflowStatus
	Input       any
	Result      any
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// WorkflowFilter narrows a WorkflowStore.List call.
type WorkflowFilter struct {
	Status WorkflowStatus
	Limit  int
}

// WorkflowStore persists workflow state for later inspection or recovery.
// It is independent of DurableExecutor: an executor may use one internally
// for its own bookkeeping, and callers may use one directly for dashboards
// or audits.
type WorkflowStore interface {
	Save(ctx context.Context, state WorkflowState) error
	Load(ctx context.Context, workflowID string) (*WorkflowState, error)
	List(ctx context.Context, filter WorkflowFilter) ([]WorkflowState, error)
	Delete(ctx context.Context, workflowID string) error
}

// Config carries provider-specific construction options. Extra holds
// provider-specific values (e.g. a Temporal client) keyed by name, since the
// registry itself is provider-agnostic.
type Config struct {
	Extra map[string]any
}

// Factory builds a DurableExecutor from Config. Providers register one via
// Register in an init() function.
type Factory func(cfg Config) (DurableExecutor, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func init() {
	Register("default", func(cfg Config) (DurableExecutor, error) {
		return NewExecutor(), nil
	})
}

// Register makes a named executor provider available via New.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a DurableExecutor using the named provider's factory.
func New(name string, cfg Config) (DurableExecutor, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("workflow: unknown provider %q (registered: %v)", name, List())
	}
	return factory(cfg)
}

// List returns the names of every registered executor provider, sorted.
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
