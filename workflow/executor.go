package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Executor is the in-process DurableExecutor. It runs each workflow as a
// goroutine, delivers signals over buffered channels, and supports an
// optional WorkflowStore for persisting terminal state. It is suitable for
// tests and single-node deployments; it holds no state across process
// restarts.
type Executor struct {
	mu      sync.Mutex
	running map[string]*runningWorkflow

	store WorkflowStore
	hooks Hooks
}

// ExecutorOption configures a new Executor.
type ExecutorOption func(*Executor)

// WithStore attaches a WorkflowStore that terminal workflow states are
// saved to.
func WithStore(store WorkflowStore) ExecutorOption {
	return func(e *Executor) { e.store = store }
}

// WithExecutorHooks attaches lifecycle hooks invoked around workflow
// execution.
func WithExecutorHooks(hooks Hooks) ExecutorOption {
	return func(e *Executor) { e.hooks = ComposeHooks(hooks) }
}

// NewExecutor constructs an in-process Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		running: make(map[string]*runningWorkflow),
		hooks:   ComposeHooks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runningWorkflow tracks one in-flight or completed workflow run.
type runningWorkflow struct {
	id    string
	runID string
	cancel context.CancelFunc

	mu       sync.Mutex
	status   WorkflowStatus
	canceled bool
	signals  map[string]chan any

	done   chan struct{}
	result any
	err    error
}

func newRunningWorkflow(id, runID string, cancel context.CancelFunc) *runningWorkflow {
	return &runningWorkflow{
		id:      id,
		runID:   runID,
		cancel:  cancel,
		status:  StatusRunning,
		signals: make(map[string]chan any),
		done:    make(chan struct{}),
	}
}

func (rw *runningWorkflow) getStatus() WorkflowStatus {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.status
}

func (rw *runningWorkflow) getSignalChan(name string) chan any {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	ch, ok := rw.signals[name]
	if !ok {
		ch = make(chan any, 1)
		rw.signals[name] = ch
	}
	return ch
}

func (rw *runningWorkflow) markCanceled() {
	rw.mu.Lock()
	rw.canceled = true
	rw.mu.Unlock()
	rw.cancel()
}

func (rw *runningWorkflow) finish(result any, err error) {
	rw.mu.Lock()
	canceled := rw.canceled
	switch {
	case canceled:
		rw.status = StatusCanceled
	case err != nil:
		rw.status = StatusFailed
	default:
		rw.status = StatusCompleted
	}
	rw.result = result
	rw.err = err
	rw.mu.Unlock()

	close(rw.done)
}

// executorHandle is the WorkflowHandle returned by Executor.Execute.
type executorHandle struct {
	rw *runningWorkflow
}

func (h *executorHandle) ID() string    { return h.rw.id }
func (h *executorHandle) RunID() string { return h.rw.runID }

func (h *executorHandle) Status() WorkflowStatus {
	return h.rw.getStatus()
}

func (h *executorHandle) Result(ctx context.Context) (any, error) {
	select {
	case <-h.rw.done:
		h.rw.mu.Lock()
		defer h.rw.mu.Unlock()
		return h.rw.result, h.rw.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// workflowContext is the WorkflowContext passed to a running WorkflowFunc.
type workflowContext struct {
	context.Context
	rw   *runningWorkflow
	exec *Executor
}

func (wc *workflowContext) Sleep(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-wc.Context.Done():
		return wc.Context.Err()
	}
}

func (wc *workflowContext) ReceiveSignal(name string) <-chan any {
	return wc.rw.getSignalChan(name)
}

func (wc *workflowContext) ExecuteActivity(fn ActivityFunc, input any, opts ...ActivityOption) (any, error) {
	retry, timeout := ResolveActivityOptions(opts...)
	policy := RetryPolicy{MaxAttempts: 1}
	if retry != nil {
		policy = *retry
	}

	actCtx := wc.Context
	if timeout > 0 {
		var cancel context.CancelFunc
		actCtx, cancel = context.WithTimeout(wc.Context, timeout)
		defer cancel()
	}

	wc.exec.hooks.OnActivityStart(actCtx, wc.rw.id, input)

	var result any
	err := executeWithRetry(actCtx, policy, func(c context.Context) error {
		r, callErr := fn(c, input)
		result = r
		return callErr
	})
	if err != nil {
		return nil, err
	}

	wc.exec.hooks.OnActivityComplete(actCtx, wc.rw.id, result)
	return result, nil
}

// Execute starts fn as a new goroutine-backed workflow run.
func (e *Executor) Execute(ctx context.Context, fn WorkflowFunc, opts WorkflowOptions) (WorkflowHandle, error) {
	id := opts.ID
	if id == "" {
		id = "wf-" + uuid.NewString()
	}
	runID := uuid.NewString()

	runCtx, cancel := context.WithCancel(ctx)
	if opts.Timeout > 0 {
		cancel()
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}

	rw := newRunningWorkflow(id, runID, cancel)

	e.mu.Lock()
	e.running[id] = rw
	e.mu.Unlock()

	e.hooks.OnWorkflowStart(ctx, id, opts.Input)

	go func() {
		wfCtx := &workflowContext{Context: runCtx, rw: rw, exec: e}
		result, err := fn(wfCtx, opts.Input)
		rw.finish(result, err)

		status := rw.getStatus()
		if e.store != nil {
			state := WorkflowState{
				WorkflowID:  id,
				RunID:       runID,
				Status:      status,
				Input:       opts.Input,
				Result:      result,
				CompletedAt: time.Now(),
			}
			if err != nil {
				state.Error = err.Error()
			}
			_ = e.store.Save(context.Background(), state)
		}

		if status == StatusFailed {
			e.hooks.OnWorkflowFail(context.Background(), id, err)
		} else if status == StatusCompleted {
			e.hooks.OnWorkflowComplete(context.Background(), id, result)
		}
	}()

	return &executorHandle{rw: rw}, nil
}

// Signal delivers a named signal to a running workflow.
func (e *Executor) Signal(ctx context.Context, workflowID string, signal Signal) error {
	rw, ok := e.lookup(workflowID)
	if !ok {
		return fmt.Errorf("workflow: %q not found", workflowID)
	}
	ch := rw.getSignalChan(signal.Name)
	select {
	case ch <- signal.Payload:
	default:
	}
	e.hooks.OnSignal(ctx, workflowID, signal)
	return nil
}

// Query reports on a running workflow. The only supported queryType is
// "status"; other values return an error.
func (e *Executor) Query(ctx context.Context, workflowID string, queryType string) (any, error) {
	rw, ok := e.lookup(workflowID)
	if !ok {
		return nil, fmt.Errorf("workflow: %q not found", workflowID)
	}
	switch queryType {
	case "status":
		return rw.getStatus(), nil
	default:
		return nil, fmt.Errorf("workflow: unknown query type %q", queryType)
	}
}

// Cancel stops a running workflow, unblocking any Sleep or signal wait with
// a context-canceled error.
func (e *Executor) Cancel(ctx context.Context, workflowID string) error {
	rw, ok := e.lookup(workflowID)
	if !ok {
		return fmt.Errorf("workflow: %q not found", workflowID)
	}
	rw.markCanceled()
	return nil
}

func (e *Executor) lookup(workflowID string) (*runningWorkflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rw, ok := e.running[workflowID]
	return rw, ok
}

var _ DurableExecutor = (*Executor)(nil)
