package workflow

import "context"

// Middleware wraps a DurableExecutor to add cross-cutting behavior.
type Middleware func(DurableExecutor) DurableExecutor

// ApplyMiddleware wraps exec with each middleware in turn. The first
// middleware listed ends up as the outermost layer: calls reach it before
// any later middleware, and it sees the final result last.
func ApplyMiddleware(exec DurableExecutor, mws ...Middleware) DurableExecutor {
	wrapped := exec
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// hookedExecutor is the DurableExecutor returned by WithHooks.
type hookedExecutor struct {
	next  DurableExecutor
	hooks Hooks
}

// WithHooks returns a Middleware that invokes hooks around Execute and
// Signal calls on the wrapped executor.
func WithHooks(hooks Hooks) Middleware {
	composed := ComposeHooks(hooks)
	return func(next DurableExecutor) DurableExecutor {
		return &hookedExecutor{next: next, hooks: composed}
	}
}

func (e *hookedExecutor) Execute(ctx context.Context, fn WorkflowFunc, opts WorkflowOptions) (WorkflowHandle, error) {
	handle, err := e.next.Execute(ctx, fn, opts)
	if err != nil {
		return nil, err
	}
	e.hooks.OnWorkflowStart(ctx, handle.ID(), opts.Input)
	return handle, nil
}

func (e *hookedExecutor) Signal(ctx context.Context, workflowID string, signal Signal) error {
	err := e.next.Signal(ctx, workflowID, signal)
	if err == nil {
		e.hooks.OnSignal(ctx, workflowID, signal)
	}
	return err
}

func (e *hookedExecutor) Query(ctx context.Context, workflowID string, queryType string) (any, error) {
	return e.next.Query(ctx, workflowID, queryType)
}

func (e *hookedExecutor) Cancel(ctx context.Context, workflowID string) error {
	return e.next.Cancel(ctx, workflowID)
}

var _ DurableExecutor = (*hookedExecutor)(nil)
