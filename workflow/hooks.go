package workflow

import "context"

// Hooks are lifecycle callbacks an executor invokes around workflow and
// activity execution. Any field may be left nil; ComposeHooks produces a
// Hooks value whose fields are always safe to call directly regardless of
// how many (or how few) of the inputs set a given callback.
type Hooks struct {
	OnWorkflowStart    func(ctx context.Context, workflowID string, input any)
	OnWorkflowComplete func(ctx context.Context, workflowID string, result any)
	OnWorkflowFail     func(ctx context.Context, workflowID string, err error)
	OnActivityStart    func(ctx context.Context, workflowID string, input any)
	OnActivityComplete func(ctx context.Context, workflowID string, result any)
	OnSignal           func(ctx context.Context, workflowID string, signal Signal)
	OnRetry            func(ctx context.Context, workflowID string, err error)
}

// ComposeHooks merges any number of Hooks into one whose callbacks invoke
// every non-nil callback of the same name, in the order given. The result's
// fields are never nil, so callers don't need to guard calls with a nil
// check.
func ComposeHooks(hooks ...Hooks) Hooks {
	return Hooks{
		OnWorkflowStart: func(ctx context.Context, workflowID string, input any) {
			for _, h := range hooks {
				if h.OnWorkflowStart != nil {
					h.OnWorkflowStart(ctx, workflowID, input)
				}
			}
		},
		OnWorkflowComplete: func(ctx context.Context, workflowID string, result any) {
			for _, h := range hooks {
				if h.OnWorkflowComplete != nil {
					h.OnWorkflowComplete(ctx, workflowID, result)
				}
			}
		},
		OnWorkflowFail: func(ctx context.Context, workflowID string, err error) {
			for _, h := range hooks {
				if h.OnWorkflowFail != nil {
					h.OnWorkflowFail(ctx, workflowID, err)
				}
			}
		},
		OnActivityStart: func(ctx context.Context, workflowID string, input any) {
			for _, h := range hooks {
				if h.OnActivityStart != nil {
					h.OnActivityStart(ctx, workflowID, input)
				}
			}
		},
		OnActivityComplete: func(ctx context.Context, workflowID string, result any) {
			for _, h := range hooks {
				if h.OnActivityComplete != nil {
					h.OnActivityComplete(ctx, workflowID, result)
				}
			}
		},
		OnSignal: func(ctx context.Context, workflowID string, signal Signal) {
			for _, h := range hooks {
				if h.OnSignal != nil {
					h.OnSignal(ctx, workflowID, signal)
				}
			}
		},
		OnRetry: func(ctx context.Context, workflowID string, err error) {
			for _, h := range hooks {
				if h.OnRetry != nil {
					h.OnRetry(ctx, workflowID, err)
				}
			}
		},
	}
}
