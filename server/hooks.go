package server

import (
	"context"
	"net/http"
)

// Hooks are lifecycle callbacks invoked around request handling. Any field
// may be left nil.
type Hooks struct {
	// BeforeRequest runs before a handler. A non-nil error short-circuits
	// the request (the handler never runs).
	BeforeRequest func(ctx context.Context, r *http.Request) error

	// AfterRequest runs once a handler has written its response, with the
	// status code it wrote.
	AfterRequest func(ctx context.Context, r *http.Request, statusCode int)

	// OnError runs when a handler or BeforeRequest hook returns an error. A
	// non-nil return replaces the error passed to the next OnError hook
	// (and is what ultimately reaches the client); a nil return passes the
	// original error through unchanged.
	OnError func(ctx context.Context, err error) error
}

// ComposeHooks merges any number of Hooks into one. BeforeRequest hooks run
// in order and stop at the first error; AfterRequest hooks all run, in
// order; OnError hooks run in order and stop at the first one that returns
// a non-nil replacement error, which becomes the result — a hook that
// returns nil passes the original error through to the next hook
// unchanged.
func ComposeHooks(hooks ...Hooks) Hooks {
	return Hooks{
		BeforeRequest: func(ctx context.Context, r *http.Request) error {
			for _, h := range hooks {
				if h.BeforeRequest == nil {
					continue
				}
				if err := h.BeforeRequest(ctx, r); err != nil {
					return err
				}
			}
			return nil
		},
		AfterRequest: func(ctx context.Context, r *http.Request, statusCode int) {
			for _, h := range hooks {
				if h.AfterRequest != nil {
					h.AfterRequest(ctx, r, statusCode)
				}
			}
		},
		OnError: func(ctx context.Context, err error) error {
			for _, h := range hooks {
				if h.OnError == nil {
					continue
				}
				if replaced := h.OnError(ctx, err); replaced != nil {
					return replaced
				}
			}
			return err
		},
	}
}
