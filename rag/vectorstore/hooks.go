package vectorstore

import (
	"context"

	"github.com/veridex/veridex/internal/hookutil"
	"github.com/veridex/veridex/schema"
)

// Hooks provides optional callbacks invoked around VectorStore calls. All
// fields are optional; nil hooks are skipped. Hooks are composable via
// ComposeHooks.
type Hooks struct {
	// BeforeAdd is called before each Add call with the documents about to
	// be stored. Returning an error aborts the call.
	BeforeAdd func(ctx context.Context, docs []schema.Document) error

	// AfterSearch is called after Search completes with the resulting
	// documents and any error.
	AfterSearch func(ctx context.Context, docs []schema.Document, err error)
}

// ComposeHooks merges multiple Hooks into a single Hooks value. Callbacks
// are called in the order the hooks were provided; the first BeforeAdd
// error short-circuits.
func ComposeHooks(hooks ...Hooks) Hooks {
	h := append([]Hooks{}, hooks...)
	return Hooks{
		BeforeAdd: hookutil.ComposeError1(h, func(hk Hooks) func(context.Context, []schema.Document) error {
			return hk.BeforeAdd
		}),
		AfterSearch: hookutil.ComposeVoid2(h, func(hk Hooks) func(context.Context, []schema.Document, error) {
			return hk.AfterSearch
		}),
	}
}
