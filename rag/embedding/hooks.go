package embedding

import (
	"context"

	"github.com/veridex/veridex/internal/hookutil"
)

// Hooks provides optional callbacks invoked around Embed calls. All fields
// are optional; nil hooks are skipped. Hooks are composable via ComposeHooks.
type Hooks struct {
	// BeforeEmbed is called before each Embed/EmbedSingle call with the
	// input texts. Returning an error aborts the call.
	BeforeEmbed func(ctx context.Context, texts []string) error

	// AfterEmbed is called after Embed/EmbedSingle completes with the
	// resulting vectors and any error.
	AfterEmbed func(ctx context.Context, vectors [][]float32, err error)
}

// ComposeHooks merges multiple Hooks into a single Hooks value. Callbacks
// are called in the order the hooks were provided; the first BeforeEmbed
// error short-circuits.
func ComposeHooks(hooks ...Hooks) Hooks {
	h := append([]Hooks{}, hooks...)
	return Hooks{
		BeforeEmbed: hookutil.ComposeError1(h, func(hk Hooks) func(context.Context, []string) error {
			return hk.BeforeEmbed
		}),
		AfterEmbed: hookutil.ComposeVoid2(h, func(hk Hooks) func(context.Context, [][]float32, error) {
			return hk.AfterEmbed
		}),
	}
}
