package observability

import (
	"context"

	"github.com/xraph/ckpt/checkpoint"
)

// Operation names reported on spans, metrics and log lines.
const (
	OpList    = "list"
	OpGet     = "get"
	OpPut     = "put"
	OpClear   = "clear"
	OpRelease = "release"
)

// Op describes one store call as it passes through the chain. The
// terminal handler fills in Count and, for put, the written Address, so
// middleware can read them after next returns.
type Op struct {
	Name    string
	Address checkpoint.Address

	// Count is the number of checkpoints returned, written or removed.
	Count int
}

// Handler is the terminal function that performs the store call.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
type Middleware func(ctx context.Context, op *Op, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// The first middleware in the list is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, op, prev)
			}
		}
		return h(ctx)
	}
}
