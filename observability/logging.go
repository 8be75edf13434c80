package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/xraph/ckpt"
)

// Logging returns middleware that logs the outcome of each operation.
// Successful calls log at Debug, lock timeouts at Warn, other failures at
// Error.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		attrs := []any{
			slog.String("op", op.Name),
			slog.String("lineage_id", op.Address.Lineage()),
			slog.String("checkpoint_id", op.Address.CheckpointID),
			slog.Duration("elapsed", elapsed),
		}
		switch {
		case err == nil:
			logger.DebugContext(ctx, "checkpoint store operation completed",
				append(attrs, slog.Int("count", op.Count))...)
		case errors.Is(err, ckpt.ErrLockTimeout):
			logger.WarnContext(ctx, "checkpoint store operation timed out on lineage lock",
				append(attrs, slog.String("error", err.Error()))...)
		default:
			logger.ErrorContext(ctx, "checkpoint store operation failed",
				append(attrs, slog.String("error", err.Error()))...)
		}
		return err
	}
}

// Recover returns middleware that converts a panicking store call into an
// error and logs it with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, op *Op, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "checkpoint store panicked",
					slog.String("op", op.Name),
					slog.String("lineage_id", op.Address.Lineage()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in checkpoint store %s: %v", op.Name, r)
			}
		}()
		return next(ctx)
	}
}

// Timeout returns middleware that bounds each operation with d. A zero
// or negative d disables it.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *Op, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
