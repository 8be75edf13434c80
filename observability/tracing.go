package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName is the scope name for ckpt tracing and metrics.
const instrumentationName = "github.com/xraph/ckpt"

// Tracing returns middleware that wraps each store operation in a span
// from the global TracerProvider. Without a configured provider the noop
// tracer makes this a pass-through.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(instrumentationName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
//
// Spans are named "ckpt.store.<op>" and carry ckpt.lineage_id and
// ckpt.checkpoint_id. ckpt.checkpoint.count is added once the operation
// returns.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		ctx, span := tracer.Start(ctx, "ckpt.store."+op.Name,
			trace.WithAttributes(
				attribute.String("ckpt.lineage_id", op.Address.Lineage()),
				attribute.String("ckpt.checkpoint_id", op.Address.CheckpointID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		span.SetAttributes(attribute.Int("ckpt.checkpoint.count", op.Count))
		if op.Name == OpPut {
			span.SetAttributes(attribute.String("ckpt.checkpoint_id", op.Address.CheckpointID))
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}
