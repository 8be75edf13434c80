package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/ckpt"
)

// Metrics returns middleware that records per-operation metrics using the
// global OTel MeterProvider. Without a configured provider noop
// instruments are used.
//
// Instruments:
//   - ckpt.store.duration (Float64Histogram): operation time in seconds,
//     with attributes: op, status ("ok" or "error")
//   - ckpt.store.operations (Int64Counter): total operations,
//     with attributes: op, status
//   - ckpt.store.lock_contention (Int64Counter): operations that failed
//     with ckpt.ErrLockTimeout, with attribute: op
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(instrumentationName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API hands back noop instruments.
	duration, _ := meter.Float64Histogram( //nolint:errcheck // noop fallback
		"ckpt.store.duration",
		metric.WithDescription("Duration of checkpoint store operations in seconds"),
		metric.WithUnit("s"),
	)
	operations, _ := meter.Int64Counter( //nolint:errcheck // noop fallback
		"ckpt.store.operations",
		metric.WithDescription("Total number of checkpoint store operations"),
		metric.WithUnit("{operation}"),
	)
	contention, _ := meter.Int64Counter( //nolint:errcheck // noop fallback
		"ckpt.store.lock_contention",
		metric.WithDescription("Operations that gave up waiting for a lineage lock"),
		metric.WithUnit("{operation}"),
	)

	return func(ctx context.Context, op *Op, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("op", op.Name),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		operations.Add(ctx, 1, attrs)

		if errors.Is(err, ckpt.ErrLockTimeout) {
			contention.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op.Name)))
		}
		return err
	}
}
