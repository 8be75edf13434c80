// Package observability instruments any checkpoint.Store with tracing,
// metrics and logging.
//
// [Instrument] wraps a store so every operation runs through a
// [Middleware] chain. The default chain is:
//
//	tracing → metrics → logging → recover → store
//
// # Built-in Middleware
//
//   - [Tracing]: wraps each operation in an OpenTelemetry span
//   - [Metrics]: records duration, operation and lock contention counters
//   - [Logging]: logs each operation with its lineage and outcome
//   - [Recover]: turns a panicking backend into an error
//   - [Timeout]: bounds each operation with a context deadline
//
// Extra middleware passed with [WithMiddleware] runs innermost:
//
//	s := observability.Instrument(redisStore,
//	    observability.WithLogger(logger),
//	    observability.WithMiddleware(observability.Timeout(2*time.Second)),
//	)
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package observability
