package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/ckpt/checkpoint"
)

// Ensure Store implements checkpoint.Store at compile time.
var _ checkpoint.Store = (*Store)(nil)

// Option configures Instrument.
type Option func(*options)

type options struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger *slog.Logger
	extra  []Middleware
}

// WithTracer sets the tracer used for spans. Defaults to the global
// TracerProvider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMeter sets the meter used for instruments. Defaults to the global
// MeterProvider.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMiddleware appends middleware inside the default chain.
func WithMiddleware(mws ...Middleware) Option {
	return func(o *options) { o.extra = append(o.extra, mws...) }
}

// Store is a checkpoint.Store decorator that runs every call through a
// middleware chain.
type Store struct {
	inner checkpoint.Store
	chain Middleware
}

// Instrument wraps inner with tracing, metrics, logging and panic
// recovery.
func Instrument(inner checkpoint.Store, opts ...Option) *Store {
	o := options{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	mws := append([]Middleware{
		TracingWithTracer(o.tracer),
		MetricsWithMeter(o.meter),
		Logging(o.logger),
		Recover(o.logger),
	}, o.extra...)

	return &Store{inner: inner, chain: Chain(mws...)}
}

// Unwrap returns the decorated store.
func (s *Store) Unwrap() checkpoint.Store { return s.inner }

// List implements checkpoint.Store.
func (s *Store) List(ctx context.Context, addr checkpoint.Address) ([]*checkpoint.Checkpoint, error) {
	var out []*checkpoint.Checkpoint
	op := &Op{Name: OpList, Address: addr}
	err := s.chain(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = s.inner.List(ctx, addr)
		op.Count = len(out)
		return err
	})
	return out, err
}

// Get implements checkpoint.Store.
func (s *Store) Get(ctx context.Context, addr checkpoint.Address) (*checkpoint.Checkpoint, error) {
	var out *checkpoint.Checkpoint
	op := &Op{Name: OpGet, Address: addr}
	err := s.chain(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = s.inner.Get(ctx, addr)
		if out != nil {
			op.Count = 1
		}
		return err
	})
	return out, err
}

// Put implements checkpoint.Store.
func (s *Store) Put(ctx context.Context, addr checkpoint.Address, cp *checkpoint.Checkpoint) (checkpoint.Address, error) {
	out := addr
	op := &Op{Name: OpPut, Address: addr}
	err := s.chain(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = s.inner.Put(ctx, addr, cp)
		if err == nil {
			op.Address = out
			op.Count = 1
		}
		return err
	})
	return out, err
}

// Clear implements checkpoint.Store.
func (s *Store) Clear(ctx context.Context, addr checkpoint.Address) (bool, error) {
	var cleared bool
	op := &Op{Name: OpClear, Address: addr}
	err := s.chain(ctx, op, func(ctx context.Context) error {
		var err error
		cleared, err = s.inner.Clear(ctx, addr)
		return err
	})
	return cleared, err
}

// Release implements checkpoint.Store.
func (s *Store) Release(ctx context.Context, addr checkpoint.Address) (*checkpoint.Tag, error) {
	var tag *checkpoint.Tag
	op := &Op{Name: OpRelease, Address: addr}
	err := s.chain(ctx, op, func(ctx context.Context) error {
		var err error
		tag, err = s.inner.Release(ctx, addr)
		if tag != nil {
			op.Count = len(tag.Removed)
		}
		return err
	})
	return tag, err
}
