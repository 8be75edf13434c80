package state

import (
	"context"
	"maps"
	"sync"
)

// Status is the lifecycle state of an async handle as recorded in a
// snapshot.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Async is an in-flight computation that may sit in a state bag. All
// methods must return immediately; a pending handle never blocks the
// caller.
type Async interface {
	// Status reports whether the computation is still running, produced a
	// value, or failed.
	Status() Status

	// Value returns the produced value. Only meaningful when Status is
	// StatusCompleted.
	Value() any

	// Err returns the failure. Only meaningful when Status is StatusError.
	Err() error
}

// Annotated is an Async that also carries metadata about the
// computation (model usage, finish reason and the like).
type Annotated interface {
	Async
	Metadata() map[string]any
}

// Future is a settable Async. The zero value is a pending future ready to
// use. Only the first call to Resolve or Reject takes effect.
type Future struct {
	mu     sync.Mutex
	status Status
	value  any
	err    error
	done   chan struct{}
}

// NewFuture returns a pending Future.
func NewFuture() *Future {
	return &Future{}
}

// Completed returns a Future already resolved with v.
func Completed(v any) *Future {
	f := &Future{}
	f.Resolve(v)
	return f
}

// Failed returns a Future already rejected with err.
func Failed(err error) *Future {
	f := &Future{}
	f.Reject(err)
	return f
}

// Resolve completes the future with v. It reports whether this call
// settled the future.
func (f *Future) Resolve(v any) bool {
	return f.settle(StatusCompleted, v, nil)
}

// Reject fails the future with err. It reports whether this call settled
// the future.
func (f *Future) Reject(err error) bool {
	return f.settle(StatusError, nil, err)
}

func (f *Future) settle(s Status, v any, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusCompleted || f.status == StatusError {
		return false
	}
	f.status, f.value, f.err = s, v, err
	close(f.doneLocked())
	return true
}

// Done returns a channel closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doneLocked()
}

func (f *Future) doneLocked() chan struct{} {
	if f.done == nil {
		f.done = make(chan struct{})
	}
	return f.done
}

// Wait blocks until the future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.Done():
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status implements Async.
func (f *Future) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == "" {
		return StatusPending
	}
	return f.status
}

// Value implements Async.
func (f *Future) Value() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Err implements Async.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Response wraps a Future with metadata describing the call that
// produced it.
type Response struct {
	*Future

	mu   sync.Mutex
	meta map[string]any
}

// NewResponse returns a pending Response with a copy of meta attached.
func NewResponse(meta map[string]any) *Response {
	return &Response{Future: NewFuture(), meta: maps.Clone(meta)}
}

// SetMetadata records a metadata entry.
func (r *Response) SetMetadata(key string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meta == nil {
		r.meta = make(map[string]any)
	}
	r.meta[key] = v
}

// Metadata implements Annotated. It returns a copy.
func (r *Response) Metadata() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.meta)
}
