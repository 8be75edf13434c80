package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/ckpt"
	"github.com/xraph/ckpt/backoff"
)

// Backend is the lock + key/value surface the Store is written against.
// Any client able to provide at-most-one holder per lock key can back a
// Store.
type Backend interface {
	// TryLock acquires the lock at key, waiting at most wait. It returns
	// an error wrapping ckpt.ErrLockTimeout when the lock stays taken.
	TryLock(ctx context.Context, key string, wait time.Duration) (Lock, error)

	// Get returns the value at key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value at key without expiry.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// Lock is a held lineage lock.
type Lock interface {
	Unlock(ctx context.Context) error
}

// BackendOption configures a Backend.
type BackendOption func(*backendConfig)

type backendConfig struct {
	ttl    time.Duration
	poll   backoff.Strategy
	logger *slog.Logger
}

func newBackendConfig(opts []BackendOption) backendConfig {
	cfg := backendConfig{
		ttl:    ckpt.DefaultConfig().LockTTL,
		poll:   backoff.DefaultStrategy(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// WithLockTTL sets the lease on acquired locks.
func WithLockTTL(d time.Duration) BackendOption {
	return func(c *backendConfig) { c.ttl = d }
}

// WithPollStrategy sets the delay between lock attempts.
func WithPollStrategy(s backoff.Strategy) BackendOption {
	return func(c *backendConfig) { c.poll = s }
}

// WithBackendLogger sets a custom logger.
func WithBackendLogger(l *slog.Logger) BackendOption {
	return func(c *backendConfig) { c.logger = l }
}

// kv implements the data half of Backend on a go-redis client.
type kv struct {
	client goredis.Cmdable
}

func (b kv) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("ckpt/redis: get %s: %w", key, err)
	}
	return data, true, nil
}

func (b kv) Set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("ckpt/redis: set %s: %w", key, err)
	}
	return nil
}

func (b kv) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("ckpt/redis: del: %w", err)
	}
	return nil
}

// poll calls attempt until it reports success, the wait budget runs out,
// or ctx ends. Timeouts wrap ckpt.ErrLockTimeout together with the last
// attempt error, if any.
func poll(ctx context.Context, key string, wait time.Duration, s backoff.Strategy,
	attempt func() (bool, error),
) error {
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var last error
	for n := 1; ; n++ {
		ok, err := attempt()
		if ok {
			return nil
		}
		if err != nil {
			last = err
		}
		if sleepErr := backoff.Sleep(waitCtx, s, n); sleepErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if last != nil {
				return fmt.Errorf("%w: %s after %s: %v", ckpt.ErrLockTimeout, key, wait, last)
			}
			return fmt.Errorf("%w: %s after %s", ckpt.ErrLockTimeout, key, wait)
		}
	}
}
