package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	goredislib "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredis "github.com/redis/go-redis/v9"
)

// Ensure MutexBackend implements Backend at compile time.
var _ Backend = (*MutexBackend)(nil)

// MutexBackend locks with redsync mutexes. Each acquisition gets its own
// *redsync.Mutex, which remembers the value it set and releases only that.
type MutexBackend struct {
	kv
	rs  *redsync.Redsync
	cfg backendConfig
}

// NewMutexBackend returns a lock-object Backend built on redsync. The
// caller owns the client lifecycle.
func NewMutexBackend(client goredis.UniversalClient, opts ...BackendOption) *MutexBackend {
	return &MutexBackend{
		kv:  kv{client: client},
		rs:  redsync.New(goredislib.NewPool(client)),
		cfg: newBackendConfig(opts),
	}
}

// TryLock implements Backend.
func (b *MutexBackend) TryLock(ctx context.Context, key string, wait time.Duration) (Lock, error) {
	m := b.rs.NewMutex(key,
		redsync.WithExpiry(b.cfg.ttl),
		redsync.WithTries(1),
	)
	err := poll(ctx, key, wait, b.cfg.poll, func() (bool, error) {
		if err := m.TryLockContext(ctx); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			// ErrTaken and ErrFailed both mean someone else holds it.
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &mutexLock{backend: b, m: m}, nil
}

type mutexLock struct {
	backend *MutexBackend
	m       *redsync.Mutex
}

func (l *mutexLock) Unlock(ctx context.Context) error {
	ok, err := l.m.UnlockContext(ctx)
	if err != nil && !errors.Is(err, redsync.ErrLockAlreadyExpired) {
		return fmt.Errorf("ckpt/redis: unlock %s: %w", l.m.Name(), err)
	}
	if !ok {
		l.backend.cfg.logger.Warn("lineage lock expired before unlock",
			"key", l.m.Name(),
			"ttl", l.backend.cfg.ttl,
		)
	}
	return nil
}
