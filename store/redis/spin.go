package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock key only while it still holds the
// caller's token.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Ensure SpinBackend implements Backend at compile time.
var _ Backend = (*SpinBackend)(nil)

// SpinBackend locks with SET NX PX and a per-acquisition owner token,
// polling until the wait budget runs out.
type SpinBackend struct {
	kv
	cfg backendConfig
}

// NewSpinBackend returns a conditional-set spin-lock Backend. The caller
// owns the client lifecycle.
func NewSpinBackend(client goredis.Cmdable, opts ...BackendOption) *SpinBackend {
	return &SpinBackend{kv: kv{client: client}, cfg: newBackendConfig(opts)}
}

// TryLock implements Backend.
func (b *SpinBackend) TryLock(ctx context.Context, key string, wait time.Duration) (Lock, error) {
	token := uuid.NewString()
	err := poll(ctx, key, wait, b.cfg.poll, func() (bool, error) {
		ok, err := b.client.SetNX(ctx, key, token, b.cfg.ttl).Result()
		if err != nil {
			return false, fmt.Errorf("ckpt/redis: setnx %s: %w", key, err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	return &spinLock{backend: b, key: key, token: token}, nil
}

type spinLock struct {
	backend *SpinBackend
	key     string
	token   string
}

func (l *spinLock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.backend.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("ckpt/redis: unlock %s: %w", l.key, err)
	}
	if n == 0 {
		l.backend.cfg.logger.Warn("lineage lock expired before unlock",
			"key", l.key,
			"ttl", l.backend.cfg.ttl,
		)
	}
	return nil
}
