package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/ckpt"
	"github.com/xraph/ckpt/backoff"
	"github.com/xraph/ckpt/checkpoint"
	"github.com/xraph/ckpt/store/storetest"
)

type backendFactory func(client goredis.UniversalClient, opts ...BackendOption) Backend

var backends = []struct {
	name string
	open backendFactory
}{
	{"spin", func(c goredis.UniversalClient, opts ...BackendOption) Backend { return NewSpinBackend(c, opts...) }},
	{"mutex", func(c goredis.UniversalClient, opts ...BackendOption) Backend { return NewMutexBackend(c, opts...) }},
}

func newClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestConformance(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) checkpoint.Store {
				_, client := newClient(t)
				return New(b.open(client))
			})
		})
	}
}

func TestInvalidAddressing(t *testing.T) {
	t.Parallel()
	_, client := newClient(t)
	s := New(NewSpinBackend(client))
	ctx := context.Background()
	addr := checkpoint.Address{CheckpointID: "c1"}

	_, err := s.List(ctx, addr)
	assert.ErrorIs(t, err, ckpt.ErrInvalidAddressing)
	_, err = s.Get(ctx, addr)
	assert.ErrorIs(t, err, ckpt.ErrInvalidAddressing)
	_, err = s.Put(ctx, addr, storetest.NewCheckpoint("c1", "n"))
	assert.ErrorIs(t, err, ckpt.ErrInvalidAddressing)
	_, err = s.Clear(ctx, addr)
	assert.ErrorIs(t, err, ckpt.ErrInvalidAddressing)
	_, err = s.Release(ctx, addr)
	assert.ErrorIs(t, err, ckpt.ErrInvalidAddressing)
}

func TestLockContention(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			mr, client := newClient(t)
			s := New(b.open(client), WithLockWait(20*time.Millisecond))
			ctx := context.Background()
			addr := checkpoint.Address{LineageID: "busy"}

			_, err := s.Put(ctx, addr, storetest.NewCheckpoint("c1", "n"))
			require.NoError(t, err)
			require.NoError(t, mr.Set("checkpoint-lock:busy", "someone-else"))

			cps, err := s.List(ctx, addr)
			require.NoError(t, err)
			assert.Empty(t, cps)

			got, err := s.Get(ctx, addr)
			require.NoError(t, err)
			assert.Nil(t, got)

			cleared, err := s.Clear(ctx, addr)
			require.NoError(t, err)
			assert.False(t, cleared)

			_, err = s.Put(ctx, addr, storetest.NewCheckpoint("c2", "n"))
			assert.ErrorIs(t, err, ckpt.ErrLockTimeout)

			_, err = s.Release(ctx, addr)
			assert.ErrorIs(t, err, ckpt.ErrLockTimeout)

			mr.Del("checkpoint-lock:busy")
			cps, err = s.List(ctx, addr)
			require.NoError(t, err)
			require.Len(t, cps, 1, "blocked writes must not land")
			assert.Equal(t, "c1", cps[0].ID)
		})
	}
}

func TestCanceledContextIsNotDegraded(t *testing.T) {
	t.Parallel()
	mr, client := newClient(t)
	s := New(NewSpinBackend(client), WithLockWait(time.Second))
	require.NoError(t, mr.Set("checkpoint-lock:busy", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.List(ctx, checkpoint.Address{LineageID: "busy"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCorruptBlob(t *testing.T) {
	t.Parallel()
	mr, client := newClient(t)
	s := New(NewSpinBackend(client))
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "corrupt"}

	require.NoError(t, mr.Set("checkpoint-content:corrupt", "\x01\x00\x00"))

	_, err := s.List(ctx, addr)
	assert.ErrorIs(t, err, ckpt.ErrSerialization)
	_, err = s.Put(ctx, addr, storetest.NewCheckpoint("c1", "n"))
	assert.ErrorIs(t, err, ckpt.ErrSerialization)

	raw, err := mr.Get("checkpoint-content:corrupt")
	require.NoError(t, err)
	assert.Equal(t, "\x01\x00\x00", raw, "corrupt blob must be left alone")
	assert.False(t, mr.Exists("checkpoint-lock:corrupt"), "lock must be released on error")
}

func TestKeyLayout(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
	}{
		{"bare", ""},
		{"namespaced", "tenant-a:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mr, client := newClient(t)
			s := New(NewSpinBackend(client), WithKeyNamespace(tt.namespace))
			ctx := context.Background()
			addr := checkpoint.Address{LineageID: "run-1"}

			_, err := s.Put(ctx, addr, storetest.NewCheckpoint("c1", "n"))
			require.NoError(t, err)
			assert.Equal(t, []string{tt.namespace + "checkpoint-content:run-1"}, mr.Keys())

			_, err = s.Release(ctx, addr)
			require.NoError(t, err)
			assert.Empty(t, mr.Keys(), "release must remove content and lock keys")
		})
	}
}

func TestCodecMigration(t *testing.T) {
	t.Parallel()
	_, client := newClient(t)
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "mixed"}

	jsonStore := New(NewSpinBackend(client), WithCodec("json"))
	_, err := jsonStore.Put(ctx, addr, &checkpoint.Checkpoint{ID: "c1", State: map[string]any{"msg": "hi"}})
	require.NoError(t, err)

	msgpackStore := New(NewSpinBackend(client), WithCodec("msgpack"))
	_, err = msgpackStore.Put(ctx, addr, &checkpoint.Checkpoint{ID: "c2", State: map[string]any{"msg": "there"}})
	require.NoError(t, err)

	cps, err := jsonStore.List(ctx, addr)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, "there", cps[0].State["msg"])
	assert.Equal(t, "hi", cps[1].State["msg"])
}

func TestWithConfig(t *testing.T) {
	t.Parallel()
	cfg := ckpt.DefaultConfig()
	cfg.LockWait = 42 * time.Millisecond
	cfg.KeyNamespace = "ns:"
	cfg.Codec = "json"

	s := New(nil, WithConfig(cfg))
	assert.Equal(t, 42*time.Millisecond, s.lockWait)
	assert.Equal(t, "ns:checkpoint-lock:x", s.keys.lock("x"))
	assert.Equal(t, "json", s.codec.Checkpoint.Name())

	opts, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestFromConfigPollStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		strategy string
		want     backoff.Strategy
	}{
		{"default", "", backoff.NewConstant(2 * time.Millisecond)},
		{"constant", backoff.NameConstant, backoff.NewConstant(2 * time.Millisecond)},
		{"exponential", backoff.NameExponential, backoff.NewExponential(2*time.Millisecond, 40*time.Millisecond)},
		{"jitter", backoff.NameJitter, backoff.NewExponentialWithJitter(2*time.Millisecond, 40*time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := ckpt.DefaultConfig()
			cfg.PollInterval = 2 * time.Millisecond
			cfg.PollMax = 40 * time.Millisecond
			cfg.PollStrategy = tt.strategy

			opts, err := FromConfig(cfg)
			require.NoError(t, err)
			b := NewSpinBackend(nil, opts...)
			assert.Equal(t, tt.want, b.cfg.poll)
		})
	}

	cfg := ckpt.DefaultConfig()
	cfg.PollStrategy = "fibonacci"
	_, err := FromConfig(cfg)
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestJitterPollAcquiresAfterRelease(t *testing.T) {
	t.Parallel()
	_, client := newClient(t)
	cfg := ckpt.DefaultConfig()
	cfg.PollStrategy = backoff.NameJitter
	cfg.PollMax = 5 * time.Millisecond
	opts, err := FromConfig(cfg)
	require.NoError(t, err)
	b := NewSpinBackend(client, opts...)
	ctx := context.Background()

	held, err := b.TryLock(ctx, "checkpoint-lock:poll", 10*time.Millisecond)
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = held.Unlock(ctx) //nolint:errcheck // the waiter below observes the result
	}()

	next, err := b.TryLock(ctx, "checkpoint-lock:poll", 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, next.Unlock(ctx))
}

func TestSpinLockTTL(t *testing.T) {
	t.Parallel()
	mr, client := newClient(t)
	b := NewSpinBackend(client, WithLockTTL(5*time.Second))
	ctx := context.Background()

	lock, err := b.TryLock(ctx, "checkpoint-lock:ttl", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, mr.TTL("checkpoint-lock:ttl"))

	mr.FastForward(6 * time.Second)
	second, err := b.TryLock(ctx, "checkpoint-lock:ttl", 10*time.Millisecond)
	require.NoError(t, err, "expired lease must be acquirable")

	// The first holder's unlock must not release the second holder's lock.
	require.NoError(t, lock.Unlock(ctx))
	assert.True(t, mr.Exists("checkpoint-lock:ttl"))

	require.NoError(t, second.Unlock(ctx))
	assert.False(t, mr.Exists("checkpoint-lock:ttl"))
}

func TestMutexLockExclusive(t *testing.T) {
	t.Parallel()
	_, client := newClient(t)
	b := NewMutexBackend(client)
	ctx := context.Background()

	lock, err := b.TryLock(ctx, "checkpoint-lock:m", 10*time.Millisecond)
	require.NoError(t, err)

	_, err = b.TryLock(ctx, "checkpoint-lock:m", 10*time.Millisecond)
	require.ErrorIs(t, err, ckpt.ErrLockTimeout)

	require.NoError(t, lock.Unlock(ctx))
	again, err := b.TryLock(ctx, "checkpoint-lock:m", 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, again.Unlock(ctx))
}
