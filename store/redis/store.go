package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/ckpt"
	"github.com/xraph/ckpt/backoff"
	"github.com/xraph/ckpt/checkpoint"
	"github.com/xraph/ckpt/serializer"
)

// Ensure Store implements checkpoint.Store at compile time.
var _ checkpoint.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLockWait bounds how long an operation waits for its lineage lock.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) { s.lockWait = d }
}

// WithCodec selects the state payload codec for new writes ("msgpack" or
// "json"). Blobs written with either codec stay readable.
func WithCodec(name string) Option {
	return func(s *Store) { s.codec = checkpoint.NewHistoryCodec(name) }
}

// WithKeyNamespace prepends ns to every key the Store touches.
func WithKeyNamespace(ns string) Option {
	return func(s *Store) { s.keys = keyspace{namespace: ns} }
}

// WithConfig applies the store-side fields of cfg.
func WithConfig(cfg ckpt.Config) Option {
	return func(s *Store) {
		if cfg.LockWait > 0 {
			s.lockWait = cfg.LockWait
		}
		if cfg.Codec != "" {
			s.codec = checkpoint.NewHistoryCodec(cfg.Codec)
		}
		s.keys = keyspace{namespace: cfg.KeyNamespace}
	}
}

// FromConfig returns the backend options matching the lock fields of cfg.
// It fails when cfg.PollStrategy names no known strategy.
func FromConfig(cfg ckpt.Config) ([]BackendOption, error) {
	var opts []BackendOption
	if cfg.LockTTL > 0 {
		opts = append(opts, WithLockTTL(cfg.LockTTL))
	}
	if cfg.PollInterval > 0 {
		strategy, err := backoff.Named(cfg.PollStrategy, cfg.PollInterval, cfg.PollMax)
		if err != nil {
			return nil, fmt.Errorf("ckpt/redis: config: %w", err)
		}
		opts = append(opts, WithPollStrategy(strategy))
	}
	return opts, nil
}

// Store is a checkpoint.Store that keeps each lineage as one blob in
// Redis and serializes access to it with a distributed lineage lock.
type Store struct {
	backend  Backend
	keys     keyspace
	codec    *checkpoint.HistoryCodec
	lockWait time.Duration
	logger   *slog.Logger
}

// New creates a Redis-backed store on top of backend.
func New(backend Backend, opts ...Option) *Store {
	cfg := ckpt.DefaultConfig()
	s := &Store{
		backend:  backend,
		codec:    checkpoint.NewHistoryCodec(cfg.Codec),
		lockWait: cfg.LockWait,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// List returns every checkpoint of the lineage, newest first. When the
// lineage lock cannot be acquired it returns an empty slice.
func (s *Store) List(ctx context.Context, addr checkpoint.Address) ([]*checkpoint.Checkpoint, error) {
	if err := validate(addr); err != nil {
		return nil, err
	}

	var out []*checkpoint.Checkpoint
	err := s.withLineage(ctx, addr.LineageID, func(h *checkpoint.History, _ bool) (bool, error) {
		out = h.Snapshot()
		return false, nil
	})
	if err != nil {
		if s.degraded("list", addr, err) {
			return []*checkpoint.Checkpoint{}, nil
		}
		return nil, fmt.Errorf("ckpt/redis: list: %w", err)
	}
	return out, nil
}

// Get returns the addressed checkpoint, or the newest one. When the
// lineage lock cannot be acquired it returns nil.
func (s *Store) Get(ctx context.Context, addr checkpoint.Address) (*checkpoint.Checkpoint, error) {
	if err := validate(addr); err != nil {
		return nil, err
	}

	var out *checkpoint.Checkpoint
	err := s.withLineage(ctx, addr.LineageID, func(h *checkpoint.History, _ bool) (bool, error) {
		out = h.Read(addr)
		return false, nil
	})
	if err != nil {
		if s.degraded("get", addr, err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ckpt/redis: get: %w", err)
	}
	return out, nil
}

// Put replaces the addressed checkpoint or appends a new head. It fails
// with ckpt.ErrLockTimeout when the lineage lock cannot be acquired.
func (s *Store) Put(ctx context.Context, addr checkpoint.Address, cp *checkpoint.Checkpoint) (checkpoint.Address, error) {
	if err := validate(addr); err != nil {
		return addr, err
	}
	prepared, err := checkpoint.Prepare(addr, cp)
	if err != nil {
		return addr, err
	}

	err = s.withLineage(ctx, addr.LineageID, func(h *checkpoint.History, _ bool) (bool, error) {
		if err := h.Write(addr, prepared); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return addr, fmt.Errorf("ckpt/redis: put: %w", err)
	}
	return addr.WithCheckpointID(prepared.ID), nil
}

// Clear empties the lineage blob and reports whether anything was
// removed. The blob itself is kept so the lineage stays registered.
func (s *Store) Clear(ctx context.Context, addr checkpoint.Address) (bool, error) {
	if err := validate(addr); err != nil {
		return false, err
	}

	var cleared bool
	err := s.withLineage(ctx, addr.LineageID, func(h *checkpoint.History, exists bool) (bool, error) {
		if !exists {
			return false, nil
		}
		cleared = len(h.Reset()) > 0
		return cleared, nil
	})
	if err != nil {
		if s.degraded("clear", addr, err) {
			return false, nil
		}
		return false, fmt.Errorf("ckpt/redis: clear: %w", err)
	}
	return cleared, nil
}

// Release deletes the lineage blob and its lock key, returning the
// removed checkpoints.
func (s *Store) Release(ctx context.Context, addr checkpoint.Address) (*checkpoint.Tag, error) {
	if err := validate(addr); err != nil {
		return nil, err
	}

	tag := &checkpoint.Tag{LineageID: addr.LineageID, Removed: []*checkpoint.Checkpoint{}}
	err := s.withLineage(ctx, addr.LineageID, func(h *checkpoint.History, exists bool) (bool, error) {
		if !exists {
			return false, nil
		}
		if err := s.backend.Delete(ctx, s.keys.content(addr.LineageID)); err != nil {
			return false, err
		}
		tag.Removed = h.Reset()
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ckpt/redis: release: %w", err)
	}
	return tag, nil
}

// withLineage runs fn on the decoded lineage while holding its lock. When
// fn reports a change the history is encoded and written back before the
// lock is released.
func (s *Store) withLineage(ctx context.Context, lineageID string,
	fn func(h *checkpoint.History, exists bool) (bool, error),
) error {
	lock, err := s.backend.TryLock(ctx, s.keys.lock(lineageID), s.lockWait)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := lock.Unlock(context.WithoutCancel(ctx)); uerr != nil {
			s.logger.Error("failed to release lineage lock",
				"lineage_id", lineageID,
				"error", uerr,
			)
		}
	}()

	key := s.keys.content(lineageID)
	data, exists, err := s.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	h := &checkpoint.History{}
	if exists {
		if h, err = serializer.FromBytes[*checkpoint.History](s.codec, data); err != nil {
			return fmt.Errorf("lineage %q: %w", lineageID, err)
		}
	}

	changed, err := fn(h, exists)
	if err != nil || !changed {
		return err
	}

	out, err := serializer.ToBytes[*checkpoint.History](s.codec, h)
	if err != nil {
		return fmt.Errorf("lineage %q: %w", lineageID, err)
	}
	return s.backend.Set(ctx, key, out)
}

// degraded reports whether err is a lock timeout that read-style
// operations answer with an empty result, and logs it.
func (s *Store) degraded(op string, addr checkpoint.Address, err error) bool {
	if !errors.Is(err, ckpt.ErrLockTimeout) {
		return false
	}
	s.logger.Warn("lineage lock not acquired, returning empty result",
		"op", op,
		"lineage_id", addr.LineageID,
		"checkpoint_id", addr.CheckpointID,
		"error", err,
	)
	return true
}

func validate(addr checkpoint.Address) error {
	if addr.LineageID == "" {
		return fmt.Errorf("%w: lineage id is required", ckpt.ErrInvalidAddressing)
	}
	return nil
}
