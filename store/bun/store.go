package bunstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/ckpt"
	"github.com/xraph/ckpt/checkpoint"
	"github.com/xraph/ckpt/serializer"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements checkpoint.Store at compile time.
var _ checkpoint.Store = (*Store)(nil)

// Store is a Bun ORM implementation of checkpoint.Store using PostgreSQL
// dialect. The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db       *bun.DB
	codec    serializer.Codec
	lockWait time.Duration
	logger   *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithLockWait bounds how long an operation waits for its lineage lock.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) {
		s.lockWait = d
	}
}

// WithCodec selects the state encoding for new rows ("msgpack" or
// "json"). Each row records its codec, so existing rows stay readable.
func WithCodec(name string) Option {
	return func(s *Store) {
		s.codec = serializer.GetCodec(name)
	}
}

// New creates a new Bun store. The caller owns the db lifecycle; the Store
// will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	cfg := ckpt.DefaultConfig()
	s := &Store{
		db:       db,
		codec:    serializer.GetCodec(cfg.Codec),
		lockWait: cfg.LockWait,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ckpt_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ckpt/bun: create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ckpt/bun: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM ckpt_migrations WHERE filename = ?)`,
			entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("ckpt/bun: check migration %s: %w", entry.Name(), err)
		}
		if applied {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("ckpt/bun: read migration %s: %w", entry.Name(), readErr)
		}
		if _, execErr := s.db.ExecContext(ctx, string(data)); execErr != nil {
			return fmt.Errorf("ckpt/bun: execute migration %s: %w", entry.Name(), execErr)
		}
		if _, recErr := s.db.ExecContext(ctx,
			`INSERT INTO ckpt_migrations (filename) VALUES (?)`,
			entry.Name(),
		); recErr != nil {
			return fmt.Errorf("ckpt/bun: record migration %s: %w", entry.Name(), recErr)
		}

		s.logger.Info("applied migration", "file", entry.Name())
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}

// List returns every checkpoint of the lineage, newest first. When the
// lineage lock cannot be acquired it returns an empty slice.
func (s *Store) List(ctx context.Context, addr checkpoint.Address) ([]*checkpoint.Checkpoint, error) {
	var out []*checkpoint.Checkpoint
	err := s.inLineage(ctx, addr.Lineage(), func(ctx context.Context, tx bun.Tx) error {
		var models []checkpointModel
		if err := tx.NewSelect().Model(&models).
			Where("lineage_id = ?", addr.Lineage()).
			Order("seq DESC").
			Scan(ctx); err != nil {
			return err
		}
		var err error
		out, err = fromCheckpointModels(models)
		return err
	})
	if err != nil {
		if s.degraded("list", addr, err) {
			return []*checkpoint.Checkpoint{}, nil
		}
		return nil, fmt.Errorf("ckpt/bun: list: %w", err)
	}
	return out, nil
}

// Get returns the addressed checkpoint, or the newest one. When the
// lineage lock cannot be acquired it returns nil.
func (s *Store) Get(ctx context.Context, addr checkpoint.Address) (*checkpoint.Checkpoint, error) {
	var out *checkpoint.Checkpoint
	err := s.inLineage(ctx, addr.Lineage(), func(ctx context.Context, tx bun.Tx) error {
		m := new(checkpointModel)
		q := tx.NewSelect().Model(m).Where("lineage_id = ?", addr.Lineage())
		if addr.CheckpointID != "" {
			q = q.Where("checkpoint_id = ?", addr.CheckpointID)
		} else {
			q = q.Order("seq DESC")
		}
		if err := q.Limit(1).Scan(ctx); err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}
		var err error
		out, err = fromCheckpointModel(m)
		return err
	})
	if err != nil {
		if s.degraded("get", addr, err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ckpt/bun: get: %w", err)
	}
	return out, nil
}

// Put replaces the addressed checkpoint in place or appends a new head.
func (s *Store) Put(ctx context.Context, addr checkpoint.Address, cp *checkpoint.Checkpoint) (checkpoint.Address, error) {
	prepared, err := checkpoint.Prepare(addr, cp)
	if err != nil {
		return addr, err
	}
	lineageID := addr.Lineage()

	err = s.inLineage(ctx, lineageID, func(ctx context.Context, tx bun.Tx) error {
		if addr.CheckpointID != "" {
			return s.replace(ctx, tx, lineageID, addr.CheckpointID, prepared)
		}
		return s.append(ctx, tx, lineageID, prepared)
	})
	if err != nil {
		return addr, fmt.Errorf("ckpt/bun: put: %w", err)
	}
	return addr.WithCheckpointID(prepared.ID), nil
}

func (s *Store) append(ctx context.Context, tx bun.Tx, lineageID string, cp *checkpoint.Checkpoint) error {
	var next int64
	if err := tx.NewSelect().Model((*checkpointModel)(nil)).
		ColumnExpr("COALESCE(MAX(seq), 0) + 1").
		Where("lineage_id = ?", lineageID).
		Scan(ctx, &next); err != nil {
		return err
	}

	m, err := toCheckpointModel(lineageID, next, cp, s.codec)
	if err != nil {
		return err
	}
	if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %q", ckpt.ErrCheckpointExists, cp.ID)
		}
		return err
	}
	return nil
}

func (s *Store) replace(ctx context.Context, tx bun.Tx, lineageID, target string, cp *checkpoint.Checkpoint) error {
	m, err := toCheckpointModel(lineageID, 0, cp, s.codec)
	if err != nil {
		return err
	}
	res, err := tx.NewUpdate().Model(m).
		Column("checkpoint_id", "node_id", "next_node_id", "state", "codec", "created_at").
		Where("lineage_id = ?", lineageID).
		Where("checkpoint_id = ?", target).
		Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %q", ckpt.ErrCheckpointExists, cp.ID)
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // pgdriver always reports
		return fmt.Errorf("%w: %q in lineage %q", ckpt.ErrCheckpointNotFound, target, lineageID)
	}
	return nil
}

// Clear deletes every row of the lineage and reports whether any existed.
func (s *Store) Clear(ctx context.Context, addr checkpoint.Address) (bool, error) {
	var cleared bool
	err := s.inLineage(ctx, addr.Lineage(), func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*checkpointModel)(nil)).
			Where("lineage_id = ?", addr.Lineage()).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected() //nolint:errcheck // pgdriver always reports
		cleared = n > 0
		return nil
	})
	if err != nil {
		if s.degraded("clear", addr, err) {
			return false, nil
		}
		return false, fmt.Errorf("ckpt/bun: clear: %w", err)
	}
	return cleared, nil
}

// Release deletes the lineage and returns its rows, newest first. The
// advisory lock lives only as long as the transaction, so nothing else is
// left to reclaim.
func (s *Store) Release(ctx context.Context, addr checkpoint.Address) (*checkpoint.Tag, error) {
	tag := &checkpoint.Tag{LineageID: addr.Lineage(), Removed: []*checkpoint.Checkpoint{}}
	err := s.inLineage(ctx, addr.Lineage(), func(ctx context.Context, tx bun.Tx) error {
		var models []checkpointModel
		if _, err := tx.NewDelete().Model(&models).
			Where("lineage_id = ?", addr.Lineage()).
			Returning("*").
			Exec(ctx); err != nil {
			return err
		}
		sort.Slice(models, func(i, j int) bool { return models[i].Seq > models[j].Seq })

		removed, err := fromCheckpointModels(models)
		if err != nil {
			return err
		}
		tag.Removed = removed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ckpt/bun: release: %w", err)
	}
	return tag, nil
}

// inLineage runs fn in a transaction holding the lineage advisory lock.
// Waiting for the lock is bounded by lockWait.
func (s *Store) inLineage(ctx context.Context, lineageID string, fn func(ctx context.Context, tx bun.Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		waitMs := max(s.lockWait.Milliseconds(), 1)
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", waitMs)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", lineageID); err != nil {
			if isLockTimeout(err) {
				return fmt.Errorf("%w: lineage %q after %s", ckpt.ErrLockTimeout, lineageID, s.lockWait)
			}
			return err
		}
		return fn(ctx, tx)
	})
}

// degraded reports whether err is a lock timeout that read-style
// operations answer with an empty result, and logs it.
func (s *Store) degraded(op string, addr checkpoint.Address, err error) bool {
	if !errors.Is(err, ckpt.ErrLockTimeout) {
		return false
	}
	s.logger.Warn("lineage lock not acquired, returning empty result",
		"op", op,
		"lineage_id", addr.Lineage(),
		"checkpoint_id", addr.CheckpointID,
		"error", err,
	)
	return true
}
