// Package memory implements checkpoint.Store in process memory.
//
// Each lineage has its own mutex, so operations on one lineage never wait
// on another. Lineage entries are created by the first Put and removed only
// by Release.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/ckpt/checkpoint"
)

// Ensure Store implements checkpoint.Store at compile time.
var _ checkpoint.Store = (*Store)(nil)

// lineage is the per-lineage bookkeeping. released is set, under mu, by
// Release after the entry has been unlinked from the Store; a caller that
// locked a stale entry sees it and retries against the current map.
type lineage struct {
	mu       sync.Mutex
	history  checkpoint.History
	released bool
}

// Store is an in-memory checkpoint.Store. Safe for concurrent access.
type Store struct {
	// mu guards the lineages map only and is never held while waiting on
	// a lineage mutex.
	mu       sync.Mutex
	lineages map[string]*lineage
}

// New returns a new empty Store.
func New() *Store {
	return &Store{lineages: make(map[string]*lineage)}
}

// Len returns the number of lineages currently holding bookkeeping.
func (m *Store) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lineages)
}

// lock returns the locked entry for lineageID. When create is false and
// the lineage is unknown it returns nil without registering anything.
func (m *Store) lock(lineageID string, create bool) *lineage {
	for {
		m.mu.Lock()
		l, ok := m.lineages[lineageID]
		if !ok {
			if !create {
				m.mu.Unlock()
				return nil
			}
			l = &lineage{}
			m.lineages[lineageID] = l
		}
		m.mu.Unlock()

		l.mu.Lock()
		if !l.released {
			return l
		}
		l.mu.Unlock()
	}
}

// List returns every checkpoint of the lineage, newest first.
func (m *Store) List(_ context.Context, addr checkpoint.Address) ([]*checkpoint.Checkpoint, error) {
	l := m.lock(addr.Lineage(), false)
	if l == nil {
		return []*checkpoint.Checkpoint{}, nil
	}
	defer l.mu.Unlock()

	return cloneAll(l.history.Snapshot()), nil
}

// Get returns the addressed checkpoint, or the newest one.
func (m *Store) Get(_ context.Context, addr checkpoint.Address) (*checkpoint.Checkpoint, error) {
	l := m.lock(addr.Lineage(), false)
	if l == nil {
		return nil, nil
	}
	defer l.mu.Unlock()

	return l.history.Read(addr).Clone(), nil
}

// Put replaces the addressed checkpoint or appends a new head.
func (m *Store) Put(_ context.Context, addr checkpoint.Address, cp *checkpoint.Checkpoint) (checkpoint.Address, error) {
	prepared, err := checkpoint.Prepare(addr, cp)
	if err != nil {
		return addr, err
	}

	// A replace can only target an existing lineage; don't register one
	// just to report that the checkpoint is missing.
	l := m.lock(addr.Lineage(), addr.CheckpointID == "")
	if l == nil {
		var empty checkpoint.History
		return addr, empty.Write(addr, prepared)
	}
	defer l.mu.Unlock()

	if err := l.history.Write(addr, prepared); err != nil {
		return addr, err
	}
	return addr.WithCheckpointID(prepared.ID), nil
}

// Clear empties the lineage and reports whether anything was removed.
func (m *Store) Clear(_ context.Context, addr checkpoint.Address) (bool, error) {
	l := m.lock(addr.Lineage(), false)
	if l == nil {
		return false, nil
	}
	defer l.mu.Unlock()

	return len(l.history.Reset()) > 0, nil
}

// Release removes the lineage and its mutex, returning the removed
// checkpoints.
func (m *Store) Release(_ context.Context, addr checkpoint.Address) (*checkpoint.Tag, error) {
	lineageID := addr.Lineage()
	tag := &checkpoint.Tag{LineageID: lineageID, Removed: []*checkpoint.Checkpoint{}}

	l := m.lock(lineageID, false)
	if l == nil {
		return tag, nil
	}
	defer l.mu.Unlock()

	m.mu.Lock()
	delete(m.lineages, lineageID)
	m.mu.Unlock()

	l.released = true
	tag.Removed = l.history.Reset()
	return tag, nil
}

func cloneAll(cps []*checkpoint.Checkpoint) []*checkpoint.Checkpoint {
	for i, c := range cps {
		cps[i] = c.Clone()
	}
	return cps
}
