// Package storetest is a conformance suite for checkpoint.Store
// implementations. Backends call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/ckpt"
	"github.com/xraph/ckpt/checkpoint"
)

// Factory returns a fresh, empty store for one test.
type Factory func(t *testing.T) checkpoint.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s checkpoint.Store)
	}{
		{"RoundTrip", testRoundTrip},
		{"GetWithoutIDReturnsHead", testGetHead},
		{"GetMissing", testGetMissing},
		{"ReplacePreservesCardinality", testReplaceCardinality},
		{"UnknownIDReplaceFails", testUnknownReplace},
		{"DuplicateAppendFails", testDuplicateAppend},
		{"AssignsCheckpointID", testAssignsID},
		{"ListReturnsSnapshot", testListSnapshot},
		{"NestedStateIsDetached", testNestedSnapshot},
		{"ScalarsAreCanonical", testCanonicalScalars},
		{"ClearIdempotence", testClear},
		{"ReleaseReclaims", testRelease},
		{"LineagesAreIsolated", testIsolation},
		{"ConcurrentSameLineage", testConcurrentSameLineage},
		{"ConcurrentDistinctLineages", testConcurrentDistinctLineages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.fn(t, newStore(t))
		})
	}
}

// NewCheckpoint returns a checkpoint whose state survives every backend
// with the msgpack codec unchanged.
func NewCheckpoint(checkpointID, node string) *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{
		ID:         checkpointID,
		NodeID:     node,
		NextNodeID: node + "-next",
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC),
		State: map[string]any{
			"node":     node,
			"messages": []any{"hello", "world"},
			"meta":     map[string]any{"step": int64(1), "ok": true},
		},
	}
}

// AssertCheckpoint compares two checkpoints field by field.
func AssertCheckpoint(t *testing.T, want, got *checkpoint.Checkpoint) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.NodeID, got.NodeID)
	assert.Equal(t, want.NextNodeID, got.NextNodeID)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", want.CreatedAt, got.CreatedAt)
	assert.Equal(t, want.State, got.State)
}

func listIDs(t *testing.T, s checkpoint.Store, addr checkpoint.Address) []string {
	t.Helper()
	cps, err := s.List(context.Background(), addr)
	require.NoError(t, err)
	out := make([]string, len(cps))
	for i, c := range cps {
		out[i] = c.ID
	}
	return out
}

func testRoundTrip(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	base := checkpoint.Address{LineageID: "round-trip"}
	in := NewCheckpoint("c1", "plan")

	addr, err := s.Put(ctx, base, in)
	require.NoError(t, err)
	assert.Equal(t, "c1", addr.CheckpointID)
	assert.Equal(t, "round-trip", addr.LineageID)

	got, err := s.Get(ctx, addr)
	require.NoError(t, err)
	AssertCheckpoint(t, in, got)
}

func testGetHead(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "head"}

	for _, name := range []string{"c1", "c2", "c3"} {
		_, err := s.Put(ctx, addr, NewCheckpoint(name, name))
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c3", got.ID)
	assert.Equal(t, []string{"c3", "c2", "c1"}, listIDs(t, s, addr))
}

func testGetMissing(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()

	got, err := s.Get(ctx, checkpoint.Address{LineageID: "never"})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.Put(ctx, checkpoint.Address{LineageID: "some"}, NewCheckpoint("c1", "n"))
	require.NoError(t, err)
	got, err = s.Get(ctx, checkpoint.Address{LineageID: "some", CheckpointID: "nope"})
	require.NoError(t, err)
	assert.Nil(t, got)

	cps, err := s.List(ctx, checkpoint.Address{LineageID: "never"})
	require.NoError(t, err)
	assert.Empty(t, cps)
}

func testReplaceCardinality(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "replace"}

	_, err := s.Put(ctx, addr, NewCheckpoint("c1", "a"))
	require.NoError(t, err)
	_, err = s.Put(ctx, addr, NewCheckpoint("c2", "b"))
	require.NoError(t, err)
	require.Len(t, listIDs(t, s, addr), 2)

	replacement := NewCheckpoint("c1", "a-prime")
	out, err := s.Put(ctx, addr.WithCheckpointID("c1"), replacement)
	require.NoError(t, err)
	assert.Equal(t, "c1", out.CheckpointID)
	assert.Equal(t, []string{"c2", "c1"}, listIDs(t, s, addr), "replace must keep position and cardinality")

	got, err := s.Get(ctx, out)
	require.NoError(t, err)
	AssertCheckpoint(t, replacement, got)

	_, err = s.Put(ctx, addr, NewCheckpoint("c3", "c"))
	require.NoError(t, err)
	assert.Len(t, listIDs(t, s, addr), 3)
}

func testUnknownReplace(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()

	_, err := s.Put(ctx, checkpoint.Address{LineageID: "empty", CheckpointID: "ghost"}, NewCheckpoint("ghost", "n"))
	require.ErrorIs(t, err, ckpt.ErrCheckpointNotFound)
	assert.Empty(t, listIDs(t, s, checkpoint.Address{LineageID: "empty"}))

	addr := checkpoint.Address{LineageID: "populated"}
	_, err = s.Put(ctx, addr, NewCheckpoint("c1", "n"))
	require.NoError(t, err)

	_, err = s.Put(ctx, addr.WithCheckpointID("ghost"), NewCheckpoint("ghost", "n"))
	require.ErrorIs(t, err, ckpt.ErrCheckpointNotFound)
	assert.Equal(t, []string{"c1"}, listIDs(t, s, addr))
}

func testDuplicateAppend(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "dup"}

	_, err := s.Put(ctx, addr, NewCheckpoint("c1", "n"))
	require.NoError(t, err)
	_, err = s.Put(ctx, addr, NewCheckpoint("c1", "n"))
	require.ErrorIs(t, err, ckpt.ErrCheckpointExists)
	assert.Equal(t, []string{"c1"}, listIDs(t, s, addr))
}

func testAssignsID(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	cp := NewCheckpoint("", "n")

	addr, err := s.Put(ctx, checkpoint.Address{LineageID: "assign"}, cp)
	require.NoError(t, err)
	require.NotEmpty(t, addr.CheckpointID)
	assert.Empty(t, cp.ID, "Put must not mutate the caller's checkpoint")

	got, err := s.Get(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, addr.CheckpointID, got.ID)
}

func testListSnapshot(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "snapshot"}

	_, err := s.Put(ctx, addr, NewCheckpoint("c1", "n"))
	require.NoError(t, err)

	cps, err := s.List(ctx, addr)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	cps[0].State["node"] = "tampered"
	cps[0] = NewCheckpoint("replaced", "n")

	again, err := s.List(ctx, addr)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "n", again[0].State["node"])
}

func testNestedSnapshot(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	base := checkpoint.Address{LineageID: "nested-snapshot"}

	meta := map[string]any{"step": int64(1)}
	msgs := []any{"x"}
	addr, err := s.Put(ctx, base, &checkpoint.Checkpoint{
		ID:    "c1",
		State: map[string]any{"meta": meta, "msgs": msgs},
	})
	require.NoError(t, err)

	// The caller's own values are not retained.
	meta["step"] = int64(2)
	msgs[0] = "caller"

	got, err := s.Get(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, got)
	got.State["meta"].(map[string]any)["step"] = int64(99)
	got.State["msgs"].([]any)[0] = "tampered"

	listed, err := s.List(ctx, base)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed[0].State["meta"].(map[string]any)["extra"] = true

	again, err := s.Get(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, map[string]any{"step": int64(1)}, again.State["meta"])
	assert.Equal(t, []any{"x"}, again.State["msgs"])
}

type level string

func testCanonicalScalars(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	addr, err := s.Put(ctx, checkpoint.Address{LineageID: "scalars"}, &checkpoint.Checkpoint{
		ID: "c1",
		State: map[string]any{
			"count":  3,
			"small":  int8(-2),
			"flags":  uint16(7),
			"ratio":  float32(0.5),
			"level":  level("warn"),
			"ids":    []int{1, 300},
			"totals": map[string]int32{"in": 10},
			"raw":    []byte("bin"),
		},
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, map[string]any{
		"count":  int64(3),
		"small":  int64(-2),
		"flags":  uint64(7),
		"ratio":  float64(0.5),
		"level":  "warn",
		"ids":    []any{int64(1), int64(300)},
		"totals": map[string]any{"in": int64(10)},
		"raw":    []byte("bin"),
	}, got.State)
}

func testClear(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "clear"}

	cleared, err := s.Clear(ctx, addr)
	require.NoError(t, err)
	assert.False(t, cleared, "clear on a never-created lineage")

	_, err = s.Put(ctx, addr, NewCheckpoint("c1", "n"))
	require.NoError(t, err)
	_, err = s.Put(ctx, addr, NewCheckpoint("c2", "n"))
	require.NoError(t, err)

	cleared, err = s.Clear(ctx, addr)
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.Empty(t, listIDs(t, s, addr))

	cleared, err = s.Clear(ctx, addr)
	require.NoError(t, err)
	assert.False(t, cleared, "clear on an already-empty lineage")

	// The lineage stays usable after a clear.
	_, err = s.Put(ctx, addr, NewCheckpoint("c1", "n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, listIDs(t, s, addr))
}

func testRelease(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "release"}

	want := []*checkpoint.Checkpoint{NewCheckpoint("c1", "a"), NewCheckpoint("c2", "b")}
	for _, c := range want {
		_, err := s.Put(ctx, addr, c)
		require.NoError(t, err)
	}

	tag, err := s.Release(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "release", tag.LineageID)
	require.Len(t, tag.Removed, 2)
	AssertCheckpoint(t, want[1], tag.Removed[0])
	AssertCheckpoint(t, want[0], tag.Removed[1])

	assert.Empty(t, listIDs(t, s, addr))
	head, err := s.Get(ctx, addr)
	require.NoError(t, err)
	assert.Nil(t, head)

	// A fresh lineage under the same id starts empty; old ids are gone.
	_, err = s.Put(ctx, addr.WithCheckpointID("c1"), NewCheckpoint("c1", "a"))
	require.ErrorIs(t, err, ckpt.ErrCheckpointNotFound)
	_, err = s.Put(ctx, addr, NewCheckpoint("c1", "again"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, listIDs(t, s, addr))

	again, err := s.Release(ctx, checkpoint.Address{LineageID: "never-existed"})
	require.NoError(t, err)
	assert.Empty(t, again.Removed)
}

func testIsolation(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	a := checkpoint.Address{LineageID: "iso-a"}
	b := checkpoint.Address{LineageID: "iso-b"}

	_, err := s.Put(ctx, a, NewCheckpoint("c1", "a"))
	require.NoError(t, err)
	_, err = s.Put(ctx, b, NewCheckpoint("c1", "b"))
	require.NoError(t, err)

	_, err = s.Clear(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, listIDs(t, s, a))
	assert.Equal(t, []string{"c1"}, listIDs(t, s, b))
}

func testConcurrentSameLineage(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "contended"}
	const writers = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Put(ctx, addr, NewCheckpoint(fmt.Sprintf("c%02d", i), "n"))
			if err != nil {
				assert.ErrorIs(t, err, ckpt.ErrLockTimeout)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Positive(t, succeeded)
	assert.Len(t, listIDs(t, s, addr), succeeded, "no lost updates")
}

func testConcurrentDistinctLineages(t *testing.T, s checkpoint.Store) {
	ctx := context.Background()
	const lineages = 8

	var g errgroup.Group
	for i := range lineages {
		g.Go(func() error {
			addr := checkpoint.Address{LineageID: fmt.Sprintf("parallel-%d", i)}
			for j := range 3 {
				if _, err := s.Put(ctx, addr, NewCheckpoint(fmt.Sprintf("c%d", j), "n")); err != nil {
					return fmt.Errorf("lineage %s: %w", addr.LineageID, err)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := range lineages {
		assert.Len(t, listIDs(t, s, checkpoint.Address{LineageID: fmt.Sprintf("parallel-%d", i)}), 3)
	}
}
