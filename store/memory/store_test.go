package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/ckpt/checkpoint"
	"github.com/xraph/ckpt/state"
	"github.com/xraph/ckpt/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(_ *testing.T) checkpoint.Store { return New() })
}

func TestDefaultLineage(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	addr, err := s.Put(ctx, checkpoint.Address{}, storetest.NewCheckpoint("c1", "n"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if addr.Lineage() != checkpoint.DefaultLineageID {
		t.Fatalf("lineage = %q", addr.Lineage())
	}

	got, err := s.Get(ctx, checkpoint.Address{LineageID: checkpoint.DefaultLineageID})
	if err != nil || got == nil || got.ID != "c1" {
		t.Fatalf("Get default lineage = %v, %v", got, err)
	}
}

func TestReadsDoNotRegisterLineages(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "ghost"}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"List", func() error { _, err := s.List(ctx, addr); return err }},
		{"Get", func() error { _, err := s.Get(ctx, addr); return err }},
		{"Clear", func() error { _, err := s.Clear(ctx, addr); return err }},
		{"Release", func() error { _, err := s.Release(ctx, addr); return err }},
		{"Replace", func() error {
			_, _ = s.Put(ctx, addr.WithCheckpointID("x"), storetest.NewCheckpoint("x", "n")) //nolint:errcheck // not found is expected
			return nil
		}},
	}

	for _, tt := range tests {
		if err := tt.fn(); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if s.Len() != 0 {
			t.Fatalf("%s registered lineage bookkeeping", tt.name)
		}
	}
}

func TestReleaseReclaimsBookkeeping(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "done"}

	if _, err := s.Put(ctx, addr, storetest.NewCheckpoint("c1", "n")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Clear(ctx, addr); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("Clear should keep the lineage registered, Len = %d", s.Len())
	}

	if _, err := s.Release(ctx, addr); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Fatalf("Release left %d lineages behind", s.Len())
	}
}

func TestPutNormalizesFutures(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	f := state.NewFuture()
	addr, err := s.Put(ctx, checkpoint.Address{LineageID: "async"}, &checkpoint.Checkpoint{
		ID:    "c1",
		State: map[string]any{"llm": f},
	})
	if err != nil {
		t.Fatal(err)
	}
	f.Resolve("late answer")

	got, err := s.Get(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	snap, ok := got.State["llm"].(map[string]any)
	if !ok || snap["status"] != "pending" {
		t.Fatalf("expected pending snapshot taken at put time, got %#v", got.State["llm"])
	}
}

// TestLineageLocksAreIndependent holds one lineage's mutex and checks that
// a different lineage proceeds while the same lineage waits.
func TestLineageLocksAreIndependent(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if _, err := s.Put(ctx, checkpoint.Address{LineageID: "a"}, storetest.NewCheckpoint("seed", "n")); err != nil {
		t.Fatal(err)
	}
	held := s.lock("a", false)

	otherDone := make(chan struct{})
	go func() {
		defer close(otherDone)
		if _, err := s.Put(ctx, checkpoint.Address{LineageID: "b"}, storetest.NewCheckpoint("c1", "n")); err != nil {
			t.Errorf("Put b: %v", err)
		}
	}()
	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Fatal("Put on lineage b blocked behind lineage a")
	}

	sameDone := make(chan struct{})
	go func() {
		defer close(sameDone)
		if _, err := s.Put(ctx, checkpoint.Address{LineageID: "a"}, storetest.NewCheckpoint("c1", "n")); err != nil {
			t.Errorf("Put a: %v", err)
		}
	}()
	select {
	case <-sameDone:
		t.Fatal("Put on lineage a did not wait for the held lock")
	case <-time.After(20 * time.Millisecond):
	}

	held.mu.Unlock()
	<-sameDone
}

// TestReleaseRaceDoesNotResurrect races appends against Release and checks
// that every append lands either in a Tag or in the surviving lineage.
func TestReleaseRaceDoesNotResurrect(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	addr := checkpoint.Address{LineageID: "racy"}

	const writers = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		released int
	)
	for i := range writers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cp := storetest.NewCheckpoint("", "n")
			cp.State["i"] = i
			if _, err := s.Put(ctx, addr, cp); err != nil {
				t.Errorf("Put: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			tag, err := s.Release(ctx, addr)
			if err != nil {
				t.Errorf("Release: %v", err)
				return
			}
			mu.Lock()
			released += len(tag.Removed)
			mu.Unlock()
		}()
	}
	wg.Wait()

	remaining, err := s.List(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if got := released + len(remaining); got != writers {
		t.Fatalf("accounted for %d checkpoints, want %d", got, writers)
	}
	if len(remaining) == 0 && s.Len() != 0 {
		t.Fatalf("empty lineage left %d bookkeeping entries", s.Len())
	}
}
