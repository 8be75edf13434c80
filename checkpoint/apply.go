package checkpoint

import (
	"fmt"
	"time"

	"github.com/xraph/ckpt"
	"github.com/xraph/ckpt/id"
	"github.com/xraph/ckpt/state"
)

// Prepare returns the copy of cp that a store persists for a Put at addr:
// state normalized, ID and CreatedAt filled in. A replace without an ID
// inherits addr.CheckpointID.
func Prepare(addr Address, cp *Checkpoint) (*Checkpoint, error) {
	if cp == nil {
		return nil, fmt.Errorf("%w: nil checkpoint", ckpt.ErrInvalidCheckpoint)
	}
	out := *cp
	out.State = state.NormalizeState(cp.State)
	if out.ID == "" {
		if addr.CheckpointID != "" {
			out.ID = addr.CheckpointID
		} else {
			out.ID = id.NewCheckpointID().String()
		}
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	return &out, nil
}

// Write applies Put semantics to h: replace in place when
// addr.CheckpointID is set, append as head otherwise. The history is left
// untouched on error.
func (h *History) Write(addr Address, cp *Checkpoint) error {
	if addr.CheckpointID == "" {
		if h.Contains(cp.ID) {
			return fmt.Errorf("%w: %q", ckpt.ErrCheckpointExists, cp.ID)
		}
		h.Push(cp)
		return nil
	}

	if !h.Contains(addr.CheckpointID) {
		return fmt.Errorf("%w: %q in lineage %q", ckpt.ErrCheckpointNotFound, addr.CheckpointID, addr.Lineage())
	}
	if cp.ID != addr.CheckpointID && h.Contains(cp.ID) {
		return fmt.Errorf("%w: %q", ckpt.ErrCheckpointExists, cp.ID)
	}
	h.Replace(addr.CheckpointID, cp)
	return nil
}

// Read applies Get semantics to h.
func (h *History) Read(addr Address) *Checkpoint {
	if addr.CheckpointID != "" {
		return h.Find(addr.CheckpointID)
	}
	return h.Head()
}
