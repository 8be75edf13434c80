package checkpoint

// History is the ordered checkpoint sequence of one lineage. The head is
// always the most recently appended checkpoint. A History is not safe for
// concurrent use; stores guard it with the lineage lock.
type History struct {
	// items is kept oldest-first so Push is an append; callers only ever
	// see newest-first order.
	items []*Checkpoint
}

// NewHistory builds a History from checkpoints given newest-first.
func NewHistory(newestFirst []*Checkpoint) *History {
	h := &History{items: make([]*Checkpoint, len(newestFirst))}
	for i, c := range newestFirst {
		h.items[len(newestFirst)-1-i] = c
	}
	return h
}

// Len returns the number of checkpoints.
func (h *History) Len() int { return len(h.items) }

// Push makes c the new head.
func (h *History) Push(c *Checkpoint) { h.items = append(h.items, c) }

// Head returns the newest checkpoint, or nil when empty.
func (h *History) Head() *Checkpoint {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[len(h.items)-1]
}

// Find returns the checkpoint with the given id, or nil.
func (h *History) Find(checkpointID string) *Checkpoint {
	if i := h.index(checkpointID); i >= 0 {
		return h.items[i]
	}
	return nil
}

// Contains reports whether a checkpoint with the given id is present.
func (h *History) Contains(checkpointID string) bool { return h.index(checkpointID) >= 0 }

// Replace overwrites the checkpoint with the given id in place, keeping
// its position. It reports false when no such checkpoint exists.
func (h *History) Replace(checkpointID string, c *Checkpoint) bool {
	i := h.index(checkpointID)
	if i < 0 {
		return false
	}
	h.items[i] = c
	return true
}

// Snapshot returns the checkpoints newest-first in a fresh slice.
func (h *History) Snapshot() []*Checkpoint {
	out := make([]*Checkpoint, len(h.items))
	for i, c := range h.items {
		out[len(h.items)-1-i] = c
	}
	return out
}

// Reset removes every checkpoint and returns what was removed,
// newest-first.
func (h *History) Reset() []*Checkpoint {
	removed := h.Snapshot()
	h.items = nil
	return removed
}

func (h *History) index(checkpointID string) int {
	for i := len(h.items) - 1; i >= 0; i-- {
		if h.items[i].ID == checkpointID {
			return i
		}
	}
	return -1
}
