// Package checkpoint defines the checkpoint record, the lineage addressing
// tuple and the Store contract implemented by every backend.
package checkpoint

import (
	"time"

	"github.com/xraph/ckpt/id"
)

// DefaultLineageID is the lineage used when an Address leaves LineageID
// empty.
const DefaultLineageID = "$default"

// Checkpoint is one snapshot of execution state. It is immutable once
// stored; a Put with a matching CheckpointID replaces it wholesale.
type Checkpoint struct {
	// ID is unique within the lineage. Stores assign one when empty.
	ID string `json:"id"`

	// State is the engine's state bag at the checkpoint boundary.
	State map[string]any `json:"state"`

	// NodeID is the node that just ran.
	NodeID string `json:"node_id,omitempty"`

	// NextNodeID is the node to resume from.
	NextNodeID string `json:"next_node_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// New returns a checkpoint with a fresh ID and CreatedAt set to now.
func New(nodeID, nextNodeID string, st map[string]any) *Checkpoint {
	return &Checkpoint{
		ID:         id.NewCheckpointID().String(),
		State:      st,
		NodeID:     nodeID,
		NextNodeID: nextNodeID,
		CreatedAt:  time.Now().UTC(),
	}
}

// Clone returns a deep copy. Nested maps, slices and byte slices of the
// state are copied, so mutating the clone never reaches c.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	if c.State != nil {
		cp.State = copyMap(c.State)
	}
	return &cp
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if x == nil {
			return x
		}
		return copyMap(x)
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	case []byte:
		if x == nil {
			return x
		}
		return append([]byte(nil), x...)
	default:
		return v
	}
}

// Address locates a lineage, and optionally one checkpoint within it.
// Empty fields are unset.
type Address struct {
	LineageID    string `json:"lineage_id,omitempty"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// Lineage returns LineageID, or DefaultLineageID when it is empty.
func (a Address) Lineage() string {
	if a.LineageID == "" {
		return DefaultLineageID
	}
	return a.LineageID
}

// WithCheckpointID returns a copy of a pointing at checkpointID.
func (a Address) WithCheckpointID(checkpointID string) Address {
	a.CheckpointID = checkpointID
	return a
}

// Tag records what Release removed.
type Tag struct {
	LineageID string        `json:"lineage_id"`
	Removed   []*Checkpoint `json:"removed"`
}
