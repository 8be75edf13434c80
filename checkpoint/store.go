package checkpoint

import "context"

// Store defines the persistence contract for checkpoints.
//
// Calls addressing the same lineage are serialized; calls on different
// lineages run independently. Implementations create per-lineage
// bookkeeping lazily and only Release reclaims it, so callers must Release
// a lineage once its execution is permanently finished.
type Store interface {
	// List returns every checkpoint of the lineage, newest first, in a
	// slice the caller owns. Unknown lineages yield an empty slice.
	List(ctx context.Context, addr Address) ([]*Checkpoint, error)

	// Get returns the checkpoint named by addr.CheckpointID, or the
	// newest checkpoint when it is empty. A missing checkpoint is
	// (nil, nil).
	Get(ctx context.Context, addr Address) (*Checkpoint, error)

	// Put replaces the checkpoint named by addr.CheckpointID in place, or
	// appends cp as the new head when it is empty. Replacing an id the
	// lineage does not hold fails with ckpt.ErrCheckpointNotFound. The
	// returned Address carries the id that was written.
	Put(ctx context.Context, addr Address, cp *Checkpoint) (Address, error)

	// Clear empties the lineage but keeps it registered. It reports
	// whether any checkpoint was removed.
	Clear(ctx context.Context, addr Address) (bool, error)

	// Release removes the lineage together with its lock and bookkeeping
	// and returns what was removed.
	Release(ctx context.Context, addr Address) (*Tag, error)
}
