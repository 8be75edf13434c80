// Package id generates the TypeID identifiers that stores assign to
// checkpoints written without one.
//
// IDs are K-sortable (UUIDv7-based), globally unique and URL-safe in the
// format "prefix_suffix". Checkpoint stores accept any non-empty string as
// an id; these are only what a store picks when the caller left it empty.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// PrefixCheckpoint marks store-assigned checkpoint ids.
const PrefixCheckpoint Prefix = "ckpt"

// ID wraps a TypeID.
type ID struct {
	inner typeid.TypeID
}

// New generates a new ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid}
}

// NewCheckpointID generates a new checkpoint ID ("ckpt_...").
func NewCheckpointID() ID { return New(PrefixCheckpoint) }

// String returns "prefix_suffix".
func (i ID) String() string { return i.inner.String() }
