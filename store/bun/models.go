package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/ckpt"
	"github.com/xraph/ckpt/checkpoint"
	"github.com/xraph/ckpt/serializer"
)

type checkpointModel struct {
	bun.BaseModel `bun:"table:ckpt_checkpoints"`

	LineageID    string `bun:"lineage_id,pk"`
	CheckpointID string `bun:"checkpoint_id,pk"`
	Seq          int64  `bun:"seq,notnull"`
	NodeID       string `bun:"node_id,notnull"`
	NextNodeID   string `bun:"next_node_id,notnull"`
	State        []byte `bun:"state,notnull,type:bytea"`
	Codec        string `bun:"codec,notnull"`

	// CreatedAt is unix nanoseconds; timestamptz would drop sub-microsecond
	// precision.
	CreatedAt int64 `bun:"created_at,notnull"`
}

// toCheckpointModel encodes an already-normalized checkpoint.
func toCheckpointModel(lineageID string, seq int64, cp *checkpoint.Checkpoint, codec serializer.Codec) (*checkpointModel, error) {
	st, err := codec.Marshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("%w: encode state of %q: %v", ckpt.ErrSerialization, cp.ID, err)
	}
	return &checkpointModel{
		LineageID:    lineageID,
		CheckpointID: cp.ID,
		Seq:          seq,
		NodeID:       cp.NodeID,
		NextNodeID:   cp.NextNodeID,
		State:        st,
		Codec:        codec.Name(),
		CreatedAt:    cp.CreatedAt.UnixNano(),
	}, nil
}

func fromCheckpointModel(m *checkpointModel) (*checkpoint.Checkpoint, error) {
	st := map[string]any{}
	if err := serializer.GetCodec(m.Codec).Unmarshal(m.State, &st); err != nil {
		return nil, fmt.Errorf("%w: decode state of %q: %v", ckpt.ErrSerialization, m.CheckpointID, err)
	}
	if st == nil {
		st = map[string]any{}
	}
	return &checkpoint.Checkpoint{
		ID:         m.CheckpointID,
		State:      st,
		NodeID:     m.NodeID,
		NextNodeID: m.NextNodeID,
		CreatedAt:  time.Unix(0, m.CreatedAt).UTC(),
	}, nil
}

func fromCheckpointModels(models []checkpointModel) ([]*checkpoint.Checkpoint, error) {
	out := make([]*checkpoint.Checkpoint, 0, len(models))
	for i := range models {
		cp, err := fromCheckpointModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}
