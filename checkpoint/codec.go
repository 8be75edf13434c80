package checkpoint

import (
	"fmt"
	"io"
	"time"

	"github.com/xraph/ckpt"
	"github.com/xraph/ckpt/serializer"
	"github.com/xraph/ckpt/state"
)

// historyFormatV1 is the leading byte of an encoded History.
const historyFormatV1 byte = 0x01

// Compile-time interface checks.
var (
	_ serializer.Serializer[*Checkpoint] = (*Codec)(nil)
	_ serializer.Serializer[*History]    = (*HistoryCodec)(nil)
)

// Codec encodes a single checkpoint:
//
//	{id string}{node string}{next string}{created_at int64 unix nanos}{state payload}
//
// Strings use the serializer string codec. The state bag is normalized
// and written as a length-prefixed payload in the configured codec.
type Codec struct {
	state serializer.Payload[map[string]any]
}

// NewCodec returns a Codec whose state payload uses the named
// serializer codec ("msgpack" or "json").
func NewCodec(name string) *Codec {
	return &Codec{state: serializer.Payload[map[string]any]{Codec: serializer.GetCodec(name)}}
}

// Name returns the state payload codec name.
func (c *Codec) Name() string { return c.state.Codec.Name() }

// Write implements serializer.Serializer.
func (c *Codec) Write(w io.Writer, cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("%w: nil checkpoint", ckpt.ErrInvalidCheckpoint)
	}
	if err := serializer.WriteString(w, cp.ID); err != nil {
		return err
	}
	if err := serializer.WriteString(w, cp.NodeID); err != nil {
		return err
	}
	if err := serializer.WriteString(w, cp.NextNodeID); err != nil {
		return err
	}
	var created int64
	if !cp.CreatedAt.IsZero() {
		created = cp.CreatedAt.UnixNano()
	}
	if err := serializer.WriteInt64(w, created); err != nil {
		return err
	}
	return c.state.Write(w, state.NormalizeState(cp.State))
}

// Read implements serializer.Serializer.
func (c *Codec) Read(r io.Reader) (*Checkpoint, error) {
	var (
		cp  Checkpoint
		err error
	)
	if cp.ID, err = serializer.ReadString(r); err != nil {
		return nil, err
	}
	if cp.NodeID, err = serializer.ReadString(r); err != nil {
		return nil, err
	}
	if cp.NextNodeID, err = serializer.ReadString(r); err != nil {
		return nil, err
	}
	created, err := serializer.ReadInt64(r)
	if err != nil {
		return nil, err
	}
	if created != 0 {
		cp.CreatedAt = time.Unix(0, created).UTC()
	}
	if cp.State, err = c.state.Read(r); err != nil {
		return nil, err
	}
	if cp.State == nil {
		cp.State = map[string]any{}
	}
	return &cp, nil
}

// HistoryCodec encodes a whole lineage:
//
//	{0x01}{codec name string}{count int32}{checkpoint}...
//
// Checkpoints are written newest-first. The codec name recorded in the
// header is used on read, so blobs stay readable after the writer's codec
// setting changes.
type HistoryCodec struct {
	Checkpoint *Codec
}

// NewHistoryCodec returns a HistoryCodec writing state with the named
// codec.
func NewHistoryCodec(name string) *HistoryCodec {
	return &HistoryCodec{Checkpoint: NewCodec(name)}
}

// Write implements serializer.Serializer.
func (hc *HistoryCodec) Write(w io.Writer, h *History) error {
	if err := serializer.WriteByte(w, historyFormatV1); err != nil {
		return err
	}
	if err := serializer.WriteString(w, hc.Checkpoint.Name()); err != nil {
		return err
	}
	items := h.Snapshot()
	if err := serializer.WriteInt32(w, int32(len(items))); err != nil { //nolint:gosec // lineage sizes are far below int32
		return err
	}
	for _, cp := range items {
		if err := hc.Checkpoint.Write(w, cp); err != nil {
			return err
		}
	}
	return nil
}

// Read implements serializer.Serializer.
func (hc *HistoryCodec) Read(r io.Reader) (*History, error) {
	version, err := serializer.ReadByte(r)
	if err != nil {
		return nil, err
	}
	if version != historyFormatV1 {
		return nil, fmt.Errorf("%w: unknown history format 0x%02x", ckpt.ErrSerialization, version)
	}
	name, err := serializer.ReadString(r)
	if err != nil {
		return nil, err
	}
	count, err := serializer.ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative checkpoint count", ckpt.ErrSerialization)
	}

	dec := NewCodec(name)
	items := make([]*Checkpoint, 0, min(int(count), 1024))
	for i := int32(0); i < count; i++ {
		cp, err := dec.Read(r)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %d: %w", i, err)
		}
		items = append(items, cp)
	}
	return NewHistory(items), nil
}
