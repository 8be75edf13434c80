package serializer

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec marshals arbitrary values to a self-describing payload.
type Codec interface {
	// Marshal encodes v.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into the value pointed to by v.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier ("msgpack", "json").
	Name() string
}

// Codec names accepted by GetCodec.
const (
	CodecNameMsgpack = "msgpack"
	CodecNameJSON    = "json"
)

// GetCodec returns a codec by name. Defaults to msgpack.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameJSON:
		return JSONCodec{}
	case CodecNameMsgpack, "":
		return MsgpackCodec{}
	default:
		return MsgpackCodec{}
	}
}

// MsgpackCodec encodes payloads as MessagePack with sorted map keys, so
// equal state bags always produce equal bytes. Integers decode into
// interface values as int64/uint64 regardless of their wire width, floats
// as float64, and binary stays []byte.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	switch dst := v.(type) {
	case *map[string]any:
		widenMap(*dst)
	case *[]any:
		widenSlice(*dst)
	case *any:
		*dst = widen(*dst)
	}
	return nil
}

// widen lifts sized numbers decoded into interface values to int64,
// uint64 and float64. Loose interface decoding would do the same but also
// turns binary into strings.
func widen(v any) any {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint:
		return uint64(x)
	case float32:
		return float64(x)
	case map[string]any:
		widenMap(x)
	case []any:
		widenSlice(x)
	case map[any]any:
		for k, e := range x {
			x[k] = widen(e)
		}
	}
	return v
}

func widenMap(m map[string]any) {
	for k, e := range m {
		m[k] = widen(e)
	}
}

func widenSlice(s []any) {
	for i, e := range s {
		s[i] = widen(e)
	}
}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }

// JSONCodec encodes payloads as JSON. Numbers decode as float64 and
// binary as base64 strings.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSONCodec) Name() string { return CodecNameJSON }

// Payload is a Serializer that writes values through a Codec as a
// length-prefixed blob.
type Payload[T any] struct {
	Codec Codec
}

// Msgpack returns a Payload serializer backed by MessagePack.
func Msgpack[T any]() Payload[T] { return Payload[T]{Codec: MsgpackCodec{}} }

// JSON returns a Payload serializer backed by encoding/json.
func JSON[T any]() Payload[T] { return Payload[T]{Codec: JSONCodec{}} }

// Write implements Serializer.
func (p Payload[T]) Write(w io.Writer, v T) error {
	data, err := p.codec().Marshal(v)
	if err != nil {
		return malformed(p.codec().Name()+" marshal", err)
	}
	return WriteBytes(w, data)
}

// Read implements Serializer.
func (p Payload[T]) Read(r io.Reader) (T, error) {
	var v T
	data, err := ReadBytes(r)
	if err != nil {
		return v, err
	}
	if err := p.codec().Unmarshal(data, &v); err != nil {
		return v, malformed(p.codec().Name()+" unmarshal", err)
	}
	return v, nil
}

func (p Payload[T]) codec() Codec {
	if p.Codec == nil {
		return MsgpackCodec{}
	}
	return p.Codec
}
