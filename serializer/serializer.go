// Package serializer defines the value-to-bytes contract used by checkpoint
// backends, along with the primitive codecs the checkpoint wire format is
// built from.
//
// Strings and byte slices are written as a 4-byte big-endian int32 length
// followed by the raw bytes. A 32-bit length avoids the silent truncation
// that 16-bit length-prefixed text encodings suffer above 64KB.
package serializer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xraph/ckpt"
)

// Serializer reads and writes values of type T on a byte stream.
type Serializer[T any] interface {
	// Write encodes v onto w.
	Write(w io.Writer, v T) error

	// Read decodes one value from r.
	Read(r io.Reader) (T, error)
}

// ToBytes encodes a single value into a fresh byte slice.
func ToBytes[T any](s Serializer[T], v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes decodes a single value from data.
func FromBytes[T any](s Serializer[T], data []byte) (T, error) {
	return s.Read(bytes.NewReader(data))
}

// Clone deep-copies v by writing it and reading it back.
func Clone[T any](s Serializer[T], v T) (T, error) {
	data, err := ToBytes(s, v)
	if err != nil {
		var zero T
		return zero, err
	}
	return FromBytes(s, data)
}

// malformed wraps err as a serialization failure.
func malformed(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ckpt.ErrSerialization, op, err)
}
