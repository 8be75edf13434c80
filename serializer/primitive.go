package serializer

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// WriteString writes s as {int32 byteLength}{utf8 bytes}. The empty string
// is encoded as the zero length prefix with no payload.
func WriteString(w io.Writer, s string) error {
	if len(s) > math.MaxInt32 {
		return malformed("write string", errors.New("string exceeds int32 length"))
	}
	if err := WriteInt32(w, int32(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, s); err != nil {
		return malformed("write string", err)
	}
	return nil
}

// ReadString reads a string written by WriteString.
func ReadString(r io.Reader) (string, error) {
	b, err := ReadBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteBytes writes b with the same int32 length prefix as WriteString.
func WriteBytes(w io.Writer, b []byte) error {
	if len(b) > math.MaxInt32 {
		return malformed("write bytes", errors.New("payload exceeds int32 length"))
	}
	if err := WriteInt32(w, int32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	if _, err := w.Write(b); err != nil {
		return malformed("write bytes", err)
	}
	return nil
}

// ReadBytes reads a payload written by WriteBytes. A zero length yields an
// empty, non-nil slice.
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, malformed("read bytes", errors.New("negative length prefix"))
	}
	if n == 0 {
		return []byte{}, nil
	}
	// LimitReader keeps a corrupt prefix from forcing a huge allocation
	// before we know the payload is really there.
	b, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, malformed("read bytes", err)
	}
	if len(b) != int(n) {
		return nil, malformed("read bytes", io.ErrUnexpectedEOF)
	}
	return b, nil
}

// WriteInt32 writes v big-endian.
func WriteInt32(w io.Writer, v int32) error {
	if err := binary.Write(w, binary.BigEndian, v); err != nil {
		return malformed("write int32", err)
	}
	return nil
}

// ReadInt32 reads a big-endian int32.
func ReadInt32(r io.Reader) (int32, error) {
	var v int32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, malformed("read int32", err)
	}
	return v, nil
}

// WriteInt64 writes v big-endian.
func WriteInt64(w io.Writer, v int64) error {
	if err := binary.Write(w, binary.BigEndian, v); err != nil {
		return malformed("write int64", err)
	}
	return nil
}

// ReadInt64 reads a big-endian int64.
func ReadInt64(r io.Reader) (int64, error) {
	var v int64
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, malformed("read int64", err)
	}
	return v, nil
}

// WriteByte writes a single byte.
func WriteByte(w io.Writer, b byte) error {
	if _, err := w.Write([]byte{b}); err != nil {
		return malformed("write byte", err)
	}
	return nil
}

// ReadByte reads a single byte.
func ReadByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, malformed("read byte", err)
	}
	return b[0], nil
}
