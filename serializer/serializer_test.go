package serializer_test

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/xraph/ckpt"
	"github.com/xraph/ckpt/serializer"
)

func TestStringRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"ascii", "hello"},
		{"utf8", "héllo wörld ✓"},
		{"exactly 64KiB", strings.Repeat("a", 65536)},
		{"above 64KiB", strings.Repeat("xyz", 70000)},
		{"multibyte above 64KiB", strings.Repeat("✓", 30000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := serializer.WriteString(&buf, tt.in); err != nil {
				t.Fatalf("WriteString: %v", err)
			}
			if got, want := buf.Len(), 4+len(tt.in); got != want {
				t.Fatalf("encoded length = %d, want %d", got, want)
			}

			got, err := serializer.ReadString(&buf)
			if err != nil {
				t.Fatalf("ReadString: %v", err)
			}
			if got != tt.in {
				t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(tt.in))
			}
			if buf.Len() != 0 {
				t.Fatalf("%d trailing bytes left unread", buf.Len())
			}
		})
	}
}

func TestStringEncodingLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := serializer.WriteString(&buf, "ab"); err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 0, 2, 'a', 'b'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % x, want % x", buf.Bytes(), want)
	}

	buf.Reset()
	if err := serializer.WriteString(&buf, ""); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0, 0, 0, 0}) {
		t.Fatalf("empty string encoded as % x", buf.Bytes())
	}
}

func TestReadStringMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"truncated prefix", []byte{0, 0}},
		{"negative length", []byte{0xff, 0xff, 0xff, 0xff}},
		{"short payload", []byte{0, 0, 0, 5, 'a', 'b'}},
		{"huge length", []byte{0x7f, 0xff, 0xff, 0xff, 'a'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := serializer.ReadString(bytes.NewReader(tt.in))
			if !errors.Is(err, ckpt.ErrSerialization) {
				t.Fatalf("expected ErrSerialization, got %v", err)
			}
		})
	}
}

type sample struct {
	Name  string            `msgpack:"name" json:"name"`
	Count int64             `msgpack:"count" json:"count"`
	Tags  map[string]string `msgpack:"tags" json:"tags"`
}

func TestPayloadSerializers(t *testing.T) {
	tests := []struct {
		name string
		s    serializer.Serializer[sample]
	}{
		{"msgpack", serializer.Msgpack[sample]()},
		{"json", serializer.JSON[sample]()},
		{"zero value payload", serializer.Payload[sample]{}},
	}

	in := sample{Name: "n", Count: 7, Tags: map[string]string{"k": "v"}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := serializer.ToBytes(tt.s, in)
			if err != nil {
				t.Fatalf("ToBytes: %v", err)
			}
			got, err := serializer.FromBytes(tt.s, data)
			if err != nil {
				t.Fatalf("FromBytes: %v", err)
			}
			if got.Name != in.Name || got.Count != in.Count || got.Tags["k"] != "v" {
				t.Fatalf("got %+v, want %+v", got, in)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	in := sample{Name: "a", Tags: map[string]string{"k": "v"}}
	out, err := serializer.Clone[sample](serializer.Msgpack[sample](), in)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	out.Tags["k"] = "changed"
	if in.Tags["k"] != "v" {
		t.Fatal("clone shares map with original")
	}
}

func TestPayloadCorrupt(t *testing.T) {
	s := serializer.Msgpack[sample]()
	var buf bytes.Buffer
	if err := serializer.WriteBytes(&buf, []byte{0xc1}); err != nil { // 0xc1 is never used in msgpack
		t.Fatal(err)
	}
	if _, err := s.Read(&buf); !errors.Is(err, ckpt.ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
}

func TestMsgpackSortedKeysStable(t *testing.T) {
	c := serializer.GetCodec(serializer.CodecNameMsgpack)
	a := map[string]any{"a": 1, "b": 2, "c": 3, "d": 4}
	first, err := c.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		again, err := c.Marshal(a)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("msgpack encoding of equal maps differs between runs")
		}
	}
}

func TestMsgpackDecodesCanonicalScalars(t *testing.T) {
	c := serializer.GetCodec(serializer.CodecNameMsgpack)
	data, err := c.Marshal(map[string]any{
		"small":  int8(-2),
		"plain":  300,
		"count":  int64(3),
		"flags":  uint16(7),
		"ratio":  float32(0.5),
		"raw":    []byte("bin"),
		"nested": map[string]any{"list": []any{int32(1), uint8(2)}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"small":  int64(-2),
		"plain":  uint64(300),
		"count":  int64(3),
		"flags":  uint64(7),
		"ratio":  float64(0.5),
		"raw":    []byte("bin"),
		"nested": map[string]any{"list": []any{int64(1), uint64(2)}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestGetCodec(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", serializer.CodecNameMsgpack},
		{"msgpack", serializer.CodecNameMsgpack},
		{"json", serializer.CodecNameJSON},
		{"protobuf", serializer.CodecNameMsgpack},
	}
	for _, tt := range tests {
		if got := serializer.GetCodec(tt.in).Name(); got != tt.want {
			t.Errorf("GetCodec(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
