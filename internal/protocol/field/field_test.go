package field

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		Float32(1, 1.23),
		Sint32(2, -1039),
		Uint32(6, 3),
		Bytes(9999, []byte{0xAA, 0xBB}),
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(out))
	}
	f, _ := out[0].Float32()
	if f != float32(1.23) {
		t.Fatalf("float mismatch: %v", f)
	}
	s, _ := out[1].Sint32()
	if s != -1039 {
		t.Fatalf("sint32 mismatch: %d", s)
	}
	u, _ := out[2].Uint32()
	if u != 3 {
		t.Fatalf("uint32 mismatch: %d", u)
	}
	if out[3].Number != 9999 || !bytes.Equal(out[3].Bytes, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[3])
	}
}

func TestFloat32WireLayout(t *testing.T) {
	got := EncodeFields([]Field{Float32(1, 1.0)})
	want := []byte{0x0d, 0x00, 0x00, 0x80, 0x3f}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected encoding: % x", got)
	}
}

func TestNestedMessage(t *testing.T) {
	inner := []Field{Sint32(1, 1700000000), Sint32(2, 250000)}
	out, err := DecodeFields(EncodeFields([]Field{Message(3, inner)}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	nested, err := out[0].Fields()
	if err != nil {
		t.Fatalf("nested: %v", err)
	}
	us, _ := nested[1].Sint32()
	if len(nested) != 2 || us != 250000 {
		t.Fatalf("unexpected nested fields: %+v", nested)
	}
}

func TestDecodeFieldsTruncatedIsDeterministic(t *testing.T) {
	// field 1 fixed32 with only two value bytes.
	_, err := DecodeFields([]byte{0x0d, 0x01, 0x02})
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	// field 2 bytes with declared length 5, value only 2 bytes.
	_, err = DecodeFields([]byte{0x12, 0x05, 'a', 'b'})
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeFieldsRejectsGroups(t *testing.T) {
	b := protowire.AppendTag(nil, 1, protowire.StartGroupType)
	if _, err := DecodeFields(b); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestAccessorTypeMismatch(t *testing.T) {
	f := Uint32(1, 7)
	if _, err := f.Float32(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	if _, err := Float32(1, 1).Raw(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestUint32OutOfRange(t *testing.T) {
	f := Field{Number: 1, Type: protowire.VarintType, Scalar: math.MaxUint32 + 1}
	if _, err := f.Uint32(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestGetFieldLastWins(t *testing.T) {
	fields := []Field{Uint32(6, 1), Uint32(6, 2)}
	f, ok := GetField(fields, 6)
	if !ok {
		t.Fatalf("missing field")
	}
	if v, _ := f.Uint32(); v != 2 {
		t.Fatalf("expected last occurrence, got %d", v)
	}
	if _, ok := GetField(fields, 7); ok {
		t.Fatalf("unexpected field 7")
	}
}

func TestAppendFieldInvalidNumber(t *testing.T) {
	if _, err := AppendField(nil, Field{Number: 0, Type: protowire.VarintType}); !errors.Is(err, ErrInvalidNumber) {
		t.Fatalf("expected ErrInvalidNumber, got %v", err)
	}
}
