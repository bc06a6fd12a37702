package field

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrTruncated       = errors.New("field: truncated data")
	ErrInvalidNumber   = errors.New("field: invalid field number")
	ErrUnsupportedType = errors.New("field: unsupported wire type")
	ErrTypeMismatch    = errors.New("field: wire type mismatch")
	ErrOutOfRange      = errors.New("field: value out of range")
)

// Field is one decoded protobuf field. Scalar holds varint, fixed32 and
// fixed64 values; Bytes holds length-delimited values.
type Field struct {
	Number protowire.Number
	Type   protowire.Type
	Scalar uint64
	Bytes  []byte
}

func Float32(num protowire.Number, v float32) Field {
	return Field{Number: num, Type: protowire.Fixed32Type, Scalar: uint64(math.Float32bits(v))}
}

func Float64(num protowire.Number, v float64) Field {
	return Field{Number: num, Type: protowire.Fixed64Type, Scalar: math.Float64bits(v)}
}

func Uint32(num protowire.Number, v uint32) Field {
	return Field{Number: num, Type: protowire.VarintType, Scalar: uint64(v)}
}

// Sint32 encodes v with zigzag so small negative values stay short.
func Sint32(num protowire.Number, v int32) Field {
	return Field{Number: num, Type: protowire.VarintType, Scalar: protowire.EncodeZigZag(int64(v))}
}

func Bytes(num protowire.Number, v []byte) Field {
	buf := make([]byte, len(v))
	copy(buf, v)
	return Field{Number: num, Type: protowire.BytesType, Bytes: buf}
}

// Message nests fields as a length-delimited submessage.
func Message(num protowire.Number, fields []Field) Field {
	return Field{Number: num, Type: protowire.BytesType, Bytes: EncodeFields(fields)}
}

func (f Field) Float32() (float32, error) {
	if f.Type != protowire.Fixed32Type {
		return 0, f.mismatch(protowire.Fixed32Type)
	}
	return math.Float32frombits(uint32(f.Scalar)), nil
}

func (f Field) Float64() (float64, error) {
	if f.Type != protowire.Fixed64Type {
		return 0, f.mismatch(protowire.Fixed64Type)
	}
	return math.Float64frombits(f.Scalar), nil
}

func (f Field) Uint32() (uint32, error) {
	if f.Type != protowire.VarintType {
		return 0, f.mismatch(protowire.VarintType)
	}
	if f.Scalar > math.MaxUint32 {
		return 0, fmt.Errorf("%w: field %d uint32=%d", ErrOutOfRange, f.Number, f.Scalar)
	}
	return uint32(f.Scalar), nil
}

func (f Field) Sint32() (int32, error) {
	if f.Type != protowire.VarintType {
		return 0, f.mismatch(protowire.VarintType)
	}
	v := protowire.DecodeZigZag(f.Scalar)
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: field %d sint32=%d", ErrOutOfRange, f.Number, v)
	}
	return int32(v), nil
}

func (f Field) Raw() ([]byte, error) {
	if f.Type != protowire.BytesType {
		return nil, f.mismatch(protowire.BytesType)
	}
	buf := make([]byte, len(f.Bytes))
	copy(buf, f.Bytes)
	return buf, nil
}

// Fields decodes a length-delimited field as a nested message.
func (f Field) Fields() ([]Field, error) {
	if f.Type != protowire.BytesType {
		return nil, f.mismatch(protowire.BytesType)
	}
	return DecodeFields(f.Bytes)
}

func (f Field) mismatch(want protowire.Type) error {
	return fmt.Errorf("%w: field %d got=%d want=%d", ErrTypeMismatch, f.Number, f.Type, want)
}

func AppendField(b []byte, f Field) ([]byte, error) {
	if !f.Number.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNumber, f.Number)
	}
	b = protowire.AppendTag(b, f.Number, f.Type)
	switch f.Type {
	case protowire.VarintType:
		b = protowire.AppendVarint(b, f.Scalar)
	case protowire.Fixed32Type:
		b = protowire.AppendFixed32(b, uint32(f.Scalar))
	case protowire.Fixed64Type:
		b = protowire.AppendFixed64(b, f.Scalar)
	case protowire.BytesType:
		b = protowire.AppendBytes(b, f.Bytes)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedType, f.Type)
	}
	return b, nil
}

// EncodeFields serializes fields in order. Fields built with the
// constructors above always encode; invalid hand-built fields are skipped.
func EncodeFields(fields []Field) []byte {
	out := make([]byte, 0, 8*len(fields))
	for _, f := range fields {
		next, err := AppendField(out, f)
		if err != nil {
			continue
		}
		out = next
	}
	return out
}

func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0, 4)
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return nil, fmt.Errorf("%w: tag: %v", ErrTruncated, protowire.ParseError(n))
		}
		payload = payload[n:]

		f := Field{Number: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(payload)
			if m < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrTruncated, num, protowire.ParseError(m))
			}
			f.Scalar, n = v, m
		case protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(payload)
			if m < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrTruncated, num, protowire.ParseError(m))
			}
			f.Scalar, n = uint64(v), m
		case protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(payload)
			if m < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrTruncated, num, protowire.ParseError(m))
			}
			f.Scalar, n = v, m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(payload)
			if m < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrTruncated, num, protowire.ParseError(m))
			}
			f.Bytes = append([]byte(nil), v...)
			n = m
		default:
			return nil, fmt.Errorf("%w: field %d type %d", ErrUnsupportedType, num, typ)
		}
		payload = payload[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

// GetField returns the last occurrence of num, matching protobuf merge rules
// for scalar fields.
func GetField(fields []Field, num protowire.Number) (Field, bool) {
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i].Number == num {
			return fields[i], true
		}
	}
	return Field{}, false
}
