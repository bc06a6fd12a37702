package protocol

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/lanesight/internal/protocol/field"
	"github.com/danmuck/lanesight/internal/protocol/frame"
)

// Decode reads one framed container from r.
func Decode(r io.Reader) (*Envelope, error) {
	body, err := frame.ReadFrame(r, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return UnmarshalEnvelope(body)
}

// DecodeDatagram decodes a buffer holding exactly one container, as carried
// by one UDP datagram or one pub/sub message.
func DecodeDatagram(b []byte) (*Envelope, error) {
	r := bytes.NewReader(b)
	env, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidEnvelope, r.Len())
	}
	return env, nil
}

// UnmarshalEnvelope parses an unframed protobuf envelope body. Unknown
// fields are skipped.
func UnmarshalEnvelope(body []byte) (*Envelope, error) {
	fields, err := field.DecodeFields(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	env := &Envelope{}
	for _, f := range fields {
		switch f.Number {
		case FieldDataType:
			v, err := f.Sint32()
			if err != nil {
				return nil, fmt.Errorf("%w: dataType: %v", ErrInvalidEnvelope, err)
			}
			if v < 0 {
				return nil, fmt.Errorf("%w: negative dataType %d", ErrInvalidEnvelope, v)
			}
			env.DataType = uint32(v)
		case FieldSerializedData:
			v, err := f.Raw()
			if err != nil {
				return nil, fmt.Errorf("%w: serializedData: %v", ErrInvalidEnvelope, err)
			}
			env.Payload = v
		case FieldSent, FieldReceived, FieldSampleTimeStamp:
			ts, err := parseTimeStamp(f)
			if err != nil {
				return nil, err
			}
			switch f.Number {
			case FieldSent:
				env.Sent = ts
			case FieldReceived:
				env.Received = ts
			default:
				env.SampleTime = ts
			}
		case FieldSenderStamp:
			v, err := f.Uint32()
			if err != nil {
				return nil, fmt.Errorf("%w: senderStamp: %v", ErrInvalidEnvelope, err)
			}
			env.SenderStamp = v
		}
	}
	return env, nil
}

func parseTimeStamp(f field.Field) (time.Time, error) {
	nested, err := f.Fields()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: field %d: %v", ErrInvalidTimeStamp, f.Number, err)
	}
	var sec, usec int32
	if sf, ok := field.GetField(nested, FieldSeconds); ok {
		if sec, err = sf.Sint32(); err != nil {
			return time.Time{}, fmt.Errorf("%w: seconds: %v", ErrInvalidTimeStamp, err)
		}
	}
	if uf, ok := field.GetField(nested, FieldMicroseconds); ok {
		if usec, err = uf.Sint32(); err != nil {
			return time.Time{}, fmt.Errorf("%w: microseconds: %v", ErrInvalidTimeStamp, err)
		}
	}
	if usec < 0 || usec >= 1_000_000 {
		return time.Time{}, fmt.Errorf("%w: microseconds=%d", ErrInvalidTimeStamp, usec)
	}
	if sec == 0 && usec == 0 {
		return time.Time{}, nil
	}
	return time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)), nil
}

// Truncate drops sub-microsecond precision so t survives a round trip.
func Truncate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Truncate(time.Microsecond)
}
