package protocol

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/lanesight/internal/protocol/field"
	"github.com/danmuck/lanesight/internal/protocol/frame"
	"github.com/danmuck/lanesight/internal/protocol/schema"
	"github.com/danmuck/lanesight/internal/testutil/testlog"
)

func TestRoundTripEncodeDecode(t *testing.T) {
	testlog.Start(t)
	payload, err := schema.Encode(schema.DistanceReading{Distance: 1.23})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	now := time.Unix(1700000000, 123456000)
	in := &Envelope{
		DataType:    schema.MsgDistanceReading,
		SenderStamp: 2,
		Sent:        now,
		Received:    now.Add(time.Millisecond),
		SampleTime:  now,
		Payload:     payload,
	}

	var buf bytes.Buffer
	if err := Encode(&buf, in); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.DataType != in.DataType || out.SenderStamp != in.SenderStamp {
		t.Fatalf("header fields mismatch: %+v", out)
	}
	if !out.Sent.Equal(in.Sent) || !out.Received.Equal(in.Received) || !out.SampleTime.Equal(in.SampleTime) {
		t.Fatalf("timestamps mismatch: %+v", out)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload mismatch")
	}

	var buf2 bytes.Buffer
	if err := Encode(&buf2, out); err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), buf2.Bytes()) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestEncodeContainerHeader(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := Encode(&buf, &Envelope{DataType: schema.MsgAngleReading}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	b := buf.Bytes()
	if b[0] != frame.Magic0 || b[1] != frame.Magic1 {
		t.Fatalf("unexpected magic: % x", b[:2])
	}
	n := int(b[2]) | int(b[3])<<8 | int(b[4])<<16
	if n != len(b)-frame.HeaderLen {
		t.Fatalf("length mismatch: header=%d body=%d", n, len(b)-frame.HeaderLen)
	}
	// dataType 1038 zigzag = 2076 = 0x9c 0x10 after tag 0x08.
	if !bytes.Equal(b[5:8], []byte{0x08, 0x9c, 0x10}) {
		t.Fatalf("unexpected dataType encoding: % x", b[5:8])
	}
}

func TestZeroTimesOmitted(t *testing.T) {
	testlog.Start(t)
	body, err := MarshalEnvelope(&Envelope{DataType: 1, SenderStamp: 0})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	fields, err := field.DecodeFields(body)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	for _, f := range fields {
		if f.Number == FieldSent || f.Number == FieldReceived || f.Number == FieldSampleTimeStamp {
			t.Fatalf("zero timestamp encoded as field %d", f.Number)
		}
	}
	env, err := UnmarshalEnvelope(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !env.Sent.IsZero() || !env.SampleTime.IsZero() {
		t.Fatalf("expected zero times, got %+v", env)
	}
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	testlog.Start(t)
	body := field.EncodeFields([]field.Field{
		field.Sint32(FieldDataType, 1039),
		field.Bytes(42, []byte("extra")),
		field.Uint32(FieldSenderStamp, 3),
	})
	env, err := UnmarshalEnvelope(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.DataType != 1039 || env.SenderStamp != 3 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestUnmarshalRejectsBadFields(t *testing.T) {
	testlog.Start(t)
	cases := map[string][]byte{
		"wire type": field.EncodeFields([]field.Field{field.Float32(FieldDataType, 1)}),
		"negative":  field.EncodeFields([]field.Field{field.Sint32(FieldDataType, -1)}),
		"truncated": {0x12, 0x09, 0x01},
	}
	for name, body := range cases {
		if _, err := UnmarshalEnvelope(body); !errors.Is(err, ErrInvalidEnvelope) {
			t.Fatalf("%s: expected ErrInvalidEnvelope, got %v", name, err)
		}
	}
	bad := field.EncodeFields([]field.Field{
		field.Message(FieldSent, []field.Field{field.Sint32(FieldMicroseconds, 2_000_000)}),
	})
	if _, err := UnmarshalEnvelope(bad); !errors.Is(err, ErrInvalidTimeStamp) {
		t.Fatalf("expected ErrInvalidTimeStamp, got %v", err)
	}
}

func TestDecodeDatagramTrailingBytes(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := Encode(&buf, &Envelope{DataType: 1}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeDatagram(buf.Bytes()); err != nil {
		t.Fatalf("decode datagram: %v", err)
	}
	if _, err := DecodeDatagram(append(buf.Bytes(), 0x00)); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
	if _, err := DecodeDatagram(buf.Bytes()[:3]); !errors.Is(err, frame.ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestEncodeNilEnvelope(t *testing.T) {
	testlog.Start(t)
	if err := Encode(&bytes.Buffer{}, nil); !errors.Is(err, ErrNilEnvelope) {
		t.Fatalf("expected ErrNilEnvelope, got %v", err)
	}
}

func TestTruncateMicroseconds(t *testing.T) {
	testlog.Start(t)
	in := time.Unix(10, 1234567)
	if got := Truncate(in); got.Nanosecond() != 1234000 {
		t.Fatalf("unexpected truncation: %d", got.Nanosecond())
	}
	if !Truncate(time.Time{}).IsZero() {
		t.Fatalf("zero time changed")
	}
}
