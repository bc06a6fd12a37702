package protocol

import (
	"io"
	"time"

	"github.com/danmuck/lanesight/internal/protocol/field"
	"github.com/danmuck/lanesight/internal/protocol/frame"
	"google.golang.org/protobuf/encoding/protowire"
)

// Encode writes env to w as one framed container.
func Encode(w io.Writer, env *Envelope) error {
	body, err := MarshalEnvelope(env)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, body, frame.DefaultLimits())
}

// MarshalEnvelope returns the unframed protobuf body for env.
func MarshalEnvelope(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, ErrNilEnvelope
	}
	fields := make([]field.Field, 0, 6)
	fields = append(fields,
		field.Sint32(FieldDataType, int32(env.DataType)),
		field.Bytes(FieldSerializedData, env.Payload),
	)
	for _, ts := range []struct {
		num  protowire.Number
		when time.Time
	}{
		{FieldSent, env.Sent},
		{FieldReceived, env.Received},
		{FieldSampleTimeStamp, env.SampleTime},
	} {
		if ts.when.IsZero() {
			continue
		}
		fields = append(fields, field.Message(ts.num, timeStampFields(ts.when)))
	}
	fields = append(fields, field.Uint32(FieldSenderStamp, env.SenderStamp))
	return field.EncodeFields(fields), nil
}

func timeStampFields(t time.Time) []field.Field {
	return []field.Field{
		field.Sint32(FieldSeconds, int32(t.Unix())),
		field.Sint32(FieldMicroseconds, int32(t.Nanosecond()/int(time.Microsecond))),
	}
}
