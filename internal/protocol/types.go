package protocol

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers.
const (
	FieldDataType        protowire.Number = 1
	FieldSerializedData  protowire.Number = 2
	FieldSent            protowire.Number = 3
	FieldReceived        protowire.Number = 4
	FieldSampleTimeStamp protowire.Number = 5
	FieldSenderStamp     protowire.Number = 6
)

// TimeStamp field numbers.
const (
	FieldSeconds      protowire.Number = 1
	FieldMicroseconds protowire.Number = 2
)

// Well-known conference ids.
const (
	CIDReplay uint16 = 253
	CIDLive   uint16 = 112
)

// Envelope wraps one serialized catalog message with routing metadata.
// Zero times are left off the wire.
type Envelope struct {
	DataType    uint32
	SenderStamp uint32
	Sent        time.Time
	Received    time.Time
	SampleTime  time.Time
	Payload     []byte
}
