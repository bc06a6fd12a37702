package schema

import (
	"fmt"

	"github.com/danmuck/lanesight/internal/protocol/field"
	"google.golang.org/protobuf/encoding/protowire"
)

// Message is a typed catalog payload.
type Message interface {
	MessageID() uint32
	Fields() []field.Field
}

// DistanceReading is a range measurement in metres.
type DistanceReading struct {
	Distance float32
}

func (DistanceReading) MessageID() uint32 { return MsgDistanceReading }

func (m DistanceReading) Fields() []field.Field {
	return []field.Field{field.Float32(FieldDistance, m.Distance)}
}

// AngleReading is a bearing in degrees.
type AngleReading struct {
	Angle float32
}

func (AngleReading) MessageID() uint32 { return MsgAngleReading }

func (m AngleReading) Fields() []field.Field {
	return []field.Field{field.Float32(FieldAngle, m.Angle)}
}

// GroundSteeringRequest is a steering angle in radians, positive to the left.
type GroundSteeringRequest struct {
	GroundSteering float32
}

func (GroundSteeringRequest) MessageID() uint32 { return MsgGroundSteeringRequest }

func (m GroundSteeringRequest) Fields() []field.Field {
	return []field.Field{field.Float32(FieldGroundSteering, m.GroundSteering)}
}

// PedalPositionRequest is a normalized pedal position; negative values brake.
type PedalPositionRequest struct {
	Position float32
}

func (PedalPositionRequest) MessageID() uint32 { return MsgPedalPositionRequest }

func (m PedalPositionRequest) Fields() []field.Field {
	return []field.Field{field.Float32(FieldPosition, m.Position)}
}

// Encode serializes msg after checking it against the catalog.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("schema: nil message")
	}
	fields := msg.Fields()
	if err := Validate(msg.MessageID(), fields); err != nil {
		return nil, err
	}
	return field.EncodeFields(fields), nil
}

// Decode parses payload as the catalog message messageID.
func Decode(messageID uint32, payload []byte) (Message, error) {
	switch messageID {
	case MsgDistanceReading:
		return DecodeDistanceReading(payload)
	case MsgAngleReading:
		return DecodeAngleReading(payload)
	case MsgGroundSteeringRequest:
		return DecodeGroundSteeringRequest(payload)
	case MsgPedalPositionRequest:
		return DecodePedalPositionRequest(payload)
	default:
		return nil, ValidationError{MessageID: messageID, Reason: "unknown message_id"}
	}
}

func DecodeDistanceReading(payload []byte) (Message, error) {
	v, err := decodeFloat32(MsgDistanceReading, FieldDistance, payload)
	if err != nil {
		return nil, err
	}
	return DistanceReading{Distance: v}, nil
}

func DecodeAngleReading(payload []byte) (Message, error) {
	v, err := decodeFloat32(MsgAngleReading, FieldAngle, payload)
	if err != nil {
		return nil, err
	}
	return AngleReading{Angle: v}, nil
}

func DecodeGroundSteeringRequest(payload []byte) (Message, error) {
	v, err := decodeFloat32(MsgGroundSteeringRequest, FieldGroundSteering, payload)
	if err != nil {
		return nil, err
	}
	return GroundSteeringRequest{GroundSteering: v}, nil
}

func DecodePedalPositionRequest(payload []byte) (Message, error) {
	v, err := decodeFloat32(MsgPedalPositionRequest, FieldPosition, payload)
	if err != nil {
		return nil, err
	}
	return PedalPositionRequest{Position: v}, nil
}

func decodeFloat32(messageID uint32, num protowire.Number, payload []byte) (float32, error) {
	fields, err := field.DecodeFields(payload)
	if err != nil {
		return 0, fmt.Errorf("schema: message_id=%d: %w", messageID, err)
	}
	if err := Validate(messageID, fields); err != nil {
		return 0, err
	}
	f, ok := field.GetField(fields, num)
	if !ok {
		return 0, nil
	}
	return f.Float32()
}
