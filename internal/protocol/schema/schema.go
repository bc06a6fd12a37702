package schema

import (
	"fmt"

	"github.com/danmuck/lanesight/internal/protocol/field"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/encoding/protowire"
)

// Message IDs from the OD4 standard message set.
const (
	MsgAngleReading          uint32 = 1038
	MsgDistanceReading       uint32 = 1039
	MsgPedalPositionRequest  uint32 = 1086
	MsgGroundSteeringRequest uint32 = 1090
)

// Payload field numbers. Every catalog message carries a single float32.
const (
	FieldDistance       protowire.Number = 1
	FieldAngle          protowire.Number = 1
	FieldGroundSteering protowire.Number = 1
	FieldPosition       protowire.Number = 1
)

type FieldSpec struct {
	Number protowire.Number
	Type   protowire.Type
	Name   string
}

type ValidationError struct {
	MessageID uint32
	Field     protowire.Number
	Reason    string
}

func (e ValidationError) Error() string {
	if e.Field == 0 {
		return fmt.Sprintf("schema: message_id=%d: %s", e.MessageID, e.Reason)
	}
	return fmt.Sprintf("schema: message_id=%d field=%d: %s", e.MessageID, e.Field, e.Reason)
}

var catalog = map[uint32][]FieldSpec{
	MsgAngleReading:          {{FieldAngle, protowire.Fixed32Type, "angle"}},
	MsgDistanceReading:       {{FieldDistance, protowire.Fixed32Type, "distance"}},
	MsgPedalPositionRequest:  {{FieldPosition, protowire.Fixed32Type, "position"}},
	MsgGroundSteeringRequest: {{FieldGroundSteering, protowire.Fixed32Type, "groundSteering"}},
}

var names = map[uint32]string{
	MsgAngleReading:          "opendlv.proxy.AngleReading",
	MsgDistanceReading:       "opendlv.proxy.DistanceReading",
	MsgPedalPositionRequest:  "opendlv.proxy.PedalPositionRequest",
	MsgGroundSteeringRequest: "opendlv.proxy.GroundSteeringRequest",
}

func Known(messageID uint32) bool {
	_, ok := catalog[messageID]
	return ok
}

func Name(messageID uint32) string {
	if n, ok := names[messageID]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", messageID)
}

func Fields(messageID uint32) ([]FieldSpec, bool) {
	specs, ok := catalog[messageID]
	if !ok {
		return nil, false
	}
	out := make([]FieldSpec, len(specs))
	copy(out, specs)
	return out, true
}

// Validate checks that known catalog fields carry the expected wire type.
// Absent fields decode to their zero value and unknown fields are ignored,
// matching proto3 semantics.
func Validate(messageID uint32, fields []field.Field) error {
	log.Debug().Msgf("schema.Validate message_id=%d fields=%d", messageID, len(fields))
	specs, ok := catalog[messageID]
	if !ok {
		log.Debug().Msgf("schema.Validate unknown message_id=%d", messageID)
		return ValidationError{MessageID: messageID, Reason: "unknown message_id"}
	}
	for _, spec := range specs {
		f, found := field.GetField(fields, spec.Number)
		if !found {
			continue
		}
		if f.Type != spec.Type {
			log.Warn().Msgf(
				"schema.Validate type mismatch message_id=%d field=%d got=%d want=%d",
				messageID,
				spec.Number,
				f.Type,
				spec.Type,
			)
			return ValidationError{MessageID: messageID, Field: spec.Number, Reason: "type mismatch"}
		}
	}
	return nil
}
