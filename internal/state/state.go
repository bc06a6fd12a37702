// Package state holds the latest distance readings shared between the bus
// receive goroutine and the frame loop.
package state

import (
	"sync"
	"time"

	"github.com/danmuck/lanesight/internal/observability"
	"github.com/danmuck/lanesight/internal/protocol/schema"
	"github.com/danmuck/lanesight/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

type Slot int

const (
	SlotFront Slot = iota
	SlotLeft
	SlotRear
	SlotRight
)

func (s Slot) String() string {
	switch s {
	case SlotFront:
		return "front"
	case SlotLeft:
		return "left"
	case SlotRear:
		return "rear"
	case SlotRight:
		return "right"
	default:
		return "unknown"
	}
}

// SlotForStamp maps a DistanceReading sender stamp to its slot.
func SlotForStamp(senderStamp uint32) (Slot, bool) {
	switch senderStamp {
	case 0:
		return SlotFront, true
	case 1:
		return SlotLeft, true
	case 2:
		return SlotRear, true
	case 3:
		return SlotRight, true
	default:
		return 0, false
	}
}

// Distances is a value snapshot. Slots never written read 0.
type Distances struct {
	Front   float64   `json:"front"`
	Left    float64   `json:"left"`
	Right   float64   `json:"right"`
	Rear    float64   `json:"rear"`
	Updated time.Time `json:"updated"`
}

func (d Distances) Get(s Slot) float64 {
	switch s {
	case SlotFront:
		return d.Front
	case SlotLeft:
		return d.Left
	case SlotRear:
		return d.Rear
	case SlotRight:
		return d.Right
	default:
		return 0
	}
}

type DistanceState struct {
	mu  sync.RWMutex
	cur Distances
	now func() time.Time
}

func NewDistanceState() *DistanceState {
	return &DistanceState{now: time.Now}
}

// Update stores distance in the slot for senderStamp. Unknown stamps are
// ignored and reported as false.
func (s *DistanceState) Update(senderStamp uint32, distance float64) bool {
	slot, ok := SlotForStamp(senderStamp)
	if !ok {
		observability.RecordBusDropped(observability.DropUnknownStamp)
		log.Debug().Uint32("sender_stamp", senderStamp).Msg("state.update unknown stamp")
		return false
	}
	s.mu.Lock()
	switch slot {
	case SlotFront:
		s.cur.Front = distance
	case SlotLeft:
		s.cur.Left = distance
	case SlotRear:
		s.cur.Rear = distance
	case SlotRight:
		s.cur.Right = distance
	}
	s.cur.Updated = s.now()
	s.mu.Unlock()
	observability.SetDistance(slot.String(), distance)
	return true
}

func (s *DistanceState) Snapshot() Distances {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// DistanceHandler feeds DistanceReading messages into s.
func DistanceHandler(s *DistanceState) session.Handler {
	return func(msg schema.Message, senderStamp uint32, _ session.TimeStamps) {
		reading, ok := msg.(schema.DistanceReading)
		if !ok {
			return
		}
		s.Update(senderStamp, float64(reading.Distance))
	}
}

// Bind registers s as the DistanceReading handler on sess.
func Bind(sess *session.Session, s *DistanceState) {
	sess.RegisterHandler(schema.MsgDistanceReading, schema.DecodeDistanceReading, DistanceHandler(s))
}
