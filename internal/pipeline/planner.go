package pipeline

import (
	"math"

	"github.com/danmuck/lanesight/internal/detect"
	"github.com/danmuck/lanesight/internal/protocol/schema"
	"github.com/danmuck/lanesight/internal/state"
)

// Actuator limits of the vehicle.
const (
	MaxSteeringDegrees = 38.0
	MinPedalPosition   = -1.0
	MaxPedalPosition   = 0.25
)

type PlannerConfig struct {
	// FOVDegrees is the horizontal field of view of the camera.
	FOVDegrees   float64
	EmitAngle    bool
	EmitSteering bool
	EmitPedal    bool
	// SteeringGain scales the bearing in degrees into a steering angle.
	SteeringGain   float64
	CruisePosition float64
	// StopDistance zeroes the pedal when the front reading is positive and
	// below it. 0 disables the check.
	StopDistance float64
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		FOVDegrees:     62.2,
		EmitAngle:      true,
		EmitSteering:   false,
		EmitPedal:      false,
		SteeringGain:   1.0,
		CruisePosition: 0.1,
		StopDistance:   0.3,
	}
}

// Planner derives outbound requests from one frame's detections and the
// latest distances.
type Planner struct {
	cfg PlannerConfig
}

func NewPlanner(cfg PlannerConfig) Planner {
	return Planner{cfg: cfg}
}

// Bearing returns the angle in degrees from the image centre to x,
// positive to the left.
func (p Planner) Bearing(x float64, frameWidth int) float64 {
	if frameWidth <= 0 {
		return 0
	}
	half := float64(frameWidth) / 2
	return (half - x) / half * (p.cfg.FOVDegrees / 2)
}

func (p Planner) Derive(dets []detect.Detection, d state.Distances, frameWidth int) []schema.Message {
	dom, ok := detect.Dominant(dets)
	if !ok {
		return nil
	}
	bearing := p.Bearing(float64(dom.Centroid.X)+0.5, frameWidth)

	var out []schema.Message
	if p.cfg.EmitAngle {
		out = append(out, schema.AngleReading{Angle: float32(bearing)})
	}
	if p.cfg.EmitSteering {
		deg := clamp(bearing*p.cfg.SteeringGain, -MaxSteeringDegrees, MaxSteeringDegrees)
		out = append(out, schema.GroundSteeringRequest{GroundSteering: float32(deg / 180 * math.Pi)})
	}
	if p.cfg.EmitPedal {
		pos := clamp(p.cfg.CruisePosition, MinPedalPosition, MaxPedalPosition)
		if d.Front > 0 && d.Front < p.cfg.StopDistance {
			pos = 0
		}
		out = append(out, schema.PedalPositionRequest{Position: float32(pos)})
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
