// Package detect turns one frame into a list of detections. An empty list
// is a normal result.
package detect

import (
	"context"
	"errors"
	"image"

	"github.com/danmuck/lanesight/internal/framechannel"
)

var (
	ErrUnsupportedLayout = errors.New("detect: unsupported pixel layout")
	ErrInvalidConfig     = errors.New("detect: invalid config")
)

const (
	KindBlueCone   = "cone_blue"
	KindYellowCone = "cone_yellow"
)

type Detection struct {
	Kind     string
	Bounds   image.Rectangle
	Centroid image.Point
	Pixels   int
}

type Detector interface {
	Detect(ctx context.Context, frame framechannel.Frame) ([]Detection, error)
}

// Func adapts a plain function to Detector.
type Func func(ctx context.Context, frame framechannel.Frame) ([]Detection, error)

func (f Func) Detect(ctx context.Context, frame framechannel.Frame) ([]Detection, error) {
	return f(ctx, frame)
}

// Dominant returns the detection with the most pixels. ok is false for an
// empty list.
func Dominant(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Pixels > best.Pixels {
			best = d
		}
	}
	return best, true
}

func Kinds(dets []Detection) []string {
	out := make([]string, len(dets))
	for i, d := range dets {
		out[i] = d.Kind
	}
	return out
}
