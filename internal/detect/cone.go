package detect

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/danmuck/lanesight/internal/framechannel"
	"github.com/rs/zerolog/log"
)

// ChannelOrder gives the byte offsets of red, green and blue inside one pixel.
type ChannelOrder struct {
	R, G, B int
}

// BGRA is the layout the camera decoder writes into shared memory.
var BGRA = ChannelOrder{R: 2, G: 1, B: 0}

type ConeConfig struct {
	// CropRows limits detection to the top rows of the frame. 0 uses the
	// whole frame.
	CropRows  int
	MinPixels int
	Ranges    []Range
	Order     ChannelOrder
}

func DefaultConeConfig() ConeConfig {
	return ConeConfig{
		CropRows:  320,
		MinPixels: 50,
		Ranges:    []Range{BlueConeRange(), YellowConeRange()},
		Order:     BGRA,
	}
}

// ConeMask thresholds pixels into HSV ranges and reports one detection per
// range whose mask holds at least MinPixels pixels.
type ConeMask struct {
	cfg ConeConfig
}

func NewConeMask(cfg ConeConfig) (*ConeMask, error) {
	if cfg.CropRows < 0 || cfg.MinPixels < 0 {
		return nil, fmt.Errorf("%w: crop_rows=%d min_pixels=%d", ErrInvalidConfig, cfg.CropRows, cfg.MinPixels)
	}
	if len(cfg.Ranges) == 0 {
		return nil, fmt.Errorf("%w: no ranges", ErrInvalidConfig)
	}
	for _, r := range cfg.Ranges {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}
	ranges := make([]Range, len(cfg.Ranges))
	copy(ranges, cfg.Ranges)
	cfg.Ranges = ranges
	return &ConeMask{cfg: cfg}, nil
}

type blob struct {
	count      int
	sumX, sumY int
	bounds     image.Rectangle
}

func (b *blob) add(x, y int) {
	p := image.Rect(x, y, x+1, y+1)
	if b.count == 0 {
		b.bounds = p
	} else {
		b.bounds = b.bounds.Union(p)
	}
	b.count++
	b.sumX += x
	b.sumY += y
}

func (m *ConeMask) rows(d framechannel.Dims) int {
	if m.cfg.CropRows == 0 || m.cfg.CropRows > d.Height {
		return d.Height
	}
	return m.cfg.CropRows
}

func (m *ConeMask) checkLayout(d framechannel.Dims, data []byte) error {
	o := m.cfg.Order
	hi := max(o.R, o.G, o.B)
	if min(o.R, o.G, o.B) < 0 || hi >= d.BytesPerPixel {
		return fmt.Errorf("%w: order %+v with %d bytes per pixel", ErrUnsupportedLayout, o, d.BytesPerPixel)
	}
	if len(data) < d.Size() {
		return fmt.Errorf("%w: %d bytes for %s", ErrUnsupportedLayout, len(data), d)
	}
	return nil
}

func (m *ConeMask) Detect(ctx context.Context, frame framechannel.Frame) ([]Detection, error) {
	d := frame.Dims
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := m.checkLayout(d, frame.Data); err != nil {
		return nil, err
	}

	blobs := make([]blob, len(m.cfg.Ranges))
	o := m.cfg.Order
	rows := m.rows(d)
	for y := 0; y < rows; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := frame.Data[y*d.Stride() : (y+1)*d.Stride()]
		for x := 0; x < d.Width; x++ {
			px := row[x*d.BytesPerPixel:]
			c := ToHSV(px[o.R], px[o.G], px[o.B])
			for i, r := range m.cfg.Ranges {
				if r.Contains(c) {
					blobs[i].add(x, y)
				}
			}
		}
	}

	var out []Detection
	for i, b := range blobs {
		if b.count == 0 || b.count < m.cfg.MinPixels {
			continue
		}
		out = append(out, Detection{
			Kind:     m.cfg.Ranges[i].Kind,
			Bounds:   b.bounds,
			Centroid: image.Pt(b.sumX/b.count, b.sumY/b.count),
			Pixels:   b.count,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pixels > out[j].Pixels })
	log.Trace().Uint64("seq", frame.Seq).Int("detections", len(out)).Msg("detect.cone_mask")
	return out, nil
}

// Mask renders the pixels matching r inside the crop region as a binary
// image, for debugging thresholds.
func (m *ConeMask) Mask(frame framechannel.Frame, r Range) (*image.Gray, error) {
	d := frame.Dims
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := m.checkLayout(d, frame.Data); err != nil {
		return nil, err
	}
	rows := m.rows(d)
	img := image.NewGray(image.Rect(0, 0, d.Width, rows))
	o := m.cfg.Order
	for y := 0; y < rows; y++ {
		for x := 0; x < d.Width; x++ {
			px := frame.Pixel(x, y)
			if r.Contains(ToHSV(px[o.R], px[o.G], px[o.B])) {
				img.Pix[y*img.Stride+x] = 0xff
			}
		}
	}
	return img, nil
}
