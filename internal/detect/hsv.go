package detect

import "fmt"

// HSV uses the 8-bit OpenCV scale: H in 0..179, S and V in 0..255.
type HSV struct {
	H, S, V uint8
}

// Range is an inclusive HSV box labelled with a detection kind.
type Range struct {
	Kind  string
	Lower HSV
	Upper HSV
}

func (r Range) Contains(c HSV) bool {
	return c.H >= r.Lower.H && c.H <= r.Upper.H &&
		c.S >= r.Lower.S && c.S <= r.Upper.S &&
		c.V >= r.Lower.V && c.V <= r.Upper.V
}

func (r Range) validate() error {
	if r.Kind == "" {
		return fmt.Errorf("%w: range without kind", ErrInvalidConfig)
	}
	if r.Lower.H > r.Upper.H || r.Lower.S > r.Upper.S || r.Lower.V > r.Upper.V {
		return fmt.Errorf("%w: range %s lower above upper", ErrInvalidConfig, r.Kind)
	}
	if r.Upper.H > 179 {
		return fmt.Errorf("%w: range %s hue above 179", ErrInvalidConfig, r.Kind)
	}
	return nil
}

func BlueConeRange() Range {
	return Range{Kind: KindBlueCone, Lower: HSV{100, 100, 30}, Upper: HSV{140, 255, 255}}
}

func YellowConeRange() Range {
	return Range{Kind: KindYellowCone, Lower: HSV{20, 100, 100}, Upper: HSV{30, 255, 255}}
}

// ToHSV converts an 8-bit RGB triple the way OpenCV's BGR2HSV does.
func ToHSV(r, g, b uint8) HSV {
	maxc, minc := r, r
	if g > maxc {
		maxc = g
	}
	if b > maxc {
		maxc = b
	}
	if g < minc {
		minc = g
	}
	if b < minc {
		minc = b
	}
	v := int(maxc)
	diff := int(maxc) - int(minc)
	if v == 0 || diff == 0 {
		return HSV{H: 0, S: 0, V: uint8(v)}
	}
	s := (255*diff + v/2) / v

	var h float64
	switch maxc {
	case r:
		h = 60 * float64(int(g)-int(b)) / float64(diff)
	case g:
		h = 120 + 60*float64(int(b)-int(r))/float64(diff)
	default:
		h = 240 + 60*float64(int(r)-int(g))/float64(diff)
	}
	if h < 0 {
		h += 360
	}
	hh := int(h/2 + 0.5)
	if hh >= 180 {
		hh -= 180
	}
	return HSV{H: uint8(hh), S: uint8(s), V: uint8(v)}
}
