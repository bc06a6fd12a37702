package frame

import (
	"errors"
	"fmt"
	"io"
)

// Container header: two magic bytes then a 24-bit little-endian body length.
const (
	HeaderLen       = 5
	Magic0     byte = 0x0D
	Magic1     byte = 0xA4
	MaxBodyLen      = 1<<24 - 1
)

var (
	ErrShortHeader  = errors.New("frame: short container header")
	ErrInvalidMagic = errors.New("frame: invalid container magic")
	ErrBodyTooLarge = errors.New("frame: body too large")
	ErrShortBody    = errors.New("frame: short body")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxBodyBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxBodyBytes: MaxBodyLen}
}

func (l Limits) max() uint32 {
	if l.MaxBodyBytes == 0 || l.MaxBodyBytes > MaxBodyLen {
		return MaxBodyLen
	}
	return l.MaxBodyBytes
}

// ReadFrame reads one container from r and returns its body.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var head [HeaderLen]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}

	n, err := DecodeHeader(head[:])
	if err != nil {
		return nil, err
	}
	if n > limits.max() {
		return nil, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, n, limits.max())
	}

	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, ErrShortBody
			}
			return nil, err
		}
	}
	return body, nil
}

// WriteFrame writes body to w as a single container.
func WriteFrame(w io.Writer, body []byte, limits Limits) error {
	if uint64(len(body)) > uint64(limits.max()) {
		return fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, len(body), limits.max())
	}
	buf := make([]byte, 0, HeaderLen+len(body))
	buf = append(buf, EncodeHeader(uint32(len(body)))...)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

func EncodeHeader(bodyLen uint32) []byte {
	return []byte{
		Magic0,
		Magic1,
		byte(bodyLen),
		byte(bodyLen >> 8),
		byte(bodyLen >> 16),
	}
}

func DecodeHeader(b []byte) (uint32, error) {
	if len(b) != HeaderLen {
		return 0, fmt.Errorf("frame: invalid container header length: %d", len(b))
	}
	if b[0] != Magic0 || b[1] != Magic1 {
		return 0, fmt.Errorf("%w: %#02x %#02x", ErrInvalidMagic, b[0], b[1])
	}
	return uint32(b[2]) | uint32(b[3])<<8 | uint32(b[4])<<16, nil
}
