package framechannel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// IPC sub ids passed to key derivation.
const (
	SubIDSegment   = 1
	SubIDMutex     = 2
	SubIDCondition = 3
)

const (
	DefaultWidth         = 640
	DefaultHeight        = 480
	DefaultBytesPerPixel = 4
	DefaultName          = "/tmp/img.argb"
)

var (
	ErrChannelUnavailable = errors.New("framechannel: channel unavailable")
	ErrSyncFailure        = errors.New("framechannel: sync primitive failure")
	ErrFrameSizeMismatch  = errors.New("framechannel: frame size mismatch")
	ErrInvalidDims        = errors.New("framechannel: invalid dimensions")
	ErrClosed             = errors.New("framechannel: closed")
)

// Dims describes the fixed frame layout shared with the producer.
type Dims struct {
	Width         int
	Height        int
	BytesPerPixel int
}

func DefaultDims() Dims {
	return Dims{Width: DefaultWidth, Height: DefaultHeight, BytesPerPixel: DefaultBytesPerPixel}
}

// Size is the exact byte length of one frame.
func (d Dims) Size() int {
	return d.Width * d.Height * d.BytesPerPixel
}

// Stride is the byte length of one row.
func (d Dims) Stride() int {
	return d.Width * d.BytesPerPixel
}

func (d Dims) Validate() error {
	if d.Width <= 0 || d.Height <= 0 || d.BytesPerPixel <= 0 {
		return fmt.Errorf("%w: %dx%dx%d", ErrInvalidDims, d.Width, d.Height, d.BytesPerPixel)
	}
	return nil
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.Width, d.Height, d.BytesPerPixel)
}

// Frame is a private copy of one producer frame, row-major.
type Frame struct {
	Data       []byte
	Dims       Dims
	Seq        uint64
	AcquiredAt time.Time
}

// Pixel returns the bytes of pixel (x, y). It panics when out of range.
func (f Frame) Pixel(x, y int) []byte {
	off := y*f.Dims.Stride() + x*f.Dims.BytesPerPixel
	return f.Data[off : off+f.Dims.BytesPerPixel]
}

// ConditionMode selects how the consumer waits for a frame notification.
type ConditionMode string

const (
	// ConditionCount decrements the condition semaphore, one per posted frame.
	ConditionCount ConditionMode = "count"
	// ConditionZero waits for the condition semaphore to reach zero.
	ConditionZero ConditionMode = "zero"
)

func NormalizeConditionMode(mode ConditionMode) (ConditionMode, error) {
	switch ConditionMode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case "", ConditionCount:
		return ConditionCount, nil
	case ConditionZero:
		return ConditionZero, nil
	default:
		return "", fmt.Errorf("framechannel: unknown condition mode %q", mode)
	}
}

// Segment is the shared frame buffer as seen by the consumer.
type Segment interface {
	io.ReaderAt
	Size() int
	Close() error
}

// Semaphore is one counting semaphore. The mutex uses Wait/Post as lock/unlock.
type Semaphore interface {
	Wait(ctx context.Context) error
	Post() error
}

// ZeroWaiter is implemented by semaphores supporting wait-for-zero.
type ZeroWaiter interface {
	WaitZero(ctx context.Context) error
}

// Config configures Open.
type Config struct {
	Name          string
	Dims          Dims
	ConditionMode ConditionMode
	PollInterval  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Name:          DefaultName,
		Dims:          DefaultDims(),
		ConditionMode: ConditionCount,
		PollInterval:  100 * time.Millisecond,
	}
}
