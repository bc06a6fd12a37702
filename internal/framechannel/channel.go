package framechannel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Channel is an attached frame exchange.
type Channel struct {
	seg   Segment
	mutex Semaphore
	ready func(ctx context.Context) error
	dims  Dims
	name  string

	seq       atomic.Uint64
	closeOnce sync.Once
	closed    atomic.Bool
	now       func() time.Time
}

// New wires an already attached segment and semaphore pair.
func New(seg Segment, mutex, cond Semaphore, dims Dims, mode ConditionMode) (*Channel, error) {
	if err := dims.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	if seg == nil || mutex == nil || cond == nil {
		return nil, fmt.Errorf("%w: missing segment or semaphore", ErrChannelUnavailable)
	}
	if seg.Size() < dims.Size() {
		return nil, fmt.Errorf(
			"%w: %w: segment=%d want=%d",
			ErrChannelUnavailable,
			ErrFrameSizeMismatch,
			seg.Size(),
			dims.Size(),
		)
	}
	mode, err := NormalizeConditionMode(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}

	ready := cond.Wait
	if mode == ConditionZero {
		zw, ok := cond.(ZeroWaiter)
		if !ok {
			return nil, fmt.Errorf("%w: condition semaphore cannot wait for zero", ErrChannelUnavailable)
		}
		ready = zw.WaitZero
	}

	return &Channel{
		seg:   seg,
		mutex: mutex,
		ready: ready,
		dims:  dims,
		now:   time.Now,
	}, nil
}

func (c *Channel) Dims() Dims {
	return c.dims
}

func (c *Channel) Name() string {
	return c.name
}

// Acquired reports how many frames have been copied out so far.
func (c *Channel) Acquired() uint64 {
	return c.seq.Load()
}

// AcquireFrame blocks until the producer signals a frame, then copies it out
// under the mutex. With an uncancellable ctx the wait is unbounded.
func (c *Channel) AcquireFrame(ctx context.Context) (Frame, error) {
	if c.closed.Load() {
		return Frame{}, ErrClosed
	}
	if err := c.ready(ctx); err != nil {
		return Frame{}, c.syncErr(ctx, "condition wait", err)
	}
	if err := c.mutex.Wait(ctx); err != nil {
		return Frame{}, c.syncErr(ctx, "mutex lock", err)
	}

	buf := make([]byte, c.dims.Size())
	n, readErr := c.seg.ReadAt(buf, 0)
	unlockErr := c.mutex.Post()

	if unlockErr != nil {
		return Frame{}, fmt.Errorf("%w: mutex unlock: %w", ErrSyncFailure, unlockErr)
	}
	if n != len(buf) {
		return Frame{}, fmt.Errorf("%w: read=%d want=%d", ErrFrameSizeMismatch, n, len(buf))
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		return Frame{}, fmt.Errorf("%w: read segment: %w", ErrChannelUnavailable, readErr)
	}

	seq := c.seq.Add(1)
	log.Trace().
		Str("component", "framechannel").
		Uint64("seq", seq).
		Int("bytes", n).
		Msg("frame acquired")
	return Frame{Data: buf, Dims: c.dims, Seq: seq, AcquiredAt: c.now()}, nil
}

func (c *Channel) syncErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %w", ErrSyncFailure, op, err)
}

// Close detaches the segment. Semaphores belong to the producer and are left
// in place.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.seg.Close()
	})
	return err
}
