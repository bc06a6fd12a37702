package framechannel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/lanesight/internal/testutil/shmtest"
	"github.com/danmuck/lanesight/internal/testutil/testlog"
)

func newTestChannel(t *testing.T, dims Dims, mode ConditionMode) (*Channel, *shmtest.Exchange) {
	t.Helper()
	ex := shmtest.NewExchange(dims.Size())
	ch, err := New(ex.Segment, ex.Mutex, ex.Condition, dims, mode)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	return ch, ex
}

func TestDefaultDimsSize(t *testing.T) {
	if got := DefaultDims().Size(); got != 1228800 {
		t.Fatalf("unexpected default frame size: %d", got)
	}
}

func TestAcquireFrameReturnsExactSize(t *testing.T) {
	testlog.Start(t)
	dims := Dims{Width: 64, Height: 48, BytesPerPixel: 4}
	ch, ex := newTestChannel(t, dims, ConditionCount)

	if err := ex.Publish(context.Background(), 7); err != nil {
		t.Fatalf("publish: %v", err)
	}
	frame, err := ch.AcquireFrame(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(frame.Data) != dims.Size() {
		t.Fatalf("unexpected frame size: %d want %d", len(frame.Data), dims.Size())
	}
	if frame.Seq != 1 || frame.Dims != dims {
		t.Fatalf("unexpected frame metadata: seq=%d dims=%v", frame.Seq, frame.Dims)
	}
	if frame.Pixel(3, 2)[0] != 7 {
		t.Fatalf("unexpected pixel value: %v", frame.Pixel(3, 2))
	}
	if ex.Mutex.Value() != 1 {
		t.Fatalf("mutex not released: %d", ex.Mutex.Value())
	}
	if ex.Condition.Value() != 0 {
		t.Fatalf("condition not consumed: %d", ex.Condition.Value())
	}
}

func TestAcquireFrameIsAPrivateCopy(t *testing.T) {
	testlog.Start(t)
	dims := Dims{Width: 8, Height: 8, BytesPerPixel: 4}
	ch, ex := newTestChannel(t, dims, ConditionCount)

	_ = ex.Publish(context.Background(), 1)
	first, err := ch.AcquireFrame(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_ = ex.Publish(context.Background(), 2)
	if first.Data[0] != 1 {
		t.Fatalf("earlier frame changed after next publish: %d", first.Data[0])
	}
}

func TestAcquireFrameNeverTornUnderConcurrentProducer(t *testing.T) {
	testlog.Start(t)
	dims := Dims{Width: 160, Height: 120, BytesPerPixel: 4}
	ch, ex := newTestChannel(t, dims, ConditionCount)

	const frames = 200
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ex.Run(ctx, frames); err != nil {
			t.Errorf("producer: %v", err)
		}
	}()

	last := byte(0)
	for i := 0; i < frames; i++ {
		frame, err := ch.AcquireFrame(ctx)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		first := frame.Data[0]
		for off, b := range frame.Data {
			if b != first {
				t.Fatalf("torn frame %d: byte[0]=%d byte[%d]=%d", i, first, off, b)
			}
		}
		if first < last {
			t.Fatalf("frame went backwards: %d after %d", first, last)
		}
		last = first
	}
	wg.Wait()
	if last != frames {
		t.Fatalf("expected to end on the final frame, got %d", last)
	}
}

func TestAcquireFrameBlocksUntilNotified(t *testing.T) {
	testlog.Start(t)
	dims := Dims{Width: 4, Height: 4, BytesPerPixel: 4}
	ch, ex := newTestChannel(t, dims, ConditionCount)

	got := make(chan Frame, 1)
	go func() {
		frame, err := ch.AcquireFrame(context.Background())
		if err != nil {
			t.Errorf("acquire: %v", err)
			return
		}
		got <- frame
	}()

	select {
	case <-got:
		t.Fatalf("acquire returned before any notification")
	case <-time.After(50 * time.Millisecond):
	}

	_ = ex.Publish(context.Background(), 9)
	select {
	case frame := <-got:
		if frame.Data[0] != 9 {
			t.Fatalf("unexpected frame content: %d", frame.Data[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("acquire did not wake after notification")
	}
}

func TestAcquireFrameCancellation(t *testing.T) {
	testlog.Start(t)
	ch, _ := newTestChannel(t, Dims{Width: 2, Height: 2, BytesPerPixel: 4}, ConditionCount)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.AcquireFrame(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if errors.Is(err, ErrSyncFailure) {
		t.Fatalf("cancellation must not be reported as a sync failure")
	}
}

func TestAcquireFrameSyncFailure(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("semop: invalid argument")

	ch, ex := newTestChannel(t, Dims{Width: 2, Height: 2, BytesPerPixel: 4}, ConditionCount)
	ex.Condition.Fail(boom)
	if _, err := ch.AcquireFrame(context.Background()); !errors.Is(err, ErrSyncFailure) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrSyncFailure wrapping cause, got %v", err)
	}

	ch, ex = newTestChannel(t, Dims{Width: 2, Height: 2, BytesPerPixel: 4}, ConditionCount)
	_ = ex.Condition.Post()
	ex.Mutex.Fail(boom)
	if _, err := ch.AcquireFrame(context.Background()); !errors.Is(err, ErrSyncFailure) {
		t.Fatalf("expected ErrSyncFailure on mutex failure, got %v", err)
	}
}

func TestConditionZeroMode(t *testing.T) {
	testlog.Start(t)
	dims := Dims{Width: 2, Height: 2, BytesPerPixel: 4}
	ch, ex := newTestChannel(t, dims, ConditionZero)
	ex.Segment.Fill(3)

	frame, err := ch.AcquireFrame(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if frame.Data[0] != 3 {
		t.Fatalf("unexpected frame content: %d", frame.Data[0])
	}

	_ = ex.Condition.Post()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ch.AcquireFrame(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected zero-wait to block on non-zero condition, got %v", err)
	}
}

func TestNewRejectsUndersizedSegment(t *testing.T) {
	testlog.Start(t)
	dims := Dims{Width: 4, Height: 4, BytesPerPixel: 4}
	ex := shmtest.NewExchange(dims.Size() - 1)
	_, err := New(ex.Segment, ex.Mutex, ex.Condition, dims, ConditionCount)
	if !errors.Is(err, ErrChannelUnavailable) || !errors.Is(err, ErrFrameSizeMismatch) {
		t.Fatalf("expected unavailable+size mismatch, got %v", err)
	}
}

func TestNewRejectsInvalidDimsAndMode(t *testing.T) {
	testlog.Start(t)
	ex := shmtest.NewExchange(16)
	if _, err := New(ex.Segment, ex.Mutex, ex.Condition, Dims{Width: 0, Height: 4, BytesPerPixel: 4}, ConditionCount); !errors.Is(err, ErrInvalidDims) {
		t.Fatalf("expected ErrInvalidDims, got %v", err)
	}
	if _, err := New(ex.Segment, ex.Mutex, ex.Condition, Dims{Width: 2, Height: 2, BytesPerPixel: 4}, "sometimes"); !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable for bad mode, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	testlog.Start(t)
	ch, _ := newTestChannel(t, Dims{Width: 2, Height: 2, BytesPerPixel: 4}, ConditionCount)
	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := ch.AcquireFrame(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
