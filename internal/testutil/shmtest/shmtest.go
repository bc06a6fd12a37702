// Package shmtest provides in-process stand-ins for the shared-memory frame
// exchange: a byte segment, counting semaphores, and a simulated producer.
package shmtest

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
)

var ErrClosed = errors.New("shmtest: segment closed")

// Segment is an in-memory frame buffer. Concurrent access is only safe when
// coordinated through a Semaphore, like the real shared segment.
type Segment struct {
	data   []byte
	mu     sync.Mutex
	closed bool
}

func NewSegment(size int) *Segment {
	return &Segment{data: make([]byte, size)}
}

func (s *Segment) Size() int {
	return len(s.data)
}

func (s *Segment) ReadAt(p []byte, off int64) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	if off < 0 || off > int64(len(s.data)) {
		return 0, io.EOF
	}
	n := 0
	// Copy in small chunks with yields so an unguarded writer would interleave.
	for n < len(p) && int(off)+n < len(s.data) {
		end := n + 4096
		if end > len(p) {
			end = len(p)
		}
		n += copy(p[n:end], s.data[int(off)+n:])
		runtime.Gosched()
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Fill overwrites the whole segment with b, in chunks.
func (s *Segment) Fill(b byte) {
	for off := 0; off < len(s.data); off += 4096 {
		end := off + 4096
		if end > len(s.data) {
			end = len(s.data)
		}
		for i := off; i < end; i++ {
			s.data[i] = b
		}
		runtime.Gosched()
	}
}

// Load copies p into the start of the segment.
func (s *Segment) Load(p []byte) {
	copy(s.data, p)
}

func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Segment) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Semaphore is a counting semaphore with context-aware waits.
type Semaphore struct {
	mu      sync.Mutex
	count   int
	changed chan struct{}
	fail    error
}

func NewSemaphore(initial int) *Semaphore {
	return &Semaphore{count: initial, changed: make(chan struct{})}
}

// Fail makes every subsequent operation return err.
func (s *Semaphore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
	s.broadcastLocked()
}

func (s *Semaphore) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Semaphore) Wait(ctx context.Context) error {
	return s.waitFor(ctx, func() bool {
		if s.count > 0 {
			s.count--
			s.broadcastLocked()
			return true
		}
		return false
	})
}

func (s *Semaphore) WaitZero(ctx context.Context) error {
	return s.waitFor(ctx, func() bool { return s.count == 0 })
}

func (s *Semaphore) Post() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.count++
	s.broadcastLocked()
	return nil
}

func (s *Semaphore) waitFor(ctx context.Context, try func() bool) error {
	for {
		s.mu.Lock()
		if s.fail != nil {
			err := s.fail
			s.mu.Unlock()
			return err
		}
		if try() {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Semaphore) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Exchange bundles a segment with its mutex and condition semaphores.
type Exchange struct {
	Segment   *Segment
	Mutex     *Semaphore
	Condition *Semaphore
}

func NewExchange(size int) *Exchange {
	return &Exchange{
		Segment:   NewSegment(size),
		Mutex:     NewSemaphore(1),
		Condition: NewSemaphore(0),
	}
}

// Publish writes a frame filled with b under the mutex and posts one
// notification on the condition semaphore.
func (e *Exchange) Publish(ctx context.Context, b byte) error {
	if err := e.Mutex.Wait(ctx); err != nil {
		return err
	}
	e.Segment.Fill(b)
	if err := e.Mutex.Post(); err != nil {
		return err
	}
	return e.Condition.Post()
}

// PublishFrame is Publish with caller-supplied frame bytes.
func (e *Exchange) PublishFrame(ctx context.Context, frame []byte) error {
	if err := e.Mutex.Wait(ctx); err != nil {
		return err
	}
	e.Segment.Load(frame)
	if err := e.Mutex.Post(); err != nil {
		return err
	}
	return e.Condition.Post()
}

// Run publishes frames 1..n (byte value wraps) until done or ctx ends.
func (e *Exchange) Run(ctx context.Context, n int) error {
	for i := 1; i <= n; i++ {
		if err := e.Publish(ctx, byte(i)); err != nil {
			return err
		}
	}
	return nil
}
