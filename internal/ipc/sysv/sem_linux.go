//go:build linux && (amd64 || arm64)

package sysv

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	semGetVal = 12
	semSetVal = 16
	semUndo   = 0x1000

	DefaultPollInterval = 100 * time.Millisecond
)

type sembuf struct {
	num uint16
	op  int16
	flg int16
}

// Semaphore is a single System V semaphore (set size 1).
type Semaphore struct {
	id   int
	undo bool
	poll time.Duration
}

// OpenSemaphore opens an existing semaphore set identified by key.
func OpenSemaphore(key int) (*Semaphore, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("sysv: semget key=%#x: %w", uint32(key), errno)
	}
	return &Semaphore{id: int(id), poll: DefaultPollInterval}, nil
}

// CreateSemaphore creates a new semaphore set with one member set to initial.
func CreateSemaphore(key, initial int) (*Semaphore, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), 1, uintptr(unix.IPC_CREAT|unix.IPC_EXCL|0o600))
	if errno != 0 {
		return nil, fmt.Errorf("sysv: semget create key=%#x: %w", uint32(key), errno)
	}
	s := &Semaphore{id: int(id), poll: DefaultPollInterval}
	if err := s.ctl(semSetVal, uintptr(initial)); err != nil {
		_ = s.Remove()
		return nil, err
	}
	return s, nil
}

func (s *Semaphore) ID() int {
	return s.id
}

// SetUndo makes decrement/increment operations register SEM_UNDO so the
// kernel reverts them if this process dies while holding the semaphore.
func (s *Semaphore) SetUndo(undo bool) {
	s.undo = undo
}

// SetPollInterval sets how often a cancellable wait re-checks its context.
func (s *Semaphore) SetPollInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultPollInterval
	}
	s.poll = d
}

// Wait decrements the semaphore, blocking while its value is zero.
func (s *Semaphore) Wait(ctx context.Context) error {
	return s.op(ctx, -1)
}

// WaitZero blocks until the semaphore value is zero.
func (s *Semaphore) WaitZero(ctx context.Context) error {
	return s.op(ctx, 0)
}

// Post increments the semaphore. It never blocks.
func (s *Semaphore) Post() error {
	return s.op(context.Background(), 1)
}

// Value returns the current semaphore value.
func (s *Semaphore) Value() (int, error) {
	v, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), 0, semGetVal, 0, 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("sysv: semctl getval id=%d: %w", s.id, errno)
	}
	return int(v), nil
}

// Remove destroys the semaphore set.
func (s *Semaphore) Remove() error {
	return s.ctl(unix.IPC_RMID, 0)
}

func (s *Semaphore) ctl(cmd int, arg uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), 0, uintptr(cmd), arg, 0, 0)
	if errno != 0 {
		return fmt.Errorf("sysv: semctl cmd=%d id=%d: %w", cmd, s.id, errno)
	}
	return nil
}

func (s *Semaphore) op(ctx context.Context, delta int16) error {
	buf := sembuf{op: delta}
	if s.undo && delta != 0 {
		buf.flg = semUndo
	}

	// Uncancellable waits block in the kernel without polling.
	if ctx.Done() == nil {
		for {
			err := semtimedop(s.id, &buf, nil)
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return s.wrapOpErr(err, delta)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ts := unix.NsecToTimespec(int64(s.poll))
		err := semtimedop(s.id, &buf, &ts)
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			continue
		}
		return s.wrapOpErr(err, delta)
	}
}

func (s *Semaphore) wrapOpErr(err error, delta int16) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EIDRM) || errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("%w: id=%d: %v", ErrRemoved, s.id, err)
	}
	return fmt.Errorf("sysv: semop id=%d op=%d: %w", s.id, delta, err)
}

func semtimedop(id int, b *sembuf, ts *unix.Timespec) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_SEMTIMEDOP,
		uintptr(id),
		uintptr(unsafe.Pointer(b)),
		1,
		uintptr(unsafe.Pointer(ts)),
		0,
		0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}
