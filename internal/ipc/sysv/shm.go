//go:build linux

package sysv

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// Segment is an attached System V shared memory segment.
type Segment struct {
	id int

	mu   sync.RWMutex
	data []byte
}

// AttachSegment attaches to an existing segment identified by key.
func AttachSegment(key int, readOnly bool) (*Segment, error) {
	id, err := unix.SysvShmGet(key, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("sysv: shmget key=%#x: %w", uint32(key), err)
	}
	flag := 0
	if readOnly {
		flag = unix.SHM_RDONLY
	}
	data, err := unix.SysvShmAttach(id, 0, flag)
	if err != nil {
		return nil, fmt.Errorf("sysv: shmat id=%d: %w", id, err)
	}
	return &Segment{id: id, data: data}, nil
}

// CreateSegment creates and attaches a new read-write segment of size bytes.
// It fails if a segment with key already exists.
func CreateSegment(key, size int) (*Segment, error) {
	id, err := unix.SysvShmGet(key, size, unix.IPC_CREAT|unix.IPC_EXCL|0o600)
	if err != nil {
		return nil, fmt.Errorf("sysv: shmget create key=%#x size=%d: %w", uint32(key), size, err)
	}
	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, fmt.Errorf("sysv: shmat id=%d: %w", id, err)
	}
	return &Segment{id: id, data: data}, nil
}

func (s *Segment) ID() int {
	return s.id
}

// Size reports the attached segment size in bytes, or 0 once detached.
func (s *Segment) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// ReadAt implements io.ReaderAt over the mapped segment. Callers coordinate
// with writers in other processes through a semaphore.
func (s *Segment) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return 0, ErrDetached
	}
	if off < 0 || off > int64(len(s.data)) {
		return 0, ErrOutOfRange
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt over the mapped segment.
func (s *Segment) WriteAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return 0, ErrDetached
	}
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return 0, ErrOutOfRange
	}
	return copy(s.data[off:], p), nil
}

// Close detaches the segment. It is safe to call more than once.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	err := unix.SysvShmDetach(s.data)
	s.data = nil
	if err != nil {
		return fmt.Errorf("sysv: shmdt id=%d: %w", s.id, err)
	}
	return nil
}

// Remove marks the segment for destruction and detaches it.
func (s *Segment) Remove() error {
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, nil); err != nil {
		return fmt.Errorf("sysv: shmctl rmid id=%d: %w", s.id, err)
	}
	return s.Close()
}
