//go:build !linux

package sysv

type Segment struct{}

func AttachSegment(key int, readOnly bool) (*Segment, error) { return nil, ErrUnsupported }

func CreateSegment(key, size int) (*Segment, error) { return nil, ErrUnsupported }

func (s *Segment) ID() int                                  { return -1 }
func (s *Segment) Size() int                                { return 0 }
func (s *Segment) ReadAt(p []byte, off int64) (int, error)  { return 0, ErrUnsupported }
func (s *Segment) WriteAt(p []byte, off int64) (int, error) { return 0, ErrUnsupported }
func (s *Segment) Close() error                             { return nil }
func (s *Segment) Remove() error                            { return ErrUnsupported }
