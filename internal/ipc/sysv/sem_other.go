//go:build !linux || !(amd64 || arm64)

package sysv

import (
	"context"
	"time"
)

const DefaultPollInterval = 100 * time.Millisecond

type Semaphore struct{}

func OpenSemaphore(key int) (*Semaphore, error) { return nil, ErrUnsupported }

func CreateSemaphore(key, initial int) (*Semaphore, error) { return nil, ErrUnsupported }

func (s *Semaphore) ID() int                            { return -1 }
func (s *Semaphore) SetUndo(undo bool)                  {}
func (s *Semaphore) SetPollInterval(d time.Duration)    {}
func (s *Semaphore) Wait(ctx context.Context) error     { return ErrUnsupported }
func (s *Semaphore) WaitZero(ctx context.Context) error { return ErrUnsupported }
func (s *Semaphore) Post() error                        { return ErrUnsupported }
func (s *Semaphore) Value() (int, error)                { return 0, ErrUnsupported }
func (s *Semaphore) Remove() error                      { return ErrUnsupported }
