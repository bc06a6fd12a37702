package sysv

import "errors"

var (
	ErrUnsupported    = errors.New("sysv: unsupported platform")
	ErrInvalidProject = errors.New("sysv: project id must be in 1..255")
	ErrDetached       = errors.New("sysv: segment detached")
	ErrOutOfRange     = errors.New("sysv: access out of segment range")
	ErrRemoved        = errors.New("sysv: semaphore removed")
)
