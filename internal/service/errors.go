package service

import (
	"errors"
	"fmt"

	"github.com/danmuck/lanesight/internal/framechannel"
	"github.com/danmuck/lanesight/internal/protocol/session"
)

// Subsystems reported in fatal diagnostics.
const (
	SubsystemConfig   = "config"
	SubsystemChannel  = "channel"
	SubsystemSync     = "sync"
	SubsystemBus      = "bus"
	SubsystemDetector = "detector"
	SubsystemAdmin    = "admin"
	SubsystemPipeline = "pipeline"
)

// SubsystemError names the subsystem whose failure stopped the process.
type SubsystemError struct {
	Subsystem string
	Err       error
}

func (e *SubsystemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Subsystem, e.Err)
}

func (e *SubsystemError) Unwrap() error {
	return e.Err
}

func subsystemErr(subsystem string, err error) error {
	if err == nil {
		return nil
	}
	var se *SubsystemError
	if errors.As(err, &se) {
		return err
	}
	return &SubsystemError{Subsystem: subsystem, Err: err}
}

// Classify maps a fatal run error to its subsystem.
func Classify(err error) string {
	var se *SubsystemError
	switch {
	case errors.As(err, &se):
		return se.Subsystem
	case errors.Is(err, framechannel.ErrSyncFailure):
		return SubsystemSync
	case errors.Is(err, framechannel.ErrFrameSizeMismatch),
		errors.Is(err, framechannel.ErrChannelUnavailable),
		errors.Is(err, framechannel.ErrClosed):
		return SubsystemChannel
	case errors.Is(err, session.ErrSendFailure),
		errors.Is(err, session.ErrConnectionFailure),
		errors.Is(err, session.ErrNotConnected):
		return SubsystemBus
	default:
		return SubsystemPipeline
	}
}
