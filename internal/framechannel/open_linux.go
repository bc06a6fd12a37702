//go:build linux && (amd64 || arm64)

package framechannel

import (
	"fmt"
	"strings"

	"github.com/danmuck/lanesight/internal/ipc/sysv"
	"github.com/rs/zerolog/log"
)

// Open derives the three IPC keys from cfg.Name and attaches to the
// producer's segment and semaphores. Every failure wraps
// ErrChannelUnavailable.
func Open(cfg Config) (*Channel, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrChannelUnavailable)
	}
	if err := cfg.Dims.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}

	segKey, err := sysv.Key(name, SubIDSegment)
	if err != nil {
		return nil, fmt.Errorf("%w: segment key: %w", ErrChannelUnavailable, err)
	}
	mutexKey, err := sysv.Key(name, SubIDMutex)
	if err != nil {
		return nil, fmt.Errorf("%w: mutex key: %w", ErrChannelUnavailable, err)
	}
	condKey, err := sysv.Key(name, SubIDCondition)
	if err != nil {
		return nil, fmt.Errorf("%w: condition key: %w", ErrChannelUnavailable, err)
	}

	seg, err := sysv.AttachSegment(segKey, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	mutex, err := sysv.OpenSemaphore(mutexKey)
	if err != nil {
		_ = seg.Close()
		return nil, fmt.Errorf("%w: mutex: %w", ErrChannelUnavailable, err)
	}
	cond, err := sysv.OpenSemaphore(condKey)
	if err != nil {
		_ = seg.Close()
		return nil, fmt.Errorf("%w: condition: %w", ErrChannelUnavailable, err)
	}
	mutex.SetUndo(true)
	mutex.SetPollInterval(cfg.PollInterval)
	cond.SetPollInterval(cfg.PollInterval)

	ch, err := New(seg, mutex, cond, cfg.Dims, cfg.ConditionMode)
	if err != nil {
		_ = seg.Close()
		return nil, err
	}
	ch.name = name
	log.Info().
		Str("component", "framechannel").
		Str("name", name).
		Str("dims", cfg.Dims.String()).
		Int("segment_id", seg.ID()).
		Int("mutex_id", mutex.ID()).
		Int("condition_id", cond.ID()).
		Msg("attached")
	return ch, nil
}
