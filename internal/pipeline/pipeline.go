// Package pipeline runs the frame loop: acquire, detect, snapshot, derive,
// send.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danmuck/lanesight/internal/detect"
	"github.com/danmuck/lanesight/internal/framechannel"
	"github.com/danmuck/lanesight/internal/observability"
	"github.com/danmuck/lanesight/internal/protocol/schema"
	"github.com/danmuck/lanesight/internal/state"
	"github.com/rs/zerolog"
)

var ErrAlreadyRunning = errors.New("pipeline: already running")

type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

type FrameSource interface {
	AcquireFrame(ctx context.Context) (framechannel.Frame, error)
}

type Publisher interface {
	Send(msg schema.Message) error
}

type DistanceReader interface {
	Snapshot() state.Distances
}

type Config struct {
	Planner PlannerConfig
	// LogDistances writes the four distance slots at debug level each frame.
	LogDistances bool
}

func DefaultConfig() Config {
	return Config{Planner: DefaultPlannerConfig(), LogDistances: true}
}

type Loop struct {
	src     FrameSource
	det     detect.Detector
	pub     Publisher
	dist    DistanceReader
	planner Planner
	cfg     Config
	logger  zerolog.Logger

	state  atomic.Int32
	frames atomic.Uint64
	sent   atomic.Uint64
}

func New(src FrameSource, det detect.Detector, pub Publisher, dist DistanceReader, cfg Config) *Loop {
	return &Loop{
		src:     src,
		det:     det,
		pub:     pub,
		dist:    dist,
		planner: NewPlanner(cfg.Planner),
		cfg:     cfg,
		logger:  observability.Component("pipeline"),
	}
}

func (l *Loop) State() State   { return State(l.state.Load()) }
func (l *Loop) Frames() uint64 { return l.frames.Load() }
func (l *Loop) Sent() uint64   { return l.sent.Load() }

// Run loops until ctx is done, returning nil, or until a frame, sync, or
// bus failure, returning it.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		return ErrAlreadyRunning
	}
	defer l.state.Store(int32(Stopped))
	l.logger.Info().Msg("pipeline.run start")

	for {
		if ctx.Err() != nil {
			l.logger.Info().Uint64("frames", l.Frames()).Msg("pipeline.run stopped")
			return nil
		}
		if err := l.Step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				l.logger.Info().Uint64("frames", l.Frames()).Msg("pipeline.run stopped")
				return nil
			}
			l.logger.Error().Err(err).Msg("pipeline.run failed")
			return err
		}
	}
}

// Step processes one frame. Detector failures are logged and skip the
// send; they are not returned.
func (l *Loop) Step(ctx context.Context) error {
	start := time.Now()
	frame, err := l.src.AcquireFrame(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: acquire: %w", err)
	}
	l.frames.Add(1)
	observability.RecordFrameAcquired(time.Since(start))

	dets, err := l.det.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		observability.RecordDetectError()
		l.logger.Warn().Err(err).Uint64("seq", frame.Seq).Msg("pipeline.detect failed")
		return nil
	}
	observability.RecordDetections(detect.Kinds(dets))

	snap := l.dist.Snapshot()
	if l.cfg.LogDistances {
		l.logger.Debug().
			Float64("front", snap.Front).
			Float64("left", snap.Left).
			Float64("right", snap.Right).
			Float64("rear", snap.Rear).
			Msg("pipeline.distances")
	}

	for _, msg := range l.planner.Derive(dets, snap, frame.Dims.Width) {
		if err := l.pub.Send(msg); err != nil {
			return fmt.Errorf("pipeline: send %s: %w", schema.Name(msg.MessageID()), err)
		}
		l.sent.Add(1)
	}
	return nil
}
