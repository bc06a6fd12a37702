package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/lanesight/internal/auth"
	"github.com/danmuck/lanesight/internal/detect"
	"github.com/danmuck/lanesight/internal/framechannel"
	"github.com/danmuck/lanesight/internal/observability"
	"github.com/danmuck/lanesight/internal/pipeline"
	"github.com/danmuck/lanesight/internal/protocol/session"
	"github.com/danmuck/lanesight/internal/state"
	"github.com/danmuck/lanesight/internal/transport/redisbus"
	"github.com/danmuck/lanesight/internal/transport/udpbus"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FrameChannel is an attached frame source the service owns.
type FrameChannel interface {
	pipeline.FrameSource
	Close() error
}

type ChannelOpener func(cfg framechannel.Config) (FrameChannel, error)

type Option func(*Service)

// WithChannelOpener replaces the SysV attach, for tests and simulators.
func WithChannelOpener(open ChannelOpener) Option {
	return func(s *Service) { s.openChannel = open }
}

// WithDialer replaces the transport selected by config.
func WithDialer(d session.Dialer) Option {
	return func(s *Service) { s.dialer = d }
}

func WithDetector(d detect.Detector) Option {
	return func(s *Service) { s.detector = d }
}

// WithAdminValidator guards /state and /metrics with v, overriding
// AdminToken.
func WithAdminValidator(v auth.Validator) Option {
	return func(s *Service) { s.adminAuth = v }
}

// Service owns the frame channel, bus session, shared state, frame loop,
// and optional admin HTTP server of one process.
type Service struct {
	cfg     ServiceConfig
	runID   string
	started time.Time
	logger  zerolog.Logger

	openChannel ChannelOpener
	dialer      session.Dialer
	detector    detect.Detector
	adminAuth   auth.Validator

	mu      sync.RWMutex
	channel FrameChannel
	session *session.Session
	state   *state.DistanceState
	loop    *pipeline.Loop
	admin   *http.Server
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg,
		runID: uuid.NewString(),
		state: state.NewDistanceState(),
		openChannel: func(cfg framechannel.Config) (FrameChannel, error) {
			return framechannel.Open(cfg)
		},
	}
	if token := strings.TrimSpace(cfg.AdminToken); token != "" {
		s.adminAuth = auth.StaticToken{Token: token}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) RunID() string { return s.runID }

func (s *Service) State() *state.DistanceState { return s.state }

// RunContext blocks until ctx is done or a subsystem fails. The caller owns
// signal handling. Fatal failures are returned as *SubsystemError.
func (s *Service) RunContext(ctx context.Context) error {
	s.logger = observability.InitLogger("lanesight", s.runID)
	s.started = time.Now()
	defer s.shutdown()

	if err := s.bootstrap(ctx); err != nil {
		return err
	}
	return s.serve(ctx)
}

func (s *Service) bootstrap(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return subsystemErr(SubsystemConfig, err)
	}
	observability.RegisterMetrics()

	det := s.detector
	if det == nil {
		cm, err := detect.NewConeMask(s.cfg.Detector)
		if err != nil {
			return subsystemErr(SubsystemDetector, err)
		}
		det = cm
	}

	ch, err := s.openChannel(s.cfg.Channel)
	if err != nil {
		return subsystemErr(SubsystemChannel, err)
	}
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()

	sess := session.New(s.cfg.Session)
	state.Bind(sess, s.state)
	dial := s.dialer
	if dial == nil {
		dial = s.transportDialer()
	}
	if err := sess.Connect(ctx, dial); err != nil {
		return subsystemErr(SubsystemBus, err)
	}

	loop := pipeline.New(ch, det, sess, s.state, s.cfg.Pipeline)
	s.mu.Lock()
	s.session = sess
	s.loop = loop
	s.mu.Unlock()

	s.logger.Info().
		Str("shm_name", s.cfg.Channel.Name).
		Str("dims", s.cfg.Channel.Dims.String()).
		Uint16("cid", s.cfg.Session.CID).
		Str("transport", string(s.transport())).
		Msg("service.bootstrap ready")
	return nil
}

func (s *Service) transport() Transport {
	t, err := NormalizeTransport(s.cfg.Transport)
	if err != nil {
		return TransportUDP
	}
	return t
}

func (s *Service) transportDialer() session.Dialer {
	if s.transport() == TransportRedis {
		rcfg := s.cfg.Redis
		rcfg.Security = s.cfg.Session.Security
		return redisbus.Dialer(rcfg)
	}
	return udpbus.Dialer(s.cfg.UDP)
}

func (s *Service) serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.RLock()
	loop, sess := s.loop, s.session
	s.mu.RUnlock()

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- loop.Run(runCtx)
	}()

	adminErr := make(chan error, 1)
	if strings.TrimSpace(s.cfg.AdminListenAddr) != "" {
		srv := &http.Server{
			Addr:              s.cfg.AdminListenAddr,
			Handler:           s.AdminRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.mu.Lock()
		s.admin = srv
		s.mu.Unlock()
		go func() {
			s.logger.Info().Str("addr", srv.Addr).Msg("service.admin listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				adminErr <- err
			}
		}()
	}

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	busDone := sess.Done()
	for {
		select {
		case err := <-loopErr:
			if err != nil {
				return subsystemErr(Classify(err), err)
			}
			s.logger.Info().Msg("service.serve shutdown")
			return nil
		case <-busDone:
			busDone = nil
			if err := sess.Err(); err != nil {
				cancel()
				<-loopErr
				return subsystemErr(SubsystemBus, err)
			}
		case err := <-adminErr:
			cancel()
			<-loopErr
			return subsystemErr(SubsystemAdmin, err)
		case <-ticker.C:
			snap := s.state.Snapshot()
			stats := sess.Stats()
			s.logger.Info().
				Str("pipeline", loop.State().String()).
				Uint64("frames", loop.Frames()).
				Uint64("sent", loop.Sent()).
				Uint64("bus_dispatched", stats.Dispatched).
				Uint64("bus_dropped_unknown", stats.DroppedUnknown).
				Float64("front", snap.Front).
				Msg("service.status")
		}
	}
}

func (s *Service) shutdown() {
	s.mu.Lock()
	admin, sess, ch := s.admin, s.session, s.channel
	s.admin, s.session, s.channel = nil, nil, nil
	s.mu.Unlock()

	if admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		if err := admin.Shutdown(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("service.shutdown admin")
		}
		cancel()
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("service.shutdown session")
		}
	}
	if ch != nil {
		if err := ch.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("service.shutdown channel")
		}
	}
}
