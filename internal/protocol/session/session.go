package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/lanesight/internal/observability"
	"github.com/danmuck/lanesight/internal/protocol"
	"github.com/danmuck/lanesight/internal/protocol/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNotConnected      = errors.New("session: not connected")
	ErrAlreadyConnected  = errors.New("session: already connected")
	ErrConnectionFailure = errors.New("session: connection failure")
	ErrSendFailure       = errors.New("session: send failure")
	ErrUnknownMessage    = errors.New("session: unknown message id")
	ErrClosed            = errors.New("session: closed")
)

// Transport moves whole framed envelopes. Receive blocks until one arrives,
// ctx is done, or the transport is closed.
type Transport interface {
	Send(ctx context.Context, b []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a transport joined to the conference cid.
type Dialer func(ctx context.Context, cid uint16) (Transport, error)

type TimeStamps struct {
	Sent     time.Time
	Received time.Time
	Sample   time.Time
}

type Decoder func(payload []byte) (schema.Message, error)

type Handler func(msg schema.Message, senderStamp uint32, ts TimeStamps)

type Stats struct {
	Received       uint64
	Dispatched     uint64
	DroppedUnknown uint64
	DroppedDecode  uint64
	DroppedFrame   uint64
	Sent           uint64
}

type registration struct {
	decode Decoder
	handle Handler
}

type Session struct {
	cfg    Config
	id     string
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	handlers  map[uint32]registration
	transport Transport
	cancel    context.CancelFunc

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	closing   atomic.Bool

	errMu sync.Mutex
	err   error

	received       atomic.Uint64
	dispatched     atomic.Uint64
	droppedUnknown atomic.Uint64
	droppedDecode  atomic.Uint64
	droppedFrame   atomic.Uint64
	sent           atomic.Uint64
}

func New(cfg Config) *Session {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultConfig().SendTimeout
	}
	id := uuid.NewString()
	return &Session{
		cfg:      cfg,
		id:       id,
		logger:   observability.Component("session").With().Str("session_id", id).Uint16("cid", cfg.CID).Logger(),
		now:      time.Now,
		handlers: make(map[uint32]registration),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string  { return s.id }
func (s *Session) CID() uint16 { return s.cfg.CID }

// RegisterHandler binds messageID to decode and handle. A later registration
// for the same id replaces the earlier one.
func (s *Session) RegisterHandler(messageID uint32, decode Decoder, handle Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[messageID]; ok {
		s.logger.Debug().Uint32("message_id", messageID).Msg("session.register replaced")
	}
	s.handlers[messageID] = registration{decode: decode, handle: handle}
}

func (s *Session) Unregister(messageID uint32) {
	s.mu.Lock()
	delete(s.handlers, messageID)
	s.mu.Unlock()
}

// Connect dials the configured CID and starts the receive goroutine, which
// runs until Close or until ctx is done.
func (s *Session) Connect(ctx context.Context, dial Dialer) error {
	if s.closing.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	if s.transport != nil {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.mu.Unlock()

	tr, err := dial(ctx, s.cfg.CID)
	if err != nil {
		return fmt.Errorf("%w: cid=%d: %v", ErrConnectionFailure, s.cfg.CID, err)
	}

	rctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	// Close may have run during the dial; it sets closing before taking mu.
	if s.closing.Load() {
		s.mu.Unlock()
		cancel()
		_ = tr.Close()
		return ErrClosed
	}
	if s.transport != nil {
		s.mu.Unlock()
		cancel()
		_ = tr.Close()
		return ErrAlreadyConnected
	}
	s.transport = tr
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info().Msg("session.connect ok")
	go s.receiveLoop(rctx, tr)
	return nil
}

func (s *Session) receiveLoop(ctx context.Context, tr Transport) {
	defer s.doneOnce.Do(func() { close(s.done) })
	for {
		b, err := tr.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || s.closing.Load() {
				s.logger.Debug().Msg("session.receive stopped")
				return
			}
			s.setErr(fmt.Errorf("%w: receive: %v", ErrConnectionFailure, err))
			s.logger.Error().Err(err).Msg("session.receive failed")
			return
		}
		s.HandleDatagram(b)
	}
}

// HandleDatagram decodes one framed envelope, stamps Received, and
// dispatches it. Malformed input is dropped.
func (s *Session) HandleDatagram(b []byte) bool {
	env, err := protocol.DecodeDatagram(b)
	if err != nil {
		s.droppedFrame.Add(1)
		observability.RecordBusDropped(observability.DropFrame)
		s.logger.Warn().Err(err).Int("bytes", len(b)).Msg("session.receive dropped")
		return false
	}
	env.Received = s.now()
	return s.Dispatch(env)
}

// Dispatch routes env to its registered handler. Unknown ids and payloads
// that fail to decode are dropped and reported as false.
func (s *Session) Dispatch(env *protocol.Envelope) bool {
	if env == nil {
		return false
	}
	s.received.Add(1)

	s.mu.RLock()
	reg, ok := s.handlers[env.DataType]
	s.mu.RUnlock()
	if !ok {
		s.droppedUnknown.Add(1)
		observability.RecordBusDropped(observability.DropUnknownMessage)
		s.logger.Trace().Uint32("message_id", env.DataType).Msg("session.dispatch unknown")
		return false
	}

	msg, err := reg.decode(env.Payload)
	if err != nil {
		s.droppedDecode.Add(1)
		observability.RecordBusDropped(observability.DropDecode)
		s.logger.Warn().
			Err(err).
			Uint32("message_id", env.DataType).
			Uint32("sender_stamp", env.SenderStamp).
			Msg("session.dispatch decode failed")
		return false
	}

	s.dispatched.Add(1)
	observability.RecordBusReceived(env.DataType)
	reg.handle(msg, env.SenderStamp, TimeStamps{
		Sent:     env.Sent,
		Received: env.Received,
		Sample:   env.SampleTime,
	})
	return true
}

// Send encodes msg, wraps it with this session's sender stamp and the
// current time as sent and sample time, and writes one frame.
func (s *Session) Send(msg schema.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrSendFailure)
	}
	s.mu.RLock()
	tr := s.transport
	s.mu.RUnlock()
	if tr == nil || s.closing.Load() {
		return ErrNotConnected
	}
	if !schema.Known(msg.MessageID()) {
		return fmt.Errorf("%w: %d", ErrUnknownMessage, msg.MessageID())
	}

	payload, err := schema.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	now := s.now()
	env := &protocol.Envelope{
		DataType:    msg.MessageID(),
		SenderStamp: s.cfg.SenderStamp,
		Sent:        now,
		SampleTime:  now,
		Payload:     payload,
	}
	var buf bytes.Buffer
	if err := protocol.Encode(&buf, env); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailure, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
	defer cancel()
	if err := tr.Send(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: message_id=%d: %v", ErrSendFailure, env.DataType, err)
	}
	s.sent.Add(1)
	observability.RecordBusSent(env.DataType)
	s.logger.Trace().Uint32("message_id", env.DataType).Int("bytes", buf.Len()).Msg("session.send ok")
	return nil
}

// Close stops the receive goroutine and closes the transport.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.mu.Lock()
		tr, cancel := s.transport, s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if tr == nil {
			s.doneOnce.Do(func() { close(s.done) })
			return
		}
		err = tr.Close()
		<-s.done
		s.logger.Info().Msg("session.close ok")
	})
	return err
}

// Done is closed once the receive goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports the fault that stopped the receive goroutine, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *Session) Stats() Stats {
	return Stats{
		Received:       s.received.Load(),
		Dispatched:     s.dispatched.Load(),
		DroppedUnknown: s.droppedUnknown.Load(),
		DroppedDecode:  s.droppedDecode.Load(),
		DroppedFrame:   s.droppedFrame.Load(),
		Sent:           s.sent.Load(),
	}
}
