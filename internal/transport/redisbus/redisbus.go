// Package redisbus carries OD4 frames over Redis pub/sub. Each conference
// id maps to channel "<prefix>:<cid>"; every frame is one published message.
//
// Delivery is at-most-once, matching the multicast bus: a subscriber that
// falls behind the channel buffer loses frames.
package redisbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/lanesight/internal/observability"
	"github.com/danmuck/lanesight/internal/protocol/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultChannelPrefix = "od4"

var ErrClosed = errors.New("redisbus: closed")

type Config struct {
	Addr          string
	Username      string
	Password      string
	DB            int
	ChannelPrefix string
	// Buffer is the subscriber channel size.
	Buffer   int
	Security session.TransportSecurity
}

func DefaultConfig() Config {
	return Config{
		Addr:          "127.0.0.1:6379",
		ChannelPrefix: DefaultChannelPrefix,
		Buffer:        256,
	}
}

func Channel(prefix string, cid uint16) string {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultChannelPrefix
	}
	return fmt.Sprintf("%s:%d", prefix, cid)
}

// Bus implements session.Transport over one Redis channel.
type Bus struct {
	rdb     *redis.Client
	pubsub  *redis.PubSub
	msgs    <-chan *redis.Message
	channel string
	logger  zerolog.Logger

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func Dialer(cfg Config) session.Dialer {
	return func(ctx context.Context, cid uint16) (session.Transport, error) {
		return Dial(ctx, cid, cfg)
	}
}

// Dial connects, pings, and subscribes. The subscription is confirmed
// before Dial returns so no frame published afterwards is missed.
func Dial(ctx context.Context, cid uint16, cfg Config) (*Bus, error) {
	tlsCfg, err := cfg.Security.ClientTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("redisbus: transport security: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Username:  cfg.Username,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsCfg,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisbus: ping %s: %w", cfg.Addr, err)
	}

	channel := Channel(cfg.ChannelPrefix, cid)
	pubsub := rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("redisbus: subscribe %s: %w", channel, err)
	}
	size := cfg.Buffer
	if size <= 0 {
		size = DefaultConfig().Buffer
	}

	b := &Bus{
		rdb:     rdb,
		pubsub:  pubsub,
		msgs:    pubsub.Channel(redis.WithChannelSize(size)),
		channel: channel,
		logger: observability.Component("redisbus").With().
			Str("addr", cfg.Addr).
			Str("channel", channel).
			Logger(),
		closed: make(chan struct{}),
	}
	b.logger.Info().Bool("tls", tlsCfg != nil).Msg("redisbus.subscribe ok")
	return b, nil
}

func (b *Bus) ChannelName() string {
	return b.channel
}

func (b *Bus) Send(ctx context.Context, p []byte) error {
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	return b.rdb.Publish(ctx, b.channel, p).Err()
}

func (b *Bus) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-b.msgs:
		if !ok {
			return nil, ErrClosed
		}
		return []byte(msg.Payload), nil
	case <-b.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
		err := b.pubsub.Close()
		if cerr := b.rdb.Close(); err == nil {
			err = cerr
		}
		b.closeErr = err
		b.logger.Info().Msg("redisbus.close ok")
	})
	return b.closeErr
}
