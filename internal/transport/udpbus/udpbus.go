// Package udpbus carries OD4 frames over UDP multicast. Conference cid maps
// to group 225.0.0.<cid> on a shared port.
package udpbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/lanesight/internal/observability"
	"github.com/danmuck/lanesight/internal/protocol/session"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
)

const (
	DefaultPort = 12175
	// MaxDatagram is the largest IPv4 UDP payload.
	MaxDatagram = 65507
)

var ErrInvalidCID = errors.New("udpbus: cid must be in 1..254")

type Config struct {
	// Interface names the NIC used for join and send. Empty uses the
	// system default.
	Interface string
	TTL       int
	Loopback  bool
	// Port 0 binds an ephemeral port; the group address then uses it.
	Port int
}

func DefaultConfig() Config {
	return Config{
		TTL:      1,
		Loopback: true,
		Port:     DefaultPort,
	}
}

func GroupAddr(cid uint16) (net.IP, error) {
	if cid < 1 || cid > 254 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCID, cid)
	}
	return net.IPv4(225, 0, 0, byte(cid)).To4(), nil
}

// Bus is one joined multicast socket. It implements session.Transport.
type Bus struct {
	conn   net.PacketConn
	pc     *ipv4.PacketConn
	ifi    *net.Interface
	group  *net.UDPAddr
	logger zerolog.Logger

	readMu    sync.Mutex
	buf       []byte
	closeOnce sync.Once
	closeErr  error
}

func Dialer(cfg Config) session.Dialer {
	return func(ctx context.Context, cid uint16) (session.Transport, error) {
		return Dial(ctx, cid, cfg)
	}
}

func Dial(ctx context.Context, cid uint16, cfg Config) (*Bus, error) {
	ip, err := GroupAddr(cid)
	if err != nil {
		return nil, err
	}
	var ifi *net.Interface
	if cfg.Interface != "" {
		ifi, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("udpbus: interface %q: %w", cfg.Interface, err)
		}
	}

	lc := net.ListenConfig{Control: reuseAddr}
	conn, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("udpbus: listen: %w", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	group := &net.UDPAddr{IP: ip, Port: port}

	pc := ipv4.NewPacketConn(conn)
	if err := setup(pc, ifi, group, cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	b := &Bus{
		conn:  conn,
		pc:    pc,
		ifi:   ifi,
		group: group,
		logger: observability.Component("udpbus").With().
			Uint16("cid", cid).
			Str("group", group.String()).
			Logger(),
		buf: make([]byte, MaxDatagram),
	}
	b.logger.Info().Int("ttl", cfg.TTL).Bool("loopback", cfg.Loopback).Msg("udpbus.join ok")
	return b, nil
}

func setup(pc *ipv4.PacketConn, ifi *net.Interface, group *net.UDPAddr, cfg Config) error {
	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: group.IP}); err != nil {
		return fmt.Errorf("udpbus: join %s: %w", group.IP, err)
	}
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			return fmt.Errorf("udpbus: multicast interface: %w", err)
		}
	}
	if cfg.TTL > 0 {
		if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
			return fmt.Errorf("udpbus: multicast ttl: %w", err)
		}
	}
	if err := pc.SetMulticastLoopback(cfg.Loopback); err != nil {
		return fmt.Errorf("udpbus: multicast loopback: %w", err)
	}
	// Other groups on the same port share the wildcard bind; the
	// destination address lets Receive drop them.
	if err := pc.SetControlMessage(ipv4.FlagDst, true); err != nil {
		return fmt.Errorf("udpbus: control message: %w", err)
	}
	return nil
}

func (b *Bus) Group() *net.UDPAddr {
	return &net.UDPAddr{IP: b.group.IP, Port: b.group.Port}
}

func (b *Bus) Port() int {
	return b.group.Port
}

func (b *Bus) Send(ctx context.Context, p []byte) error {
	if len(p) > MaxDatagram {
		return fmt.Errorf("udpbus: datagram too large: %d", len(p))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := b.pc.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err := b.pc.WriteTo(p, nil, b.group)
	return err
}

// Receive returns the next datagram addressed to this bus's group.
func (b *Bus) Receive(ctx context.Context) ([]byte, error) {
	b.readMu.Lock()
	defer b.readMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = b.pc.SetReadDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			_ = b.pc.SetReadDeadline(time.Time{})
		}
	}()

	for {
		n, cm, _, err := b.pc.ReadFrom(b.buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if cm != nil && cm.Dst != nil && !cm.Dst.Equal(b.group.IP) {
			continue
		}
		out := make([]byte, n)
		copy(out, b.buf[:n])
		return out, nil
	}
}

func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		_ = b.pc.LeaveGroup(b.ifi, &net.UDPAddr{IP: b.group.IP})
		b.closeErr = b.conn.Close()
		b.logger.Info().Msg("udpbus.leave ok")
	})
	return b.closeErr
}
