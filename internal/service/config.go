package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/lanesight/internal/detect"
	"github.com/danmuck/lanesight/internal/framechannel"
	"github.com/danmuck/lanesight/internal/pipeline"
	"github.com/danmuck/lanesight/internal/protocol/session"
	"github.com/danmuck/lanesight/internal/transport/redisbus"
	"github.com/danmuck/lanesight/internal/transport/udpbus"
)

var (
	ErrInvalidTransport      = errors.New("service: invalid transport")
	ErrInvalidCID            = errors.New("service: invalid cid")
	ErrInvalidStatusInterval = errors.New("service: invalid status interval")
)

type Transport string

const (
	TransportUDP   Transport = "udp"
	TransportRedis Transport = "redis"
)

func NormalizeTransport(t Transport) (Transport, error) {
	switch v := Transport(strings.ToLower(strings.TrimSpace(string(t)))); v {
	case "":
		return TransportUDP, nil
	case TransportUDP, TransportRedis:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransport, t)
	}
}

// ServiceConfig configures one lanesight process.
type ServiceConfig struct {
	Channel         framechannel.Config
	Session         session.Config
	Transport       Transport
	UDP             udpbus.Config
	Redis           redisbus.Config
	Detector        detect.ConeConfig
	Pipeline        pipeline.Config
	AdminListenAddr string
	// AdminToken, when set, is required as a bearer token on /state and
	// /metrics.
	AdminToken      string
	StatusInterval  time.Duration
	ShutdownTimeout time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Channel:         framechannel.DefaultConfig(),
		Session:         session.DefaultConfig(),
		Transport:       TransportUDP,
		UDP:             udpbus.DefaultConfig(),
		Redis:           redisbus.DefaultConfig(),
		Detector:        detect.DefaultConeConfig(),
		Pipeline:        pipeline.DefaultConfig(),
		AdminListenAddr: "",
		StatusInterval:  10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

func (c ServiceConfig) Validate() error {
	if err := c.Channel.Dims.Validate(); err != nil {
		return err
	}
	if _, err := framechannel.NormalizeConditionMode(c.Channel.ConditionMode); err != nil {
		return err
	}
	transport, err := NormalizeTransport(c.Transport)
	if err != nil {
		return err
	}
	if transport == TransportUDP {
		if _, err := udpbus.GroupAddr(c.Session.CID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCID, err)
		}
	}
	if transport == TransportRedis {
		if err := c.Session.Security.ValidateClientTransport(); err != nil {
			return err
		}
	}
	if c.StatusInterval <= 0 {
		return ErrInvalidStatusInterval
	}
	return nil
}
