// Package config loads lanesight TOML files onto the service defaults and
// renders the starter template.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/lanesight/internal/framechannel"
	"github.com/danmuck/lanesight/internal/protocol/session"
	"github.com/danmuck/lanesight/internal/service"
)

var ErrInvalidValue = errors.New("config: invalid value")

// File is the on-disk layout. Keys absent from a file keep the service
// defaults.
type File struct {
	ShmName       string `toml:"shm_name"`
	Width         int    `toml:"width"`
	Height        int    `toml:"height"`
	BytesPerPixel int    `toml:"bytes_per_pixel"`
	ConditionMode string `toml:"condition_mode"`
	PollInterval  string `toml:"poll_interval"`

	CID         int    `toml:"cid"`
	SenderStamp int64  `toml:"sender_stamp"`
	SendTimeout string `toml:"send_timeout"`
	Transport   string `toml:"transport"`

	MulticastInterface string `toml:"multicast_interface"`
	MulticastTTL       int    `toml:"multicast_ttl"`
	MulticastLoopback  bool   `toml:"multicast_loopback"`
	MulticastPort      int    `toml:"multicast_port"`

	RedisAddr          string `toml:"redis_addr"`
	RedisUsername      string `toml:"redis_username"`
	RedisPassword      string `toml:"redis_password"`
	RedisDB            int    `toml:"redis_db"`
	RedisChannelPrefix string `toml:"redis_channel_prefix"`

	SecurityMode          string `toml:"security_mode"`
	TLSEnabled            bool   `toml:"tls_enabled"`
	TLSMutual             bool   `toml:"tls_mutual"`
	TLSInsecureSkipVerify bool   `toml:"tls_insecure_skip_verify"`
	TLSServerName         string `toml:"tls_server_name"`
	TLSCAFile             string `toml:"tls_ca_file"`
	TLSCertFile           string `toml:"tls_cert_file"`
	TLSKeyFile            string `toml:"tls_key_file"`

	DetectorCropRows  int `toml:"detector_crop_rows"`
	DetectorMinPixels int `toml:"detector_min_pixels"`

	PlannerFOVDegrees     float64 `toml:"planner_fov_degrees"`
	PlannerEmitAngle      bool    `toml:"planner_emit_angle"`
	PlannerEmitSteering   bool    `toml:"planner_emit_steering"`
	PlannerEmitPedal      bool    `toml:"planner_emit_pedal"`
	PlannerSteeringGain   float64 `toml:"planner_steering_gain"`
	PlannerCruisePosition float64 `toml:"planner_cruise_position"`
	PlannerStopDistance   float64 `toml:"planner_stop_distance"`
	LogDistances          bool    `toml:"log_distances"`

	AdminAddr       string `toml:"admin_addr"`
	AdminToken      string `toml:"admin_token"`
	StatusInterval  string `toml:"status_interval"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// Load decodes path over DefaultServiceConfig. The result is not validated;
// callers apply flag overrides first.
func Load(path string) (service.ServiceConfig, error) {
	var raw File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return service.ServiceConfig{}, fmt.Errorf("load lanesight config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return service.ServiceConfig{}, fmt.Errorf("%w: unknown key %q", ErrInvalidValue, undecoded[0].String())
	}
	return apply(service.DefaultServiceConfig(), raw, meta)
}

func apply(cfg service.ServiceConfig, raw File, meta toml.MetaData) (service.ServiceConfig, error) {
	var errs []error
	str := func(key, v string, dst *string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(v)
		}
	}
	duration := func(key, v string, dst *time.Duration) {
		if !meta.IsDefined(key) {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", key, err))
			return
		}
		*dst = d
	}
	integer := func(key string, v int, dst *int) {
		if meta.IsDefined(key) {
			*dst = v
		}
	}
	float := func(key string, v float64, dst *float64) {
		if meta.IsDefined(key) {
			*dst = v
		}
	}
	boolean := func(key string, v bool, dst *bool) {
		if meta.IsDefined(key) {
			*dst = v
		}
	}

	str("shm_name", raw.ShmName, &cfg.Channel.Name)
	integer("width", raw.Width, &cfg.Channel.Dims.Width)
	integer("height", raw.Height, &cfg.Channel.Dims.Height)
	integer("bytes_per_pixel", raw.BytesPerPixel, &cfg.Channel.Dims.BytesPerPixel)
	if meta.IsDefined("condition_mode") {
		mode, err := framechannel.NormalizeConditionMode(framechannel.ConditionMode(raw.ConditionMode))
		if err != nil {
			errs = append(errs, err)
		}
		cfg.Channel.ConditionMode = mode
	}
	duration("poll_interval", raw.PollInterval, &cfg.Channel.PollInterval)

	if meta.IsDefined("cid") {
		cid, err := ParseCID(raw.CID)
		if err != nil {
			errs = append(errs, err)
		}
		cfg.Session.CID = cid
	}
	if meta.IsDefined("sender_stamp") {
		if raw.SenderStamp < 0 || raw.SenderStamp > math.MaxUint32 {
			errs = append(errs, fmt.Errorf("%w: sender_stamp %d", ErrInvalidValue, raw.SenderStamp))
		} else {
			cfg.Session.SenderStamp = uint32(raw.SenderStamp)
		}
	}
	duration("send_timeout", raw.SendTimeout, &cfg.Session.SendTimeout)
	if meta.IsDefined("transport") {
		t, err := service.NormalizeTransport(service.Transport(raw.Transport))
		if err != nil {
			errs = append(errs, err)
		}
		cfg.Transport = t
	}

	str("multicast_interface", raw.MulticastInterface, &cfg.UDP.Interface)
	integer("multicast_ttl", raw.MulticastTTL, &cfg.UDP.TTL)
	boolean("multicast_loopback", raw.MulticastLoopback, &cfg.UDP.Loopback)
	integer("multicast_port", raw.MulticastPort, &cfg.UDP.Port)

	str("redis_addr", raw.RedisAddr, &cfg.Redis.Addr)
	str("redis_username", raw.RedisUsername, &cfg.Redis.Username)
	if meta.IsDefined("redis_password") {
		cfg.Redis.Password = raw.RedisPassword
	}
	integer("redis_db", raw.RedisDB, &cfg.Redis.DB)
	str("redis_channel_prefix", raw.RedisChannelPrefix, &cfg.Redis.ChannelPrefix)

	sec := &cfg.Session.Security
	if meta.IsDefined("security_mode") {
		sec.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(raw.SecurityMode))
	}
	boolean("tls_enabled", raw.TLSEnabled, &sec.TLS.Enabled)
	boolean("tls_mutual", raw.TLSMutual, &sec.TLS.Mutual)
	boolean("tls_insecure_skip_verify", raw.TLSInsecureSkipVerify, &sec.TLS.InsecureSkipVerify)
	str("tls_server_name", raw.TLSServerName, &sec.TLS.ServerName)
	str("tls_ca_file", raw.TLSCAFile, &sec.TLS.CAFile)
	str("tls_cert_file", raw.TLSCertFile, &sec.TLS.CertFile)
	str("tls_key_file", raw.TLSKeyFile, &sec.TLS.KeyFile)

	integer("detector_crop_rows", raw.DetectorCropRows, &cfg.Detector.CropRows)
	integer("detector_min_pixels", raw.DetectorMinPixels, &cfg.Detector.MinPixels)

	pl := &cfg.Pipeline.Planner
	float("planner_fov_degrees", raw.PlannerFOVDegrees, &pl.FOVDegrees)
	boolean("planner_emit_angle", raw.PlannerEmitAngle, &pl.EmitAngle)
	boolean("planner_emit_steering", raw.PlannerEmitSteering, &pl.EmitSteering)
	boolean("planner_emit_pedal", raw.PlannerEmitPedal, &pl.EmitPedal)
	float("planner_steering_gain", raw.PlannerSteeringGain, &pl.SteeringGain)
	float("planner_cruise_position", raw.PlannerCruisePosition, &pl.CruisePosition)
	float("planner_stop_distance", raw.PlannerStopDistance, &pl.StopDistance)
	boolean("log_distances", raw.LogDistances, &cfg.Pipeline.LogDistances)

	str("admin_addr", raw.AdminAddr, &cfg.AdminListenAddr)
	str("admin_token", raw.AdminToken, &cfg.AdminToken)
	duration("status_interval", raw.StatusInterval, &cfg.StatusInterval)
	duration("shutdown_timeout", raw.ShutdownTimeout, &cfg.ShutdownTimeout)

	if err := errors.Join(errs...); err != nil {
		return service.ServiceConfig{}, err
	}
	return cfg, nil
}

// ParseCID range-checks a conference id read as a plain integer.
func ParseCID(v int) (uint16, error) {
	if v < 1 || v > math.MaxUint16 {
		return 0, fmt.Errorf("%w: cid %d", ErrInvalidValue, v)
	}
	return uint16(v), nil
}

// FromService flattens cfg into the on-disk layout.
func FromService(cfg service.ServiceConfig) File {
	sec := cfg.Session.Security
	pl := cfg.Pipeline.Planner
	return File{
		ShmName:       cfg.Channel.Name,
		Width:         cfg.Channel.Dims.Width,
		Height:        cfg.Channel.Dims.Height,
		BytesPerPixel: cfg.Channel.Dims.BytesPerPixel,
		ConditionMode: string(cfg.Channel.ConditionMode),
		PollInterval:  cfg.Channel.PollInterval.String(),

		CID:         int(cfg.Session.CID),
		SenderStamp: int64(cfg.Session.SenderStamp),
		SendTimeout: cfg.Session.SendTimeout.String(),
		Transport:   string(cfg.Transport),

		MulticastInterface: cfg.UDP.Interface,
		MulticastTTL:       cfg.UDP.TTL,
		MulticastLoopback:  cfg.UDP.Loopback,
		MulticastPort:      cfg.UDP.Port,

		RedisAddr:          cfg.Redis.Addr,
		RedisUsername:      cfg.Redis.Username,
		RedisPassword:      cfg.Redis.Password,
		RedisDB:            cfg.Redis.DB,
		RedisChannelPrefix: cfg.Redis.ChannelPrefix,

		SecurityMode:          string(sec.SecurityMode),
		TLSEnabled:            sec.TLS.Enabled,
		TLSMutual:             sec.TLS.Mutual,
		TLSInsecureSkipVerify: sec.TLS.InsecureSkipVerify,
		TLSServerName:         sec.TLS.ServerName,
		TLSCAFile:             sec.TLS.CAFile,
		TLSCertFile:           sec.TLS.CertFile,
		TLSKeyFile:            sec.TLS.KeyFile,

		DetectorCropRows:  cfg.Detector.CropRows,
		DetectorMinPixels: cfg.Detector.MinPixels,

		PlannerFOVDegrees:     pl.FOVDegrees,
		PlannerEmitAngle:      pl.EmitAngle,
		PlannerEmitSteering:   pl.EmitSteering,
		PlannerEmitPedal:      pl.EmitPedal,
		PlannerSteeringGain:   pl.SteeringGain,
		PlannerCruisePosition: pl.CruisePosition,
		PlannerStopDistance:   pl.StopDistance,
		LogDistances:          cfg.Pipeline.LogDistances,

		AdminAddr:       cfg.AdminListenAddr,
		AdminToken:      cfg.AdminToken,
		StatusInterval:  cfg.StatusInterval.String(),
		ShutdownTimeout: cfg.ShutdownTimeout.String(),
	}
}

const redacted = "<redacted>"

// Redacted blanks credentials for display. Empty values stay empty so an
// unset secret is still visible as unset.
func (f File) Redacted() File {
	if f.RedisPassword != "" {
		f.RedisPassword = redacted
	}
	if f.AdminToken != "" {
		f.AdminToken = redacted
	}
	return f
}
