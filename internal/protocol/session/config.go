package session

import (
	"time"

	"github.com/danmuck/lanesight/internal/protocol"
)

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	InsecureSkipVerify bool
	ServerName         string
	CAFile             string
	CertFile           string
	KeyFile            string
}

// TransportSecurity is applied by transports that can run over TLS.
// The UDP multicast bus ignores it.
type TransportSecurity struct {
	SecurityMode SecurityMode
	TLS          TLSConfig
}

// Config defines session identity and send behavior.
type Config struct {
	CID         uint16
	SenderStamp uint32
	SendTimeout time.Duration
	Security    TransportSecurity
}

func DefaultConfig() Config {
	return Config{
		CID:         protocol.CIDReplay,
		SenderStamp: 0,
		SendTimeout: time.Second,
		Security: TransportSecurity{
			SecurityMode: SecurityModeDevelopment,
		},
	}
}
