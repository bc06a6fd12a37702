//go:build !linux || !(amd64 || arm64)

package framechannel

import (
	"fmt"

	"github.com/danmuck/lanesight/internal/ipc/sysv"
)

func Open(cfg Config) (*Channel, error) {
	return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, sysv.ErrUnsupported)
}
