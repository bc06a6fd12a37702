//go:build unix

package udpbus

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr lets several processes on one host share the bus port.
func reuseAddr(_, _ string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
