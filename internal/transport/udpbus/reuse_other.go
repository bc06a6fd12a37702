//go:build !unix

package udpbus

import "syscall"

func reuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
