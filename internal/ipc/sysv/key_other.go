//go:build !linux

package sysv

func Key(path string, projectID int) (int, error) {
	return 0, ErrUnsupported
}
