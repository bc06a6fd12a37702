//go:build linux

package sysv

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Key derives an IPC key from an existing path and a project id with the
// same bit layout as glibc ftok(3), so keys match those computed by
// producers written against libc.
func Key(path string, projectID int) (int, error) {
	if projectID <= 0 || projectID > 0xff {
		return 0, fmt.Errorf("%w: %d", ErrInvalidProject, projectID)
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, fmt.Errorf("sysv: stat %s: %w", path, err)
	}
	return keyFromStat(uint64(st.Dev), uint64(st.Ino), projectID), nil
}

func keyFromStat(dev, ino uint64, projectID int) int {
	k := uint32(projectID&0xff)<<24 | uint32(dev&0xff)<<16 | uint32(ino&0xffff)
	return int(int32(k))
}
