// Package sysv owns System V IPC primitives used for frame exchange.
//
// Ownership boundary:
// - ftok-compatible key derivation
// - shared memory segment attach/read/write/detach
// - semaphore wait/post/wait-for-zero with optional polling cancellation
//
// Only linux/amd64 and linux/arm64 carry a real implementation; every other
// platform returns ErrUnsupported.
package sysv
