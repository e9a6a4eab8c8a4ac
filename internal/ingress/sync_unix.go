//go:build unix

package ingress

import (
	"golang.org/x/sys/unix"
)

// syncDir fsyncs a directory so a completed two-phase publish is durable
// across a crash, best-effort: a failure here is silently ignored and never
// reported to the caller, since the rename it follows already succeeded.
func syncDir(dir string) {
	fd, err := unix.Open(dir, unix.O_RDONLY, 0)
	if err != nil {
		return
	}
	defer unix.Close(fd)
	_ = unix.Fsync(fd)
}
