//go:build !windows

package util

import (
	"time"

	"golang.org/x/sys/unix"
)

// PipesPollable reports whether PollReadable really waits on pipe descriptors.
const PipesPollable = true

// PollReadable waits up to timeout for any of fds to become readable.
// Hang-up and error conditions count as readable so the caller's read
// observes them. An interrupted wait reports nothing ready.
func PollReadable(fds []uintptr, timeout time.Duration) ([]bool, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	ready := make([]bool, len(fds))
	ms := int(timeout / time.Millisecond)
	if timeout < 0 {
		ms = -1
	}
	_, err := unix.Poll(pfds, ms)
	if err == unix.EINTR {
		return ready, nil
	}
	if err != nil {
		return ready, err
	}
	for i := range pfds {
		ready[i] = pfds[i].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
	}
	return ready, nil
}
