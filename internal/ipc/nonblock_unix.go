//go:build !windows

package ipc

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// tryRead performs exactly one read(2) on the socket. The runtime keeps
// network descriptors in non-blocking mode, so an empty socket reports
// EAGAIN instead of parking the goroutine.
func tryRead(c streamConn, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	rc, err := c.SyscallConn()
	if err != nil {
		return 0, err
	}

	var n int
	var rerr error
	err = rc.Read(func(fd uintptr) bool {
		n, rerr = unix.Read(int(fd), p)
		return true // never wait for readiness
	})
	if err != nil {
		return 0, err
	}

	switch {
	case errors.Is(rerr, unix.EAGAIN), errors.Is(rerr, unix.EINTR):
		return 0, ErrWouldBlock
	case rerr != nil:
		return 0, rerr
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}
