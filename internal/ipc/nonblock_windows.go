package ipc

import (
	"errors"
	"os"
	"time"
)

// deadliner is implemented by *net.UnixConn.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// pollWindow bounds how long a "non-blocking" read may wait. Windows has no
// readiness primitive over AF_UNIX handles that the runtime exposes, so a
// short deadline stands in for O_NONBLOCK.
const pollWindow = time.Millisecond

func tryRead(c streamConn, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	d, ok := c.(deadliner)
	if !ok {
		return c.Read(p)
	}
	if err := d.SetReadDeadline(time.Now().Add(pollWindow)); err != nil {
		return 0, err
	}
	n, err := c.Read(p)
	d.SetReadDeadline(time.Time{})

	if errors.Is(err, os.ErrDeadlineExceeded) {
		if n > 0 {
			return n, nil
		}
		return 0, ErrWouldBlock
	}
	return n, err
}
