//go:build unix

package relay

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/chronologos/tether/internal/ipc"
)

// pollTimeoutMs bounds each readiness wait so a resize flagged with no I/O
// activity is still noticed promptly.
const pollTimeoutMs = 100

const (
	readable = unix.POLLIN | unix.POLLHUP | unix.POLLERR
	hangup   = unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
)

// PollLoop is the readiness-poll relay: one poll(2) over local input, the
// data socket and the control socket per iteration.
type PollLoop struct {
	term Terminal
	flag *ResizeFlag
}

func NewPollLoop(t Terminal, flag *ResizeFlag) *PollLoop {
	return &PollLoop{term: t, flag: flag}
}

func (l *PollLoop) Run(conn *ipc.Conn) (ExitReason, error) {
	c := newCore(conn, l.term, l.flag, "relay-poll")

	inRC, err := l.term.In.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("stdin descriptor: %w", err)
	}
	dataRC, err := conn.DataSyscallConn()
	if err != nil {
		return 0, fmt.Errorf("data descriptor: %w", err)
	}
	ctrlRC, err := conn.ControlSyscallConn()
	if err != nil {
		return 0, fmt.Errorf("control descriptor: %w", err)
	}
	rcs := []syscall.RawConn{inRC, dataRC, ctrlRC}

	inBuf := make([]byte, stdinBufSize)
	dataBuf := make([]byte, dataBufSize)
	ctrlBuf := make([]byte, ctrlBufSize)
	fds := make([]unix.PollFd, 3)

	for {
		// 1. Resize before any input, so the server never sees input
		//    against a stale size.
		if c.flag.Take() {
			if reason, done, err := c.sendResize(); done {
				return reason, err
			}
		}

		// 2. Wait for readiness.
		var n int
		var perr error
		err := borrowFds(rcs, nil, func(fd []uintptr) {
			for i := range fds {
				fds[i] = unix.PollFd{Fd: int32(fd[i]), Events: unix.POLLIN}
			}
			n, perr = unix.Poll(fds, pollTimeoutMs)
		})
		if err != nil {
			return 0, fmt.Errorf("borrow descriptors: %w", err)
		}
		if errors.Is(perr, unix.EINTR) {
			continue
		}
		if perr != nil {
			return 0, fmt.Errorf("poll: %w", perr)
		}
		if n == 0 {
			continue
		}
		stdinEv, dataEv, ctrlEv := fds[0].Revents, fds[1].Revents, fds[2].Revents

		// 3. Local input.
		if stdinEv&readable != 0 {
			nr, err := l.term.In.Read(inBuf)
			switch {
			case nr == 0 && (err == nil || errors.Is(err, io.EOF)):
				c.logger.Debug("local input closed")
				c.detachBestEffort()
				return Detached, nil
			case err != nil && nr == 0:
				c.logger.Debug("local input error", "err", err)
				c.detachBestEffort()
				return Detached, nil
			}
			if reason, done, err := c.forwardKeys(inBuf[:nr]); done {
				return reason, err
			}
		}

		// 4. Server output.
		if dataEv&unix.POLLIN != 0 {
			nr, err := conn.TryReadData(dataBuf)
			switch {
			case errors.Is(err, ipc.ErrWouldBlock):
			case errors.Is(err, io.EOF) || (err != nil && peerClosed(err)):
				c.logger.Debug("data stream closed")
				return ServerQuit, nil
			case err != nil:
				return 0, fmt.Errorf("read data: %w", err)
			default:
				if err := c.output(dataBuf[:nr]); err != nil {
					return 0, err
				}
			}
		}

		// 5. Control messages.
		if ctrlEv&readable != 0 {
			nr, err := conn.TryReadControl(ctrlBuf)
			switch {
			case errors.Is(err, ipc.ErrWouldBlock):
			case errors.Is(err, io.EOF) || (err != nil && peerClosed(err)):
				c.logger.Debug("control stream closed")
				return ServerQuit, nil
			case err != nil:
				return 0, fmt.Errorf("read control: %w", err)
			default:
				for _, line := range c.splitter.Write(ctrlBuf[:nr]) {
					if c.controlLine(line) {
						return ServerQuit, nil
					}
				}
			}
		}

		// 6. Hang-up on the data socket: flush whatever output is left,
		//    then stop.
		if dataEv&hangup != 0 {
			c.drainData(dataBuf)
			c.logger.Debug("data stream hang-up")
			return ServerQuit, nil
		}
	}
}

// drainData writes any output still buffered in the data socket.
func (c *core) drainData(buf []byte) {
	for {
		n, err := c.conn.TryReadData(buf)
		if err != nil {
			return
		}
		if c.output(buf[:n]) != nil {
			return
		}
	}
}

// borrowFds runs fn with the descriptors of every RawConn held. The
// descriptors are only valid inside fn; the Conn keeps ownership.
func borrowFds(rcs []syscall.RawConn, fds []uintptr, fn func([]uintptr)) error {
	if len(rcs) == 0 {
		fn(fds)
		return nil
	}
	var inner error
	err := rcs[0].Control(func(fd uintptr) {
		inner = borrowFds(rcs[1:], append(fds, fd), fn)
	})
	if err != nil {
		return err
	}
	return inner
}
