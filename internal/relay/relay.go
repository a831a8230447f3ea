// Package relay implements the client main loop: it forwards local terminal
// input to the server's data stream, server output to the local terminal,
// and watches the control stream for Quit.
//
// There is one Loop per host I/O model. Hosts with a readiness primitive
// over arbitrary descriptors (unix) use PollLoop; hosts with only a
// terminal event queue (windows) use EventLoop. New picks the right one at
// build time. Neither spawns goroutines of its own: everything happens on
// the caller's goroutine, and the resize flag is the only state written
// from outside it.
package relay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/chronologos/tether/internal/ipc"
	"github.com/chronologos/tether/internal/protocol"
)

// ExitReason says why a Loop returned.
type ExitReason int

const (
	// Detached: local input ended or the user asked to leave. The server
	// keeps running.
	Detached ExitReason = iota
	// ServerQuit: the server closed the connection or sent Quit.
	ServerQuit
)

func (r ExitReason) String() string {
	switch r {
	case Detached:
		return "detached"
	case ServerQuit:
		return "server quit"
	default:
		return fmt.Sprintf("ExitReason(%d)", int(r))
	}
}

// Loop runs until the client detaches or the server goes away. Errors are
// returned only for failures that are neither: the caller should exit
// non-zero.
type Loop interface {
	Run(conn *ipc.Conn) (ExitReason, error)
}

// Terminal is the local side of the relay.
type Terminal struct {
	In  *os.File
	Out io.Writer
	// Size reports the terminal dimensions. It may be nil when the input
	// is not a terminal.
	Size func() (cols, rows int, err error)
	// Escape enables the ~. detach sequence on local input.
	Escape bool
	// Logger receives debug output; nil discards.
	Logger *slog.Logger
}

// ResizeFlag is set asynchronously when the terminal size changes and
// consumed once per loop iteration.
type ResizeFlag struct {
	set atomic.Bool
}

// Set marks a pending resize. Safe to call from any goroutine.
func (f *ResizeFlag) Set() { f.set.Store(true) }

// Take reports whether a resize was pending and clears it.
func (f *ResizeFlag) Take() bool { return f.set.Swap(false) }

const (
	stdinBufSize = 4096
	dataBufSize  = 32 * 1024
	ctrlBufSize  = 1024
)

// core holds what both loop variants share: the connection, the local
// terminal, and control-stream reassembly.
type core struct {
	conn     *ipc.Conn
	term     Terminal
	flag     *ResizeFlag
	logger   *slog.Logger
	escape   *EscapeFilter
	splitter protocol.LineSplitter
	fwd      []byte // scratch for escape-filtered input
}

func newCore(conn *ipc.Conn, t Terminal, flag *ResizeFlag, component string) *core {
	logger := t.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if flag == nil {
		flag = new(ResizeFlag)
	}
	c := &core{
		conn:   conn,
		term:   t,
		flag:   flag,
		logger: logger.With("component", component),
		fwd:    make([]byte, 0, stdinBufSize),
	}
	if t.Escape {
		c.escape = NewEscapeFilter()
	}
	return c
}

// peerClosed reports whether err means the server end of a stream is gone.
func peerClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// forwardKeys sends typed bytes to the server, applying the escape filter.
// done is set when the loop must stop with reason.
func (c *core) forwardKeys(p []byte) (reason ExitReason, done bool, err error) {
	if c.escape != nil {
		var detach bool
		c.fwd, detach = c.escape.Filter(c.fwd[:0], p)
		p = c.fwd
		if detach {
			c.logger.Debug("escape sequence, detaching")
			if len(p) > 0 {
				c.conn.WriteData(p)
			}
			c.detachBestEffort()
			return Detached, true, nil
		}
	}
	return c.forward(p)
}

// forward sends bytes to the server unfiltered.
func (c *core) forward(p []byte) (reason ExitReason, done bool, err error) {
	if len(p) == 0 {
		return 0, false, nil
	}
	if err := c.conn.WriteData(p); err != nil {
		if peerClosed(err) {
			return ServerQuit, true, nil
		}
		return 0, true, fmt.Errorf("write data: %w", err)
	}
	return 0, false, nil
}

// output copies server bytes to the local terminal.
func (c *core) output(p []byte) error {
	if _, err := c.term.Out.Write(p); err != nil {
		return fmt.Errorf("write terminal: %w", err)
	}
	return nil
}

// controlLine handles one complete control record and reports whether it
// was Quit. Anything unparseable is dropped.
func (c *core) controlLine(line []byte) (quit bool) {
	msg, err := protocol.Decode(line)
	if err != nil {
		c.logger.Debug("dropping control message", "err", err)
		return false
	}
	switch m := msg.(type) {
	case *protocol.Quit:
		c.logger.Debug("server sent quit", "reason", m.Reason)
		return true
	case *protocol.Hello:
		c.logger.Debug("attached", "session", m.Session, "server_version", m.Version)
	}
	return false
}

// sendResize reports the current size if it can be determined.
func (c *core) sendResize() (reason ExitReason, done bool, err error) {
	if c.term.Size == nil {
		return 0, false, nil
	}
	cols, rows, err := c.term.Size()
	if err != nil {
		c.logger.Debug("terminal size unavailable", "err", err)
		return 0, false, nil
	}
	return c.sendResizeTo(cols, rows)
}

func (c *core) sendResizeTo(cols, rows int) (reason ExitReason, done bool, err error) {
	if err := c.conn.WriteControl(ResizeMessage(cols, rows)); err != nil {
		if peerClosed(err) {
			return ServerQuit, true, nil
		}
		return 0, true, fmt.Errorf("send resize: %w", err)
	}
	return 0, false, nil
}

// detachBestEffort tells the server we are leaving. The client exits
// either way, so a failed write is ignored.
func (c *core) detachBestEffort() {
	if err := c.conn.WriteControl(&protocol.Detach{}); err != nil {
		c.logger.Debug("detach not delivered", "err", err)
	}
}

// ResizeMessage builds a Resize for a terminal of cols×rows, clamping both
// to the wire range.
func ResizeMessage(cols, rows int) *protocol.Resize {
	return &protocol.Resize{Cols: clampU16(cols), Rows: clampU16(rows)}
}

func clampU16(n int) uint16 {
	switch {
	case n < 0:
		return 0
	case n > 0xffff:
		return 0xffff
	}
	return uint16(n)
}
