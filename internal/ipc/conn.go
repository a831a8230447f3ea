// Package ipc carries one client's data and control streams over a pair of
// Unix-domain stream sockets.
//
// The data stream is raw, unframed bytes in both directions: keystrokes
// toward the server, rendered ANSI output toward the client. The control
// stream carries newline-delimited protocol messages. The two sockets are
// created together by Dial or Listener.Accept and closed together by
// Conn.Close.
package ipc

import (
	"bufio"
	"errors"
	"sync"
	"syscall"

	"github.com/chronologos/tether/internal/protocol"
)

// ErrWouldBlock is returned by the TryRead methods when no bytes are ready.
// It is transient: callers retry on a later iteration.
var ErrWouldBlock = errors.New("ipc: operation would block")

// streamConn is the subset of *net.UnixConn a Conn needs.
type streamConn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	syscall.Conn
}

// Conn is one attached client's pair of streams.
//
// Blocking control reads (ReadControl) buffer internally; do not mix them
// with TryReadControl or TryReadControlByte on the same Conn. The server
// uses the blocking form, relay loops use the non-blocking forms.
type Conn struct {
	id   string
	data streamConn
	ctrl streamConn

	ctrlReader *bufio.Reader

	ctrlMu sync.Mutex // serializes control writes
	dataMu sync.Mutex // serializes data writes

	closeOnce sync.Once
	closeErr  error
}

func newConn(id string, data, ctrl streamConn) *Conn {
	return &Conn{
		id:         id,
		data:       data,
		ctrl:       ctrl,
		ctrlReader: bufio.NewReaderSize(ctrl, 4096),
	}
}

// ID returns the client identifier exchanged in the handshake.
func (c *Conn) ID() string { return c.id }

// WriteData writes raw bytes to the data stream.
func (c *Conn) WriteData(p []byte) error {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	_, err := c.data.Write(p)
	return err
}

// ReadData blocks until data is available. It returns io.EOF when the peer
// has shut down.
func (c *Conn) ReadData(p []byte) (int, error) {
	return c.data.Read(p)
}

// TryReadData reads whatever is ready on the data stream without blocking.
// It returns ErrWouldBlock when nothing is ready and io.EOF when the peer
// has shut down.
func (c *Conn) TryReadData(p []byte) (int, error) {
	return tryRead(c.data, p)
}

// WriteControl encodes msg as one line on the control stream.
func (c *Conn) WriteControl(msg any) error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()
	return protocol.WriteControl(c.ctrl, msg)
}

// ReadControl blocks for the next control message. Decode failures are
// returned wrapped in protocol.ErrMalformed or protocol.ErrUnknownMessage
// and leave the stream positioned at the next record.
func (c *Conn) ReadControl() (any, error) {
	return protocol.ReadControl(c.ctrlReader)
}

// TryReadControl reads whatever control bytes are ready without blocking.
// Feed the result to a protocol.LineSplitter.
func (c *Conn) TryReadControl(p []byte) (int, error) {
	return tryRead(c.ctrl, p)
}

// TryReadControlByte reads at most one control byte without blocking.
func (c *Conn) TryReadControlByte() (byte, error) {
	var b [1]byte
	if _, err := tryRead(c.ctrl, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// DataSyscallConn exposes the data socket's descriptor for readiness
// polling. The descriptor must only be used inside RawConn.Control.
func (c *Conn) DataSyscallConn() (syscall.RawConn, error) {
	return c.data.SyscallConn()
}

// ControlSyscallConn exposes the control socket's descriptor. See
// DataSyscallConn.
func (c *Conn) ControlSyscallConn() (syscall.RawConn, error) {
	return c.ctrl.SyscallConn()
}

// Close closes both streams. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = errors.Join(c.data.Close(), c.ctrl.Close())
	})
	return c.closeErr
}
