package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/cancelreader"

	"github.com/chronologos/tether/internal/ipc"
)

const eventPollTimeout = time.Millisecond

// EventSource yields decoded terminal events. Poll returns (nil, nil) when
// nothing arrived within timeout.
type EventSource interface {
	Poll(timeout time.Duration) (uv.Event, error)
}

// TerminalEventSource decodes events from a terminal input stream. On
// windows the cancel reader reads console input records, so window size
// changes arrive as events.
type TerminalEventSource struct {
	cr     cancelreader.CancelReader
	events chan uv.Event
	errc   chan error
	cancel context.CancelFunc
	err    error
}

// TerminalEvents starts decoding in and returns the source. termType is
// the terminal name used for key table lookups ($TERM).
func TerminalEvents(ctx context.Context, in io.Reader, termType string) (*TerminalEventSource, error) {
	cr, err := uv.NewCancelReader(in)
	if err != nil {
		return nil, fmt.Errorf("terminal reader: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &TerminalEventSource{
		cr:     cr,
		events: make(chan uv.Event, 64),
		errc:   make(chan error, 1),
		cancel: cancel,
	}
	tr := uv.NewTerminalReader(cr, termType)
	go func() {
		s.errc <- tr.StreamEvents(ctx, s.events)
	}()
	return s, nil
}

// Poll waits up to timeout for the next event. The end of input is
// reported as io.EOF.
func (s *TerminalEventSource) Poll(timeout time.Duration) (uv.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	// Drain buffered events before reporting the stream end.
	select {
	case ev := <-s.events:
		return ev, nil
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ev := <-s.events:
		return ev, nil
	case err := <-s.errc:
		if err == nil {
			err = io.EOF
		}
		s.err = err
		return nil, err
	case <-t.C:
		return nil, nil
	}
}

// Close stops decoding and releases the input.
func (s *TerminalEventSource) Close() error {
	s.cancel()
	s.cr.Cancel()
	return s.cr.Close()
}

// EventLoop is the event-poll relay: it polls the terminal event queue,
// then each stream, without blocking on any of them.
type EventLoop struct {
	term   Terminal
	flag   *ResizeFlag
	source EventSource
}

// NewEventLoop returns an EventLoop reading from source. A nil source is
// replaced at Run by one decoding t.In.
func NewEventLoop(t Terminal, flag *ResizeFlag, source EventSource) *EventLoop {
	return &EventLoop{term: t, flag: flag, source: source}
}

func (l *EventLoop) Run(conn *ipc.Conn) (ExitReason, error) {
	c := newCore(conn, l.term, l.flag, "relay-event")

	source := l.source
	if source == nil {
		ts, err := TerminalEvents(context.Background(), l.term.In, termType())
		if err != nil {
			c.detachBestEffort()
			return Detached, nil
		}
		defer ts.Close()
		source = ts
	}

	var lastCols, lastRows int
	if l.term.Size != nil {
		lastCols, lastRows, _ = l.term.Size()
	}

	dataBuf := make([]byte, dataBufSize)

	for {
		active := false

		// 1. Terminal events.
		ev, err := source.Poll(eventPollTimeout)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("event poll failed", "err", err)
			}
			c.detachBestEffort()
			return Detached, nil
		}
		if ev != nil {
			active = true
			reason, done, err := c.handleEvent(ev, &lastCols, &lastRows)
			if done {
				return reason, err
			}
		}

		// 2. Server output.
		n, err := conn.TryReadData(dataBuf)
		switch {
		case errors.Is(err, ipc.ErrWouldBlock):
		case err != nil && peerClosed(err):
			c.logger.Debug("data stream closed")
			return ServerQuit, nil
		case err != nil:
			return 0, fmt.Errorf("read data: %w", err)
		default:
			active = true
			if err := c.output(dataBuf[:n]); err != nil {
				return 0, err
			}
		}

		// 3. One control byte.
		b, err := conn.TryReadControlByte()
		switch {
		case errors.Is(err, ipc.ErrWouldBlock):
		case err != nil && peerClosed(err):
			c.logger.Debug("control stream closed")
			return ServerQuit, nil
		case err != nil:
			return 0, fmt.Errorf("read control: %w", err)
		default:
			active = true
			if line, ok := c.splitter.Feed(b); ok && c.controlLine(line) {
				return ServerQuit, nil
			}
		}

		// 4. Size changes not delivered as events.
		if c.term.Size != nil {
			cols, rows, err := c.term.Size()
			changed := err == nil && (cols != lastCols || rows != lastRows)
			if changed || c.flag.Take() {
				if err == nil {
					lastCols, lastRows = cols, rows
					c.resizeBestEffort(cols, rows)
				}
			}
		} else {
			c.flag.Take()
		}

		if !active {
			time.Sleep(time.Millisecond)
		}
	}
}

// handleEvent translates one terminal event into data or control traffic.
func (c *core) handleEvent(ev uv.Event, lastCols, lastRows *int) (ExitReason, bool, error) {
	switch e := ev.(type) {
	case uv.MultiEvent:
		for _, sub := range e {
			if reason, done, err := c.handleEvent(sub, lastCols, lastRows); done {
				return reason, done, err
			}
		}
	case uv.KeyPressEvent:
		return c.forwardKeys(EncodeKey(uv.Key(e)))
	case uv.MouseEvent:
		return c.forward(EncodeMouse(e))
	case uv.PasteEvent:
		p := make([]byte, 0, len(e.Content)+len(ansi.BracketedPasteStart)+len(ansi.BracketedPasteEnd))
		p = append(p, ansi.BracketedPasteStart...)
		p = append(p, e.Content...)
		p = append(p, ansi.BracketedPasteEnd...)
		return c.forward(p)
	case uv.WindowSizeEvent:
		*lastCols, *lastRows = e.Width, e.Height
		c.resizeBestEffort(e.Width, e.Height)
	}
	// Key releases, focus, blur and terminal reports are not forwarded.
	return 0, false, nil
}

func (c *core) resizeBestEffort(cols, rows int) {
	if _, _, err := c.sendResizeTo(cols, rows); err != nil {
		c.logger.Debug("resize not delivered", "err", err)
	}
}

func termType() string {
	if t := os.Getenv("TERM"); t != "" {
		return t
	}
	return "xterm-256color"
}
