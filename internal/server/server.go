// Package server runs the long-lived half of a session: it owns the
// engine, accepts client connections, turns client input into engine
// events and sends every client the frames the engine draws.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	uv "github.com/charmbracelet/ultraviolet"

	"github.com/chronologos/tether/internal/coalesce"
	"github.com/chronologos/tether/internal/daemon"
	"github.com/chronologos/tether/internal/engine"
	"github.com/chronologos/tether/internal/ipc"
	"github.com/chronologos/tether/internal/protocol"
	"github.com/chronologos/tether/internal/render"
)

const (
	defaultCols = 80
	defaultRows = 24

	// inputTermType selects the key table used to decode client input.
	// Clients forward raw xterm-style sequences.
	inputTermType = "xterm-256color"

	streamControl = "control"
	streamData    = "data"
)

// ErrSessionActive is returned by Run when another live server already
// owns the session.
var ErrSessionActive = errors.New("session already has a running server")

// Config holds server configuration.
type Config struct {
	Session   string
	SocketDir string
	Engine    engine.Engine
	Logger    *slog.Logger
	// FrameInterval bounds how long input is batched before a frame is
	// drawn. Zero selects coalesce.DefaultDelay.
	FrameInterval time.Duration
	// Version is reported to clients in Hello.
	Version string
}

// streamEvent is a tagged message from a connection's reader goroutine.
// Tagging with the source connection lets the select loop discard events
// from clients that are already gone.
type streamEvent struct {
	conn   *ipc.Conn
	stream string // streamControl or streamData
	msg    any    // control message or uv.Event (nil if error)
	err    error
}

// client is one attached terminal.
type client struct {
	conn    *ipc.Conn
	capture *render.Capture
	prev    *uv.Buffer // last frame sent, nil forces a full frame
}

// Server is the server-side half of a detachable session.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	ln      *ipc.Listener
	eng     engine.Engine
	clients map[*ipc.Conn]*client
	input   *coalesce.Coalescer[uv.Event]

	cols, rows int
	frame      *uv.Buffer
	cursor     uv.Position
	visible    bool

	// Ready is closed once the listener is bound and the PID file written.
	// Callers (tests, CLI) can wait on this before dialing.
	Ready chan struct{}
}

// New creates a server but does not start it. Call Run to begin.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	eng := cfg.Engine
	if eng == nil {
		eng = engine.NewScratch(cfg.Session)
	}
	return &Server{
		cfg:     cfg,
		logger:  logger.With("component", "server", "session", cfg.Session),
		eng:     eng,
		clients: make(map[*ipc.Conn]*client),
		cols:    defaultCols,
		rows:    defaultRows,
		Ready:   make(chan struct{}),
	}
}

// Run listens for clients and serves the session until the engine quits
// or ctx is cancelled. Every attached client is sent Quit before Run
// returns.
func (s *Server) Run(ctx context.Context) error {
	dir := s.cfg.SocketDir
	if pid, ok, err := daemon.ReadPIDFile(dir, s.cfg.Session); err == nil && ok &&
		pid != os.Getpid() && daemon.New(daemon.Config{}).IsProcessRunning(pid) {
		return fmt.Errorf("%w: %s (pid %d)", ErrSessionActive, s.cfg.Session, pid)
	}

	ln, err := ipc.Listen(dir, s.cfg.Session, s.logger)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.ln = ln
	if _, err := daemon.WritePIDFile(dir, s.cfg.Session); err != nil {
		ln.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.closeAll()
		s.ln.Close()
		if err := daemon.RemovePIDFile(dir, s.cfg.Session); err != nil {
			s.logger.Warn("remove pid file", "err", err)
		}
	}()

	s.input = coalesce.New[uv.Event](s.cfg.FrameInterval, 0)
	defer s.input.Stop()

	s.eng.Resize(s.cols, s.rows)
	s.draw()

	close(s.Ready)
	s.logger.Info("server ready", "dir", dir, "pid", os.Getpid())

	acceptCh := make(chan acceptResult, 1)
	go s.acceptLoop(ctx, acceptCh)

	streamCh := make(chan streamEvent, 64)

	for {
		select {
		case res := <-acceptCh:
			if res.err != nil {
				if ctx.Err() != nil {
					s.shutdown("server stopping")
					return ctx.Err()
				}
				if errors.Is(res.err, net.ErrClosed) {
					return fmt.Errorf("accept: %w", res.err)
				}
				s.logger.Warn("accept error", "err", res.err)
			} else {
				s.handleNewConn(ctx, res.conn, streamCh)
			}
			// Re-arm accept loop
			go s.acceptLoop(ctx, acceptCh)

		case ev := <-streamCh:
			if quit := s.handleStreamEvent(ev); quit {
				s.shutdown("editor exited")
				return nil
			}

		case <-s.input.Timer():
			if quit := s.applyInput(); quit {
				s.shutdown("editor exited")
				return nil
			}

		case <-ctx.Done():
			s.shutdown("server stopping")
			return ctx.Err()
		}
	}
}

// --- Goroutines ---

// acceptResult carries the result of a single Accept call.
type acceptResult struct {
	conn *ipc.Conn
	err  error
}

// acceptLoop calls Accept once and sends the result. The main loop re-arms
// it after processing the result.
func (s *Server) acceptLoop(ctx context.Context, ch chan<- acceptResult) {
	conn, err := s.ln.Accept(ctx)
	ch <- acceptResult{conn: conn, err: err}
}

// readControl reads control messages until the stream fails. Malformed and
// unknown messages are dropped here.
func (s *Server) readControl(ctx context.Context, conn *ipc.Conn, ch chan<- streamEvent) {
	for {
		msg, err := conn.ReadControl()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) ||
				errors.Is(err, protocol.ErrUnknownMessage) ||
				errors.Is(err, protocol.ErrLineTooLong) {
				s.logger.Debug("dropping control message", "client", conn.ID(), "err", err)
				continue
			}
			send(ctx, ch, streamEvent{conn: conn, stream: streamControl, err: err})
			return
		}
		if !send(ctx, ch, streamEvent{conn: conn, stream: streamControl, msg: msg}) {
			return
		}
	}
}

// readInput decodes the client's data stream into terminal events.
func readInput(ctx context.Context, conn *ipc.Conn, ch chan<- streamEvent) {
	evc := make(chan uv.Event)
	errc := make(chan error, 1)
	tr := uv.NewTerminalReader(dataReader{conn}, inputTermType)
	go func() {
		errc <- tr.StreamEvents(ctx, evc)
	}()
	for {
		select {
		case ev := <-evc:
			if !send(ctx, ch, streamEvent{conn: conn, stream: streamData, msg: ev}) {
				return
			}
		case err := <-errc:
			if err == nil {
				err = io.EOF
			}
			send(ctx, ch, streamEvent{conn: conn, stream: streamData, err: err})
			return
		}
	}
}

func send(ctx context.Context, ch chan<- streamEvent, ev streamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// dataReader adapts a Conn's data stream to io.Reader.
type dataReader struct{ conn *ipc.Conn }

func (r dataReader) Read(p []byte) (int, error) { return r.conn.ReadData(p) }

// --- Event handlers ---

// handleStreamEvent processes one stream event and reports whether the
// engine asked to quit.
func (s *Server) handleStreamEvent(ev streamEvent) bool {
	c, ok := s.clients[ev.conn]
	if !ok {
		// Discard events from closed clients
		return false
	}

	if ev.err != nil {
		if errors.Is(ev.err, io.EOF) || errors.Is(ev.err, net.ErrClosed) {
			s.logger.Info("client gone", "client", c.conn.ID(), "stream", ev.stream)
		} else {
			s.logger.Warn("client stream error", "client", c.conn.ID(), "stream", ev.stream, "err", ev.err)
		}
		s.closeClient(c)
		return false
	}

	if ev.stream == streamData {
		if s.input.Add(ev.msg) {
			return s.applyInput()
		}
		return false
	}

	switch msg := ev.msg.(type) {
	case *protocol.Resize:
		s.handleResize(c, int(msg.Cols), int(msg.Rows))
	case *protocol.Detach:
		s.logger.Info("client detached", "client", c.conn.ID())
		s.closeClient(c)
	case *protocol.Ping:
		if err := c.conn.WriteControl(&protocol.Pong{}); err != nil {
			s.logger.Warn("write pong", "client", c.conn.ID(), "err", err)
			s.closeClient(c)
		}
	default:
		// Server-bound traffic only; anything else is ignored.
		s.logger.Debug("ignoring control message", "client", c.conn.ID(), "type", fmt.Sprintf("%T", ev.msg))
	}
	return false
}

// applyInput feeds the batched input to the engine and draws once.
func (s *Server) applyInput() (quit bool) {
	dirty := false
	for _, ev := range s.input.Flush() {
		switch s.eng.HandleEvent(ev) {
		case engine.Redraw:
			dirty = true
		case engine.Quit:
			return true
		}
	}
	if dirty {
		s.draw()
		s.broadcastFrame()
	}
	return false
}

func (s *Server) handleResize(c *client, cols, rows int) {
	if cols <= 0 || rows <= 0 {
		s.logger.Debug("ignoring empty resize", "client", c.conn.ID(), "cols", cols, "rows", rows)
		return
	}
	s.logger.Debug("resize", "client", c.conn.ID(), "cols", cols, "rows", rows)
	c.capture.Resize(cols, rows)
	c.capture.ResetStyleState()
	c.capture.Clear()
	c.prev = nil

	// The most recent resize decides the engine size.
	if cols != s.cols || rows != s.rows {
		s.cols, s.rows = cols, rows
		s.eng.Resize(cols, rows)
	}
	s.draw()
	s.broadcastFrame()
}

// handleNewConn attaches a client: Hello, terminal setup, then a complete
// frame on a cleared screen.
func (s *Server) handleNewConn(ctx context.Context, conn *ipc.Conn, streamCh chan<- streamEvent) {
	c := &client{conn: conn, capture: render.NewCapture(s.cols, s.rows)}
	s.clients[conn] = c
	s.logger.Info("client attached", "client", conn.ID(), "clients", len(s.clients))

	if err := conn.WriteControl(&protocol.Hello{Session: s.cfg.Session, Version: s.cfg.Version}); err != nil {
		s.logger.Warn("write hello", "client", conn.ID(), "err", err)
		s.closeClient(c)
		return
	}
	if err := conn.WriteData(render.SetupSequences()); err != nil {
		s.logger.Warn("write setup", "client", conn.ID(), "err", err)
		s.closeClient(c)
		return
	}
	c.capture.ResetStyleState()
	c.capture.Clear()
	s.sendFrame(c)

	go s.readControl(ctx, conn, streamCh)
	go readInput(ctx, conn, streamCh)
}

// --- Rendering ---

// draw asks the engine for a new frame at the current size.
func (s *Server) draw() {
	s.frame = uv.NewBuffer(s.cols, s.rows)
	s.cursor, s.visible = s.eng.Draw(s.frame)
}

func (s *Server) broadcastFrame() {
	for _, c := range s.clients {
		s.sendFrame(c)
	}
}

// sendFrame writes the part of the current frame c has not seen.
func (s *Server) sendFrame(c *client) {
	view := s.viewFor(c)
	cw, ch := c.capture.Size()
	visible := s.visible && s.cursor.X < cw && s.cursor.Y < ch
	render.Frame(c.capture, c.prev, view, s.cursor, visible)
	c.prev = view

	if err := c.conn.WriteData(c.capture.TakeBuffer()); err != nil {
		s.logger.Warn("write frame", "client", c.conn.ID(), "err", err)
		s.closeClient(c)
	}
}

// viewFor returns the frame fitted to c's terminal: cropped when the
// terminal is smaller, padded with blanks when it is larger.
func (s *Server) viewFor(c *client) *uv.Buffer {
	cw, ch := c.capture.Size()
	if cw == s.frame.Width() && ch == s.frame.Height() {
		return s.frame
	}
	view := uv.NewBuffer(cw, ch)
	for y := range min(ch, s.frame.Height()) {
		for x := range min(cw, s.frame.Width()) {
			cell := s.frame.CellAt(x, y)
			if cell == nil || cell.Width == 0 {
				continue
			}
			if x+cell.Width > cw {
				// Wide grapheme cut by the right edge.
				break
			}
			view.SetCell(x, y, cell)
		}
	}
	return view
}

// --- Teardown ---

func (s *Server) closeClient(c *client) {
	delete(s.clients, c.conn)
	c.conn.Close()
}

// shutdown tells every client the session is over.
func (s *Server) shutdown(reason string) {
	s.logger.Info("shutting down", "reason", reason, "clients", len(s.clients))
	for _, c := range s.clients {
		if err := c.conn.WriteControl(&protocol.Quit{Reason: reason}); err != nil {
			s.logger.Debug("write quit", "client", c.conn.ID(), "err", err)
		}
	}
	s.closeAll()
}

func (s *Server) closeAll() {
	for _, c := range s.clients {
		s.closeClient(c)
	}
}

// Clients returns the number of attached clients. Only meaningful from the
// goroutine running Run, or after it returns.
func (s *Server) Clients() int {
	return len(s.clients)
}
