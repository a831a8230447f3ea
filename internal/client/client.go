// Package client attaches a terminal to a session server, starting the
// server first if it is not running.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/chronologos/tether/internal/daemon"
	"github.com/chronologos/tether/internal/ipc"
	"github.com/chronologos/tether/internal/protocol"
	"github.com/chronologos/tether/internal/relay"
	"github.com/chronologos/tether/internal/render"
)

const (
	// DefaultStartTimeout bounds how long Run waits for a spawned server.
	DefaultStartTimeout = 5 * time.Second
	dialRetryInterval   = 50 * time.Millisecond
)

// Config holds client configuration.
type Config struct {
	Session      string
	SocketDir    string
	Escape       bool // enable the ~. detach sequence
	StartTimeout time.Duration
	Logger       *slog.Logger
	// Lifecycle starts servers. Nil selects daemon.New.
	Lifecycle daemon.Lifecycle
}

// Client is the terminal-facing half of a session. It locates or starts
// the server, puts the terminal in raw mode and runs the relay loop until
// the user detaches or the server exits.
type Client struct {
	cfg       Config
	log       *slog.Logger
	lifecycle daemon.Lifecycle
	stdin     *os.File
	stdout    io.Writer
	stdinFd   int // for MakeRaw/Restore and GetSize; -1 if not a terminal
}

// New creates a client on os.Stdin/os.Stdout. If stdin is not a terminal
// (pipe, FIFO), raw mode and size reporting are skipped.
func New(cfg Config) *Client {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fd = -1
	}
	return newClient(cfg, os.Stdin, os.Stdout, fd)
}

// newTestClient creates a client wired to a pipe instead of the terminal.
func newTestClient(cfg Config, stdin *os.File, stdout io.Writer) *Client {
	return newClient(cfg, stdin, stdout, -1)
}

func newClient(cfg Config, stdin *os.File, stdout io.Writer, fd int) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	lc := cfg.Lifecycle
	if lc == nil {
		lc = daemon.New(daemon.Config{Logger: logger})
	}
	return &Client{
		cfg:       cfg,
		log:       logger.With("component", "client", "session", cfg.Session),
		lifecycle: lc,
		stdin:     stdin,
		stdout:    stdout,
		stdinFd:   fd,
	}
}

// Run attaches to the session and returns when the client detaches or the
// server goes away. Cancelling ctx detaches.
func (c *Client) Run(ctx context.Context) (relay.ExitReason, error) {
	if err := ipc.ValidateSession(c.cfg.Session); err != nil {
		return 0, err
	}
	conn, err := c.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	// Enter raw mode while attached (skip for pipes/tests)
	var oldState *term.State
	if c.stdinFd >= 0 {
		oldState, err = term.MakeRaw(c.stdinFd)
		if err != nil {
			return 0, fmt.Errorf("make raw: %w", err)
		}
	}
	restore := func() {
		if oldState != nil {
			term.Restore(c.stdinFd, oldState)
			oldState = nil
		}
	}
	defer restore()

	// Send initial resize
	if cols, rows, err := c.size(); err == nil {
		if err := conn.WriteControl(relay.ResizeMessage(cols, rows)); err != nil {
			return 0, fmt.Errorf("send size: %w", err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cancellation detaches: the loop sees its streams close and returns.
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(&protocol.Detach{})
		conn.Close()
	})
	defer stop()

	flag := new(relay.ResizeFlag)
	relay.WatchResize(loopCtx, flag)

	t := relay.Terminal{
		In:     c.stdin,
		Out:    c.stdout,
		Escape: c.cfg.Escape,
		Logger: c.log,
	}
	if c.stdinFd >= 0 {
		t.Size = c.size
	}
	reason, err := relay.New(t, flag).Run(conn)
	if ctx.Err() != nil {
		reason, err = relay.Detached, nil
	}

	// Restore terminal before writing the goodbye line
	restore()
	c.stdout.Write(render.TeardownSequences())
	switch {
	case err != nil:
		c.log.Warn("relay failed", "err", err)
	case reason == relay.Detached:
		fmt.Fprintf(c.stdout, "[detached from session %s]\r\n", c.cfg.Session)
	default:
		fmt.Fprintf(c.stdout, "[server exited]\r\n")
	}
	return reason, err
}

func (c *Client) size() (cols, rows int, err error) {
	if c.stdinFd < 0 {
		return 0, 0, errors.New("not a terminal")
	}
	return term.GetSize(c.stdinFd)
}

// connect dials the session, starting a server when none is alive.
func (c *Client) connect(ctx context.Context) (*ipc.Conn, error) {
	if conn, err := c.dial(ctx); err == nil {
		return conn, nil
	}

	pid, ok, err := daemon.ReadPIDFile(c.cfg.SocketDir, c.cfg.Session)
	if err != nil {
		c.log.Warn("ignoring pid file", "err", err)
	}
	if ok && c.lifecycle.IsProcessRunning(pid) {
		// Alive but not listening yet: it may still be starting.
		c.log.Debug("server starting", "pid", pid)
	} else {
		pid, err := c.lifecycle.SpawnDetached(c.cfg.Session)
		if err != nil {
			return nil, fmt.Errorf("start server: %w", err)
		}
		c.log.Info("started server", "pid", pid)
	}
	return c.waitForServer(ctx)
}

func (c *Client) dial(ctx context.Context) (*ipc.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.StartTimeout)
	defer cancel()
	return ipc.Dial(dialCtx, c.cfg.SocketDir, c.cfg.Session)
}

// waitForServer polls Dial until it succeeds or StartTimeout passes.
func (c *Client) waitForServer(ctx context.Context) (*ipc.Conn, error) {
	deadline := time.NewTimer(c.cfg.StartTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(dialRetryInterval)
	defer tick.Stop()

	var lastErr error
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		select {
		case <-tick.C:
		case <-deadline.C:
			return nil, fmt.Errorf("server for session %q did not start within %s: %w",
				c.cfg.Session, c.cfg.StartTimeout, lastErr)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
