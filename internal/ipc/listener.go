package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

type streamKind int

const (
	dataStream streamKind = iota
	ctrlStream
)

func (k streamKind) String() string {
	if k == dataStream {
		return "data"
	}
	return "control"
}

// half is one identified socket waiting for its partner.
type half struct {
	id   string
	kind streamKind
	conn *net.UnixConn
}

type pendingPair struct {
	data, ctrl *net.UnixConn
	since      time.Time
}

type acceptRes struct {
	conn *Conn
	err  error
}

// Listener accepts clients on a session's data and control sockets and
// pairs the two halves of each client into one Conn.
type Listener struct {
	dir, session string
	dataLn       *net.UnixListener
	ctrlLn       *net.UnixListener
	logger       *slog.Logger

	halfCh chan half
	connCh chan acceptRes
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Listen binds session's sockets in dir, writes the marker file and starts
// accepting. Stale socket files from a previous server are replaced; callers
// check for a live server before listening.
func Listen(dir, session string, logger *slog.Logger) (*Listener, error) {
	if err := ValidateSession(session); err != nil {
		return nil, err
	}
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dataLn, err := listenUnix(DataPath(dir, session))
	if err != nil {
		return nil, err
	}
	ctrlLn, err := listenUnix(ControlPath(dir, session))
	if err != nil {
		dataLn.Close()
		return nil, err
	}
	if err := writeMarker(dir, session); err != nil {
		dataLn.Close()
		ctrlLn.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		dir:     dir,
		session: session,
		dataLn:  dataLn,
		ctrlLn:  ctrlLn,
		logger:  logger.With("component", "ipc"),
		halfCh:  make(chan half),
		connCh:  make(chan acceptRes, 4),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	l.wg.Add(3)
	go l.acceptLoop(ctx, dataLn, dataStream)
	go l.acceptLoop(ctx, ctrlLn, ctrlStream)
	go l.pairLoop(ctx)

	return l, nil
}

func listenUnix(path string) (*net.UnixListener, error) {
	if err := removeIfExists(path); err != nil {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	return ln, nil
}

// acceptLoop accepts sockets of one kind and identifies each on its own
// goroutine so a silent client cannot stall other attaches.
func (l *Listener) acceptLoop(ctx context.Context, ln *net.UnixListener, kind streamKind) {
	defer l.wg.Done()
	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if ctx.Err() == nil {
				select {
				case l.connCh <- acceptRes{err: fmt.Errorf("accept %s socket: %w", kind, err)}:
				case <-ctx.Done():
				}
			}
			return
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
			id, err := readHandshake(conn)
			conn.SetReadDeadline(time.Time{})
			if !stop() {
				return // listener closed underneath us
			}
			if err != nil {
				l.logger.Debug("handshake failed", "stream", kind, "err", err)
				conn.Close()
				return
			}
			select {
			case l.halfCh <- half{id: id, kind: kind, conn: conn}:
			case <-ctx.Done():
				conn.Close()
			}
		}()
	}
}

// pairLoop owns the table of half-open clients.
func (l *Listener) pairLoop(ctx context.Context) {
	defer l.wg.Done()

	pending := make(map[string]*pendingPair)
	closePending := func(p *pendingPair) {
		if p.data != nil {
			p.data.Close()
		}
		if p.ctrl != nil {
			p.ctrl.Close()
		}
	}
	defer func() {
		for _, p := range pending {
			closePending(p)
		}
	}()

	ticker := time.NewTicker(HandshakeTimeout)
	defer ticker.Stop()

	for {
		select {
		case h := <-l.halfCh:
			p := pending[h.id]
			if p == nil {
				p = &pendingPair{since: time.Now()}
				pending[h.id] = p
			}
			slot := &p.data
			if h.kind == ctrlStream {
				slot = &p.ctrl
			}
			if *slot != nil {
				l.logger.Debug("duplicate stream for client", "client", h.id, "stream", h.kind)
				h.conn.Close()
				continue
			}
			*slot = h.conn
			if p.data == nil || p.ctrl == nil {
				continue
			}

			delete(pending, h.id)
			conn := newConn(h.id, p.data, p.ctrl)
			select {
			case l.connCh <- acceptRes{conn: conn}:
			case <-ctx.Done():
				conn.Close()
				return
			}

		case now := <-ticker.C:
			for id, p := range pending {
				if now.Sub(p.since) >= HandshakeTimeout {
					l.logger.Debug("dropping unpaired client", "client", id)
					closePending(p)
					delete(pending, id)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

// Accept returns the next paired client.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	select {
	case res := <-l.connCh:
		return res.conn, res.err
	case <-l.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting, closes any half-open clients and removes the
// socket files and marker. Conns already returned by Accept stay open.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.cancel()
		errs := []error{l.dataLn.Close(), l.ctrlLn.Close()}
		l.wg.Wait()

		// Drain paired conns nobody accepted.
		for drained := false; !drained; {
			select {
			case res := <-l.connCh:
				if res.conn != nil {
					res.conn.Close()
				}
			default:
				drained = true
			}
		}

		errs = append(errs,
			removeIfExists(DataPath(l.dir, l.session)),
			removeIfExists(ControlPath(l.dir, l.session)),
			removeIfExists(MarkerPath(l.dir, l.session)),
		)
		l.closeErr = errors.Join(errs...)
	})
	return l.closeErr
}
