package ipc

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
)

// Dial connects to session's sockets in dir. The data socket is connected
// first; both carry the same client id so the listener can pair them.
func Dial(ctx context.Context, dir, session string) (*Conn, error) {
	if err := ValidateSession(session); err != nil {
		return nil, err
	}
	id := uuid.NewString()

	var d net.Dialer
	data, err := d.DialContext(ctx, "unix", DataPath(dir, session))
	if err != nil {
		return nil, fmt.Errorf("dial data socket: %w", err)
	}
	if err := writeHandshake(data, id); err != nil {
		data.Close()
		return nil, fmt.Errorf("data handshake: %w", err)
	}

	ctrl, err := d.DialContext(ctx, "unix", ControlPath(dir, session))
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("dial control socket: %w", err)
	}
	if err := writeHandshake(ctrl, id); err != nil {
		data.Close()
		ctrl.Close()
		return nil, fmt.Errorf("control handshake: %w", err)
	}

	return newConn(id, data.(*net.UnixConn), ctrl.(*net.UnixConn)), nil
}
