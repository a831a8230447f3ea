package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chronologos/tether/internal/protocol"
)

// HandshakeTimeout bounds how long the listener waits for a client to
// identify a freshly accepted socket, and how long half of a pair may wait
// for its partner.
const HandshakeTimeout = 5 * time.Second

// maxHandshakeSize bounds the handshake line.
const maxHandshakeSize = 256

type handshake struct {
	Client string `json:"client"`
}

var errBadHandshake = errors.New("bad handshake")

func writeHandshake(w io.Writer, id string) error {
	line, err := json.Marshal(handshake{Client: id})
	if err != nil {
		return err
	}
	_, err = w.Write(append(line, protocol.Delimiter))
	return err
}

// readHandshake reads the handshake a byte at a time so that nothing after
// the delimiter is consumed: the first bytes of the real stream must stay in
// the socket for whoever reads it next.
func readHandshake(r io.Reader) (string, error) {
	var s protocol.LineSplitter
	var b [1]byte
	for n := 0; n < maxHandshakeSize; n++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", fmt.Errorf("read handshake: %w", err)
		}
		line, ok := s.Feed(b[0])
		if !ok {
			continue
		}
		var h handshake
		if err := json.Unmarshal(line, &h); err != nil {
			return "", fmt.Errorf("%w: %v", errBadHandshake, err)
		}
		if h.Client == "" {
			return "", fmt.Errorf("%w: empty client id", errBadHandshake)
		}
		return h.Client, nil
	}
	return "", fmt.Errorf("%w: exceeds %d bytes", errBadHandshake, maxHandshakeSize)
}
