package ipc

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// DefaultDir returns %LOCALAPPDATA%\tether\sockets.
func DefaultDir() string {
	return filepath.Join(xdg.RuntimeDir, "tether", "sockets")
}
