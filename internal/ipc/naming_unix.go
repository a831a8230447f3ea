//go:build !windows

package ipc

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// DefaultDir returns $XDG_RUNTIME_DIR/tether. When the runtime directory
// does not exist (containers, minimal systems) a per-user directory under
// the OS temp dir is used instead.
func DefaultDir() string {
	if fi, err := os.Stat(xdg.RuntimeDir); err == nil && fi.IsDir() {
		return filepath.Join(xdg.RuntimeDir, "tether")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("tether-%d", os.Getuid()))
}
