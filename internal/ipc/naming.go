package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// MaxSessionName bounds session names so socket paths stay well inside the
// AF_UNIX path limit.
const MaxSessionName = 64

// File suffixes inside the socket directory.
const (
	dataSuffix   = ".data.sock"
	ctrlSuffix   = ".ctrl.sock"
	markerSuffix = ".marker"
	pidSuffix    = ".pid"
)

var ErrInvalidSession = errors.New("invalid session name")

// ValidateSession reports whether name can be used as a session identifier.
// Names become file names, so only [A-Za-z0-9._-] are allowed and names
// consisting only of dots are rejected.
func ValidateSession(name string) error {
	if name == "" || len(name) > MaxSessionName {
		return fmt.Errorf("%w: length must be 1-%d", ErrInvalidSession, MaxSessionName)
	}
	if strings.Trim(name, ".") == "" {
		return fmt.Errorf("%w: %q", ErrInvalidSession, name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidSession, name, r)
		}
	}
	return nil
}

// DataPath returns the data socket path for session in dir.
func DataPath(dir, session string) string {
	return filepath.Join(dir, session+dataSuffix)
}

// ControlPath returns the control socket path for session in dir.
func ControlPath(dir, session string) string {
	return filepath.Join(dir, session+ctrlSuffix)
}

// PIDPath returns the daemon record for session in dir.
func PIDPath(dir, session string) string {
	return filepath.Join(dir, session+pidSuffix)
}

// MarkerPath returns the marker file the server keeps while listening.
func MarkerPath(dir, session string) string {
	return filepath.Join(dir, session+markerSuffix)
}

// EnsureDir creates the socket directory with owner-only permissions.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	return nil
}

// ListSessions returns the names of sessions that have a PID file or a
// marker in dir, sorted. A missing directory yields no sessions.
func ListSessions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read socket dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		for _, suffix := range []string{pidSuffix, markerSuffix} {
			if s, ok := strings.CutSuffix(name, suffix); ok && ValidateSession(s) == nil {
				names = append(names, s)
			}
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func writeMarker(dir, session string) error {
	content := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(MarkerPath(dir, session), []byte(content), 0o600); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
