package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chronologos/tether/internal/ipc"
)

// WritePIDFile records the current process as the server for session and
// returns the file's path.
func WritePIDFile(dir, session string) (string, error) {
	if err := ipc.EnsureDir(dir); err != nil {
		return "", err
	}
	path := ipc.PIDPath(dir, session)
	content := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write pid file: %w", err)
	}
	return path, nil
}

// ReadPIDFile returns the PID recorded for session. A missing file is not
// an error: ok is false.
func ReadPIDFile(dir, session string) (pid int, ok bool, err error) {
	data, err := os.ReadFile(ipc.PIDPath(dir, session))
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read pid file: %w", err)
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidPIDFile, strings.TrimSpace(string(data)))
	}
	return pid, true, nil
}

// RemovePIDFile deletes the PID file for session if present.
func RemovePIDFile(dir, session string) error {
	err := os.Remove(ipc.PIDPath(dir, session))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}
