// Package daemon detaches the server from the terminal that started it,
// spawns servers on behalf of clients, and keeps the per-session PID file.
package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// StageEnv carries the re-exec stage between the processes of a unix
// daemonization.
const StageEnv = "TETHER_DAEMON_STAGE"

var (
	// ErrUnsupported is returned by Daemonize where the host cannot detach
	// an already-running process. Callers use SpawnDetached instead.
	ErrUnsupported = fmt.Errorf("daemonize: %w", errors.ErrUnsupported)

	ErrInvalidPIDFile = errors.New("invalid pid file")
)

// Lifecycle is the per-platform process lifecycle.
type Lifecycle interface {
	// Daemonize turns the calling process into a background process with
	// no controlling terminal. On unix it returns only in the final
	// detached process; intermediate processes exit.
	Daemonize() error
	// SpawnDetached starts "<self> --server [--session-name session]" as a
	// detached process and returns its PID.
	SpawnDetached(session string) (int, error)
	// IsProcessRunning reports whether pid names a live process. It has no
	// side effects.
	IsProcessRunning(pid int) bool
}

// Config parameterizes a Lifecycle. The zero value is usable.
type Config struct {
	// Executable is re-executed by Daemonize and SpawnDetached. Defaults
	// to os.Executable().
	Executable string
	// Args are passed to the re-exec'd process by Daemonize. Defaults to
	// os.Args[1:].
	Args []string
	// LogDir receives the spawned server's stderr where the platform
	// cannot discard it (windows).
	LogDir string
	// Exit ends intermediate daemonization stages. Defaults to os.Exit.
	Exit   func(code int)
	Logger *slog.Logger
}

func (c *Config) executable() (string, error) {
	if c.Executable != "" {
		return c.Executable, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return exe, nil
}

func (c *Config) args() []string {
	if c.Args != nil {
		return c.Args
	}
	return os.Args[1:]
}

func (c *Config) exit(code int) {
	if c.Exit != nil {
		c.Exit(code)
		return
	}
	os.Exit(code)
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger.With("component", "daemon")
	}
	return slog.New(slog.DiscardHandler)
}

// serverArgs is the command line of a spawned server.
func serverArgs(session string) []string {
	args := []string{"--server"}
	if session != "" {
		args = append(args, "--session-name", session)
	}
	return args
}

// withStage returns env with StageEnv set to stage, replacing any prior
// value.
func withStage(env []string, stage string) []string {
	out := make([]string, 0, len(env)+1)
	prefix := StageEnv + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	if stage != "" {
		out = append(out, prefix+stage)
	}
	return out
}
