//go:build windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"
	"golang.org/x/sys/windows"
)

// stillActive is STILL_ACTIVE, the exit code of a running process.
const stillActive = 259

type windowsLifecycle struct {
	cfg Config
}

// New returns the lifecycle for this platform.
func New(cfg Config) Lifecycle {
	return &windowsLifecycle{cfg: cfg}
}

// Daemonize is unsupported: a running process cannot drop its console.
// SpawnDetached starts servers already detached.
func (l *windowsLifecycle) Daemonize() error {
	return ErrUnsupported
}

func (l *windowsLifecycle) logDir() string {
	if l.cfg.LogDir != "" {
		return l.cfg.LogDir
	}
	return filepath.Join(xdg.DataHome, "tether", "logs")
}

func (l *windowsLifecycle) SpawnDetached(session string) (int, error) {
	exe, err := l.cfg.executable()
	if err != nil {
		return 0, err
	}

	dir := l.logDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return 0, fmt.Errorf("create log dir: %w", err)
	}
	name := session
	if name == "" {
		name = "default"
	}
	logFile, err := os.OpenFile(filepath.Join(dir, "server-"+name+".log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open server log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, serverArgs(session)...)
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP,
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn server: %w", err)
	}
	pid := cmd.Process.Pid
	l.cfg.logger().Debug("spawned server", "pid", pid, "session", session)
	cmd.Process.Release()
	return pid, nil
}

func (l *windowsLifecycle) IsProcessRunning(pid int) bool {
	return isProcessRunning(pid)
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}

// Terminate kills pid.
func Terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}
