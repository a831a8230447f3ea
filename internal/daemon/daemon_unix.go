//go:build unix

package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

type unixLifecycle struct {
	cfg Config
}

// New returns the lifecycle for this platform.
func New(cfg Config) Lifecycle {
	return &unixLifecycle{cfg: cfg}
}

// Daemonize performs the classic double detach. A Go process cannot fork
// safely, so each fork is a re-exec of the same command line and the stage
// travels in StageEnv:
//
//	stage 0: start stage 1 in a new session with null stdio, exit 0
//	stage 1: session leader; start stage 2, exit 0
//	stage 2: not a session leader, so it can never reacquire a
//	         controlling terminal; redirect stdio, chdir /, umask 0, return
func (l *unixLifecycle) Daemonize() error {
	log := l.cfg.logger()
	switch stage := os.Getenv(StageEnv); stage {
	case "":
		log.Debug("daemonize: stage 0")
		if err := l.reexec("1", true); err != nil {
			return err
		}
		l.cfg.exit(0)
		return nil
	case "1":
		log.Debug("daemonize: stage 1", "sid", unixGetsid())
		if err := l.reexec("2", false); err != nil {
			return err
		}
		l.cfg.exit(0)
		return nil
	case "2":
		log.Debug("daemonize: stage 2")
		if err := detachStdio(); err != nil {
			return err
		}
		if err := os.Chdir("/"); err != nil {
			return fmt.Errorf("chdir /: %w", err)
		}
		unix.Umask(0)
		return os.Unsetenv(StageEnv)
	default:
		return fmt.Errorf("daemonize: unknown stage %q", stage)
	}
}

func (l *unixLifecycle) reexec(stage string, setsid bool) error {
	exe, err := l.cfg.executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, l.cfg.args()...)
	cmd.Env = withStage(os.Environ(), stage)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: setsid}
	// Nil stdio is /dev/null.
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemonize: start stage %s: %w", stage, err)
	}
	return cmd.Process.Release()
}

// detachStdio points fds 0-2 at /dev/null.
func detachStdio() error {
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer null.Close()
	for fd := range 3 {
		if err := unix.Dup2(int(null.Fd()), fd); err != nil {
			return fmt.Errorf("dup2 fd %d: %w", fd, err)
		}
	}
	return nil
}

func (l *unixLifecycle) SpawnDetached(session string) (int, error) {
	exe, err := l.cfg.executable()
	if err != nil {
		return 0, err
	}
	cmd := exec.Command(exe, serverArgs(session)...)
	cmd.Env = withStage(os.Environ(), "")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn server: %w", err)
	}
	pid := cmd.Process.Pid
	l.cfg.logger().Debug("spawned server", "pid", pid, "session", session)
	// Reap the intermediate process; the server itself re-parents once it
	// daemonizes.
	go cmd.Wait()
	return pid, nil
}

func (l *unixLifecycle) IsProcessRunning(pid int) bool {
	return isProcessRunning(pid)
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Terminate asks pid to shut down.
func Terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("terminate: invalid pid %d", pid)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("signal %d: %w", pid, err)
	}
	return nil
}

func unixGetsid() int {
	sid, err := unix.Getsid(0)
	if err != nil {
		return -1
	}
	return sid
}
