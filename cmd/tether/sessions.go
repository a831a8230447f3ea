package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/chronologos/tether/internal/daemon"
	"github.com/chronologos/tether/internal/ipc"
)

// sessionRow is one line of `tether ls`.
type sessionRow struct {
	name    string
	pid     int
	alive   bool
	started time.Time
	rss     uint64
}

// collectSessions finds every session with sockets in dir and describes its
// server process.
func collectSessions(dir string, running func(int) bool) ([]sessionRow, error) {
	names, err := ipc.ListSessions(dir)
	if err != nil {
		return nil, err
	}
	rows := make([]sessionRow, 0, len(names))
	for _, name := range names {
		row := sessionRow{name: name}
		pid, ok, err := daemon.ReadPIDFile(dir, name)
		if err == nil && ok {
			row.pid = pid
			row.alive = running(pid)
		}
		if row.alive {
			if info, err := daemon.ProcessInfo(pid); err == nil {
				row.started, row.rss = info.Started, info.RSS
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func listSessions(w io.Writer, dir string) error {
	lc := daemon.New(daemon.Config{})
	rows, err := collectSessions(dir, lc.IsProcessRunning)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no sessions")
		return nil
	}
	writeSessions(w, rows, time.Now())
	return nil
}

func writeSessions(w io.Writer, rows []sessionRow, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tPID\tSTATE\tUPTIME\tRSS")
	for _, r := range rows {
		pid, state, uptime, rss := "-", "stale", "-", "-"
		if r.pid > 0 {
			pid = fmt.Sprint(r.pid)
		}
		if r.alive {
			state = "running"
			if !r.started.IsZero() {
				uptime = now.Sub(r.started).Truncate(time.Second).String()
			}
			if r.rss > 0 {
				rss = formatBytes(r.rss)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.name, pid, state, uptime, rss)
	}
	tw.Flush()
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func killSession(w io.Writer, dir, name string) error {
	if err := ipc.ValidateSession(name); err != nil {
		return err
	}
	pid, ok, err := daemon.ReadPIDFile(dir, name)
	if err != nil {
		return err
	}
	lc := daemon.New(daemon.Config{})
	if !ok || !lc.IsProcessRunning(pid) {
		return fmt.Errorf("session %q is not running", name)
	}
	if err := daemon.Terminate(pid); err != nil {
		return fmt.Errorf("stop session %q: %w", name, err)
	}
	fmt.Fprintf(w, "stopped session %s (pid %d)\n", name, pid)
	return nil
}
