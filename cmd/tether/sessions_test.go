package main

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/chronologos/tether/internal/daemon"
	"github.com/chronologos/tether/internal/ipc"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "0B"},
		{1023, "1023B"},
		{1024, "1.0KiB"},
		{1536, "1.5KiB"},
		{5 * 1024 * 1024, "5.0MiB"},
		{3 << 30, "3.0GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestWriteSessions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := []sessionRow{
		{name: "alpha", pid: 42, alive: true, started: now.Add(-90 * time.Second), rss: 2048},
		{name: "beta", pid: 7},
		{name: "gamma"},
	}
	var buf bytes.Buffer
	writeSessions(&buf, rows, now)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	for i, want := range [][]string{
		{"SESSION", "PID", "STATE", "UPTIME", "RSS"},
		{"alpha", "42", "running", "1m30s", "2.0KiB"},
		{"beta", "7", "stale", "-", "-"},
		{"gamma", "-", "stale", "-", "-"},
	} {
		if got := strings.Fields(lines[i]); strings.Join(got, " ") != strings.Join(want, " ") {
			t.Errorf("line %d = %q, want fields %q", i, lines[i], want)
		}
	}
}

func TestCollectSessions(t *testing.T) {
	dir, err := os.MkdirTemp("", "tcmd")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ln, err := ipc.Listen(dir, "live", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	if _, err := daemon.WritePIDFile(dir, "live"); err != nil {
		t.Fatal(err)
	}

	self := os.Getpid()
	rows, err := collectSessions(dir, func(pid int) bool { return pid == self })
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %+v, want one session", rows)
	}
	r := rows[0]
	if r.name != "live" || r.pid != self || !r.alive {
		t.Fatalf("row = %+v", r)
	}
	if r.started.IsZero() {
		t.Error("start time missing for own process")
	}
}

func TestCollectSessionsMissingDir(t *testing.T) {
	rows, err := collectSessions("/nonexistent/tether-test", func(int) bool { return true })
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestKillSessionNotRunning(t *testing.T) {
	dir, err := os.MkdirTemp("", "tcmd")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	var buf bytes.Buffer
	err = killSession(&buf, dir, "ghost")
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("err = %v", err)
	}
	if err := killSession(&buf, dir, "../bad"); err == nil {
		t.Fatal("expected invalid session error")
	}
}
