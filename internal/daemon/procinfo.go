package daemon

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcInfo describes a server process for listings.
type ProcInfo struct {
	PID     int
	Name    string
	Started time.Time
	RSS     uint64
}

// ProcessInfo looks up pid. Fields the host does not expose are left zero.
func ProcessInfo(pid int) (ProcInfo, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ProcInfo{}, fmt.Errorf("process %d: %w", pid, err)
	}
	info := ProcInfo{PID: pid}
	if name, err := p.Name(); err == nil {
		info.Name = name
	}
	if ms, err := p.CreateTime(); err == nil {
		info.Started = time.UnixMilli(ms)
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		info.RSS = mem.RSS
	}
	return info, nil
}
