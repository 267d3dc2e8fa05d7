package scheduler

import (
	"context"
	"os"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/driftdata/driftsync/internal/metrics"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceMonitor samples process CPU and memory into the metrics gauges
type ResourceMonitor struct {
	interval time.Duration
	process  *process.Process
}

// NewResourceMonitor creates a monitor for the current process
func NewResourceMonitor(interval time.Duration) *ResourceMonitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logging.Log.WithError(err).Warn("Failed to get process handle for monitoring")
		proc = nil
	}
	return &ResourceMonitor{
		interval: interval,
		process:  proc,
	}
}

// Run samples until the context is cancelled
func (m *ResourceMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *ResourceMonitor) sample() {
	cpuPercent := 0.0
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}

	var memoryBytes float64
	if m.process != nil {
		if info, err := m.process.MemoryInfo(); err == nil {
			memoryBytes = float64(info.RSS)
		}
	}
	if memoryBytes == 0 {
		if vm, err := mem.VirtualMemory(); err == nil {
			memoryBytes = float64(vm.Used)
		}
	}

	metrics.UpdateResourceUsage(cpuPercent, memoryBytes)
}
