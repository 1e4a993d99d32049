package audiodevice

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/wkmp/wkmp-ap/internal/perrors"
)

// SystemSnapshot is a point-in-time CPU/memory reading, sampled alongside
// device health so a device-level alert (HealthSink.DeviceAlert) can be
// correlated with host resource pressure rather than treated as an
// isolated audio fault. A trimmed analogue of
// internal/monitor.SystemMonitor's threshold/notification engine: this
// package only needs a snapshot to attach to a recovery event, not a
// standing alerting loop.
type SystemSnapshot struct {
	CPUPercent    float64
	MemoryPercent float64
}

// SampleSystemHealth takes one CPU/memory reading, using gopsutil's
// zero-interval "percent since last call" mode so it never blocks. Still
// meant to be called from the recovery path, never from the device
// callback.
func SampleSystemHealth() (SystemSnapshot, error) {
	cpuPercents, err := cpu.Percent(0, false)
	if err != nil {
		return SystemSnapshot{}, perrors.New(err).Category(perrors.CategoryDevice).Build()
	}
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return SystemSnapshot{}, perrors.New(err).Category(perrors.CategoryDevice).Build()
	}

	snap := SystemSnapshot{MemoryPercent: vmem.UsedPercent}
	if len(cpuPercents) > 0 {
		snap.CPUPercent = cpuPercents[0]
	}
	return snap, nil
}
