package core

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
)

// A classifier on the accelerator logs device memory every this many calls.
const acceleratorMemoryInterval = 100

type DeviceMemory struct {
	Index    int
	UsedMiB  int
	TotalMiB int
}

var queryDeviceMemory = func(ctx context.Context) ([]byte, error) {
	return exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=index,memory.used,memory.total", "--format=csv,noheader,nounits").Output()
}

// parseDeviceMemory reads nvidia-smi csv output, one "index, used, total"
// line per device.
func parseDeviceMemory(out []byte) ([]DeviceMemory, error) {
	var devices []DeviceMemory
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("unexpected device memory line %q", line)
		}

		var values [3]int
		for i, field := range fields {
			v, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("unexpected device memory line %q: %w", line, err)
			}
			values[i] = v
		}
		devices = append(devices, DeviceMemory{Index: values[0], UsedMiB: values[1], TotalMiB: values[2]})
	}
	return devices, nil
}

type memoryMonitor struct {
	calls       atomic.Int64
	unavailable atomic.Bool
}

func (m *memoryMonitor) observe(ctx context.Context) {
	n := m.calls.Add(1)
	if (n-1)%acceleratorMemoryInterval != 0 || m.unavailable.Load() {
		return
	}
	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return
	}

	out, err := queryDeviceMemory(ctx)
	if err != nil {
		slog.Debug("accelerator memory is not available", "error", err)
		m.unavailable.Store(true)
		return
	}

	devices, err := parseDeviceMemory(out)
	if err != nil {
		slog.Debug("error reading accelerator memory", "error", err)
		return
	}
	for _, d := range devices {
		slog.Debug("accelerator memory", "device", d.Index, "used_mib", d.UsedMiB, "total_mib", d.TotalMiB, "classifications", n)
	}
}
