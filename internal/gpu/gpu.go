// Package gpu detects NVIDIA devices through nvidia-smi.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoDevice is returned when no usable GPU was found.
var ErrNoDevice = errors.New("no gpu detected")

// Device describes one GPU. Memory values are MiB.
type Device struct {
	Index       int     `json:"index"`
	Name        string  `json:"name"`
	MemoryTotal int64   `json:"memory_total_mb"`
	MemoryUsed  int64   `json:"memory_used_mb"`
	MemoryFree  int64   `json:"memory_free_mb"`
	Utilization float64 `json:"utilization_percent"`
	Temperature int     `json:"temperature_c,omitempty"`
}

// PercentUsed returns the used share of device memory.
func (d Device) PercentUsed() float64 {
	if d.MemoryTotal <= 0 {
		return 0
	}
	return float64(d.MemoryUsed) / float64(d.MemoryTotal) * 100
}

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

var queryArgs = []string{
	"--query-gpu=index,name,memory.total,memory.used,memory.free,utilization.gpu,temperature.gpu",
	"--format=csv,noheader,nounits",
}

// Detector queries devices. The zero value uses nvidia-smi from PATH.
type Detector struct {
	Bin string
	Run Runner
}

// Detect lists the GPUs visible to the process.
func (p Detector) Detect(ctx context.Context) ([]Device, error) {
	bin := p.Bin
	if bin == "" {
		bin = "nvidia-smi"
	}
	run := p.Run
	if run == nil {
		run = execRunner
	}
	out, err := run(ctx, bin, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	devs, err := Parse(string(out))
	if err != nil {
		return nil, err
	}
	if len(devs) == 0 {
		return nil, ErrNoDevice
	}
	return devs, nil
}

// Detect runs the default detector.
func Detect(ctx context.Context) ([]Device, error) { return Detector{}.Detect(ctx) }

// Parse reads nvidia-smi csv rows, e.g. "0, NVIDIA GeForce RTX 3070, 8192, 512, 7680, 3, 41".
func Parse(out string) ([]Device, error) {
	var devs []Device
	for i, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		for j := range parts {
			parts[j] = strings.TrimSpace(parts[j])
		}
		if len(parts) < 5 {
			return nil, fmt.Errorf("nvidia-smi line %d: want at least 5 fields, got %d", i+1, len(parts))
		}
		idx, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("nvidia-smi line %d: index: %w", i+1, err)
		}
		d := Device{Index: idx, Name: parts[1]}
		if d.MemoryTotal, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
			return nil, fmt.Errorf("nvidia-smi line %d: memory.total: %w", i+1, err)
		}
		// Unsupported fields report "[N/A]"; leave them zero.
		d.MemoryUsed, _ = strconv.ParseInt(parts[3], 10, 64)
		d.MemoryFree, _ = strconv.ParseInt(parts[4], 10, 64)
		if len(parts) > 5 {
			d.Utilization, _ = strconv.ParseFloat(parts[5], 64)
		}
		if len(parts) > 6 {
			d.Temperature, _ = strconv.Atoi(parts[6])
		}
		devs = append(devs, d)
	}
	return devs, nil
}
