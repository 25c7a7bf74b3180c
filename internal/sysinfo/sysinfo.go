// Package sysinfo collects host, process and storage telemetry for the
// debug endpoints.
package sysinfo

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"ttsd/internal/common/fsutil"
	"ttsd/internal/gpu"
)

const gib = 1024 * 1024 * 1024

// CPU holds processor counters. Percentages are sampled over Sample.
type CPU struct {
	Count         int       `json:"cpu_count"`
	PhysicalCount int       `json:"physical_count,omitempty"`
	Percent       float64   `json:"cpu_percent"`
	PerCPUPercent []float64 `json:"per_cpu_percent,omitempty"`
	LoadAvg       []float64 `json:"load_avg,omitempty"`
}

// MemoryUsage is one memory area in GiB.
type MemoryUsage struct {
	TotalGB     float64 `json:"total_gb"`
	AvailableGB float64 `json:"available_gb,omitempty"`
	UsedGB      float64 `json:"used_gb"`
	FreeGB      float64 `json:"free_gb,omitempty"`
	Percent     float64 `json:"percent"`
}

// Memory groups virtual and swap usage.
type Memory struct {
	Virtual MemoryUsage `json:"virtual"`
	Swap    MemoryUsage `json:"swap"`
}

// Process describes the current process.
type Process struct {
	PID           int32   `json:"pid"`
	CreateTime    string  `json:"create_time,omitempty"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float32 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
}

// Network holds host-wide interface counters.
type Network struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

// System is the /debug/system payload.
type System struct {
	CPU     CPU          `json:"cpu"`
	Memory  Memory       `json:"memory"`
	Process Process      `json:"process"`
	Network *Network     `json:"network,omitempty"`
	GPU     []gpu.Device `json:"gpu,omitempty"`
	GPUInfo string       `json:"gpu_info,omitempty"`
	Errors  []string     `json:"errors,omitempty"`
}

// Partition is one mounted filesystem.
type Partition struct {
	Device      string  `json:"device"`
	Mountpoint  string  `json:"mountpoint"`
	Fstype      string  `json:"fstype"`
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	FreeGB      float64 `json:"free_gb"`
	PercentUsed float64 `json:"percent_used"`
}

// DirStat reports the size of a directory tree.
type DirStat struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
	Files int    `json:"files"`
	Error string `json:"error,omitempty"`
}

// Storage is the /debug/storage payload.
type Storage struct {
	Partitions []Partition `json:"storage_info"`
	Dirs       []DirStat   `json:"dirs,omitempty"`
}

// Threads is the /debug/threads payload.
type Threads struct {
	OSThreads  int32   `json:"total_threads"`
	Goroutines int     `json:"active_threads"`
	GOMAXPROCS int     `json:"gomaxprocs"`
	MemoryMB   float64 `json:"memory_mb"`
	HeapMB     float64 `json:"heap_mb"`
}

// GPUDetector lists GPUs. gpu.Detector satisfies it.
type GPUDetector interface {
	Detect(ctx context.Context) ([]gpu.Device, error)
}

// Collector gathers telemetry. Sections that fail are reported in Errors
// and left zero; a single unsupported counter never fails the whole call.
type Collector struct {
	// Sample is the CPU percent sampling window. Zero compares with the
	// previous call.
	Sample time.Duration
	GPU    GPUDetector
	// Dirs are summed by Storage, e.g. the models and voices dirs.
	Dirs []string
}

// System collects CPU, memory, process, network and GPU information.
func (c Collector) System(ctx context.Context) System {
	var s System
	fail := func(what string, err error) { s.Errors = append(s.Errors, what+": "+err.Error()) }

	s.CPU.Count = runtime.NumCPU()
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		s.CPU.PhysicalCount = n
	}
	if pct, err := cpu.PercentWithContext(ctx, c.Sample, false); err != nil {
		fail("cpu", err)
	} else if len(pct) > 0 {
		s.CPU.Percent = pct[0]
	}
	if per, err := cpu.PercentWithContext(ctx, c.Sample, true); err == nil {
		s.CPU.PerCPUPercent = per
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.CPU.LoadAvg = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		fail("memory", err)
	} else {
		s.Memory.Virtual = MemoryUsage{
			TotalGB:     float64(vm.Total) / gib,
			AvailableGB: float64(vm.Available) / gib,
			UsedGB:      float64(vm.Used) / gib,
			Percent:     vm.UsedPercent,
		}
	}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		s.Memory.Swap = MemoryUsage{
			TotalGB: float64(sw.Total) / gib,
			UsedGB:  float64(sw.Used) / gib,
			FreeGB:  float64(sw.Free) / gib,
			Percent: sw.UsedPercent,
		}
	}

	s.Process = Process{PID: int32(os.Getpid()), Goroutines: runtime.NumGoroutine()}
	if p, err := process.NewProcess(s.Process.PID); err != nil {
		fail("process", err)
	} else {
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			s.Process.CreateTime = time.UnixMilli(ms).UTC().Format(time.RFC3339)
		}
		if v, err := p.CPUPercentWithContext(ctx); err == nil {
			s.Process.CPUPercent = v
		}
		if v, err := p.MemoryPercentWithContext(ctx); err == nil {
			s.Process.MemoryPercent = v
		}
	}

	if io, err := net.IOCountersWithContext(ctx, false); err == nil && len(io) > 0 {
		s.Network = &Network{
			BytesSent:   io[0].BytesSent,
			BytesRecv:   io[0].BytesRecv,
			PacketsSent: io[0].PacketsSent,
			PacketsRecv: io[0].PacketsRecv,
		}
	}

	if c.GPU != nil {
		devs, err := c.GPU.Detect(ctx)
		if err != nil {
			s.GPUInfo = "GPU information unavailable"
		} else {
			s.GPU = devs
		}
	}
	return s
}

// Storage lists mounted partitions and sums the configured directories.
// Partitions that cannot be read are skipped.
func (c Collector) Storage(ctx context.Context) (Storage, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return Storage{}, err
	}
	out := Storage{Partitions: make([]Partition, 0, len(parts))}
	for _, p := range parts {
		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		out.Partitions = append(out.Partitions, Partition{
			Device:      p.Device,
			Mountpoint:  p.Mountpoint,
			Fstype:      p.Fstype,
			TotalGB:     float64(u.Total) / gib,
			UsedGB:      float64(u.Used) / gib,
			FreeGB:      float64(u.Free) / gib,
			PercentUsed: u.UsedPercent,
		})
	}
	for _, d := range c.Dirs {
		out.Dirs = append(out.Dirs, dirStat(d))
	}
	return out, nil
}

func dirStat(dir string) DirStat {
	st := DirStat{Path: dir}
	p, err := fsutil.ExpandHome(dir)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Path = p
	if !fsutil.IsDir(p) {
		st.Error = "not a directory"
		return st
	}
	st.Bytes, st.Files, err = fsutil.DirUsage(p)
	if err != nil {
		st.Error = err.Error()
	}
	return st
}

// Threads reports OS threads of the process and Go scheduler counters.
func (c Collector) Threads(ctx context.Context) (Threads, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	t := Threads{
		Goroutines: runtime.NumGoroutine(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		HeapMB:     float64(ms.HeapAlloc) / 1024 / 1024,
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return t, err
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		t.OSThreads = n
	}
	if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		t.MemoryMB = float64(mi.RSS) / 1024 / 1024
	}
	return t, nil
}
