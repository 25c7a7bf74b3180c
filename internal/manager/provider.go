package manager

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"ttsd/internal/gpu"
)

// BackendProvider is the capability-queried strategy used to pick a backend.
// Providers are checked once per initialize, never per request.
type BackendProvider interface {
	Kind() BackendKind
	// Check reports whether the backend is present and usable.
	Check(ctx context.Context) error
	// NewPool builds an empty pool for this backend.
	NewPool(cfg PoolConfig, rt Runtime, log zerolog.Logger, publish func(Event)) *Pool
}

// CPUProvider is always usable.
type CPUProvider struct{}

func (CPUProvider) Kind() BackendKind { return BackendCPU }

func (CPUProvider) Check(context.Context) error { return nil }

func (CPUProvider) NewPool(cfg PoolConfig, rt Runtime, log zerolog.Logger, publish func(Event)) *Pool {
	threads := cfg.CPUThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return newPool(poolOptions{
		kind:    BackendCPU,
		maxSize: cfg.CPUMaxSessions,
		runtime: rt,
		threads: threads,
		publish: publish,
		log:     log,
	})
}

// GPUProvider is usable when nvidia-smi reports the configured device.
type GPUProvider struct {
	Detector gpu.Detector
	// Device is the GPU ordinal sessions are placed on.
	Device int
}

func (GPUProvider) Kind() BackendKind { return BackendGPU }

func (p GPUProvider) Check(ctx context.Context) error {
	devs, err := p.Detector.Detect(ctx)
	if err != nil {
		return err
	}
	for _, d := range devs {
		if d.Index != p.Device {
			continue
		}
		if d.MemoryTotal <= 0 {
			return fmt.Errorf("gpu %d (%s) reports no memory", d.Index, d.Name)
		}
		return nil
	}
	return fmt.Errorf("%w: gpu %d not among %d detected", gpu.ErrNoDevice, p.Device, len(devs))
}

func (p GPUProvider) NewPool(cfg PoolConfig, rt Runtime, log zerolog.Logger, publish func(Event)) *Pool {
	size := cfg.GPUMaxSessions
	if size <= 0 {
		size = cfg.GPUStreams
	}
	return newPool(poolOptions{
		kind:    BackendGPU,
		maxSize: size,
		runtime: rt,
		streams: NewStreamRegistry(cfg.GPUStreams, cfg.StreamPolicy, cfg.MaxWait),
		device:  p.Device,
		threads: 1,
		publish: publish,
		log:     log,
	})
}

// ProvidersForDevice maps a device preference to the providers checked in order.
// gpuIndex selects the GPU ordinal.
func ProvidersForDevice(device string, gpuIndex int, detector gpu.Detector) ([]BackendProvider, error) {
	g := GPUProvider{Detector: detector, Device: gpuIndex}
	switch device {
	case "", "auto":
		return []BackendProvider{g, CPUProvider{}}, nil
	case "cpu":
		return []BackendProvider{CPUProvider{}}, nil
	case "gpu", "cuda":
		return []BackendProvider{g}, nil
	default:
		return nil, fmt.Errorf("unknown device %q (want auto, cpu or gpu)", device)
	}
}
