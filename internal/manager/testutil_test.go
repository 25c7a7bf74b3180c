package manager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"ttsd/internal/gpu"
	"ttsd/pkg/types"
)

// createModelFile writes a small GGUF-looking artifact and returns its path.
func createModelFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	data := append([]byte("GGUF"), make([]byte, 4096)...)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

// fakeRuntime is a lightweight in-memory runtime used for tests.
type fakeRuntime struct {
	mu        sync.Mutex
	loads     map[string]int
	closed    int
	failFor   map[string]error
	warmupErr error
	synthErr  error
	noGPU     bool
	// loadHook runs at the start of every Load outside the runtime lock.
	loadHook func(ctx context.Context, req LoadRequest) error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{loads: map[string]int{}, failFor: map[string]error{}}
}

func (r *fakeRuntime) Name() string { return "fake" }

func (r *fakeRuntime) Supports(b BackendKind) bool { return b == BackendCPU || !r.noGPU }

func (r *fakeRuntime) Load(ctx context.Context, req LoadRequest) (Engine, error) {
	if r.loadHook != nil {
		if err := r.loadHook(ctx, req); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[req.ArtifactID]; err != nil {
		return nil, err
	}
	r.loads[req.ArtifactID]++
	return &fakeEngine{rt: r, req: req}, nil
}

func (r *fakeRuntime) loadCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads[id]
}

func (r *fakeRuntime) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeEngine struct {
	rt  *fakeRuntime
	req LoadRequest
}

func (e *fakeEngine) Warmup(ctx context.Context, text, voice string) error { return e.rt.warmupErr }

func (e *fakeEngine) Synthesize(ctx context.Context, in SynthesisInput, onChunk func([]byte) error) error {
	if err := onChunk([]byte("pcm:" + in.Voice + ":" + in.Text)); err != nil {
		return err
	}
	return e.rt.synthErr
}

func (e *fakeEngine) Close() error {
	e.rt.mu.Lock()
	e.rt.closed++
	e.rt.mu.Unlock()
	return nil
}

func newTestPool(rt Runtime, kind BackendKind, maxSize int, streams *StreamRegistry) *Pool {
	return newPool(poolOptions{kind: kind, maxSize: maxSize, runtime: rt, streams: streams, log: zerolog.Nop()})
}

func art(id string) Artifact { return Artifact{ID: id, Path: "/models/" + id} }

// fakeGPU returns a detector reporting one 8 GiB device.
func fakeGPU() gpu.Detector {
	return gpu.Detector{Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("0, Test GPU, 8192, 100, 8092, 0, 40\n"), nil
	}}
}

type staticVoices []string

func (v staticVoices) ListVoices(context.Context) ([]string, error) { return v, nil }

// newTestManager builds a CPU-only manager over models a, b and c.
func newTestManager(t *testing.T, rt *fakeRuntime, mutate func(*ManagerConfig)) *Manager {
	t.Helper()
	dir := t.TempDir()
	reg := []types.Model{
		{ID: "a", Path: createModelFile(t, dir, "a.gguf")},
		{ID: "b", Path: createModelFile(t, dir, "b.gguf")},
		{ID: "c", Path: createModelFile(t, dir, "c.gguf")},
	}
	cfg := ManagerConfig{
		Registry:     reg,
		DefaultModel: "a",
		Runtime:      rt,
		Providers:    []BackendProvider{CPUProvider{}},
		Pools:        PoolConfig{CPUMaxSessions: 3},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewWithConfig(cfg)
}
