//go:build !llama

package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"ttsd/internal/gpu"
	"ttsd/internal/httpapi"
	"ttsd/internal/manager"
	"ttsd/internal/registry"
	"ttsd/internal/service"
	"ttsd/internal/sysinfo"
	"ttsd/internal/voices"
	"ttsd/pkg/types"
)

// writeFiles creates each named file in a fresh temp dir with the given content.
func writeFiles(t *testing.T, content []byte, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), content, 0o644))
	}
	return dir
}

var ggufModel = append([]byte("GGUF"), make([]byte, 1024)...)

type stack struct {
	srv    *httptest.Server
	mgr    *manager.Manager
	voices *voices.Manager
}

// newStack wires the CPU manager, voice catalog and service behind the real mux.
func newStack(t *testing.T, defaultModel string, models ...string) stack {
	t.Helper()
	modelsDir := writeFiles(t, ggufModel, models...)
	voicesDir := writeFiles(t, []byte("voice"), "af_bella.pt", "bm_george.pt")

	reg, err := registry.LoadDir(modelsDir)
	require.NoError(t, err)
	log := zerolog.Nop()
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Registry:     reg,
		Rescan:       func() ([]types.Model, error) { return registry.LoadDir(modelsDir) },
		DefaultModel: defaultModel,
		Providers:    []manager.BackendProvider{manager.CPUProvider{}},
		Pools:        manager.PoolConfig{CPUMaxSessions: 2},
		Logger:       &log,
	})
	vm := voices.New(voicesDir, "", log)
	noGPU := gpu.Detector{Run: func(context.Context, string, ...string) ([]byte, error) { return nil, gpu.ErrNoDevice }}
	svc := service.New(mgr, vm, sysinfo.Collector{GPU: noGPU}, noGPU, log)

	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = mgr.UnloadAll(context.Background()) })
	return stack{srv: srv, mgr: mgr, voices: vm}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
