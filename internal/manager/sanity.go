package manager

import (
	"context"
	"os"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	Runtime     string `json:"runtime"`
	LlamaBuilt  bool   `json:"llama_built"`
	GPUUsable   bool   `json:"gpu_usable"`
	GPUError    string `json:"gpu_error,omitempty"`
	ModelFound  bool   `json:"model_found"`
	ModelPath   string `json:"model_path,omitempty"`
	Error       string `json:"error,omitempty"`
	ActiveModel string `json:"active_model,omitempty"`
}

// SanityCheck validates that the runtime, the GPU and the current or default
// model artifact are available. It does not mutate state and is safe to call
// at any time.
func (m *Manager) SanityCheck(ctx context.Context) SanityReport {
	r := SanityReport{Runtime: m.runtime.Name(), LlamaBuilt: llamaBuilt}
	for _, p := range m.providers {
		if p.Kind() != BackendGPU {
			continue
		}
		if err := p.Check(ctx); err != nil {
			r.GPUError = err.Error()
		} else {
			r.GPUUsable = true
		}
	}

	m.mu.RLock()
	reg := m.registry
	want := m.defaultModel
	if m.cur != nil {
		want = m.cur.ID
		r.ActiveModel = m.cur.ID
	}
	m.mu.RUnlock()

	mdl, err := pickDefaultModel(reg, want)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.ModelPath = mdl.Path
	if fi, err := os.Stat(mdl.Path); err == nil && !fi.IsDir() {
		r.ModelFound = true
		return r
	} else if err != nil {
		r.Error = err.Error()
	} else {
		r.Error = "model path is a directory"
	}
	return r
}
