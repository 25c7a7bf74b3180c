package manager

import (
	"context"
	"strings"
)

// SynthesisRequest is one serving-layer call.
type SynthesisRequest struct {
	Model   string
	Backend string
	// AllowCPUFallback retries on CPU when no GPU stream is available.
	AllowCPUFallback bool
	SynthesisInput
}

// Synthesize runs one inference inside WithSession and streams chunks to
// onChunk. It returns the backend that served the request.
func (m *Manager) Synthesize(ctx context.Context, req SynthesisRequest, onChunk func([]byte) error) (BackendKind, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", ErrInvalidInput("input text is empty")
	}
	if req.Voice == "" {
		req.Voice = m.DefaultVoice()
	}
	kind, err := ParseBackend(req.Backend)
	if err != nil {
		return "", ErrInvalidInput(err.Error())
	}
	if kind == "" {
		kind = m.Device()
	}
	run := func(h *SessionHandle) error {
		return h.Engine().Synthesize(ctx, req.SynthesisInput, onChunk)
	}
	err = m.WithSession(ctx, req.Model, string(kind), run)
	if err != nil && kind == BackendGPU && req.AllowCPUFallback && IsNoStreamAvailable(err) {
		m.logger().Info().Str("event", "cpu_fallback").Str("model", req.Model).Msg("manager")
		return BackendCPU, m.WithSession(ctx, req.Model, string(BackendCPU), run)
	}
	return kind, err
}
