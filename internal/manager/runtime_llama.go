//go:build llama

package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaRuntime loads GGUF speech-token models in process.
type llamaRuntime struct {
	opts RuntimeOptions
}

// NewDefaultRuntime returns the runtime selected by build tags.
func NewDefaultRuntime(opts RuntimeOptions) Runtime {
	if opts.ContextSize <= 0 {
		opts.ContextSize = 2048
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &llamaRuntime{opts: opts}
}

func (r *llamaRuntime) Name() string { return "llama" }

func (r *llamaRuntime) Supports(b BackendKind) bool {
	return b == BackendCPU || b == BackendGPU
}

func (r *llamaRuntime) Load(ctx context.Context, req LoadRequest) (Engine, error) {
	if strings.TrimSpace(req.Path) == "" {
		return nil, errors.New("model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{llama.SetContext(r.opts.ContextSize)}
	if req.Backend == BackendGPU {
		layers := r.opts.GPULayers
		if layers <= 0 {
			layers = 999
		}
		mo = append(mo, llama.SetGPULayers(layers), llama.SetMainGPU(fmt.Sprint(req.Device)))
	}
	m, err := llama.New(req.Path, mo...)
	if err != nil {
		return nil, err
	}
	threads := req.Threads
	if threads <= 0 {
		threads = 1
	}
	return &llamaEngine{model: m, threads: threads, maxTokens: r.opts.MaxTokens}, nil
}

// llamaEngine owns the loaded model. The token callback is per-model, so
// concurrent callers sharing a CPU session are serialized.
type llamaEngine struct {
	mu        sync.Mutex
	model     *llama.LLama
	threads   int
	maxTokens int
}

func (e *llamaEngine) Warmup(ctx context.Context, text, voice string) error {
	return e.Synthesize(ctx, SynthesisInput{Text: text, Voice: voice}, func([]byte) error { return nil })
}

func (e *llamaEngine) Synthesize(ctx context.Context, in SynthesisInput, onChunk func([]byte) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return errors.New("llama model not initialized")
	}
	var cbErr error
	e.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if err := onChunk([]byte(tok)); err != nil {
			cbErr = err
			return false
		}
		return true
	})
	_, err := e.model.Predict(buildPrompt(in),
		llama.SetTokens(e.maxTokens),
		llama.SetThreads(e.threads),
	)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if cbErr != nil {
		return cbErr
	}
	return err
}

func (e *llamaEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

func buildPrompt(in SynthesisInput) string {
	var b strings.Builder
	if in.Voice != "" {
		b.WriteString("<|speaker:")
		b.WriteString(in.Voice)
		b.WriteString("|>")
	}
	b.WriteString(in.Text)
	return b.String()
}
