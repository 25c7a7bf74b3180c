package manager

import "context"

// Runtime loads model artifacts into engines for a backend.
// Concrete implementations (e.g., llama.cpp) should satisfy this interface.
type Runtime interface {
	Name() string
	// Supports reports whether the runtime can build engines for the backend.
	Supports(BackendKind) bool
	// Load reads the artifact and returns a ready engine. Implementations must
	// return when ctx is canceled.
	Load(ctx context.Context, req LoadRequest) (Engine, error)
}

// LoadRequest describes one engine construction.
type LoadRequest struct {
	ArtifactID string
	Path       string
	Backend    BackendKind
	// Device is the GPU ordinal the engine is placed on. Ignored on CPU.
	Device int
	// StreamID is the stream slot held while loading, or -1 on CPU. Slots are
	// concurrency units shared by every session on Device.
	StreamID int
	Threads  int
}

// Engine is a loaded inference session.
type Engine interface {
	// Warmup runs a short synthetic inference.
	Warmup(ctx context.Context, text, voice string) error
	// Synthesize streams audio chunks to onChunk. Implementations must return
	// when the context is canceled or onChunk fails.
	Synthesize(ctx context.Context, in SynthesisInput, onChunk func([]byte) error) error
	// Close releases any resources associated with the engine.
	Close() error
}

// SynthesisInput captures one synthesis request.
type SynthesisInput struct {
	Text  string
	Voice string
	Speed float32
}

// RuntimeOptions configures NewDefaultRuntime.
type RuntimeOptions struct {
	ContextSize int
	GPULayers   int
	MaxTokens   int
}
