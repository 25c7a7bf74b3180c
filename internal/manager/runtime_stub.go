//go:build !llama

package manager

// This file provides the default, CGO-free runtime. It validates artifacts
// and reads them through so load and warmup errors surface at initialize,
// but it refuses synthesis: there is no mocked audio in production binaries.
// The real runtime lives in runtime_llama.go (tagged 'llama').

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// llamaBuilt indicates whether this binary was compiled with real llama support.
var llamaBuilt = false

const errNoLlama = "llama support not built (missing 'llama' build tag)"

type fileRuntime struct {
	opts RuntimeOptions
}

// NewDefaultRuntime returns the runtime selected by build tags.
func NewDefaultRuntime(opts RuntimeOptions) Runtime {
	return &fileRuntime{opts: opts}
}

func (r *fileRuntime) Name() string { return "file" }

func (r *fileRuntime) Supports(b BackendKind) bool {
	return b == BackendCPU || b == BackendGPU
}

func (r *fileRuntime) Load(ctx context.Context, req LoadRequest) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateArtifact(req.Path); err != nil {
		return nil, err
	}
	return &fileEngine{path: req.Path}, nil
}

var artifactMagic = [][]byte{
	[]byte("GGUF"),
	[]byte("PK\x03\x04"), // torch zip archive
	{0x80},               // pickle protocol 2+
	[]byte("\x08"),       // onnx ModelProto ir_version field
}

// validateArtifact rejects missing, empty and unrecognized model files.
func validateArtifact(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("model path is empty")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	head = head[:n]
	for _, m := range artifactMagic {
		if bytes.HasPrefix(head, m) {
			return nil
		}
	}
	return fmt.Errorf("%s: unrecognized model format", path)
}

type fileEngine struct {
	path string
}

// Warmup reads the artifact through to fault it into the page cache.
func (e *fileEngine) Warmup(ctx context.Context, text, voice string) error {
	f, err := os.Open(e.path)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := make([]byte, 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := f.Read(buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (e *fileEngine) Synthesize(ctx context.Context, in SynthesisInput, onChunk func([]byte) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return ErrDependencyUnavailable(errNoLlama)
}

func (e *fileEngine) Close() error { return nil }
