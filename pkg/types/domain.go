package types

// Model represents a loadable model artifact discovered on disk.
type Model struct {
	// Stable identifier for the artifact.
	// example: kokoro-v1_0.pth
	ID string `json:"id" example:"kokoro-v1_0.pth"`
	// Human-friendly name.
	// example: kokoro-v1_0
	Name string `json:"name" example:"kokoro-v1_0"`
	// Absolute path to the artifact on disk.
	// example: /srv/models/kokoro-v1_0.pth
	Path string `json:"path" example:"/srv/models/kokoro-v1_0.pth"`
	// Artifact format derived from the file extension (onnx, pth, gguf, bin).
	// example: pth
	Format string `json:"format,omitempty" example:"pth"`
	// Size of the artifact in bytes.
	// example: 327680000
	SizeBytes int64 `json:"size_bytes,omitempty" example:"327680000"`
}

// Voice is a voice pack available to the synthesizer.
type Voice struct {
	// Voice identifier (file name without extension).
	// example: af_heart
	ID string `json:"id" example:"af_heart"`
	// Absolute path to the voice pack.
	Path string `json:"path"`
}
