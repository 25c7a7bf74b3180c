package types

// SpeechRequest is the payload for POST /v1/audio/speech.
type SpeechRequest struct {
	// Optional model artifact id. If empty, the currently initialized model is used.
	// example: kokoro-v1_0.pth
	Model string `json:"model,omitempty" example:"kokoro-v1_0.pth"`
	// Text to synthesize.
	// example: Hello there.
	Input string `json:"input" example:"Hello there."`
	// Optional voice id. If empty, the default voice is used.
	// example: af_heart
	Voice string `json:"voice,omitempty" example:"af_heart"`
	// Optional speaking rate multiplier.
	// example: 1.0
	Speed float64 `json:"speed,omitempty" example:"1.0"`
	// Optional backend hint: cpu or gpu. Empty selects the initialized device.
	// example: gpu
	Backend string `json:"backend,omitempty" example:"gpu"`
	// Retry on the CPU backend when no GPU stream is available.
	// example: true
	AllowCPUFallback bool `json:"allow_cpu_fallback,omitempty" example:"true"`
	// Stream chunks as they are produced. Unset uses the configured default.
	// example: true
	Stream *bool `json:"stream,omitempty" example:"true"`
	// Audio container: pcm or wav. Empty uses the configured default.
	// example: pcm
	ResponseFormat string `json:"response_format,omitempty" example:"pcm"`
}

// SpeechConfig holds the defaults applied to /v1/audio/speech requests that
// leave a field unset. Returned by the /dev/speech/config endpoints.
type SpeechConfig struct {
	// example: af_heart
	Voice string `json:"voice,omitempty" example:"af_heart"`
	// example: 1.0
	Speed float64 `json:"speed" example:"1.0"`
	// example: true
	Stream bool `json:"stream" example:"true"`
	// example: pcm
	ResponseFormat string `json:"response_format" example:"pcm"`
}

// SpeechBaseConfig is the payload for POST /dev/speech/config/base. Unset
// fields keep their current value.
type SpeechBaseConfig struct {
	// example: af_bella
	Voice string `json:"voice,omitempty" example:"af_bella"`
	// example: 1.25
	Speed *float64 `json:"speed,omitempty" example:"1.25"`
}

// SpeechAdvancedConfig is the payload for POST /dev/speech/config/advanced.
// Unset fields keep their current value.
type SpeechAdvancedConfig struct {
	// example: false
	Stream *bool `json:"stream,omitempty" example:"false"`
	// example: wav
	ResponseFormat string `json:"response_format,omitempty" example:"wav"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// VoicesResponse wraps the list of voices returned by GET /voices.
type VoicesResponse struct {
	Voices  []string `json:"voices"`
	Default string   `json:"default,omitempty"`
}

// VoiceRequest is the payload for POST /debug/voice.
type VoiceRequest struct {
	// example: af_bella
	Voice string `json:"voice" example:"af_bella"`
}

// VoiceResponse is returned after the default voice was updated.
type VoiceResponse struct {
	Status string `json:"status" example:"ok"`
	Voice  string `json:"voice" example:"af_bella"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// DetailedError is the payload used by debug control endpoints.
type DetailedError struct {
	// Machine-readable error kind.
	// example: reinitialize_failed
	Error string `json:"error" example:"reinitialize_failed"`
	// Human-readable message.
	Message string `json:"message,omitempty"`
}

// ReinitializeResponse is returned by POST /debug/reinitialize.
type ReinitializeResponse struct {
	// example: ok
	Status string `json:"status" example:"ok"`
	// Device the model was initialized on.
	// example: gpu
	Device string `json:"device" example:"gpu"`
	// Model artifact id that is now current.
	// example: kokoro-v1_0.pth
	Model string `json:"model" example:"kokoro-v1_0.pth"`
	// Number of available voice packs.
	// example: 54
	VoicePacks int `json:"voice_packs" example:"54"`
}

// PoolSession describes one pooled session in GET /debug/session_pools.
type PoolSession struct {
	// Artifact id the session was loaded from.
	Model string `json:"model"`
	// Seconds since the session was last used.
	AgeSeconds float64 `json:"age_seconds"`
	// Stream slot the session is bound to (GPU only).
	StreamID *int `json:"stream_id,omitempty"`
	// Whether a request currently holds the session.
	InUse bool `json:"in_use"`
}

// GPUMemory reports device memory for the GPU pool.
type GPUMemory struct {
	TotalMB     int64   `json:"total_mb"`
	UsedMB      int64   `json:"used_mb"`
	FreeMB      int64   `json:"free_mb"`
	PercentUsed float64 `json:"percent_used"`
}

// PoolReport summarizes one backend pool.
type PoolReport struct {
	ActiveSessions int `json:"active_sessions"`
	MaxSessions    int `json:"max_sessions"`
	// GPU only.
	MaxStreams       int           `json:"max_streams,omitempty"`
	AvailableStreams *int          `json:"available_streams,omitempty"`
	Sessions         []PoolSession `json:"sessions"`
	Memory           *GPUMemory    `json:"memory,omitempty"`
}

// SessionPoolsResponse is returned by GET /debug/session_pools.
type SessionPoolsResponse struct {
	CPU *PoolReport `json:"cpu,omitempty"`
	GPU *PoolReport `json:"gpu,omitempty"`
}

// BackendStatus summarizes a backend for /status.
type BackendStatus struct {
	// example: gpu
	Backend string `json:"backend" example:"gpu"`
	// example: 1
	Sessions int `json:"sessions" example:"1"`
	// example: 4
	MaxSessions int `json:"max_sessions" example:"4"`
	// example: 0
	Inflight int `json:"inflight" example:"0"`
	// example: 4
	StreamsTotal int `json:"streams_total,omitempty" example:"4"`
	// example: 3
	StreamsAvailable int `json:"streams_available,omitempty" example:"3"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall manager state (uninitialized, ready, reinitializing, unloaded).
	// example: ready
	State string `json:"state" example:"ready"`
	// Device selected at the last initialize.
	// example: cpu
	Device string `json:"device,omitempty" example:"cpu"`
	// Current model artifact id.
	// example: kokoro-v1_0.pth
	CurrentModel string `json:"current_model,omitempty" example:"kokoro-v1_0.pth"`
	// Per-backend summaries.
	Backends []BackendStatus `json:"backends"`
	// Outstanding leases across all pools.
	// example: 2
	ActiveLeases int64 `json:"active_leases" example:"2"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total number of sessions evicted (LRU and idle).
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Total number of session loads.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Total number of completed initializations.
	// example: 2
	InitsTotal uint64 `json:"inits_total" example:"2"`
}
