package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr           string   `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir      string   `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	VoicesDir      string   `json:"voices_dir" yaml:"voices_dir" toml:"voices_dir"`
	DefaultModel   string   `json:"default_model" yaml:"default_model" toml:"default_model"`
	DefaultVoice   string   `json:"default_voice" yaml:"default_voice" toml:"default_voice"`
	Device         string   `json:"device" yaml:"device" toml:"device"`
	GPUDevice      int      `json:"gpu_device" yaml:"gpu_device" toml:"gpu_device"`
	CPUMaxSessions int      `json:"cpu_max_sessions" yaml:"cpu_max_sessions" toml:"cpu_max_sessions"`
	CPUThreads     int      `json:"cpu_threads" yaml:"cpu_threads" toml:"cpu_threads"`
	GPUStreams     int      `json:"gpu_streams" yaml:"gpu_streams" toml:"gpu_streams"`
	GPUMaxSessions int      `json:"gpu_max_sessions" yaml:"gpu_max_sessions" toml:"gpu_max_sessions"`
	StreamPolicy   string   `json:"stream_policy" yaml:"stream_policy" toml:"stream_policy"`
	MaxWaitMS      int      `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	DrainTimeoutMS int      `json:"drain_timeout_ms" yaml:"drain_timeout_ms" toml:"drain_timeout_ms"`
	IdleTimeoutMS  int      `json:"idle_timeout_ms" yaml:"idle_timeout_ms" toml:"idle_timeout_ms"`
	WarmupText     string   `json:"warmup_text" yaml:"warmup_text" toml:"warmup_text"`
	LogLevel       string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat      string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	LogFile        string   `json:"log_file" yaml:"log_file" toml:"log_file"`
	CORSEnabled    bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	WatchConfig    bool     `json:"watch_config" yaml:"watch_config" toml:"watch_config"`
}

// Defaults applied by WithDefaults.
const (
	DefaultAddr       = ":8880"
	DefaultModelsDir  = "~/models/tts"
	DefaultVoicesDir  = "~/models/tts/voices"
	DefaultDevice     = "auto"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "console"
	DefaultMaxBody    = 1 << 20
	defaultGPUStreams = 4
)

// WithDefaults fills unspecified fields.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.VoicesDir == "" {
		c.VoicesDir = DefaultVoicesDir
	}
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.GPUStreams <= 0 {
		c.GPUStreams = defaultGPUStreams
	}
	if c.StreamPolicy == "" {
		c.StreamPolicy = "block"
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBody
	}
	return c
}

// MaxWait returns max_wait_ms as a duration (0 when unset).
func (c Config) MaxWait() time.Duration { return ms(c.MaxWaitMS) }

// DrainTimeout returns drain_timeout_ms as a duration (0 when unset).
func (c Config) DrainTimeout() time.Duration { return ms(c.DrainTimeoutMS) }

// IdleTimeout returns idle_timeout_ms as a duration (0 disables reaping).
func (c Config) IdleTimeout() time.Duration { return ms(c.IdleTimeoutMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// NeedsReinitialize reports whether a and b pick a different model, which a
// reinitialize applies without a restart.
func NeedsReinitialize(a, b Config) bool {
	return a.ModelsDir != b.ModelsDir || a.DefaultModel != b.DefaultModel
}

// NeedsRestart reports whether a and b differ in settings that are fixed
// once the server and its pools are built.
func NeedsRestart(a, b Config) bool {
	return a.Addr != b.Addr || a.Device != b.Device || a.GPUDevice != b.GPUDevice || a.CPUMaxSessions != b.CPUMaxSessions ||
		a.CPUThreads != b.CPUThreads || a.GPUStreams != b.GPUStreams ||
		a.GPUMaxSessions != b.GPUMaxSessions || a.StreamPolicy != b.StreamPolicy ||
		a.MaxWaitMS != b.MaxWaitMS || a.LogFile != b.LogFile || a.LogFormat != b.LogFormat
}

// Load reads and validates a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var raw any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &raw); err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &raw); err != nil {
			return cfg, err
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err := Validate(raw); err != nil {
		return cfg, err
	}
	return cfg, nil
}
