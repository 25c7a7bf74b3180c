package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nmodels_dir: /tmp\ndefault_model: m1\ndevice: cpu\ncpu_max_sessions: 3\nstream_policy: fail\ncors_origins: [\"http://a\", \"http://b\"]\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.ModelsDir != "/tmp" || cfg.DefaultModel != "m1" || cfg.Device != "cpu" || cfg.CPUMaxSessions != 3 || cfg.StreamPolicy != "fail" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","models_dir":"/m","gpu_streams":2,"max_wait_ms":250,"default_model":"m2"}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.ModelsDir != "/m" || cfg.GPUStreams != 2 || cfg.DefaultModel != "m2" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.MaxWait() != 250*time.Millisecond {
		t.Fatalf("max wait = %v", cfg.MaxWait())
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nmodels_dir=\"/x\"\ndrain_timeout_ms=1500\ndefault_model=\"m3\"\nwatch_config=true\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.ModelsDir != "/x" || cfg.DefaultModel != "m3" || !cfg.WatchConfig {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.DrainTimeout() != 1500*time.Millisecond {
		t.Fatalf("drain timeout = %v", cfg.DrainTimeout())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	if _, err := Load(filepath.Join(d, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := writeTempFile(t, d, "bad.json", `{"addr":`)
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	d := t.TempDir()
	cases := map[string]string{
		"unknown.yaml": "addr: :1\nvram_budget_mb: 4\n",
		"device.yaml":  "device: tpu\n",
		"policy.json":  `{"stream_policy":"spin"}`,
		"neg.toml":     "cpu_max_sessions = -1\n",
		"type.yaml":    "gpu_streams: four\n",
	}
	for name, body := range cases {
		p := writeTempFile(t, d, name, body)
		if _, err := Load(p); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.Addr != DefaultAddr || cfg.Device != DefaultDevice || cfg.StreamPolicy != "block" || cfg.GPUStreams != 4 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxBodyBytes != DefaultMaxBody || cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	kept := Config{Addr: ":1", GPUStreams: 2}.WithDefaults()
	if kept.Addr != ":1" || kept.GPUStreams != 2 {
		t.Fatalf("explicit values overwritten: %+v", kept)
	}
}

func TestReloadClassification(t *testing.T) {
	a := Config{DefaultModel: "x", LogLevel: "info", GPUStreams: 4}
	b := a
	b.LogLevel = "debug"
	if NeedsReinitialize(a, b) || NeedsRestart(a, b) {
		t.Fatalf("log level change must apply in place")
	}
	b.DefaultModel = "y"
	if !NeedsReinitialize(a, b) || NeedsRestart(a, b) {
		t.Fatalf("default model change must only reinitialize")
	}
	b = a
	b.GPUStreams = 2
	if !NeedsRestart(a, b) {
		t.Fatalf("stream count change must require a restart")
	}
}
