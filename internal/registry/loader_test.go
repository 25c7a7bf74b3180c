package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestScanner_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"kokoro-v1_0.pth",
		"b.GGUF", // case-insensitive
		"model.onnx",
		"not-model.txt",
		"voices.json",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.onnx"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %d: %+v", len(models), models)
	}
	want := []string{"b.GGUF", "kokoro-v1_0.pth", "model.onnx"}
	for i, id := range want {
		if models[i].ID != id {
			t.Fatalf("models[%d].ID = %q, want %q", i, models[i].ID, id)
		}
	}
	if models[1].Format != "pth" || models[1].Name != "kokoro-v1_0" || models[1].SizeBytes != 1 {
		t.Fatalf("unexpected metadata: %+v", models[1])
	}
	if !filepath.IsAbs(models[0].Path) {
		t.Fatalf("path not absolute: %s", models[0].Path)
	}
}

func TestScanner_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "ttsd-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	if err := os.WriteFile(filepath.Join(hTmp, "x.gguf"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	models, err := NewScanner(".gguf").Scan(tildePath)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.gguf" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestLoadDir_Missing(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
