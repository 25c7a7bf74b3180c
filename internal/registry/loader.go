package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ttsd/internal/common/fsutil"
	"ttsd/pkg/types"
)

// ModelExtensions are the artifact formats LoadDir picks up.
var ModelExtensions = []string{".onnx", ".pth", ".gguf", ".bin"}

// Scanner lists files with the given extensions in one directory.
type Scanner struct {
	exts []string
}

// NewScanner matches extensions case-insensitively. Extensions include the dot.
func NewScanner(exts ...string) Scanner {
	lower := make([]string, len(exts))
	for i, e := range exts {
		lower[i] = strings.ToLower(e)
	}
	return Scanner{exts: lower}
}

func (s Scanner) match(name string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.exts {
		if ext == e {
			return ext, true
		}
	}
	return "", false
}

// Scan returns one entry per matching regular file, sorted by ID.
// ID is the full filename (including extension); Path is the absolute file path.
func (s Scanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext, ok := s.match(name)
		if !ok {
			continue
		}
		m := types.Model{
			ID:     name,
			Name:   strings.TrimSuffix(name, filepath.Ext(name)),
			Path:   filepath.Join(abs, name),
			Format: strings.TrimPrefix(ext, "."),
		}
		if fi, err := e.Info(); err == nil {
			m.SizeBytes = fi.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans a directory for model artifacts and builds a registry from filenames.
func LoadDir(dir string) ([]types.Model, error) {
	return NewScanner(ModelExtensions...).Scan(dir)
}
