// Package voices discovers voice packs on disk and tracks the default voice.
package voices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"ttsd/internal/registry"
	"ttsd/pkg/types"
)

// Extensions are the voice pack formats picked up by a scan.
var Extensions = []string{".pt", ".bin", ".npy", ".safetensors"}

// ErrVoiceNotFound is returned when a voice id is not in the voices dir.
var ErrVoiceNotFound = errors.New("voice not found")

// Manager lists voice packs from one directory. Every list call rescans the
// directory so packs dropped in at runtime are visible.
type Manager struct {
	dir  string
	scan registry.Scanner
	log  zerolog.Logger

	mu       sync.RWMutex
	current  string
	language string
}

// New returns a manager over dir. defaultVoice may be empty, in which case
// the first voice in sorted order is used.
func New(dir, defaultVoice string, log zerolog.Logger) *Manager {
	m := &Manager{dir: dir, scan: registry.NewScanner(Extensions...), log: log}
	if defaultVoice != "" {
		m.current = defaultVoice
		m.language = LanguageCode(defaultVoice)
	}
	return m
}

// Dir returns the configured voices directory.
func (m *Manager) Dir() string { return m.dir }

// List returns the voice packs sorted by id.
func (m *Manager) List(ctx context.Context) ([]types.Voice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := m.scan.Scan(m.dir)
	if err != nil {
		return nil, fmt.Errorf("scan voices: %w", err)
	}
	out := make([]types.Voice, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, f := range found {
		// Same name in two formats counts once.
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		out = append(out, types.Voice{ID: f.Name, Path: f.Path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListVoices returns voice ids sorted.
func (m *Manager) ListVoices(ctx context.Context) ([]string, error) {
	vs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(vs))
	for i, v := range vs {
		ids[i] = v.ID
	}
	return ids, nil
}

// DefaultVoice returns the default voice id and its language code.
// When no default was set the first listed voice is reported.
func (m *Manager) DefaultVoice(ctx context.Context) (string, string) {
	m.mu.RLock()
	cur, lang := m.current, m.language
	m.mu.RUnlock()
	if cur != "" {
		return cur, lang
	}
	ids, err := m.ListVoices(ctx)
	if err != nil || len(ids) == 0 {
		return "", ""
	}
	return ids[0], LanguageCode(ids[0])
}

// SetDefaultVoice validates id against the voices dir and makes it the default.
func (m *Manager) SetDefaultVoice(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrVoiceNotFound)
	}
	ids, err := m.ListVoices(ctx)
	if err != nil {
		return "", err
	}
	found := false
	for _, v := range ids {
		if v == id {
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrVoiceNotFound, id)
	}
	lang := LanguageCode(id)
	m.mu.Lock()
	m.current, m.language = id, lang
	m.mu.Unlock()
	m.log.Info().Str("voice", id).Str("lang", lang).Msg("default voice updated")
	return lang, nil
}

// LanguageCode derives the language from the first letter of a voice id,
// e.g. "af_heart" -> "a".
func LanguageCode(id string) string {
	r, _ := utf8.DecodeRuneInString(id)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToLower(r))
}
