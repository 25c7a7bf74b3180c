package voices

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVoices(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("v"), 0o644))
	}
	return dir
}

func TestListVoices(t *testing.T) {
	dir := writeVoices(t, "bf_emma.pt", "af_heart.pt", "af_heart.npy", "am_adam.safetensors", "readme.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pt"), 0o755))
	m := New(dir, "", zerolog.Nop())

	ids, err := m.ListVoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"af_heart", "am_adam", "bf_emma"}, ids)
}

func TestListVoicesMissingDir(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "nope"), "", zerolog.Nop())
	_, err := m.ListVoices(context.Background())
	assert.Error(t, err)
}

func TestListVoicesCanceled(t *testing.T) {
	m := New(writeVoices(t, "af_heart.pt"), "", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.ListVoices(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultVoiceFallsBackToFirst(t *testing.T) {
	m := New(writeVoices(t, "bf_emma.pt", "af_heart.pt"), "", zerolog.Nop())
	v, lang := m.DefaultVoice(context.Background())
	assert.Equal(t, "af_heart", v)
	assert.Equal(t, "a", lang)
}

func TestSetDefaultVoice(t *testing.T) {
	m := New(writeVoices(t, "af_heart.pt", "Bf_emma.pt"), "af_heart", zerolog.Nop())

	lang, err := m.SetDefaultVoice(context.Background(), "Bf_emma")
	require.NoError(t, err)
	assert.Equal(t, "b", lang)
	v, l := m.DefaultVoice(context.Background())
	assert.Equal(t, "Bf_emma", v)
	assert.Equal(t, "b", l)

	_, err = m.SetDefaultVoice(context.Background(), "zz_missing")
	assert.True(t, errors.Is(err, ErrVoiceNotFound))
	v, _ = m.DefaultVoice(context.Background())
	assert.Equal(t, "Bf_emma", v, "failed set must keep the previous default")

	_, err = m.SetDefaultVoice(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrVoiceNotFound)
}

func TestLanguageCode(t *testing.T) {
	assert.Equal(t, "a", LanguageCode("af_heart"))
	assert.Equal(t, "j", LanguageCode("JF_alpha"))
	assert.Equal(t, "", LanguageCode(""))
}
