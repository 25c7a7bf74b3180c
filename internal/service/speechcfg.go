package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ttsd/internal/manager"
	"ttsd/pkg/types"
)

// Speed bounds accepted for requests and defaults.
const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// ResponseFormats are the audio containers the speech endpoint writes.
var ResponseFormats = []string{"pcm", "wav"}

// speechDefaults is the runtime-updatable speech configuration.
type speechDefaults struct {
	mu  sync.RWMutex
	cfg types.SpeechConfig
}

func newSpeechDefaults() *speechDefaults {
	return &speechDefaults{cfg: types.SpeechConfig{Speed: 1, Stream: true, ResponseFormat: "pcm"}}
}

func (d *speechDefaults) get() types.SpeechConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *speechDefaults) update(fn func(*types.SpeechConfig)) types.SpeechConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.cfg)
	return d.cfg
}

func checkSpeed(v float64) error {
	if v < MinSpeed || v > MaxSpeed {
		return manager.ErrInvalidInput(fmt.Sprintf("speed %g out of range [%g,%g]", v, MinSpeed, MaxSpeed))
	}
	return nil
}

func normalizeFormat(f string) (string, error) {
	f = strings.ToLower(strings.TrimSpace(f))
	for _, ok := range ResponseFormats {
		if f == ok {
			return f, nil
		}
	}
	return "", manager.ErrInvalidInput(fmt.Sprintf("unsupported response_format %q (want %s)", f, strings.Join(ResponseFormats, " or ")))
}

// SpeechConfig returns the current speech defaults.
func (s *Service) SpeechConfig() types.SpeechConfig { return s.speech.get() }

// UpdateSpeechBase changes the default voice and speed. The voice must exist.
func (s *Service) UpdateSpeechBase(ctx context.Context, in types.SpeechBaseConfig) (types.SpeechConfig, error) {
	if in.Speed != nil {
		if err := checkSpeed(*in.Speed); err != nil {
			return types.SpeechConfig{}, err
		}
	}
	if in.Voice != "" {
		if _, err := s.SetVoice(ctx, in.Voice); err != nil {
			return types.SpeechConfig{}, err
		}
	}
	cfg := s.speech.update(func(c *types.SpeechConfig) {
		if in.Speed != nil {
			c.Speed = *in.Speed
		}
	})
	s.log.Info().Str("voice", cfg.Voice).Float64("speed", cfg.Speed).Msg("speech base config updated")
	return cfg, nil
}

// UpdateSpeechAdvanced changes the default streaming mode and audio container.
func (s *Service) UpdateSpeechAdvanced(ctx context.Context, in types.SpeechAdvancedConfig) (types.SpeechConfig, error) {
	format := ""
	if in.ResponseFormat != "" {
		f, err := normalizeFormat(in.ResponseFormat)
		if err != nil {
			return types.SpeechConfig{}, err
		}
		format = f
	}
	cfg := s.speech.update(func(c *types.SpeechConfig) {
		if in.Stream != nil {
			c.Stream = *in.Stream
		}
		if format != "" {
			c.ResponseFormat = format
		}
	})
	s.log.Info().Bool("stream", cfg.Stream).Str("response_format", cfg.ResponseFormat).Msg("speech advanced config updated")
	return cfg, nil
}

// ResolveSpeech fills the fields req leaves unset from the speech defaults
// and validates the result. A request without a voice and no configured
// default keeps the empty voice so the manager default applies.
func (s *Service) ResolveSpeech(req types.SpeechRequest) (types.SpeechRequest, error) {
	d := s.speech.get()
	if req.Voice == "" {
		req.Voice = d.Voice
	}
	if req.Speed == 0 {
		req.Speed = d.Speed
	}
	if err := checkSpeed(req.Speed); err != nil {
		return req, err
	}
	if req.Stream == nil {
		stream := d.Stream
		req.Stream = &stream
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = d.ResponseFormat
	}
	f, err := normalizeFormat(req.ResponseFormat)
	if err != nil {
		return req, err
	}
	req.ResponseFormat = f
	return req, nil
}
