// Package service adapts the model manager, the voice catalog and host
// telemetry to the operations served over HTTP.
package service

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"ttsd/internal/gpu"
	"ttsd/internal/manager"
	"ttsd/internal/sysinfo"
	"ttsd/internal/voices"
	"ttsd/pkg/types"
)

// Lifecycle is the subset of *manager.Manager the service drives.
type Lifecycle interface {
	ListModels() []types.Model
	Ready() bool
	Status() types.StatusResponse
	PoolSnapshot() types.SessionPoolsResponse
	Reinitialize(ctx context.Context, voices manager.VoiceSource) (manager.InitResult, error)
	Synthesize(ctx context.Context, req manager.SynthesisRequest, onChunk func([]byte) error) (manager.BackendKind, error)
	SetDefaultVoice(id string)
	SanityCheck(ctx context.Context) manager.SanityReport
}

// VoiceCatalog is the subset of *voices.Manager the service uses.
type VoiceCatalog interface {
	ListVoices(ctx context.Context) ([]string, error)
	DefaultVoice(ctx context.Context) (string, string)
	SetDefaultVoice(ctx context.Context, id string) (string, error)
}

// Telemetry is satisfied by sysinfo.Collector.
type Telemetry interface {
	System(ctx context.Context) sysinfo.System
	Storage(ctx context.Context) (sysinfo.Storage, error)
	Threads(ctx context.Context) (sysinfo.Threads, error)
}

// GPUDetector lists devices for pool memory reporting.
type GPUDetector interface {
	Detect(ctx context.Context) ([]gpu.Device, error)
}

// Service implements httpapi.Service.
type Service struct {
	mgr    Lifecycle
	voices VoiceCatalog
	sys    Telemetry
	gpu    GPUDetector
	log    zerolog.Logger
	speech *speechDefaults
}

// New wires the service. gpu may be nil when no device memory should be
// reported.
func New(mgr Lifecycle, v VoiceCatalog, sys Telemetry, g GPUDetector, log zerolog.Logger) *Service {
	return &Service{mgr: mgr, voices: v, sys: sys, gpu: g, log: log, speech: newSpeechDefaults()}
}

// statusError carries an HTTP status for errors the manager does not type.
type statusError struct {
	code int
	kind string
	err  error
}

func (e statusError) Error() string   { return e.err.Error() }
func (e statusError) Unwrap() error   { return e.err }
func (e statusError) StatusCode() int { return e.code }
func (e statusError) Kind() string    { return e.kind }

func (s *Service) ListModels() []types.Model    { return s.mgr.ListModels() }
func (s *Service) Ready() bool                  { return s.mgr.Ready() }
func (s *Service) Status() types.StatusResponse { return s.mgr.Status() }

// ListVoices returns voice ids and the current default.
func (s *Service) ListVoices(ctx context.Context) (types.VoicesResponse, error) {
	ids, err := s.voices.ListVoices(ctx)
	if err != nil {
		return types.VoicesResponse{}, err
	}
	def, _ := s.voices.DefaultVoice(ctx)
	return types.VoicesResponse{Voices: ids, Default: def}, nil
}

// Speech synthesizes req and writes raw audio chunks to w. It returns the
// backend that served the request.
func (s *Service) Speech(ctx context.Context, req types.SpeechRequest, w io.Writer, flush func()) (string, error) {
	req, err := s.ResolveSpeech(req)
	if err != nil {
		return "", err
	}
	sr := manager.SynthesisRequest{
		Model:            req.Model,
		Backend:          req.Backend,
		AllowCPUFallback: req.AllowCPUFallback,
		SynthesisInput: manager.SynthesisInput{
			Text:  req.Input,
			Voice: req.Voice,
			Speed: float32(req.Speed),
		},
	}
	kind, err := s.mgr.Synthesize(ctx, sr, func(chunk []byte) error {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
		return nil
	})
	return string(kind), err
}

// SessionPools returns the pool diagnostics, adding device memory to the
// GPU report when a GPU pool exists.
func (s *Service) SessionPools(ctx context.Context) types.SessionPoolsResponse {
	resp := s.mgr.PoolSnapshot()
	if resp.GPU == nil || s.gpu == nil {
		return resp
	}
	devs, err := s.gpu.Detect(ctx)
	if err != nil || len(devs) == 0 {
		s.log.Debug().Err(err).Msg("gpu memory unavailable")
		return resp
	}
	d := devs[0]
	resp.GPU.Memory = &types.GPUMemory{
		TotalMB:     d.MemoryTotal,
		UsedMB:      d.MemoryUsed,
		FreeMB:      d.MemoryFree,
		PercentUsed: d.PercentUsed(),
	}
	return resp
}

// Reinitialize unloads and warms the model again.
func (s *Service) Reinitialize(ctx context.Context) (types.ReinitializeResponse, error) {
	res, err := s.mgr.Reinitialize(ctx, s.voices)
	if err != nil {
		if errors.Is(err, manager.ErrReinitializeInProgress) {
			return types.ReinitializeResponse{}, err
		}
		return types.ReinitializeResponse{}, statusError{code: http.StatusInternalServerError, kind: "reinitialize_failed", err: err}
	}
	return types.ReinitializeResponse{
		Status:     "ok",
		Device:     string(res.Device),
		Model:      res.Model,
		VoicePacks: res.VoiceCount,
	}, nil
}

// SetVoice changes the default voice used when a request names none.
func (s *Service) SetVoice(ctx context.Context, id string) (types.VoiceResponse, error) {
	lang, err := s.voices.SetDefaultVoice(ctx, id)
	if err != nil {
		if errors.Is(err, voices.ErrVoiceNotFound) {
			return types.VoiceResponse{}, statusError{code: http.StatusBadRequest, kind: "voice_not_found", err: err}
		}
		return types.VoiceResponse{}, err
	}
	s.mgr.SetDefaultVoice(id)
	s.speech.update(func(c *types.SpeechConfig) { c.Voice = id })
	s.log.Info().Str("voice", id).Str("lang", lang).Msg("default voice set")
	return types.VoiceResponse{Status: "ok", Voice: id}, nil
}

func (s *Service) System(ctx context.Context) sysinfo.System { return s.sys.System(ctx) }

func (s *Service) Storage(ctx context.Context) (sysinfo.Storage, error) { return s.sys.Storage(ctx) }

func (s *Service) Threads(ctx context.Context) (sysinfo.Threads, error) { return s.sys.Threads(ctx) }

func (s *Service) Sanity(ctx context.Context) manager.SanityReport { return s.mgr.SanityCheck(ctx) }
