package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ttsd/internal/manager"
	"ttsd/internal/sysinfo"
	"ttsd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	ListVoices(ctx context.Context) (types.VoicesResponse, error)
	Speech(ctx context.Context, req types.SpeechRequest, w io.Writer, flush func()) (string, error)
	ResolveSpeech(req types.SpeechRequest) (types.SpeechRequest, error)
	SpeechConfig() types.SpeechConfig
	UpdateSpeechBase(ctx context.Context, in types.SpeechBaseConfig) (types.SpeechConfig, error)
	UpdateSpeechAdvanced(ctx context.Context, in types.SpeechAdvancedConfig) (types.SpeechConfig, error)
	SessionPools(ctx context.Context) types.SessionPoolsResponse
	Reinitialize(ctx context.Context) (types.ReinitializeResponse, error)
	SetVoice(ctx context.Context, id string) (types.VoiceResponse, error)
	System(ctx context.Context) sysinfo.System
	Storage(ctx context.Context) (sysinfo.Storage, error)
	Threads(ctx context.Context) (sysinfo.Threads, error)
	Sanity(ctx context.Context) manager.SanityReport
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods:   orDefault(corsAllowedMethods, []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   orDefault(corsAllowedHeaders, []string{"Content-Type", "X-Log-Level"}),
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(inflightMiddleware)
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
			if svc.Ready() {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ready"))
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("loading"))
		})
		r.Get("/metrics", promhttp.Handler().ServeHTTP)

		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, types.ModelsResponse{Models: svc.ListModels()})
		})
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, svc.Status())
		})
		r.Get("/voices", func(w http.ResponseWriter, r *http.Request) {
			resp, err := svc.ListVoices(r.Context())
			if err != nil {
				status, _ := statusFor(err)
				writeJSONError(w, status, err.Error())
				return
			}
			writeJSON(w, resp)
		})
		r.Post("/v1/audio/speech", speechHandler(svc))

		r.Route("/dev/speech/config", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, svc.SpeechConfig())
			})
			r.Post("/base", func(w http.ResponseWriter, r *http.Request) {
				var req types.SpeechBaseConfig
				if !decodeJSON(w, r, &req) {
					return
				}
				resp, err := svc.UpdateSpeechBase(r.Context(), req)
				if err != nil {
					status, kind := statusFor(err)
					writeDetailedError(w, status, kind, err.Error())
					return
				}
				writeJSON(w, resp)
			})
			r.Post("/advanced", func(w http.ResponseWriter, r *http.Request) {
				var req types.SpeechAdvancedConfig
				if !decodeJSON(w, r, &req) {
					return
				}
				resp, err := svc.UpdateSpeechAdvanced(r.Context(), req)
				if err != nil {
					status, kind := statusFor(err)
					writeDetailedError(w, status, kind, err.Error())
					return
				}
				writeJSON(w, resp)
			})
		})

		r.Route("/debug", func(r chi.Router) {
			r.Get("/session_pools", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, svc.SessionPools(r.Context()))
			})
			r.Post("/reinitialize", func(w http.ResponseWriter, r *http.Request) {
				ctx, cancel := joinContexts(serverBaseCtx, r.Context())
				defer cancel()
				resp, err := svc.Reinitialize(ctx)
				if err != nil {
					status, kind := statusFor(err)
					writeDetailedError(w, status, kind, err.Error())
					return
				}
				writeJSON(w, resp)
			})
			r.Post("/voice", func(w http.ResponseWriter, r *http.Request) {
				var req types.VoiceRequest
				if !decodeJSON(w, r, &req) {
					return
				}
				resp, err := svc.SetVoice(r.Context(), req.Voice)
				if err != nil {
					status, kind := statusFor(err)
					writeDetailedError(w, status, kind, err.Error())
					return
				}
				writeJSON(w, resp)
			})
			r.Get("/system", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, svc.System(r.Context()))
			})
			r.Get("/storage", func(w http.ResponseWriter, r *http.Request) {
				st, err := svc.Storage(r.Context())
				if err != nil {
					writeJSONError(w, http.StatusInternalServerError, err.Error())
					return
				}
				writeJSON(w, st)
			})
			r.Get("/threads", func(w http.ResponseWriter, r *http.Request) {
				th, err := svc.Threads(r.Context())
				if err != nil {
					writeJSONError(w, http.StatusInternalServerError, err.Error())
					return
				}
				writeJSON(w, th)
			})
			r.Get("/sanity", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, svc.Sanity(r.Context()))
			})
		})
	})

	MountSwagger(r)
	return r
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

// decodeJSON enforces a JSON content type and the body size limit. It writes
// the error response and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Oversized bodies also land here; report them as a plain 400.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func speechHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SpeechRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Input) == "" {
			writeJSONError(w, http.StatusBadRequest, "input is required")
			return
		}
		req, err := svc.ResolveSpeech(req)
		if err != nil {
			status, _ := statusFor(err)
			writeJSONError(w, status, err.Error())
			return
		}
		stream := req.Stream == nil || *req.Stream
		start := time.Now()
		lvl := requestLogLevel(r)
		logSpeech(r, lvl, "speech start", 0, start, nil)

		// Join the server base context so shutdown cancels synthesis too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if speechTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, speechTimeout)
			defer tcancel()
		}
		aw := &audioWriter{w: w, contentType: contentTypeFor(req.ResponseFormat), start: start}
		var (
			out   io.Writer = aw
			flush func()
			buf   *bytes.Buffer
		)
		if stream {
			if f, ok := w.(http.Flusher); ok {
				flush = f.Flush
			}
			if req.ResponseFormat == "wav" {
				aw.prefix = wavHeader(wavStreamSize)
			}
		} else {
			buf = &bytes.Buffer{}
			out = buf
		}
		backend, err := svc.Speech(ctx, req, out, flush)
		if err == nil && buf != nil && buf.Len() > 0 {
			if req.ResponseFormat == "wav" {
				aw.prefix = wavHeader(uint32(buf.Len()))
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(aw.prefix)+buf.Len()))
			_, err = aw.Write(buf.Bytes())
			if err != nil && aw.written > 0 {
				logSpeech(r, lvl, "speech aborted", http.StatusOK, start, err)
				return
			}
		}
		if backend != "" {
			observeSpeech(backend, req.Input, aw.audio, aw.firstByte, time.Since(start))
		}
		if err != nil {
			// Client went away or server is shutting down.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			if aw.written > 0 {
				// Headers are gone; the truncated body is all we can signal.
				logSpeech(r, lvl, "speech aborted", http.StatusOK, start, err)
				return
			}
			status, _ := statusFor(err)
			if status == http.StatusTooManyRequests {
				reason := "pool_exhausted"
				if manager.IsNoStreamAvailable(err) {
					reason = "no_stream"
				}
				IncrementBackpressure(reason)
			}
			writeJSONError(w, status, err.Error())
			logSpeech(r, lvl, "speech end", status, start, err)
			return
		}
		if aw.written == 0 {
			w.WriteHeader(http.StatusNoContent)
		}
		logSpeech(r, lvl, "speech end", http.StatusOK, start, nil)
	}
}
