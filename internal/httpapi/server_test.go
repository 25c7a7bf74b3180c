package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ttsd/internal/manager"
	"ttsd/internal/sysinfo"
	"ttsd/internal/voices"
	"ttsd/pkg/types"
)

type mockService struct {
	models    []types.Model
	status    types.StatusResponse
	ready     bool
	speechErr error
	chunks    []string
	backend   string
	lastReq   types.SpeechRequest
	pools     types.SessionPoolsResponse
	reinit    types.ReinitializeResponse
	reinitErr error
	voiceErr  error
	voices    []string
	storErr   error

	resolveErr error
	speechCfg  types.SpeechConfig
	cfgErr     error
}

func (m *mockService) ListModels() []types.Model    { return append([]types.Model(nil), m.models...) }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }
func (m *mockService) ListVoices(context.Context) (types.VoicesResponse, error) {
	return types.VoicesResponse{Voices: m.voices}, nil
}
func (m *mockService) Speech(ctx context.Context, req types.SpeechRequest, w io.Writer, flush func()) (string, error) {
	m.lastReq = req
	for _, c := range m.chunks {
		if _, err := w.Write([]byte(c)); err != nil {
			return m.backend, err
		}
		if flush != nil {
			flush()
		}
	}
	return m.backend, m.speechErr
}
func (m *mockService) ResolveSpeech(req types.SpeechRequest) (types.SpeechRequest, error) {
	if m.resolveErr != nil {
		return req, m.resolveErr
	}
	if req.Stream == nil {
		stream := true
		req.Stream = &stream
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = "pcm"
	}
	return req, nil
}
func (m *mockService) SpeechConfig() types.SpeechConfig { return m.speechCfg }
func (m *mockService) UpdateSpeechBase(_ context.Context, in types.SpeechBaseConfig) (types.SpeechConfig, error) {
	if m.cfgErr != nil {
		return types.SpeechConfig{}, m.cfgErr
	}
	if in.Voice != "" {
		m.speechCfg.Voice = in.Voice
	}
	if in.Speed != nil {
		m.speechCfg.Speed = *in.Speed
	}
	return m.speechCfg, nil
}
func (m *mockService) UpdateSpeechAdvanced(_ context.Context, in types.SpeechAdvancedConfig) (types.SpeechConfig, error) {
	if m.cfgErr != nil {
		return types.SpeechConfig{}, m.cfgErr
	}
	if in.Stream != nil {
		m.speechCfg.Stream = *in.Stream
	}
	if in.ResponseFormat != "" {
		m.speechCfg.ResponseFormat = in.ResponseFormat
	}
	return m.speechCfg, nil
}
func (m *mockService) SessionPools(context.Context) types.SessionPoolsResponse { return m.pools }
func (m *mockService) Reinitialize(context.Context) (types.ReinitializeResponse, error) {
	return m.reinit, m.reinitErr
}
func (m *mockService) SetVoice(_ context.Context, id string) (types.VoiceResponse, error) {
	if m.voiceErr != nil {
		return types.VoiceResponse{}, m.voiceErr
	}
	return types.VoiceResponse{Status: "ok", Voice: id}, nil
}
func (m *mockService) System(context.Context) sysinfo.System {
	return sysinfo.System{CPU: sysinfo.CPU{Count: 8}}
}
func (m *mockService) Storage(context.Context) (sysinfo.Storage, error) {
	return sysinfo.Storage{}, m.storErr
}
func (m *mockService) Threads(context.Context) (sysinfo.Threads, error) {
	return sysinfo.Threads{Goroutines: 3}, nil
}
func (m *mockService) Sanity(context.Context) manager.SanityReport {
	return manager.SanityReport{Runtime: "file", ModelFound: true}
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestModelsHandler(t *testing.T) {
	svc := &mockService{models: []types.Model{{ID: "m1"}, {ID: "m2"}}}
	w := do(t, NewMux(svc), http.MethodGet, "/models", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("models len=%d", len(body.Models))
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", CurrentModel: "m1"}}
	w := do(t, NewMux(svc), http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.State != "ready" || st.CurrentModel != "m1" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestHealthAndReady(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	if w := do(t, h, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodGet, "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before ready: %d", w.Code)
	}
	svc.ready = true
	if w := do(t, h, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Fatalf("readyz: %d", w.Code)
	}
}

func TestSpeechStreamsAudio(t *testing.T) {
	svc := &mockService{chunks: []string{"RIFF", "data"}, backend: "cpu"}
	w := do(t, NewMux(svc), http.MethodPost, "/v1/audio/speech", `{"input":"hello","voice":"af_heart","backend":"gpu","allow_cpu_fallback":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "application/octet-stream" {
		t.Fatalf("content-type=%s", w.Header().Get("Content-Type"))
	}
	if w.Body.String() != "RIFFdata" {
		t.Fatalf("body=%q", w.Body.String())
	}
	if svc.lastReq.Voice != "af_heart" || !svc.lastReq.AllowCPUFallback || svc.lastReq.Backend != "gpu" {
		t.Fatalf("request not passed through: %+v", svc.lastReq)
	}
}

func TestSpeechValidation(t *testing.T) {
	h := NewMux(&mockService{})
	if w := do(t, h, http.MethodPost, "/v1/audio/speech", `{"input":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty input: %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/v1/audio/speech", `{bad`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", strings.NewReader(`{"input":"x"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("missing content type: %d", w.Code)
	}
}

func TestSpeechBodyLimit(t *testing.T) {
	SetMaxBodyBytes(16)
	defer SetMaxBodyBytes(0)
	w := do(t, NewMux(&mockService{}), http.MethodPost, "/v1/audio/speech", `{"input":"`+strings.Repeat("a", 64)+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized body: %d", w.Code)
	}
}

func TestSpeechErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{manager.ErrModelNotFound("x"), http.StatusNotFound},
		{manager.ErrNoStreamAvailable, http.StatusTooManyRequests},
		{manager.ErrPoolExhausted, http.StatusTooManyRequests},
		{manager.ErrNotInitialized, http.StatusServiceUnavailable},
		{manager.ErrDependencyUnavailable("no llama"), http.StatusServiceUnavailable},
		{manager.ErrInvalidInput("bad backend"), http.StatusBadRequest},
		{&manager.ArtifactLoadError{ArtifactID: "x", Err: errors.New("corrupt")}, http.StatusInternalServerError},
		{mockHTTPError{msg: "teapot", code: http.StatusTeapot}, http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		svc := &mockService{speechErr: c.err}
		w := do(t, NewMux(svc), http.MethodPost, "/v1/audio/speech", `{"input":"hi"}`)
		if w.Code != c.want {
			t.Errorf("%v: status=%d want %d", c.err, w.Code, c.want)
			continue
		}
		var body types.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != c.want {
			t.Errorf("%v: bad error body %q", c.err, w.Body.String())
		}
	}
}

func TestSpeechErrorAfterAudioKeepsStatus(t *testing.T) {
	svc := &mockService{chunks: []string{"abc"}, backend: "gpu", speechErr: errors.New("decoder failed")}
	w := do(t, NewMux(svc), http.MethodPost, "/v1/audio/speech", `{"input":"hi"}`)
	if w.Code != http.StatusOK || w.Body.String() != "abc" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestSpeechCanceledBaseContextWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	SetBaseContext(ctx)
	defer SetBaseContext(nil)
	svc := &mockService{speechErr: context.Canceled}
	w := do(t, NewMux(svc), http.MethodPost, "/v1/audio/speech", `{"input":"hi"}`)
	if w.Body.Len() != 0 {
		t.Fatalf("expected no body on shutdown, got %q", w.Body.String())
	}
}

func TestSessionPoolsHandler(t *testing.T) {
	avail := 2
	sid := 1
	svc := &mockService{pools: types.SessionPoolsResponse{
		CPU: &types.PoolReport{MaxSessions: 2, Sessions: []types.PoolSession{}},
		GPU: &types.PoolReport{ActiveSessions: 1, MaxSessions: 4, MaxStreams: 4, AvailableStreams: &avail,
			Sessions: []types.PoolSession{{Model: "m.gguf", StreamID: &sid, InUse: true}}},
	}}
	w := do(t, NewMux(svc), http.MethodGet, "/debug/session_pools", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var raw map[string]map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("json: %v", err)
	}
	if raw["gpu"]["available_streams"].(float64) != 2 || raw["gpu"]["max_streams"].(float64) != 4 {
		t.Fatalf("unexpected gpu report: %v", raw["gpu"])
	}
	if _, ok := raw["cpu"]["max_streams"]; ok {
		t.Fatalf("cpu report must not carry stream fields: %v", raw["cpu"])
	}
}

func TestReinitializeHandler(t *testing.T) {
	svc := &mockService{reinit: types.ReinitializeResponse{Status: "ok", Device: "cpu", Model: "m.gguf", VoicePacks: 3}}
	h := NewMux(svc)
	w := do(t, h, http.MethodPost, "/debug/reinitialize", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp types.ReinitializeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.VoicePacks != 3 || resp.Device != "cpu" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}

	svc.reinitErr = manager.ErrReinitializeInProgress
	if w := do(t, h, http.MethodPost, "/debug/reinitialize", ""); w.Code != http.StatusConflict {
		t.Fatalf("in progress: %d", w.Code)
	}

	svc.reinitErr = reinitFailed{errors.New("warmup failed")}
	w = do(t, h, http.MethodPost, "/debug/reinitialize", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("failure: %d", w.Code)
	}
	var de types.DetailedError
	if err := json.Unmarshal(w.Body.Bytes(), &de); err != nil || de.Error != "reinitialize_failed" || de.Message != "warmup failed" {
		t.Fatalf("unexpected error body %q", w.Body.String())
	}
}

type reinitFailed struct{ error }

func (reinitFailed) StatusCode() int { return http.StatusInternalServerError }
func (reinitFailed) Kind() string    { return "reinitialize_failed" }

func TestVoiceHandler(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	w := do(t, h, http.MethodPost, "/debug/voice", `{"voice":"bf_emma"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var vr types.VoiceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &vr); err != nil || vr.Voice != "bf_emma" || vr.Status != "ok" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}

	svc.voiceErr = voices.ErrVoiceNotFound
	w = do(t, h, http.MethodPost, "/debug/voice", `{"voice":"nope"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown voice: %d", w.Code)
	}
	var de types.DetailedError
	if err := json.Unmarshal(w.Body.Bytes(), &de); err != nil || de.Error != "voice_not_found" {
		t.Fatalf("unexpected error body %q", w.Body.String())
	}
}

func TestDebugTelemetryHandlers(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	for _, p := range []string{"/debug/system", "/debug/storage", "/debug/threads", "/debug/sanity", "/voices"} {
		if w := do(t, h, http.MethodGet, p, ""); w.Code != http.StatusOK {
			t.Errorf("%s: status=%d", p, w.Code)
		}
	}
	svc.storErr = errors.New("no partitions")
	if w := do(t, h, http.MethodGet, "/debug/storage", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("storage error: %d", w.Code)
	}
}

func TestCORSOptIn(t *testing.T) {
	SetCORSOptions(true, []string{"http://example.com"}, nil, nil)
	defer SetCORSOptions(false, nil, nil, nil)
	h := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("allow origin=%q", got)
	}
}

func TestSecurityHeader(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/healthz", "")
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewMux(&mockService{})
	do(t, h, http.MethodGet, "/healthz", "")
	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("ttsd_http_requests_total")) {
		t.Fatalf("metrics missing: %d", w.Code)
	}
}
