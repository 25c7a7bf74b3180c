package httpapi

import (
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ttsd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ttsd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ttsd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ttsd",
			Subsystem: "http",
			Name:      "backpressure_total",
			Help:      "Total backpressure rejections (429)",
		},
		[]string{"reason"},
	)

	speechBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ttsd",
			Subsystem: "http",
			Name:      "speech_bytes_total",
			Help:      "Audio bytes streamed by /v1/audio/speech",
		},
		[]string{"backend"},
	)

	speechTTFB = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ttsd",
			Subsystem: "http",
			Name:      "speech_ttfb_seconds",
			Help:      "Time from request start to the first audio byte",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"backend"},
	)

	speechDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ttsd",
			Subsystem: "http",
			Name:      "speech_duration_seconds",
			Help:      "Total synthesis time per speech request",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)

	speechCharacters = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ttsd",
			Subsystem: "http",
			Name:      "speech_characters",
			Help:      "Input characters per speech request",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 10),
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight, backpressureTotal,
		speechBytesTotal, speechTTFB, speechDuration, speechCharacters)
}

// observeSpeech records one finished speech request. ttfb is skipped when no
// audio was produced.
func observeSpeech(backend, input string, audioBytes int64, ttfb, total time.Duration) {
	speechBytesTotal.WithLabelValues(backend).Add(float64(audioBytes))
	speechCharacters.WithLabelValues(backend).Observe(float64(utf8.RuneCountInString(input)))
	speechDuration.WithLabelValues(backend).Observe(total.Seconds())
	if audioBytes > 0 {
		speechTTFB.WithLabelValues(backend).Observe(ttfb.Seconds())
	}
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)
		// The route pattern is only known after chi has routed the request.
		path := routePatternOrPath(r)
		status := strconv.Itoa(sr.status)
		httpRequestsTotal.WithLabelValues(path, r.Method, status).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method, status).Observe(time.Since(start).Seconds())
	})
}

// inflightMiddleware tracks in-flight requests per route. It must run inside
// the router so the pattern is resolved.
func inflightMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()
		next.ServeHTTP(w, r)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementBackpressure is called when returning 429 to the client
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}
