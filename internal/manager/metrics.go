package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	poolSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ttsd",
			Subsystem: "pool",
			Name:      "sessions",
			Help:      "Resident sessions per backend pool",
		},
		[]string{"backend"},
	)

	poolLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ttsd",
			Subsystem: "pool",
			Name:      "loads_total",
			Help:      "Session loads by result",
		},
		[]string{"backend", "result"},
	)

	poolEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ttsd",
			Subsystem: "pool",
			Name:      "evictions_total",
			Help:      "Sessions removed from a pool by reason (lru, idle, explicit, unload)",
		},
		[]string{"backend", "reason"},
	)

	streamsAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ttsd",
			Subsystem: "gpu",
			Name:      "streams_available",
			Help:      "GPU stream slots not checked out",
		},
	)

	acquireWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ttsd",
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent acquiring a session, including loads and stream waits",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "result"},
	)

	lifecycleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ttsd",
			Subsystem: "manager",
			Name:      "lifecycle_total",
			Help:      "Lifecycle operations by kind and result",
		},
		[]string{"op", "result"},
	)
)

func init() {
	prometheus.MustRegister(poolSessions, poolLoadsTotal, poolEvictionsTotal, streamsAvailable, acquireWaitSeconds, lifecycleTotal)
}

func observeLoad(kind BackendKind, result string) {
	poolLoadsTotal.WithLabelValues(string(kind), result).Inc()
}

func observeEviction(kind BackendKind, reason string) {
	poolEvictionsTotal.WithLabelValues(string(kind), reason).Inc()
}

func setPoolSessions(kind BackendKind, n int) {
	poolSessions.WithLabelValues(string(kind)).Set(float64(n))
}

func observeAcquire(kind BackendKind, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case IsTooBusy(err):
		result = "busy"
	case isContextErr(err):
		result = "canceled"
	default:
		result = "error"
	}
	acquireWaitSeconds.WithLabelValues(string(kind), result).Observe(time.Since(start).Seconds())
}

func observeLifecycle(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	lifecycleTotal.WithLabelValues(op, result).Inc()
}
