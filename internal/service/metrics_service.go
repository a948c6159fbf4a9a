package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/internship-placement-api/internal/models"
)

// Seat release results reported by RecordSeatRelease.
const (
	releaseOK      = "ok"
	releaseRetry   = "retry"
	releaseLost    = "lost"
	releaseSkipped = "skipped"
)

// MetricsService owns the Prometheus registry and the placement counters.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	seatReserve     *prometheus.CounterVec
	seatRelease     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	evaluations     *prometheus.CounterVec

	requestCount   uint64
	cacheHitCount  uint64
	cacheMissCount uint64
	transitionSeen uint64
}

// MetricsSnapshot is a compact summary for the readiness endpoint.
type MetricsSnapshot struct {
	RequestsTotal    uint64    `json:"requests_total"`
	CacheHitRatio    float64   `json:"cache_hit_ratio"`
	TransitionsTotal uint64    `json:"transitions_total"`
	Goroutines       int       `json:"goroutines"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// NewMetricsService registers all collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aggregate_cache_latency_seconds",
		Help:    "Latency of aggregate cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aggregate_cache_write_seconds",
		Help:    "Latency of aggregate cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aggregate_cache_hits_total",
		Help: "Aggregate cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aggregate_cache_misses_total",
		Help: "Aggregate cache misses",
	})

	seatReserve := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_seat_reservations_total",
		Help: "Seat reservation attempts by outcome",
	}, []string{"outcome"})

	seatRelease := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_seat_releases_total",
		Help: "Seat releases by result",
	}, []string{"result"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "internship_transitions_total",
		Help: "Committed internship lifecycle transitions",
	}, []string{"event", "from", "to"})

	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluation_submissions_total",
		Help: "Evaluation submissions by role and whether they were applied",
	}, []string{"role", "applied"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		seatReserve, seatRelease, transitions, evaluations, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		seatReserve:     seatReserve,
		seatRelease:     seatRelease,
		transitions:     transitions,
		evaluations:     evaluations,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request latency and count.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite tracks cache write latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordSeatReservation counts one TryReserveSeat outcome.
func (m *MetricsService) RecordSeatReservation(outcome models.ReserveOutcome) {
	if m == nil {
		return
	}
	m.seatReserve.WithLabelValues(string(outcome)).Inc()
}

// RecordSeatRelease counts one seat release result.
func (m *MetricsService) RecordSeatRelease(result string) {
	if m == nil {
		return
	}
	m.seatRelease.WithLabelValues(result).Inc()
}

// RecordTransition counts one committed lifecycle transition.
func (m *MetricsService) RecordTransition(event models.InternshipEvent, from, to models.InternshipStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(event), string(from), string(to)).Inc()
	atomic.AddUint64(&m.transitionSeen, 1)
}

// RecordEvaluation counts one evaluation submission.
func (m *MetricsService) RecordEvaluation(role models.EvaluatorRole, applied bool) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(string(role), strconv.FormatBool(applied)).Inc()
}

// Snapshot returns the in-process counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{GeneratedAt: time.Now().UTC()}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	return MetricsSnapshot{
		RequestsTotal:    atomic.LoadUint64(&m.requestCount),
		CacheHitRatio:    ratio,
		TransitionsTotal: atomic.LoadUint64(&m.transitionSeen),
		Goroutines:       runtime.NumGoroutine(),
		GeneratedAt:      time.Now().UTC(),
	}
}
