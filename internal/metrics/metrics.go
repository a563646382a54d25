// Package metrics defines the Prometheus collectors for feedback sessions, backend
// calls, corpus indexing and the HTTP API, and exposes a handler for scraping.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperjump/qexpand/internal/backend"
	"github.com/hyperjump/qexpand/internal/models"
)

const namespace = "qexpand"

// Metrics holds all collectors, registered on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsTotal        *prometheus.CounterVec
	RoundsTotal          *prometheus.CounterVec
	RoundPrecision       *prometheus.HistogramVec
	ExpansionTerms       *prometheus.HistogramVec
	BackendRequestsTotal *prometheus.CounterVec
	BackendLatency       *prometheus.HistogramVec
	PlaysIndexedTotal    prometheus.Counter
	PlaysRemovedTotal    prometheus.Counter
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Finished feedback sessions by mode and stop reason.",
			},
			[]string{"mode", "stop_reason"},
		),
		RoundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_total",
				Help:      "Completed feedback rounds by mode.",
			},
			[]string{"mode"},
		),
		RoundPrecision: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "round_precision",
				Help:      "Precision of the labeled result set per round.",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"mode"},
		),
		ExpansionTerms: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "expansion_terms",
				Help:      "Number of terms appended to the query per round.",
				Buckets:   []float64{0, 1, 2, 3, 5, 10},
			},
			[]string{"mode"},
		),
		BackendRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Backend searches by backend and outcome (ok, no_results, error).",
			},
			[]string{"backend", "outcome"},
		),
		BackendLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_latency_seconds",
				Help:      "Backend search latency in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"backend"},
		),
		PlaysIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plays_indexed_total",
				Help:      "Plays written to the local corpus.",
			},
		),
		PlaysRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plays_removed_total",
				Help:      "Plays removed from the local corpus.",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "HTTP requests currently being processed.",
			},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsTotal,
		m.RoundsTotal,
		m.RoundPrecision,
		m.ExpansionTerms,
		m.BackendRequestsTotal,
		m.BackendLatency,
		m.PlaysIndexedTotal,
		m.PlaysRemovedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)
	return m
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveRound records a completed round. Rounds without a precision (empty result
// set) are counted but not observed in the precision histogram.
func (m *Metrics) ObserveRound(mode models.Mode, r *models.Round) {
	m.RoundsTotal.WithLabelValues(string(mode)).Inc()
	m.ExpansionTerms.WithLabelValues(string(mode)).Observe(float64(len(r.Terms)))
	if r.Precision >= 0 {
		m.RoundPrecision.WithLabelValues(string(mode)).Observe(r.Precision)
	}
}

// ObserveSession records a finished session.
func (m *Metrics) ObserveSession(s *models.Session) {
	m.SessionsTotal.WithLabelValues(string(s.Mode), string(s.StopReason)).Inc()
}

// PlaysIndexed counts plays written to the local corpus.
func (m *Metrics) PlaysIndexed(n int) { m.PlaysIndexedTotal.Add(float64(n)) }

// PlaysRemoved counts plays removed from the local corpus.
func (m *Metrics) PlaysRemoved(n int) { m.PlaysRemovedTotal.Add(float64(n)) }

// RegisterCache exposes the hit and miss counts reported by stats.
func (m *Metrics) RegisterCache(stats func() (hits, misses int64)) {
	m.Registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Result cache hits.",
		}, func() float64 { h, _ := stats(); return float64(h) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Result cache misses.",
		}, func() float64 { _, mi := stats(); return float64(mi) }),
	)
}

// Instrument wraps b so every search is counted and timed under name.
func (m *Metrics) Instrument(name string, b backend.Backend) backend.Backend {
	return backend.Func(func(ctx context.Context, query string) (*models.ResultSet, error) {
		start := time.Now()
		rs, err := b.Search(ctx, query)
		m.BackendLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
		outcome := "ok"
		switch {
		case errors.Is(err, backend.ErrNoResults):
			outcome = "no_results"
		case err != nil:
			outcome = "error"
		}
		m.BackendRequestsTotal.WithLabelValues(name, outcome).Inc()
		return rs, err
	})
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
