// Package metrics exposes Prometheus instrumentation on a per-service registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors shared by the web service and worker.
// All methods are safe on a nil receiver.
type Metrics struct {
	Registry *prometheus.Registry

	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	cache     *prometheus.CounterVec
	autoLink  *prometheus.CounterVec
	evictions *prometheus.CounterVec
}

func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	constLabels := prometheus.Labels{"service": service}

	m := &Metrics{
		Registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "HTTP requests by route pattern, method and status.",
			ConstLabels: constLabels,
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency by route pattern and method.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"route", "method"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stats_cache_lookups_total",
			Help:        "Completion stats cache lookups by backend and result.",
			ConstLabels: constLabels,
		}, []string{"backend", "result"}),
		autoLink: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "autolink_results_total",
			Help:        "Auto-link search outcomes by external source.",
			ConstLabels: constLabels,
		}, []string{"source", "outcome"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stats_cache_evictions_total",
			Help:        "Stats cache keys evicted from events by subject.",
			ConstLabels: constLabels,
		}, []string{"subject"}),
	}
	reg.MustRegister(m.requests, m.duration, m.cache, m.autoLink, m.evictions)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Middleware records request count and latency labelled by the chi route
// pattern, so /v1/posts/{id} is one series regardless of id.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) CacheHit(backend string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(backend, "hit").Inc()
}

func (m *Metrics) CacheMiss(backend string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(backend, "miss").Inc()
}

// AutoLink counts one source outcome: linked, backfilled, no_match or error.
func (m *Metrics) AutoLink(source, outcome string) {
	if m == nil {
		return
	}
	m.autoLink.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) Evicted(subject string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.WithLabelValues(subject).Add(float64(n))
}
