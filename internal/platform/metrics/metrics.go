// Package metrics exposes Prometheus instrumentation for the web server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rigshare/internal/auth"
)

// Metrics owns the collectors for one server. Each instance registers on its
// own registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	pageViews    *prometheus.CounterVec
	errors       *prometheus.CounterVec
	authEvents   *prometheus.CounterVec
	cache        *prometheus.CounterVec
	cacheFetches *prometheus.CounterVec
	visitors     prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigshare_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rigshare_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		pageViews: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigshare_page_views_total",
				Help: "Total page views by route",
			},
			[]string{"path"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigshare_http_errors_total",
				Help: "Total number of error responses by type",
			},
			[]string{"type"},
		),
		authEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigshare_auth_events_total",
				Help: "Auth state changes delivered to visitor sessions",
			},
			[]string{"event"},
		),
		cache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigshare_profile_cache_lookups_total",
				Help: "Profile cache lookups by result",
			},
			[]string{"result"},
		),
		cacheFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigshare_profile_fetches_total",
				Help: "Profile fetches issued by the cache",
			},
			[]string{"outcome"},
		),
		visitors: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rigshare_visitors_active",
				Help: "Visitor sessions currently held in memory",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AuthEvent counts one delivered auth event. It matches auth.WithEventHook.
func (m *Metrics) AuthEvent(kind auth.EventKind) {
	m.authEvents.WithLabelValues(string(kind)).Inc()
}

// SetVisitors records how many visitor sessions are live.
func (m *Metrics) SetVisitors(n int) {
	m.visitors.Set(float64(n))
}

func (m *Metrics) CacheHit() {
	m.cache.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	m.cache.WithLabelValues("miss").Inc()
}

func (m *Metrics) CacheFetch(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.cacheFetches.WithLabelValues(outcome).Inc()
}

// Middleware records request counts and latencies keyed by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		status := strconv.Itoa(wrapped.status)
		m.httpRequests.WithLabelValues(r.Method, path, status).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())

		if r.Method == http.MethodGet && isPage(r.URL.Path) {
			m.pageViews.WithLabelValues(path).Inc()
		}
		if wrapped.status >= 400 {
			kind := "client_error"
			if wrapped.status >= 500 {
				kind = "server_error"
			}
			m.errors.WithLabelValues(kind).Inc()
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// routePattern avoids a label per user id by preferring the matched chi pattern.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func isPage(path string) bool {
	for _, prefix := range []string{"/static/", "/api/", "/functions/", "/auth/", "/avatars/"} {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return path != "/health" && path != "/metrics"
}
