package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded for /ask requests.
const (
	outcomeOK          = "ok"
	outcomeError       = "error"
	outcomeUnavailable = "unavailable"
	outcomeBadRequest  = "bad_request"
	outcomeRateLimited = "rate_limited"
)

// labelHandler partitions HTTP metrics by chi route pattern rather than raw
// URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// Tests inject a fresh prometheus.Registry through Config.MetricsRegistry.
type serverMetrics struct {
	// askRequestsTotal counts /ask requests by outcome.
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records the pipeline time of each /ask request.
	askDurationSeconds *prometheus.HistogramVec

	// askInFlight is the number of questions currently being answered.
	askInFlight prometheus.Gauge

	// askSources records how many source chunks each answer carried.
	askSources prometheus.Histogram

	// httpRequestsTotal counts all HTTP requests by method, route and code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragdemo",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of /ask requests, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragdemo",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Time spent answering /ask requests (retrieval plus generation).",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),

		askInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ragdemo",
			Subsystem: "ask",
			Name:      "in_flight",
			Help:      "Number of /ask requests currently being answered.",
		}),

		askSources: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragdemo",
			Subsystem: "ask",
			Name:      "sources",
			Help:      "Number of source chunks returned per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragdemo",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragdemo",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeAsk records one /ask outcome.
func (m *serverMetrics) observeAsk(outcome string, d time.Duration) {
	m.askRequestsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.askDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

// middleware records request count and latency for every route, labelled
// with the chi route pattern to keep cardinality bounded.
func (m *serverMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
