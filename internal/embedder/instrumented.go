package embedder

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/ragdemo-go/internal/rag"
)

// Instrumented wraps a rag.Embedder and records Prometheus metrics for every
// call: request count by outcome, number of texts embedded, and latency.
type Instrumented struct {
	// inner is the wrapped embedder.
	inner rag.Embedder

	// requestsTotal counts Embed calls partitioned by outcome ("ok", "error").
	requestsTotal *prometheus.CounterVec

	// textsTotal counts the texts sent for embedding.
	textsTotal prometheus.Counter

	// durationSeconds records the latency of each Embed call.
	durationSeconds prometheus.Histogram
}

// NewInstrumented registers the embedding metrics against reg and returns
// the wrapping embedder. backend and model are attached as constant labels.
func NewInstrumented(inner rag.Embedder, reg prometheus.Registerer, backend, model string) *Instrumented {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"backend": backend, "model": model}

	return &Instrumented{
		inner: inner,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ragdemo",
			Subsystem:   "embedding",
			Name:        "requests_total",
			Help:        "Total number of embedding API calls, partitioned by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		textsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "ragdemo",
			Subsystem:   "embedding",
			Name:        "texts_total",
			Help:        "Total number of texts sent for embedding.",
			ConstLabels: labels,
		}),
		durationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "ragdemo",
			Subsystem:   "embedding",
			Name:        "duration_seconds",
			Help:        "Latency of embedding API calls.",
			ConstLabels: labels,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// Embed delegates to the wrapped embedder and records the call.
func (m *Instrumented) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := m.inner.Embed(ctx, texts)
	m.durationSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		m.requestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	m.requestsTotal.WithLabelValues("ok").Inc()
	m.textsTotal.Add(float64(len(texts)))
	return vecs, nil
}

// HealthCheck forwards to the wrapped embedder when it supports health checks.
func (m *Instrumented) HealthCheck(ctx context.Context) error {
	if hc, ok := m.inner.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
