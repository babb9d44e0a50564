// Package metrics exposes Prometheus instrumentation for the template
// generation pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors, registered on a
// private registry so tests can run side by side.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	iterations    prometheus.Histogram
	cacheEvents   *prometheus.CounterVec
	tokensUsed    prometheus.Counter
}

// New creates and registers the pipeline collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alimgen",
		Name:      "requests_total",
		Help:      "Template generation requests by outcome.",
	}, []string{"outcome"})

	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alimgen",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each workflow stage.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"stage"})

	m.iterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "alimgen",
		Name:      "workflow_iterations",
		Help:      "Generation iterations per request.",
		Buckets:   []float64{1, 2, 3},
	})

	m.cacheEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alimgen",
		Name:      "cache_events_total",
		Help:      "Cache hits and misses by namespace.",
	}, []string{"namespace", "event"})

	m.tokensUsed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "alimgen",
		Name:      "llm_tokens_total",
		Help:      "LLM tokens consumed across all calls.",
	})

	m.registry.MustRegister(
		m.requestsTotal,
		m.stageDuration,
		m.iterations,
		m.cacheEvents,
		m.tokensUsed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(success bool, iterations int) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.iterations.Observe(float64(iterations))
}

// ObserveStage records the duration of one workflow stage in seconds.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// CacheHit records a cache hit for a namespace.
func (m *Metrics) CacheHit(namespace string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(namespace, "hit").Inc()
}

// CacheMiss records a cache miss for a namespace.
func (m *Metrics) CacheMiss(namespace string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(namespace, "miss").Inc()
}

// AddTokens accumulates LLM token usage.
func (m *Metrics) AddTokens(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensUsed.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
