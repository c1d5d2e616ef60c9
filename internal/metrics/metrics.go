// Package metrics exposes Prometheus collectors for generation and HTTP
// traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pep299/edgewriter/internal/stream"
)

const namespace = "edgewriter"

// Metrics holds every collector on its own registry
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	GenerationTotal    *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	TokensTotal        *prometheus.CounterVec
	StopsTotal         prometheus.Counter

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	UpstreamHealthy prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "path"}),
		GenerationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "total",
			Help:      "Total number of generations by task and outcome",
		}, []string{"task", "status"}),
		GenerationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Generation wall-clock time in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"task", "delegate"}),
		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Tokens processed, by type (prompt/completion)",
		}, []string{"type"}),
		StopsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "stops_total",
			Help:      "Generations stopped by the user",
		}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Result cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Result cache misses",
		}),
		UpstreamHealthy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "healthy",
			Help:      "1 when the last engine health probe succeeded",
		}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveGeneration records one finished generation
func (m *Metrics) ObserveGeneration(task, delegate, status string, elapsed time.Duration, usage *stream.Usage) {
	if m == nil {
		return
	}
	m.GenerationTotal.WithLabelValues(task, status).Inc()
	m.GenerationDuration.WithLabelValues(task, delegate).Observe(elapsed.Seconds())
	if usage != nil {
		m.TokensTotal.WithLabelValues("prompt").Add(float64(usage.Prompt))
		m.TokensTotal.WithLabelValues("completion").Add(float64(usage.Completion))
	}
	if status == "stopped" {
		m.StopsTotal.Inc()
	}
}

// ObserveCache records a cache lookup
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// SetUpstreamHealthy records the result of a health probe
func (m *Metrics) SetUpstreamHealthy(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.UpstreamHealthy.Set(1)
	} else {
		m.UpstreamHealthy.Set(0)
	}
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
