package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the improv server.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	cacheLookupsTotal  *prometheus.CounterVec
	generationsTotal   *prometheus.CounterVec
	generationDuration prometheus.Histogram
	summariesTotal     *prometheus.CounterVec
	rememberedPages    prometheus.Gauge
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "improv_requests_total",
			Help: "HTTP requests handled, by method and response status.",
		}, []string{"method", "status"}),
		cacheLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "improv_cache_lookups_total",
			Help: "Response cache lookups, by result.",
		}, []string{"result"}),
		generationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "improv_generations_total",
			Help: "Page generations, by outcome.",
		}, []string{"outcome"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "improv_generation_duration_seconds",
			Help:    "Wall time of page generations.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		summariesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "improv_summaries_total",
			Help: "Summarizer invocations, by outcome.",
		}, []string{"outcome"}),
		rememberedPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "improv_remembered_pages",
			Help: "Number of pages currently held in site memory.",
		}),
	}
	reg.MustRegister(m.requestsTotal, m.cacheLookupsTotal, m.generationsTotal,
		m.generationDuration, m.summariesTotal, m.rememberedPages)
	return m
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(method, status string) {
	m.requestsTotal.WithLabelValues(method, status).Inc()
}

// RecordCacheLookup records a response cache lookup; result is "hit",
// "miss", or "bypass".
func (m *Metrics) RecordCacheLookup(result string) {
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordGeneration records a generation; outcome is "ok", "failed", or
// "truncated".
func (m *Metrics) RecordGeneration(outcome string, duration time.Duration) {
	m.generationsTotal.WithLabelValues(outcome).Inc()
	m.generationDuration.Observe(duration.Seconds())
}

// RecordSummary records a summarizer invocation; outcome is "ok" or "error".
func (m *Metrics) RecordSummary(outcome string) {
	m.summariesTotal.WithLabelValues(outcome).Inc()
}

// SetRememberedPages updates the site memory size gauge.
func (m *Metrics) SetRememberedPages(n int) {
	m.rememberedPages.Set(float64(n))
}

// Handler returns an HTTP handler serving the metrics in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
