package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors on a dedicated registry.
type Metrics struct {
	registry        *prometheus.Registry
	predictions     *prometheus.CounterVec
	explanations    prometheus.Counter
	failures        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers the service collectors together with the Go and
// process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cancerrisk",
			Name:      "predictions_total",
			Help:      "Predictions served, by risk label.",
		}, []string{"label"}),
		explanations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cancerrisk",
			Name:      "explanations_total",
			Help:      "Explanations computed.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cancerrisk",
			Name:      "failures_total",
			Help:      "Failed operations, by operation and HTTP status.",
		}, []string{"operation", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cancerrisk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"route", "method", "code"}),
	}
	m.registry.MustRegister(
		m.predictions,
		m.explanations,
		m.failures,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format. Compression is
// left to GzipMiddleware.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{DisableCompression: true})
}

// Instrument records the latency of one route.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(
		m.requestDuration.MustCurryWith(prometheus.Labels{"route": route}), next)
}

func (m *Metrics) observePrediction(label string) {
	m.predictions.WithLabelValues(label).Inc()
}

func (m *Metrics) observeExplanation() {
	m.explanations.Inc()
}

func (m *Metrics) observeFailure(operation string, status int) {
	m.failures.WithLabelValues(operation, http.StatusText(status)).Inc()
}
