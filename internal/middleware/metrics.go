package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service's Prometheus collectors. It also receives
// prediction and explanation timings from the prediction service.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	predictions     *prometheus.CounterVec
	predictLatency  prometheus.Histogram
	explanations    *prometheus.CounterVec
	explainLatency  *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hear",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hear",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hear",
			Name:      "predictions_total",
			Help:      "Predictions served, by outcome.",
		}, []string{"outcome"}),
		predictLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hear",
			Name:      "prediction_duration_seconds",
			Help:      "Time to prepare input and compute one probability.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		explanations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hear",
			Name:      "explanations_total",
			Help:      "Explanations served by method and outcome (ok, degraded, cached, error).",
		}, []string{"method", "outcome"}),
		explainLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hear",
			Name:      "explanation_duration_seconds",
			Help:      "Explanation latency by method.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration,
		m.predictions, m.predictLatency,
		m.explanations, m.explainLatency,
	)
	return m
}

// Registry exposes the registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware records request counts and latency per route template
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// ObservePrediction records one prediction
func (m *Metrics) ObservePrediction(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.predictions.WithLabelValues(outcome).Inc()
	m.predictLatency.Observe(d.Seconds())
}

// ObserveExplanation records one explanation
func (m *Metrics) ObserveExplanation(method string, d time.Duration, degraded, cached bool, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case cached:
		outcome = "cached"
	case degraded:
		outcome = "degraded"
	}
	m.explanations.WithLabelValues(method, outcome).Inc()
	if err == nil && !cached {
		m.explainLatency.WithLabelValues(method).Observe(d.Seconds())
	}
}
