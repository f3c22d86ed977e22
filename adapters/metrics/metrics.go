// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics exposed by the service.
type Collector struct {
	// HTTP surface
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Authorization outcomes
	AuthorizationsTotal *prometheus.CounterVec
	ResponseCodesTotal  *prometheus.CounterVec

	// Alerting engine
	EvaluationsTotal  *prometheus.CounterVec
	AlertsEmitted     *prometheus.CounterVec
	UtilizationBucket *prometheus.HistogramVec

	// Shared store
	StoreBatchDuration prometheus.Histogram
	StoreErrors        prometheus.Counter
}

// New creates a collector and registers its metrics with reg. Pass
// prometheus.DefaultRegisterer in production; tests use a private registry
// so parallel tests do not collide.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apimeter",
				Name:      "requests_total",
				Help:      "HTTP requests processed",
			},
			[]string{"path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "apimeter",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		AuthorizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apimeter",
				Name:      "authorizations_total",
				Help:      "Authorization decisions by outcome",
			},
			[]string{"outcome"},
		),
		ResponseCodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apimeter",
				Name:      "response_codes_total",
				Help:      "Reported upstream response codes, by code group",
			},
			[]string{"service_id", "code"},
		),
		EvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apimeter",
				Name:      "alert_evaluations_total",
				Help:      "Utilization evaluations by result",
			},
			[]string{"result"},
		),
		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apimeter",
				Name:      "alerts_emitted_total",
				Help:      "Alert events emitted, by utilization level",
			},
			[]string{"level"},
		),
		UtilizationBucket: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "apimeter",
				Name:      "utilization_ratio",
				Help:      "Observed peak utilization ratios",
				Buckets:   []float64{0.5, 0.8, 0.9, 1.0, 1.2, 1.5, 2.0, 3.0},
			},
			[]string{"service_id"},
		),
		StoreBatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "apimeter",
				Name:      "store_batch_duration_seconds",
				Help:      "Shared store batch round-trip latency",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		StoreErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "apimeter",
				Name:      "store_errors_total",
				Help:      "Shared store batch failures",
			},
		),
	}

	reg.MustRegister(
		c.RequestsTotal,
		c.RequestDuration,
		c.AuthorizationsTotal,
		c.ResponseCodesTotal,
		c.EvaluationsTotal,
		c.AlertsEmitted,
		c.UtilizationBucket,
		c.StoreBatchDuration,
		c.StoreErrors,
	)
	return c
}

// ObserveAuthorization records one authorization decision.
func (c *Collector) ObserveAuthorization(authorized bool) {
	outcome := "rejected"
	if authorized {
		outcome = "authorized"
	}
	c.AuthorizationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAlert records one emitted alert at a discrete utilization level.
func (c *Collector) ObserveAlert(level int) {
	c.AlertsEmitted.WithLabelValues(strconv.Itoa(level)).Inc()
}
