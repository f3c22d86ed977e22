// Package web provides the HTTP surface of the decision core: health,
// Prometheus metrics, and the authrep evaluation endpoint. The management
// API wire schema is not owned here; handlers only read usage-report fields.
package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/apimeter/adapters/metrics"
	"github.com/artpar/apimeter/app"
	"github.com/artpar/apimeter/ports"
)

// Handler provides the HTTP endpoints.
type Handler struct {
	status   *app.StatusService
	alerts   *app.AlertService
	registry ports.MetricRegistry
	clock    ports.Clock
	idGen    ports.IDGenerator
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// Deps contains dependencies for the web handler.
type Deps struct {
	Status   *app.StatusService
	Alerts   *app.AlertService
	Registry ports.MetricRegistry // optional; enables metric name resolution
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Metrics  *metrics.Collector // optional
	Logger   zerolog.Logger
}

// New creates the web handler.
func New(deps Deps) *Handler {
	return &Handler{
		status:   deps.Status,
		alerts:   deps.Alerts,
		registry: deps.Registry,
		clock:    deps.Clock,
		idGen:    deps.IDGen,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// Router builds the chi router. The metrics endpoint is mounted only when
// serveMetrics is set.
func (h *Handler) Router(serveMetrics bool) http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestLogger)

	r.Get("/healthz", h.handleHealth)
	if serveMetrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/services/{serviceID}/authrep", h.handleAuthrep)
		r.Get("/services/{serviceID}/applications/{appID}/utilization", h.handleUtilizationHistory)
		r.Put("/services/{serviceID}/metrics", h.handleSaveMetrics)
		r.Get("/services/{serviceID}/metrics", h.handleListMetrics)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// requestLogger tags each request with an id and records latency.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := h.idGen.New()
		w.Header().Set("X-Request-Id", reqID)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		h.logger.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", elapsed).
			Msg("request")

		if h.metrics != nil {
			h.metrics.RequestsTotal.WithLabelValues(r.URL.Path, http.StatusText(sw.status)).Inc()
			h.metrics.RequestDuration.WithLabelValues(r.URL.Path).Observe(elapsed.Seconds())
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
