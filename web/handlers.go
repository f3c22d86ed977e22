package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/apimeter/app"
	"github.com/artpar/apimeter/domain/limit"
	"github.com/artpar/apimeter/domain/period"
	"github.com/artpar/apimeter/domain/stats"
)

// subjectDoc describes an application or user inline in the request. The
// caller owns provisioning; this service only evaluates.
type subjectDoc struct {
	ID       string            `json:"id"`
	PlanID   string            `json:"plan_id"`
	PlanName string            `json:"plan_name"`
	Metrics  map[string]string `json:"metrics"`
	Limits   []limitDoc        `json:"limits"`
}

type limitDoc struct {
	MetricID string `json:"metric_id"`
	Period   string `json:"period"`
	MaxValue int64  `json:"max_value"`
}

// valuesDoc maps period name -> metric id -> recorded value.
type valuesDoc map[string]map[string]int64

type authrepRequest struct {
	Application  *subjectDoc `json:"application"`
	User         *subjectDoc `json:"user"`
	Values       valuesDoc   `json:"values"`
	UserValues   valuesDoc   `json:"user_values"`
	Timestamp    *time.Time  `json:"timestamp"`
	ResponseCode string      `json:"response_code"`
}

type reportDoc struct {
	Metric       string     `json:"metric"`
	Period       string     `json:"period"`
	PeriodStart  *time.Time `json:"period_start,omitempty"`
	PeriodEnd    *time.Time `json:"period_end,omitempty"`
	MaxValue     int64      `json:"max_value"`
	CurrentValue int64      `json:"current_value"`
	Exceeded     bool       `json:"exceeded,omitempty"`
}

type headersDoc struct {
	Remaining int64 `json:"remaining"`
	Reset     int64 `json:"reset"`
}

type authrepResponse struct {
	Authorized       bool        `json:"authorized"`
	Reason           string      `json:"reason,omitempty"`
	Plan             string      `json:"plan,omitempty"`
	UserPlan         string      `json:"user_plan,omitempty"`
	UsageReports     []reportDoc `json:"usage_reports,omitempty"`
	UserUsageReports []reportDoc `json:"user_usage_reports,omitempty"`
	Headers          headersDoc  `json:"headers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleAuthrep(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")

	var req authrepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	svcReq := app.StatusRequest{
		ServiceID: serviceID,
		Timestamp: h.clock.Now(),
	}
	if req.Timestamp != nil {
		svcReq.Timestamp = *req.Timestamp
	}

	var err error
	if req.Application != nil {
		svcReq.Application, err = toApplication(serviceID, req.Application)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	if req.User != nil {
		var user *limit.Application
		user, err = toApplication(serviceID, req.User)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		svcReq.User = &limit.User{
			Username: user.ID,
			PlanName: user.PlanName,
			Metrics:  user.Metrics,
			Limits:   user.Limits,
		}
	}
	if svcReq.Values, err = toValues(req.Values); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if svcReq.UserValues, err = toValues(req.UserValues); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if svcReq.Application != nil {
		h.resolveMetricNames(r.Context(), serviceID, svcReq.Application)
	}

	if h.metrics != nil && req.ResponseCode != "" {
		for _, group := range stats.CodeGroups(req.ResponseCode) {
			h.metrics.ResponseCodesTotal.WithLabelValues(serviceID, group).Inc()
		}
	}

	status, err := h.status.Evaluate(r.Context(), svcReq)
	if err != nil {
		if errors.Is(err, limit.ErrNoSubject) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "application or user is required"})
			return
		}
		h.logger.Error().Err(err).Str("service_id", serviceID).Msg("status evaluation failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "evaluation failed"})
		return
	}

	resp := authrepResponse{
		Authorized:       status.Authorized(),
		Plan:             status.PlanName,
		UserPlan:         status.UserPlanName,
		UsageReports:     toReportDocs(status.ApplicationReports),
		UserUsageReports: toReportDocs(status.UserReports),
	}
	_, resp.Reason = status.RejectionReason()
	hdrs := status.Headers()
	resp.Headers = headersDoc{Remaining: hdrs.Remaining, Reset: hdrs.Reset}

	code := http.StatusOK
	if !status.Authorized() {
		code = http.StatusConflict
	}
	writeJSON(w, code, resp)
}

type historyEntryDoc struct {
	Hour           time.Time `json:"hour"`
	MaxUtilization int64     `json:"max_utilization"`
}

func (h *Handler) handleUtilizationHistory(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	appID := chi.URLParam(r, "appID")

	entries, err := h.alerts.History(r.Context(), serviceID, appID)
	if err != nil {
		h.logger.Error().Err(err).
			Str("service_id", serviceID).
			Str("app_id", appID).
			Msg("history read failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history read failed"})
		return
	}

	docs := make([]historyEntryDoc, len(entries))
	for i, e := range entries {
		docs[i] = historyEntryDoc{Hour: e.Hour, MaxUtilization: e.MaxUtilization}
	}
	writeJSON(w, http.StatusOK, docs)
}

// resolveMetricNames fills metric names the request left blank from the
// registry. Resolution is best effort; an unknown id keeps its empty name and
// reports render without one.
func (h *Handler) resolveMetricNames(ctx context.Context, serviceID string, app *limit.Application) {
	if h.registry == nil {
		return
	}
	for _, ul := range app.Limits {
		if app.Metrics[ul.MetricID] != "" {
			continue
		}
		name, err := h.registry.MetricName(ctx, serviceID, ul.MetricID)
		if err != nil {
			h.logger.Warn().Err(err).
				Str("service_id", serviceID).
				Str("metric_id", ul.MetricID).
				Msg("metric name lookup failed")
			continue
		}
		if name != "" {
			if app.Metrics == nil {
				app.Metrics = make(map[string]string)
			}
			app.Metrics[ul.MetricID] = name
		}
	}
}

type metricsDoc struct {
	Metrics map[string]string `json:"metrics"` // metric id -> name
}

func (h *Handler) handleSaveMetrics(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "metric registry disabled"})
		return
	}
	serviceID := chi.URLParam(r, "serviceID")

	var doc metricsDoc
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	for id, name := range doc.Metrics {
		if err := h.registry.SaveMetric(r.Context(), serviceID, id, name); err != nil {
			h.logger.Error().Err(err).Str("service_id", serviceID).Msg("metric save failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "metric save failed"})
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "metric registry disabled"})
		return
	}
	serviceID := chi.URLParam(r, "serviceID")

	ids, err := h.registry.MetricIDs(r.Context(), serviceID)
	if err != nil {
		h.logger.Error().Err(err).Str("service_id", serviceID).Msg("metric list failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "metric list failed"})
		return
	}
	doc := metricsDoc{Metrics: make(map[string]string, len(ids))}
	for _, id := range ids {
		name, err := h.registry.MetricName(r.Context(), serviceID, id)
		if err != nil {
			h.logger.Error().Err(err).Str("service_id", serviceID).Msg("metric list failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "metric list failed"})
			return
		}
		doc.Metrics[id] = name
	}
	writeJSON(w, http.StatusOK, doc)
}

func toApplication(serviceID string, doc *subjectDoc) (*limit.Application, error) {
	limits := make([]limit.UsageLimit, 0, len(doc.Limits))
	for _, ld := range doc.Limits {
		p, ok := period.Parse(ld.Period)
		if !ok {
			return nil, errors.New("unknown period " + strconv.Quote(ld.Period))
		}
		limits = append(limits, limit.UsageLimit{
			ServiceID: serviceID,
			PlanID:    doc.PlanID,
			MetricID:  ld.MetricID,
			Period:    p,
			MaxValue:  ld.MaxValue,
		})
	}
	return &limit.Application{
		ID:       doc.ID,
		PlanID:   doc.PlanID,
		PlanName: doc.PlanName,
		Metrics:  doc.Metrics,
		Limits:   limits,
	}, nil
}

func toValues(doc valuesDoc) (limit.Values, error) {
	if doc == nil {
		return limit.Values{}, nil
	}
	vals := make(limit.Values, len(doc))
	for periodName, metrics := range doc {
		p, ok := period.Parse(periodName)
		if !ok {
			return nil, errors.New("unknown period " + strconv.Quote(periodName))
		}
		vals[p] = metrics
	}
	return vals, nil
}

func toReportDocs(reports []limit.UsageReport) []reportDoc {
	docs := make([]reportDoc, len(reports))
	for i, r := range reports {
		doc := reportDoc{
			Metric:       r.MetricName,
			Period:       r.Period.String(),
			MaxValue:     r.MaxValue,
			CurrentValue: r.CurrentValue,
			Exceeded:     r.Exceeded(),
		}
		if r.Period.Finite() {
			start, end := r.PeriodStart, r.PeriodEnd
			doc.PeriodStart = &start
			doc.PeriodEnd = &end
		}
		docs[i] = doc
	}
	return docs
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
