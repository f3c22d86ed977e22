package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/apimeter/adapters/clock"
	"github.com/artpar/apimeter/adapters/idgen"
	"github.com/artpar/apimeter/adapters/memory"
	"github.com/artpar/apimeter/app"
	"github.com/artpar/apimeter/domain/alert"
	"github.com/artpar/apimeter/web"
)

var webT0 = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

type webFixture struct {
	router   http.Handler
	sink     *memory.EventSink
	clock    *clock.Fake
	registry *memory.MetricRegistry
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	fake := clock.NewFake(webT0)
	store := memory.NewStore(fake)
	sink := memory.NewEventSink()
	alerts := app.NewAlertService(app.AlertDeps{
		Store:  store,
		Events: sink,
		Logger: zerolog.Nop(),
	})
	if err := alerts.AllowBins(context.Background(), "svc", alert.Bins); err != nil {
		t.Fatal(err)
	}
	status := app.NewStatusService(app.StatusDeps{
		Alerts: alerts,
		Logger: zerolog.Nop(),
	})
	registry := memory.NewMetricRegistry()
	h := web.New(web.Deps{
		Status:   status,
		Alerts:   alerts,
		Registry: registry,
		Clock:    fake,
		IDGen:    idgen.NewSequential("req-"),
		Logger:   zerolog.Nop(),
	})
	return &webFixture{router: h.Router(false), sink: sink, clock: fake, registry: registry}
}

func (f *webFixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *webFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

type authrepBody struct {
	Authorized       bool   `json:"authorized"`
	Reason           string `json:"reason"`
	Plan             string `json:"plan"`
	UsageReports     []struct {
		Metric       string `json:"metric"`
		Period       string `json:"period"`
		MaxValue     int64  `json:"max_value"`
		CurrentValue int64  `json:"current_value"`
		Exceeded     bool   `json:"exceeded"`
	} `json:"usage_reports"`
	Headers struct {
		Remaining int64 `json:"remaining"`
		Reset     int64 `json:"reset"`
	} `json:"headers"`
}

const underLimitRequest = `{
  "application": {
    "id": "app",
    "plan_id": "plan-1",
    "plan_name": "gold",
    "metrics": {"m1": "hits"},
    "limits": [{"metric_id": "m1", "period": "hour", "max_value": 50}]
  },
  "values": {"hour": {"m1": 45}},
  "timestamp": "2024-06-15T10:30:00Z"
}`

func TestAuthrep_Authorized(t *testing.T) {
	f := newWebFixture(t)

	rec := f.post(t, "/v1/services/svc/authrep", underLimitRequest)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body authrepBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Authorized {
		t.Error("Authorized = false")
	}
	if body.Plan != "gold" {
		t.Errorf("Plan = %q", body.Plan)
	}
	if len(body.UsageReports) != 1 {
		t.Fatalf("usage_reports = %d, want 1", len(body.UsageReports))
	}
	r := body.UsageReports[0]
	if r.Metric != "hits" || r.Period != "hour" || r.CurrentValue != 45 {
		t.Errorf("report = %+v", r)
	}
	if body.Headers.Remaining != 5 {
		t.Errorf("headers.remaining = %d, want 5", body.Headers.Remaining)
	}
	if body.Headers.Reset != 1800 {
		t.Errorf("headers.reset = %d, want 1800", body.Headers.Reset)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header missing")
	}
}

func TestAuthrep_ExceededReturns409(t *testing.T) {
	f := newWebFixture(t)

	body := strings.Replace(underLimitRequest, `"m1": 45`, `"m1": 51`, 1)
	rec := f.post(t, "/v1/services/svc/authrep", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var resp authrepBody
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Authorized {
		t.Error("Authorized = true on exceeded limit")
	}
	if resp.Reason != "usage limits are exceeded" {
		t.Errorf("Reason = %q", resp.Reason)
	}
	if !resp.UsageReports[0].Exceeded {
		t.Error("report not marked exceeded")
	}
	if resp.Headers.Remaining != -1 {
		t.Errorf("headers.remaining = %d, want -1 when over limit", resp.Headers.Remaining)
	}
}

func TestAuthrep_NoLimitsUnconstrainedHeaders(t *testing.T) {
	f := newWebFixture(t)

	rec := f.post(t, "/v1/services/svc/authrep", `{
	  "application": {"id": "app", "plan_name": "gold", "metrics": {}, "limits": []}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp authrepBody
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Headers.Remaining != -1 || resp.Headers.Reset != -1 {
		t.Errorf("headers = %+v, want -1/-1", resp.Headers)
	}
}

func TestAuthrep_MissingSubject(t *testing.T) {
	f := newWebFixture(t)

	rec := f.post(t, "/v1/services/svc/authrep", `{"values": {"hour": {"m1": 1}}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAuthrep_InvalidBody(t *testing.T) {
	f := newWebFixture(t)

	rec := f.post(t, "/v1/services/svc/authrep", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAuthrep_UnknownPeriod(t *testing.T) {
	f := newWebFixture(t)

	rec := f.post(t, "/v1/services/svc/authrep", `{
	  "application": {
	    "id": "app",
	    "limits": [{"metric_id": "m1", "period": "fortnight", "max_value": 10}]
	  }
	}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "fortnight") {
		t.Errorf("body = %s, want the offending period named", rec.Body.String())
	}
}

func TestAuthrep_FeedsAlerting(t *testing.T) {
	f := newWebFixture(t)

	// 45/50 = 90% puts the evaluation in the 90 bucket.
	rec := f.post(t, "/v1/services/svc/authrep", underLimitRequest)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	events := f.sink.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0].Payload.(alert.Event)
	if ev.Utilization != 90 {
		t.Errorf("Utilization = %d, want 90", ev.Utilization)
	}
	if ev.Limit != "hits per hour: 45/50" {
		t.Errorf("Limit = %q", ev.Limit)
	}
}

func TestUtilizationHistory(t *testing.T) {
	f := newWebFixture(t)

	// Generate a peak in hour 10, then roll into hour 11.
	f.post(t, "/v1/services/svc/authrep", underLimitRequest)
	f.clock.Set(time.Date(2024, 6, 15, 11, 5, 0, 0, time.UTC))
	low := strings.Replace(underLimitRequest, `"m1": 45`, `"m1": 10`, 1)
	low = strings.Replace(low, "2024-06-15T10:30:00Z", "2024-06-15T11:05:00Z", 1)
	f.post(t, "/v1/services/svc/authrep", low)

	rec := f.get(t, "/v1/services/svc/applications/app/utilization")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var entries []struct {
		Hour           time.Time `json:"hour"`
		MaxUtilization int64     `json:"max_utilization"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].MaxUtilization != 90 {
		t.Errorf("max_utilization = %d, want 90", entries[0].MaxUtilization)
	}
	wantHour := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	if !entries[0].Hour.Equal(wantHour) {
		t.Errorf("hour = %v, want %v", entries[0].Hour, wantHour)
	}
}

func TestUtilizationHistory_Empty(t *testing.T) {
	f := newWebFixture(t)

	rec := f.get(t, "/v1/services/svc/applications/app/utilization")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %s, want empty array", got)
	}
}

func TestMetricsRegistry_SaveAndList(t *testing.T) {
	f := newWebFixture(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/services/svc/metrics",
		strings.NewReader(`{"metrics": {"m1": "hits", "m2": "transfers"}}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("save status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.get(t, "/v1/services/svc/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var doc struct {
		Metrics map[string]string `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Metrics["m1"] != "hits" || doc.Metrics["m2"] != "transfers" {
		t.Errorf("metrics = %v", doc.Metrics)
	}
}

func TestAuthrep_ResolvesMetricNamesFromRegistry(t *testing.T) {
	f := newWebFixture(t)
	if err := f.registry.SaveMetric(context.Background(), "svc", "m1", "hits"); err != nil {
		t.Fatal(err)
	}

	// Request omits the metric name; the registry supplies it.
	rec := f.post(t, "/v1/services/svc/authrep", `{
	  "application": {
	    "id": "app",
	    "plan_name": "gold",
	    "limits": [{"metric_id": "m1", "period": "hour", "max_value": 50}]
	  },
	  "values": {"hour": {"m1": 10}},
	  "timestamp": "2024-06-15T10:30:00Z"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp authrepBody
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.UsageReports[0].Metric != "hits" {
		t.Errorf("metric = %q, want name resolved from registry", resp.UsageReports[0].Metric)
	}
}

func TestHealthz(t *testing.T) {
	f := newWebFixture(t)

	rec := f.get(t, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
