// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/apimeter/adapters/metrics"
	"github.com/artpar/apimeter/domain/alert"
	"github.com/artpar/apimeter/domain/limit"
)

// Rejection reasons.
const (
	RejectionLimitsExceeded = "limits_exceeded"
)

// StatusRequest is one authorization/accounting evaluation. At least one of
// Application and User must be set.
type StatusRequest struct {
	ServiceID   string
	Application *limit.Application
	User        *limit.User
	Values      limit.Values // application counter values
	UserValues  limit.Values // user counter values
	Timestamp   time.Time
}

// Status is the outcome of one evaluation: the usage report sets, the
// authorization fold over them, and the data rate-limit headers are built
// from. Computed fresh per evaluation and discarded.
type Status struct {
	ServiceID          string
	PlanName           string
	UserPlanName       string
	Timestamp          time.Time
	ApplicationReports []limit.UsageReport
	UserReports        []limit.UsageReport

	authorized    bool
	rejectionCode string
	rejectionText string
}

// Authorized reports whether the evaluation passed every limit.
func (s *Status) Authorized() bool {
	return s.authorized
}

// Reject marks the status rejected. The first rejection reason wins.
func (s *Status) Reject(code, text string) {
	s.authorized = false
	if s.rejectionCode == "" {
		s.rejectionCode = code
		s.rejectionText = text
	}
}

// RejectionReason returns the rejection code and text, both empty while
// authorized.
func (s *Status) RejectionReason() (code, text string) {
	return s.rejectionCode, s.rejectionText
}

// Headers picks the most constrained application report and renders the
// rate-limit header values at the status timestamp.
func (s *Status) Headers() limit.Headers {
	return limit.SelectHeaders(s.ApplicationReports, s.Timestamp)
}

// StatusService computes usage reports and the authorization outcome, and
// feeds the utilization alerting engine.
type StatusService struct {
	alerts  *AlertService
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// StatusDeps contains dependencies for StatusService.
type StatusDeps struct {
	Alerts  *AlertService // optional; nil disables alerting
	Metrics *metrics.Collector
	Logger  zerolog.Logger
}

// NewStatusService creates a status service.
func NewStatusService(deps StatusDeps) *StatusService {
	return &StatusService{
		alerts:  deps.Alerts,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
}

// Evaluate computes the report sets for the request's subjects at the
// request timestamp, folds the authorization decision, and runs the alerting
// engine over the combined reports. A request without any subject is a
// configuration error and fails before any store interaction. Alerting
// failures are logged and do not fail the evaluation - the authorization
// decision never depends on advisory alerts.
func (s *StatusService) Evaluate(ctx context.Context, req StatusRequest) (*Status, error) {
	if req.Application == nil && req.User == nil {
		return nil, limit.ErrNoSubject
	}

	ts := req.Timestamp.UTC()
	st := &Status{
		ServiceID:  req.ServiceID,
		Timestamp:  ts,
		authorized: true,
	}

	if req.Application != nil {
		st.PlanName = req.Application.PlanName
		reports, err := limit.ComputeReports(req.Application, req.Values, ts)
		if err != nil {
			return nil, err
		}
		st.ApplicationReports = reports
	}
	if req.User != nil {
		st.UserPlanName = req.User.PlanName
		reports, err := limit.ComputeReports(req.User, req.UserValues, ts)
		if err != nil {
			return nil, err
		}
		st.UserReports = reports
	}

	if limit.AnyExceeded(st.ApplicationReports) || limit.AnyExceeded(st.UserReports) {
		st.Reject(RejectionLimitsExceeded, "usage limits are exceeded")
	}

	if s.metrics != nil {
		s.metrics.ObserveAuthorization(st.authorized)
	}

	if s.alerts != nil && req.Application != nil {
		snap, ok := alert.Utilization(st.ApplicationReports, st.UserReports)
		if ok {
			err := s.alerts.Evaluate(ctx, req.ServiceID, req.Application.ID, snap, ts)
			if err != nil {
				s.logger.Error().Err(err).
					Str("service_id", req.ServiceID).
					Str("app_id", req.Application.ID).
					Msg("alert evaluation failed, continuing without alerting")
			}
		}
	}

	return st, nil
}
