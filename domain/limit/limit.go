// Package limit provides usage limits, usage reports, and rate-limit header
// selection. All functions are pure - no side effects, deterministic.
package limit

import (
	"errors"
	"fmt"
	"time"

	"github.com/artpar/apimeter/domain/period"
)

// UsageLimit caps one metric over one period for a plan (immutable value type).
// Limits are provisioned externally and read-only here.
type UsageLimit struct {
	ServiceID string
	PlanID    string
	MetricID  string
	Period    period.Period
	MaxValue  int64
}

// Subject is anything that owns usage limits and reportable metric values:
// an application or an end-user.
type Subject interface {
	// MetricName resolves a metric id to its display name.
	MetricName(metricID string) string

	// UsageLimits returns the limits of the subject's plan.
	UsageLimits() []UsageLimit
}

// Values holds the recorded counter values for a subject, keyed by period and
// metric id. Absent entries read as 0, never as a null marker, so report
// arithmetic needs no nil checks.
type Values map[period.Period]map[string]int64

// ValueFor returns the recorded value for (p, metricID), 0 when unseen.
func (v Values) ValueFor(p period.Period, metricID string) int64 {
	return v[p][metricID]
}

// UsageReport is the derived accounting state of one (metric, period) limit
// at one evaluation instant. Reports are computed fresh per evaluation and
// never stored.
type UsageReport struct {
	MetricName   string
	Period       period.Period
	PeriodStart  time.Time // zero for eternity
	PeriodEnd    time.Time // zero for eternity
	MaxValue     int64
	CurrentValue int64
}

// Exceeded reports whether current usage is strictly over the limit.
func (r UsageReport) Exceeded() bool {
	return r.CurrentValue > r.MaxValue
}

// Remaining returns the capacity left before the limit. Negative when the
// limit has been exceeded.
func (r UsageReport) Remaining() int64 {
	return r.MaxValue - r.CurrentValue
}

// RemainingTime returns the whole seconds until the period resets. Eternity
// never resets and yields -1.
func (r UsageReport) RemainingTime(now time.Time) int64 {
	if !r.Period.Finite() {
		return -1
	}
	secs := int64(r.PeriodEnd.Sub(now) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// LimitDescription renders the report the way alert events describe the
// offending limit, e.g. "hits per day: 120/100".
func (r UsageReport) LimitDescription() string {
	return fmt.Sprintf("%s per %s: %d/%d", r.MetricName, r.Period, r.CurrentValue, r.MaxValue)
}

// ErrNoSubject is returned when report computation is attempted with no
// subject at all. Callers must supply an application or a user.
var ErrNoSubject = errors.New("limit: report set requires a subject")

// ComputeReports builds one report per usage limit of the subject, resolving
// current values through vals and period boundaries at the instant ts. The
// instant is fixed for the whole set.
func ComputeReports(subject Subject, vals Values, ts time.Time) ([]UsageReport, error) {
	if subject == nil {
		return nil, ErrNoSubject
	}
	limits := subject.UsageLimits()
	reports := make([]UsageReport, 0, len(limits))
	for _, ul := range limits {
		r := UsageReport{
			MetricName:   subject.MetricName(ul.MetricID),
			Period:       ul.Period,
			MaxValue:     ul.MaxValue,
			CurrentValue: vals.ValueFor(ul.Period, ul.MetricID),
		}
		if start, ok := ul.Period.Start(ts); ok {
			r.PeriodStart = start
			r.PeriodEnd, _ = ul.Period.End(ts)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// AnyExceeded reports whether any report in the set is over its limit. This
// is the authorization fold performed over a report set.
func AnyExceeded(reports []UsageReport) bool {
	for _, r := range reports {
		if r.Exceeded() {
			return true
		}
	}
	return false
}
