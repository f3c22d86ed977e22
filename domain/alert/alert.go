// Package alert provides utilization classification for threshold alerting.
// All functions are pure - the stateful engine lives in app.
package alert

import (
	"time"

	"github.com/artpar/apimeter/domain/limit"
)

// Bins are the discrete utilization levels, in percent of the limit, that
// continuous utilization is coalesced into. Zero must be present and the
// slice must stay sorted ascending: it is the guaranteed fallback of Classify.
var Bins = []int{0, 50, 80, 90, 100, 120, 150, 200, 300}

// EventTTL bounds notifications to at most one per bin per rolling day.
const EventTTL = 24 * time.Hour

// HistorySize caps the hourly utilization history at one week of entries.
const HistorySize = 24 * 7

// Classify maps a utilization ratio to the greatest bin at or below
// ratio*100. Ratios below every positive bin fall into bin 0.
func Classify(ratio float64) int {
	u := ratio * 100.0
	for i := len(Bins) - 1; i >= 0; i-- {
		if u >= float64(Bins[i]) {
			return Bins[i]
		}
	}
	return Bins[0]
}

// Snapshot is the single most-utilized report of a subject at one
// evaluation.
type Snapshot struct {
	Ratio  float64
	Report limit.UsageReport
}

// Utilization finds the report with the highest current/max ratio across the
// application and user report sets. Reports with MaxValue == 0 cannot
// produce a ratio and are skipped; when every candidate has MaxValue == 0
// the ratio is 0 and the first available report is used (application
// reports before user reports). ok is false only when both sets are empty.
func Utilization(appReports, userReports []limit.UsageReport) (Snapshot, bool) {
	maxRatio := -1.0
	var maxRecord limit.UsageReport

	scan := func(reports []limit.UsageReport) {
		for _, r := range reports {
			if r.MaxValue <= 0 {
				continue
			}
			ratio := float64(r.CurrentValue) / float64(r.MaxValue)
			if ratio > maxRatio {
				maxRatio = ratio
				maxRecord = r
			}
		}
	}
	scan(appReports)
	scan(userReports)

	if maxRatio >= 0 {
		return Snapshot{Ratio: maxRatio, Report: maxRecord}, true
	}

	// Every limit had MaxValue == 0; default to the first report on hand.
	switch {
	case len(appReports) > 0:
		return Snapshot{Report: appReports[0]}, true
	case len(userReports) > 0:
		return Snapshot{Report: userReports[0]}, true
	default:
		return Snapshot{}, false
	}
}

// Event is an emitted threshold-crossing fact. Immutable once emitted;
// ownership passes to the event sink.
type Event struct {
	ID             int64     `json:"id"`
	ServiceID      string    `json:"service_id"`
	ApplicationID  string    `json:"application_id"`
	Utilization    int       `json:"utilization"`
	MaxUtilization float64   `json:"max_utilization"`
	Timestamp      time.Time `json:"timestamp"`
	Limit          string    `json:"limit"`
}
