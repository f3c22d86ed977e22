package limit

import "time"

// Headers carries the values exposed in rate-limit response headers.
// Both fields are -1 when the caller is unconstrained (no limit information).
type Headers struct {
	Remaining int64
	Reset     int64
}

// Unconstrained is the header set used when there are no reports to expose.
var Unconstrained = Headers{Remaining: -1, Reset: -1}

// MostConstrained returns the report with the least remaining capacity.
// When two reports tie on remaining, the one with the larger period wins:
// exposing the longer window is more informative when hit counts coincide.
// ok is false for an empty set.
func MostConstrained(reports []UsageReport) (UsageReport, bool) {
	if len(reports) == 0 {
		return UsageReport{}, false
	}
	best := reports[0]
	for _, r := range reports[1:] {
		if moreConstrained(r, best) {
			best = r
		}
	}
	return best, true
}

// moreConstrained reports whether a is strictly more constrained than b.
// Smallest remaining first; on equal remaining the larger granularity ranks
// as more constrained so that it is the one selected.
func moreConstrained(a, b UsageReport) bool {
	ar, br := a.Remaining(), b.Remaining()
	if ar != br {
		return ar < br
	}
	return a.Period.Granularity() > b.Period.Granularity()
}

// SelectHeaders picks the most constrained report and renders its header
// values at the instant now. An empty set yields Unconstrained.
func SelectHeaders(reports []UsageReport, now time.Time) Headers {
	report, ok := MostConstrained(reports)
	if !ok {
		return Unconstrained
	}
	return Headers{
		Remaining: report.Remaining(),
		Reset:     report.RemainingTime(now),
	}
}
