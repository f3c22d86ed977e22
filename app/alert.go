package app

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/apimeter/adapters/metrics"
	"github.com/artpar/apimeter/domain/alert"
	"github.com/artpar/apimeter/domain/period"
	"github.com/artpar/apimeter/ports"
)

const (
	dayLayout  = "20060102"
	hourLayout = "2006010215"

	alertIDKey     = "alerts/current_id"
	alertEventKind = "alert"

	// Day-scoped keys live a little past the day boundary so late
	// evaluations of the closing day still find their counters.
	dayKeyGrace = 5 * time.Minute
)

// AlertService is the utilization alerting engine. It runs once per metered
// operation, after the usage-report set has been computed, and maintains
// per-application alert state in the shared store: day-bucket hit counters,
// notification dedup flags, the current-hour peak and its weekly rollup
// history.
type AlertService struct {
	store   ports.KVStore
	events  ports.EventSink
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// AlertDeps contains dependencies for AlertService.
type AlertDeps struct {
	Store   ports.KVStore
	Events  ports.EventSink
	Metrics *metrics.Collector // optional
	Logger  zerolog.Logger
}

// NewAlertService creates the alerting engine.
func NewAlertService(deps AlertDeps) *AlertService {
	return &AlertService{
		store:   deps.Store,
		events:  deps.Events,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
}

func appPrefix(serviceID, appID string) string {
	return fmt.Sprintf("alerts/service_id:%s/app_id:%s/", serviceID, appID)
}

func servicePrefix(serviceID string) string {
	return fmt.Sprintf("alerts/service_id:%s/", serviceID)
}

func allowedBinsKey(serviceID string) string {
	return servicePrefix(serviceID) + "allowed_set"
}

// AllowBins adds utilization levels to the service's notification
// allow-list. Only allow-listed levels ever emit alert events; the gate is
// scoped per service, not per application.
func (s *AlertService) AllowBins(ctx context.Context, serviceID string, bins []int) error {
	if len(bins) == 0 {
		return nil
	}
	members := make([]string, len(bins))
	for i, b := range bins {
		members[i] = strconv.Itoa(b)
	}
	if err := s.store.SAdd(ctx, allowedBinsKey(serviceID), members...); err != nil {
		return fmt.Errorf("allow bins for service %s: %w", serviceID, err)
	}
	return nil
}

// Evaluate updates alert state for one utilization snapshot and emits at
// most one alert event per (service, app, level) per rolling day.
//
// The store interaction is a sequence of atomic batches, not one
// transaction: concurrent evaluations for the same application can
// interleave between the read batch and the conditional writes. The races
// this opens (a duplicated or suppressed notification, a slightly stale
// hourly rollup) are accepted - alerts are advisory and the day counters
// themselves are exact atomic increments.
func (s *AlertService) Evaluate(ctx context.Context, serviceID, appID string, snap alert.Snapshot, ts time.Time) error {
	level := alert.Classify(snap.Ratio)
	pct := int64(math.Round(snap.Ratio * 100.0))

	ts = ts.UTC()
	dayStart, _ := period.Day.Start(ts)
	hourStart, _ := period.Hour.Start(ts)
	hour := hourStart.Format(hourLayout)
	expireAt := dayStart.Add(24*time.Hour + dayKeyGrace)

	prefix := appPrefix(serviceID, appID)
	dayKey := prefix + dayStart.Format(dayLayout) + "/" + strconv.Itoa(level)
	notifiedKey := prefix + strconv.Itoa(level) + "/already_notified"
	currentMaxKey := prefix + hour + "/current_max"
	lastHourKey := prefix + "last_time_period"

	var (
		notified   *ports.StringResult
		allowed    *ports.BoolResult
		currentMax *ports.StringResult
		lastHour   *ports.StringResult
	)
	err := s.runBatch(ctx, func(b ports.Batch) {
		b.IncrBy(dayKey, 1)
		notified = b.Get(notifiedKey)
		allowed = b.SIsMember(allowedBinsKey(serviceID), strconv.Itoa(level))
		currentMax = b.Get(currentMaxKey)
		lastHour = b.Get(lastHourKey)
		b.ExpireAt(dayKey, expireAt)
		b.ExpireAt(currentMaxKey, expireAt)
	})
	if err != nil {
		s.observeEvaluation("store_error")
		return fmt.Errorf("alert state read for %s/%s: %w", serviceID, appID, err)
	}

	if pct > currentMax.Int() {
		if err := s.updateHourlyMax(ctx, prefix, hour, pct, currentMax, lastHour); err != nil {
			s.observeEvaluation("store_error")
			return fmt.Errorf("hourly max update for %s/%s: %w", serviceID, appID, err)
		}
	}

	if s.metrics != nil {
		s.metrics.UtilizationBucket.WithLabelValues(serviceID).Observe(snap.Ratio)
	}

	if notified.OK || !allowed.Val || level <= 0 {
		s.observeEvaluation("no_alert")
		return nil
	}

	var next *ports.IntResult
	err = s.runBatch(ctx, func(b ports.Batch) {
		next = b.IncrBy(alertIDKey, 1)
		b.Set(notifiedKey, "1")
		b.Expire(notifiedKey, alert.EventTTL)
	})
	if err != nil {
		s.observeEvaluation("store_error")
		return fmt.Errorf("alert dedup write for %s/%s: %w", serviceID, appID, err)
	}

	event := alert.Event{
		ID:             next.Val,
		ServiceID:      serviceID,
		ApplicationID:  appID,
		Utilization:    level,
		MaxUtilization: snap.Ratio,
		Timestamp:      ts,
		Limit:          snap.Report.LimitDescription(),
	}
	if err := s.events.Store(ctx, alertEventKind, event); err != nil {
		// Alerting is best-effort: a lost event must not fail the metered
		// operation that triggered it.
		s.logger.Error().Err(err).
			Str("service_id", serviceID).
			Str("app_id", appID).
			Int("utilization", level).
			Msg("alert event sink failed")
	} else {
		s.logger.Info().
			Int64("alert_id", event.ID).
			Str("service_id", serviceID).
			Str("app_id", appID).
			Int("utilization", level).
			Str("limit", event.Limit).
			Msg("alert emitted")
	}

	if s.metrics != nil {
		s.metrics.ObserveAlert(level)
	}
	s.observeEvaluation("alert")
	return nil
}

// updateHourlyMax raises the current-hour peak to pct and, on the first
// update of a new hour, archives the previous hour's peak into the weekly
// history. Recording happens when the next hour's first sample arrives, so
// each hour's true peak lands in history exactly once without any scheduled
// job.
func (s *AlertService) updateHourlyMax(ctx context.Context, prefix, hour string, pct int64, currentMax, lastHour *ports.StringResult) error {
	if currentMax.Int() == 0 && lastHour.Val != hour && lastHour.OK {
		prevVal, ok, err := s.store.Get(ctx, prefix+lastHour.Val+"/current_max")
		if err != nil {
			return err
		}
		if ok {
			prev, _ := strconv.ParseInt(prevVal, 10, 64)
			if prev > 0 {
				prevStart, perr := time.Parse(hourLayout, lastHour.Val)
				if perr == nil {
					entry := fmt.Sprintf("%d,%d", prevStart.Unix(), prev)
					err = s.runBatch(ctx, func(b ports.Batch) {
						b.RPush(prefix+"stats_utilization", entry)
						b.LTrim(prefix+"stats_utilization", -int64(alert.HistorySize), -1)
					})
					if err != nil {
						return err
					}
				}
			}
		}
	}

	return s.runBatch(ctx, func(b ports.Batch) {
		b.Set(prefix+hour+"/current_max", strconv.FormatInt(pct, 10))
		b.Set(prefix+"last_time_period", hour)
	})
}

// HistoryEntry is one archived hour of peak utilization.
type HistoryEntry struct {
	Hour           time.Time
	MaxUtilization int64
}

// History returns the archived hourly peaks for an application, oldest
// first, at most one week of entries.
func (s *AlertService) History(ctx context.Context, serviceID, appID string) ([]HistoryEntry, error) {
	raw, err := s.store.LRange(ctx, appPrefix(serviceID, appID)+"stats_utilization", 0, -1)
	if err != nil {
		return nil, fmt.Errorf("utilization history for %s/%s: %w", serviceID, appID, err)
	}
	entries := make([]HistoryEntry, 0, len(raw))
	for _, item := range raw {
		ts, val, ok := strings.Cut(item, ",")
		if !ok {
			continue
		}
		unix, err1 := strconv.ParseInt(ts, 10, 64)
		max, err2 := strconv.ParseInt(val, 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		entries = append(entries, HistoryEntry{
			Hour:           time.Unix(unix, 0).UTC(),
			MaxUtilization: max,
		})
	}
	return entries, nil
}

func (s *AlertService) runBatch(ctx context.Context, fn func(ports.Batch)) error {
	start := time.Now()
	err := s.store.RunBatch(ctx, fn)
	if s.metrics != nil {
		s.metrics.StoreBatchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.StoreErrors.Inc()
		}
	}
	return err
}

func (s *AlertService) observeEvaluation(result string) {
	if s.metrics != nil {
		s.metrics.EvaluationsTotal.WithLabelValues(result).Inc()
	}
}
