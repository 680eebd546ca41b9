package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/binarymm/internal/blob/s3"
	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/metrics"
	"github.com/alanyoungcy/binarymm/internal/risk"
)

// DailyRisk is the risk manager surface the close-out needs.
type DailyRisk interface {
	Snapshot(day time.Time) domain.RiskSnapshot
	Alerts(n int) []domain.Alert
	DailyReset()
}

// PositionSource lists the current inventory.
type PositionSource interface {
	Positions() []domain.Position
}

// OpportunitySource returns the latest scan result.
type OpportunitySource interface {
	Latest() ([]domain.ArbitrageOpportunity, time.Time)
}

// Broadcaster sends a message to every notification channel.
type Broadcaster interface {
	NotifyAll(ctx context.Context, title, message string) error
}

// DailyJob closes out the trading day at UTC midnight: it journals the risk
// snapshot, archives the day's report, resets the daily risk state and
// sends a summary. Every dependency except Risk may be nil.
type DailyJob struct {
	Risk      DailyRisk
	Journal   domain.RiskSnapshotJournal
	Archiver  *s3blob.ReportArchiver
	Positions PositionSource
	Opps      OpportunitySource
	Notifier  Broadcaster
	Summary   bool
	Logger    *slog.Logger

	now func() time.Time
}

func (j *DailyJob) clock() time.Time {
	if j.now != nil {
		return j.now()
	}
	return time.Now()
}

// nextMidnight returns the first UTC midnight strictly after t.
func nextMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}

// Run closes out each day until ctx is cancelled.
func (j *DailyJob) Run(ctx context.Context) error {
	for {
		now := j.clock()
		boundary := nextMidnight(now)
		timer := time.NewTimer(boundary.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if err := j.RunOnce(ctx, boundary.AddDate(0, 0, -1)); err != nil {
			j.Logger.WarnContext(ctx, "daily close-out incomplete", slog.String("error", err.Error()))
		}
	}
}

// RunOnce closes out the UTC day starting at day. The snapshot is taken
// before the reset so it describes that day. Persistence failures do not
// stop the reset.
func (j *DailyJob) RunOnce(ctx context.Context, day time.Time) error {
	snap := j.Risk.Snapshot(day)
	var errs []error

	if j.Journal != nil {
		if err := j.Journal.RecordSnapshot(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("journal snapshot: %w", err))
		}
	}

	if j.Archiver != nil {
		report := s3blob.DailyReport{Snapshot: snap, Alerts: alertsOn(j.Risk.Alerts(0), snap.Day)}
		if j.Positions != nil {
			report.Positions = j.Positions.Positions()
		}
		if j.Opps != nil {
			report.Opportunities, _ = j.Opps.Latest()
		}
		path, err := j.Archiver.Archive(ctx, report)
		if err != nil {
			errs = append(errs, fmt.Errorf("archive report: %w", err))
		} else {
			j.Logger.InfoContext(ctx, "daily report archived", slog.String("path", path))
		}
	}

	j.Risk.DailyReset()
	metrics.DailyPnL.Set(0)

	if j.Summary && j.Notifier != nil {
		title := "Daily summary " + snap.Day.Format(time.DateOnly)
		if err := j.Notifier.NotifyAll(ctx, title, formatSummary(snap)); err != nil {
			errs = append(errs, fmt.Errorf("send summary: %w", err))
		}
	}

	j.Logger.InfoContext(ctx, "trading day closed",
		slog.String("day", snap.Day.Format(time.DateOnly)),
		slog.String("daily_pnl", snap.DailyPnL.StringFixed(2)),
		slog.Int("trades", snap.Trades),
	)
	return errors.Join(errs...)
}

// alertsOn keeps the alerts raised during the UTC day starting at day.
func alertsOn(alerts []domain.Alert, day time.Time) []domain.Alert {
	end := day.AddDate(0, 0, 1)
	var out []domain.Alert
	for _, a := range alerts {
		if !a.Timestamp.Before(day) && a.Timestamp.Before(end) {
			out = append(out, a)
		}
	}
	return out
}

func formatSummary(s domain.RiskSnapshot) string {
	return fmt.Sprintf(
		"pnl: %s\npeak: %s\ntrades: %d\nvolume: %s\nalerts: %d\nopen markets: %d\nrisk: %s\nbreaker: %s",
		s.DailyPnL.StringFixed(2), s.PeakPnL.StringFixed(2), s.Trades,
		s.VolumeUSD.StringFixed(2), s.AlertCount, s.OpenMarkets, s.RiskLevel, s.Breaker,
	)
}

// breakerGauge maps a breaker state onto the metric encoding.
func breakerGauge(s risk.BreakerState) float64 {
	switch s {
	case risk.BreakerHalfOpen:
		return 1
	case risk.BreakerOpen:
		return 2
	default:
		return 0
	}
}

// SnapshotSource lists the last known snapshot of every tracked market.
type SnapshotSource interface {
	Snapshots() []domain.MarketSnapshot
}

// riskWatch re-marks every open position against the latest snapshots on a
// fixed interval, so exit alerts fire even when a market's worker is idle,
// and keeps the risk gauges current.
func riskWatch(ctx context.Context, rm *risk.Manager, src SnapshotSource, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		prices := make(map[string]float64)
		for _, s := range src.Snapshots() {
			if s.YesPrice > 0 {
				prices[s.MarketID] = s.YesPrice
			}
		}
		rm.CheckAllPositions(prices)
		metrics.BreakerState.Set(breakerGauge(rm.Breaker()))
		metrics.DailyPnL.Set(rm.DailyPnL().InexactFloat64())
	}
}
