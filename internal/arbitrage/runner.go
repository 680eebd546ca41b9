package arbitrage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/metrics"
)

const scanLockKey = "arb_scan"

// SnapshotSource supplies the current market snapshots across venues.
type SnapshotSource interface {
	Snapshots() []domain.MarketSnapshot
}

// Runner scans the snapshot source on a fixed interval and publishes the
// ranked opportunities. Each scan replaces the previous result.
type Runner struct {
	scanner *Scanner
	source  SnapshotSource
	bus     domain.SignalBus
	journal domain.OpportunityJournal
	locks   domain.LockManager
	exec    *Executor
	logger  *slog.Logger

	mu     sync.RWMutex
	latest []domain.ArbitrageOpportunity
	lastAt time.Time
}

// RunnerConfig configures the runner. Bus, Journal, Locks and Executor
// are optional. Without an Executor opportunities are only reported.
type RunnerConfig struct {
	Scanner  *Scanner
	Source   SnapshotSource
	Bus      domain.SignalBus
	Journal  domain.OpportunityJournal
	Locks    domain.LockManager
	Executor *Executor
	Logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{
		scanner: cfg.Scanner,
		source:  cfg.Source,
		bus:     cfg.Bus,
		journal: cfg.Journal,
		locks:   cfg.Locks,
		exec:    cfg.Executor,
		logger:  cfg.Logger.With(slog.String("component", "arb_scanner")),
	}
}

// opportunityEvent is the JSON shape published to the opportunities channel.
type opportunityEvent struct {
	ID             string             `json:"id"`
	Type           string             `json:"type"`
	MarketA        string             `json:"market_a"`
	VenueA         string             `json:"venue_a"`
	MarketB        string             `json:"market_b,omitempty"`
	VenueB         string             `json:"venue_b,omitempty"`
	ProfitPercent  float64            `json:"profit_percent"`
	ProfitAbsolute float64            `json:"profit_absolute"`
	Confidence     float64            `json:"confidence"`
	Action         string             `json:"action"`
	Details        map[string]float64 `json:"details,omitempty"`
	DetectedAt     time.Time          `json:"detected_at"`
}

func toEvent(o domain.ArbitrageOpportunity) opportunityEvent {
	ev := opportunityEvent{
		ID:             o.ID,
		Type:           string(o.Type),
		MarketA:        o.MarketA.MarketID,
		VenueA:         string(o.MarketA.Venue),
		ProfitPercent:  o.ProfitPercent,
		ProfitAbsolute: o.ProfitAbsolute,
		Confidence:     o.Confidence,
		Action:         o.Action,
		Details:        o.Details,
		DetectedAt:     o.DetectedAt,
	}
	if o.MarketB != nil {
		ev.MarketB = o.MarketB.MarketID
		ev.VenueB = string(o.MarketB.Venue)
	}
	return ev
}

// Run scans every interval until ctx is cancelled. When a lock manager is
// configured only the replica holding the scan lock runs a tick.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.scanner.Config().Interval
	r.logger.Info("arb scanner started", slog.Duration("interval", interval))
	defer r.logger.Info("arb scanner stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r.tick(ctx, interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) tick(ctx context.Context, interval time.Duration) {
	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, scanLockKey, interval)
		if errors.Is(err, domain.ErrLockHeld) {
			r.logger.Debug("scan lock held elsewhere, skipping tick")
			return
		}
		if err != nil {
			r.logger.Warn("scan lock failed", slog.String("error", err.Error()))
			return
		}
		defer unlock()
	}
	if _, err := r.ScanOnce(ctx); err != nil {
		r.logger.Warn("arb scan failed", slog.String("error", err.Error()))
	}
}

// ScanOnce runs one scan, stores it as the latest result and publishes it.
// With an executor the best opportunity is then offered to the risk gate.
// Publish, journal and emit failures are returned after the result is
// stored.
func (r *Runner) ScanOnce(ctx context.Context) ([]domain.ArbitrageOpportunity, error) {
	start := time.Now()
	opps := r.scanner.Scan(r.source.Snapshots())
	metrics.ScanDuration.Observe(time.Since(start).Seconds())

	r.mu.Lock()
	r.latest = opps
	r.lastAt = start
	r.mu.Unlock()

	for _, o := range opps {
		metrics.OpportunitiesFound.WithLabelValues(string(o.Type)).Inc()
	}
	if len(opps) == 0 {
		return opps, nil
	}
	r.logger.InfoContext(ctx, "arbitrage opportunities found",
		slog.Int("count", len(opps)),
		slog.Float64("best_profit", opps[0].ProfitPercent),
		slog.String("best_action", opps[0].Action),
	)

	var errs []error
	if r.bus != nil {
		for _, o := range opps {
			payload, err := json.Marshal(toEvent(o))
			if err != nil {
				errs = append(errs, fmt.Errorf("marshal opportunity %s: %w", o.ID, err))
				continue
			}
			if err := r.bus.Publish(ctx, domain.ChannelOpportunities, payload); err != nil {
				errs = append(errs, fmt.Errorf("publish opportunity %s: %w", o.ID, err))
			}
		}
	}
	if r.journal != nil {
		if err := r.journal.RecordOpportunities(ctx, opps); err != nil {
			errs = append(errs, fmt.Errorf("journal opportunities: %w", err))
		}
	}
	if r.exec != nil {
		if _, err := r.exec.Execute(ctx, opps[0]); err != nil {
			errs = append(errs, err)
		}
	}
	return opps, errors.Join(errs...)
}

// Latest returns a copy of the most recent scan result and when it ran.
func (r *Runner) Latest() ([]domain.ArbitrageOpportunity, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ArbitrageOpportunity, len(r.latest))
	copy(out, r.latest)
	return out, r.lastAt
}
