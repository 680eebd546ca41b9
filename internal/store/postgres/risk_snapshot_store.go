package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// RiskSnapshotStore implements domain.RiskSnapshotJournal. There is one row
// per trading day; a second snapshot for the same day replaces the first.
type RiskSnapshotStore struct {
	pool *pgxpool.Pool
}

// NewRiskSnapshotStore creates a RiskSnapshotStore backed by the given pool.
func NewRiskSnapshotStore(pool *pgxpool.Pool) *RiskSnapshotStore {
	return &RiskSnapshotStore{pool: pool}
}

// RecordSnapshot upserts the snapshot for s.Day.
func (s *RiskSnapshotStore) RecordSnapshot(ctx context.Context, snap domain.RiskSnapshot) error {
	const query = `
		INSERT INTO risk_snapshots (
			day, daily_pnl, peak_pnl, breaker, trades, volume_usd,
			alert_count, open_markets, risk_level, taken_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (day) DO UPDATE SET
			daily_pnl    = EXCLUDED.daily_pnl,
			peak_pnl     = EXCLUDED.peak_pnl,
			breaker      = EXCLUDED.breaker,
			trades       = EXCLUDED.trades,
			volume_usd   = EXCLUDED.volume_usd,
			alert_count  = EXCLUDED.alert_count,
			open_markets = EXCLUDED.open_markets,
			risk_level   = EXCLUDED.risk_level,
			taken_at     = EXCLUDED.taken_at`

	// NUMERIC columns take float64; pgx has no built-in codec for decimal.Decimal.
	_, err := s.pool.Exec(ctx, query,
		snap.Day.UTC().Truncate(24*time.Hour),
		snap.DailyPnL.InexactFloat64(),
		snap.PeakPnL.InexactFloat64(),
		snap.Breaker,
		snap.Trades,
		snap.VolumeUSD.InexactFloat64(),
		snap.AlertCount,
		snap.OpenMarkets,
		string(snap.RiskLevel),
		snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record risk snapshot %s: %w", snap.Day.Format(time.DateOnly), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RiskSnapshotJournal = (*RiskSnapshotStore)(nil)
