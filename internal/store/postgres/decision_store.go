package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// DecisionStore implements domain.DecisionJournal.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a DecisionStore backed by the given pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// RecordDecision appends d. Replaying the same decision ID is a no-op.
func (s *DecisionStore) RecordDecision(ctx context.Context, d domain.Decision) error {
	const query = `
		INSERT INTO decisions (
			id, market_id, action, token, size, limit_price, bid_price, ask_price,
			reason, confidence, priority, source, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.MarketID, string(d.Action), string(d.Token), d.Size,
		d.LimitPrice, d.BidPrice, d.AskPrice, d.Reason, d.Confidence,
		d.Priority.String(), d.Source, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record decision %s: %w", d.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.DecisionJournal = (*DecisionStore)(nil)
