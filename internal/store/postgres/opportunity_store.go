package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// OpportunityStore implements domain.OpportunityJournal.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// RecordOpportunities appends one scan's results in a single batch.
func (s *OpportunityStore) RecordOpportunities(ctx context.Context, opps []domain.ArbitrageOpportunity) error {
	if len(opps) == 0 {
		return nil
	}

	const query = `
		INSERT INTO arb_opportunities (
			id, type, market_a, venue_a, market_b, venue_b, profit_percent,
			profit_absolute, confidence, action, details, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, o := range opps {
		details, err := json.Marshal(o.Details)
		if err != nil {
			return fmt.Errorf("postgres: marshal opportunity details: %w", err)
		}
		var marketB, venueB *string
		if o.MarketB != nil {
			id, v := o.MarketB.MarketID, string(o.MarketB.Venue)
			marketB, venueB = &id, &v
		}
		batch.Queue(query,
			o.ID, string(o.Type), o.MarketA.MarketID, string(o.MarketA.Venue), marketB, venueB,
			o.ProfitPercent, o.ProfitAbsolute, o.Confidence, o.Action, details, o.DetectedAt,
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: record %d opportunities: %w", len(opps), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OpportunityJournal = (*OpportunityStore)(nil)
