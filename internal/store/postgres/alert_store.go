package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// AlertStore implements domain.AlertJournal.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates an AlertStore backed by the given pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// RecordAlert appends a. Details are stored as JSONB.
func (s *AlertStore) RecordAlert(ctx context.Context, a domain.Alert) error {
	var details []byte
	if len(a.Details) > 0 {
		var err error
		if details, err = json.Marshal(a.Details); err != nil {
			return fmt.Errorf("postgres: marshal alert details: %w", err)
		}
	}

	const query = `
		INSERT INTO risk_alerts (id, level, type, message, market_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		a.ID, string(a.Level), a.Type, a.Message, a.MarketID, a.Action, details, a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: record alert %s: %w", a.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AlertJournal = (*AlertStore)(nil)
