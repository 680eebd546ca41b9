package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// The journal stores are append-only records for audit and analysis.
// Nothing reads them back to rebuild engine state.

// DecisionJournal records every emitted decision.
type DecisionJournal interface {
	RecordDecision(ctx context.Context, d Decision) error
}

// AlertJournal records every risk alert.
type AlertJournal interface {
	RecordAlert(ctx context.Context, a Alert) error
}

// OpportunityJournal records ranked arbitrage scan results.
type OpportunityJournal interface {
	RecordOpportunities(ctx context.Context, opps []ArbitrageOpportunity) error
}

// RiskSnapshot is the end-of-day summary of the risk state.
type RiskSnapshot struct {
	Day         time.Time
	DailyPnL    decimal.Decimal
	PeakPnL     decimal.Decimal
	Breaker     string
	Trades      int
	VolumeUSD   decimal.Decimal
	AlertCount  int
	OpenMarkets int
	RiskLevel   RiskLevel
	TakenAt     time.Time
}

// RiskSnapshotJournal records daily risk snapshots.
type RiskSnapshotJournal interface {
	RecordSnapshot(ctx context.Context, s RiskSnapshot) error
}
