package domain

import "time"

// ArbType distinguishes the two arbitrage scans.
type ArbType string

const (
	ArbCrossVenue ArbType = "cross_venue"
	ArbIntraVenue ArbType = "intra_venue"
)

// ArbitrageOpportunity is one ranked result of a scan. MarketB is nil for
// intra-venue opportunities.
type ArbitrageOpportunity struct {
	ID             string
	Type           ArbType
	MarketA        MarketSnapshot
	MarketB        *MarketSnapshot
	ProfitPercent  float64
	ProfitAbsolute float64
	Confidence     float64
	Action         string
	Details        map[string]float64
	DetectedAt     time.Time
}
