package domain

import (
	"math"
	"time"
)

// RiskLevel grades exposure or account risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders levels from low (0) to critical (3).
func (l RiskLevel) Rank() int {
	switch l {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// Position is the per-market yes/no holding. NetExposure is derived from
// the two amounts and must be refreshed with Recompute after every change.
type Position struct {
	MarketID      string
	YesAmount     float64
	NoAmount      float64
	NetExposure   float64
	AvgYesPrice   float64
	AvgNoPrice    float64
	UnrealizedPnL float64
	Tier          RiskLevel
	UpdatedAt     time.Time
}

// Recompute refreshes NetExposure from the current amounts.
func (p *Position) Recompute() {
	if p.YesAmount < 0 {
		p.YesAmount = 0
	}
	if p.NoAmount < 0 {
		p.NoAmount = 0
	}
	p.NetExposure = p.YesAmount - p.NoAmount
}

// Total is the combined yes and no holding.
func (p Position) Total() float64 {
	return p.YesAmount + p.NoAmount
}

// AbsExposure is |NetExposure|.
func (p Position) AbsExposure() float64 {
	return math.Abs(p.NetExposure)
}

// Flat reports whether the position holds nothing.
func (p Position) Flat() bool {
	return p.YesAmount == 0 && p.NoAmount == 0
}
