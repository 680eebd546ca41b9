package inventory

import (
	"math"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// PortfolioRisk aggregates exposure across all markets.
type PortfolioRisk struct {
	TotalExposure        float64          `json:"total_exposure"`
	NetExposure          float64          `json:"net_exposure"`
	ExposureRatio        float64          `json:"exposure_ratio"`
	RiskScore            float64          `json:"risk_score"`
	RiskLevel            domain.RiskLevel `json:"risk_level"`
	DiversificationRatio float64          `json:"diversification_ratio"`
	NetLimitBreached     bool             `json:"net_limit_breached"`
}

// Stats summarises holdings.
type Stats struct {
	TotalPositions     int                      `json:"total_positions"`
	TotalYesAmount     float64                  `json:"total_yes_amount"`
	TotalNoAmount      float64                  `json:"total_no_amount"`
	TotalNetExposure   float64                  `json:"total_net_exposure"`
	TotalUnrealizedPnL float64                  `json:"total_unrealized_pnl"`
	RiskDistribution   map[domain.RiskLevel]int `json:"risk_distribution"`
	Hedges             int                      `json:"hedges"`
}

// Portfolio computes the 0-100 risk score and the Herfindahl-based
// diversification ratio 1 − Σ c_i², where c_i is the market's share of
// total absolute exposure.
func (m *Manager) Portfolio() PortfolioRisk {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total, net float64
	for _, p := range m.positions {
		total += math.Abs(p.NetExposure)
		net += p.NetExposure
	}
	var exposureRatio, netRatio float64
	if capacity := float64(len(m.positions)) * m.cfg.MaxPosition; capacity > 0 {
		exposureRatio = total / capacity
		netRatio = math.Abs(net) / capacity
	}
	score := math.Min(100, exposureRatio*50+netRatio*50)

	level := domain.RiskLow
	switch {
	case score > 80:
		level = domain.RiskCritical
	case score > 60:
		level = domain.RiskHigh
	case score > 40:
		level = domain.RiskMedium
	}

	var hhi float64
	if total > 0 {
		for _, p := range m.positions {
			c := math.Abs(p.NetExposure) / total
			hhi += c * c
		}
	}

	return PortfolioRisk{
		TotalExposure:        total,
		NetExposure:          net,
		ExposureRatio:        roundTo(exposureRatio, 3),
		RiskScore:            score,
		RiskLevel:            level,
		DiversificationRatio: roundTo(1-hhi, 3),
		NetLimitBreached:     m.cfg.MaxNetExposure > 0 && math.Abs(net) > m.cfg.MaxNetExposure,
	}
}

// Stats returns holding totals and the tier distribution.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{
		TotalPositions: len(m.positions),
		RiskDistribution: map[domain.RiskLevel]int{
			domain.RiskLow: 0, domain.RiskMedium: 0, domain.RiskHigh: 0, domain.RiskCritical: 0,
		},
		Hedges: len(m.hedges),
	}
	var pnl float64
	for _, p := range m.positions {
		st.TotalYesAmount += p.YesAmount
		st.TotalNoAmount += p.NoAmount
		st.TotalNetExposure += p.NetExposure
		pnl += p.UnrealizedPnL
		st.RiskDistribution[p.Tier]++
	}
	st.TotalUnrealizedPnL = roundTo(pnl, 2)
	return st
}

func roundTo(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(x*p) / p
}
