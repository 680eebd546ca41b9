package risk

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// Summary is a point-in-time view of the risk state.
type Summary struct {
	Positions        int              `json:"positions"`
	OpenPnL          float64          `json:"open_pnl"`
	DailyPnL         decimal.Decimal  `json:"daily_pnl"`
	PeakPnL          decimal.Decimal  `json:"peak_pnl"`
	RiskLevel        domain.RiskLevel `json:"risk_level"`
	Breaker          BreakerState     `json:"circuit_breaker"`
	BreakerReason    string           `json:"breaker_reason,omitempty"`
	ManualStop       bool             `json:"manual_stop"`
	VolatilityPaused bool             `json:"volatility_paused"`
	PauseRemaining   time.Duration    `json:"pause_remaining"`
	LastTradeAt      time.Time        `json:"last_trade_at"`
	LastCancelAt     time.Time        `json:"last_cancel_at"`
	AlertsCount      int              `json:"alerts_count"`
	AlertsToday      int              `json:"alerts_today"`
	Limits           *LimitStats      `json:"limits,omitempty"`
}

// Summary returns the current risk state.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var open float64
	for _, p := range m.positions {
		open += p.PnL()
	}
	s := Summary{
		Positions:        len(m.positions),
		OpenPnL:          open,
		DailyPnL:         m.dailyPnL,
		PeakPnL:          m.peakPnL,
		RiskLevel:        m.levelLocked(now),
		Breaker:          m.breaker,
		BreakerReason:    m.tripReason,
		ManualStop:       m.manualStop,
		VolatilityPaused: now.Before(m.volPausedUntil),
		LastTradeAt:      m.lastTradeAt,
		LastCancelAt:     m.lastCancelAt,
		AlertsCount:      m.alerts.count(),
		AlertsToday:      m.alerts.countSince(startOfDay(now)),
	}
	if s.VolatilityPaused {
		s.PauseRemaining = m.volPausedUntil.Sub(now)
	}
	if m.limits != nil {
		ls := m.limits.Stats()
		s.Limits = &ls
	}
	return s
}

// Breaker returns the breaker state.
func (m *Manager) Breaker() BreakerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breaker
}

// DailyPnL returns realised PnL for the day.
func (m *Manager) DailyPnL() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyPnL
}

// Level grades the current risk.
func (m *Manager) Level() domain.RiskLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levelLocked(m.now())
}

func (m *Manager) levelLocked(now time.Time) domain.RiskLevel {
	if m.breaker == BreakerOpen {
		return domain.RiskCritical
	}
	if now.Before(m.volPausedUntil) {
		return domain.RiskHigh
	}
	if m.cfg.MaxDailyLoss <= 0 || !m.dailyPnL.IsNegative() {
		return domain.RiskLow
	}
	ratio := m.dailyPnL.Neg().Div(decimal.NewFromFloat(m.cfg.MaxDailyLoss)).InexactFloat64()
	switch {
	case ratio >= 1:
		return domain.RiskCritical
	case ratio >= 0.75:
		return domain.RiskHigh
	case ratio >= 0.5:
		return domain.RiskMedium
	}
	return domain.RiskLow
}

// Positions returns the tracked positions sorted by market and token.
func (m *Manager) Positions() []TrackedPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TrackedPosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].Token < out[j].Token
	})
	return out
}

// Snapshot builds the end-of-day record of the UTC day containing day.
// Alerts are counted for that day only, so a snapshot taken just after
// midnight still describes the day that ended.
func (m *Manager) Snapshot(day time.Time) domain.RiskSnapshot {
	s := m.Summary()
	start := startOfDay(day)
	snap := domain.RiskSnapshot{
		Day:         start,
		DailyPnL:    s.DailyPnL,
		PeakPnL:     s.PeakPnL,
		Breaker:     string(s.Breaker),
		AlertCount:  m.alerts.countBetween(start, start.AddDate(0, 0, 1)),
		OpenMarkets: s.Positions,
		RiskLevel:   s.RiskLevel,
		TakenAt:     m.now(),
		VolumeUSD:   decimal.Zero,
	}
	if s.Limits != nil {
		snap.Trades = s.Limits.DailyTrades
		snap.VolumeUSD = s.Limits.DailyVolumeUSD
	}
	return snap
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
