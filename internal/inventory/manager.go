package inventory

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

const (
	priceHistoryLimit = 50
	hedgeHistoryLimit = 1000
)

// Config holds inventory limits and hedge parameters.
type Config struct {
	MaxPosition         float64 // per-market cap used for the exposure ratio
	MaxNetExposure      float64 // portfolio-wide cap on Σ net exposure
	HedgeThreshold      float64 // exposure ratio that triggers a hedge
	HedgeRatio          float64 // share of |net| to hedge
	VolatilityThreshold float64 // std of simple price returns flagged in reasons
}

// DefaultConfig returns the production inventory defaults.
func DefaultConfig() Config {
	return Config{
		MaxPosition:         100,
		MaxNetExposure:      50,
		HedgeThreshold:      0.7,
		HedgeRatio:          0.5,
		VolatilityThreshold: 0.02,
	}
}

// Urgency ranks hedge recommendations.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func (u Urgency) rank() int {
	switch u {
	case UrgencyHigh:
		return 2
	case UrgencyMedium:
		return 1
	default:
		return 0
	}
}

// HedgeRecommendation is derived from the current position and config.
// Token is the token the Side applies to.
type HedgeRecommendation struct {
	MarketID    string
	ShouldHedge bool
	Side        domain.Side
	Token       domain.Token
	Amount      float64
	Urgency     Urgency
	Reason      string
}

// HedgeRecord is one executed hedge.
type HedgeRecord struct {
	MarketID       string
	Side           domain.Side
	Token          domain.Token
	Amount         float64
	Price          float64
	ExposureBefore float64
	ExposureAfter  float64
	Timestamp      time.Time
}

// Manager tracks per-market yes/no holdings. All methods are safe for
// concurrent use; each mutation recomputes net exposure and tier under
// the same lock.
type Manager struct {
	cfg Config

	mu        sync.RWMutex
	positions map[string]*domain.Position
	prices    map[string][]float64
	hedges    []HedgeRecord
	now       func() time.Time
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxPosition <= 0 {
		cfg.MaxPosition = DefaultConfig().MaxPosition
	}
	return &Manager{
		cfg:       cfg,
		positions: make(map[string]*domain.Position),
		prices:    make(map[string][]float64),
		now:       time.Now,
	}
}

// Tier classifies an exposure ratio.
func Tier(ratio float64) domain.RiskLevel {
	switch {
	case ratio < 0.5:
		return domain.RiskLow
	case ratio < 0.7:
		return domain.RiskMedium
	case ratio < 0.9:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}

func (m *Manager) ratio(p *domain.Position) float64 {
	return math.Abs(p.NetExposure) / m.cfg.MaxPosition
}

// refresh must be called with mu held after any amount change.
func (m *Manager) refresh(p *domain.Position) {
	p.Recompute()
	if p.YesAmount == 0 {
		p.AvgYesPrice = 0
	}
	if p.NoAmount == 0 {
		p.AvgNoPrice = 0
	}
	p.Tier = Tier(m.ratio(p))
	p.UpdatedAt = m.now()
}

func (m *Manager) get(marketID string) *domain.Position {
	p, ok := m.positions[marketID]
	if !ok {
		p = &domain.Position{MarketID: marketID, Tier: domain.RiskLow}
		m.positions[marketID] = p
	}
	return p
}

// ApplyFill updates the position with an executed fill and returns the
// resulting state. Buys move the side's average entry price; sells
// reduce the holding and never take it below zero.
func (m *Manager) ApplyFill(f domain.Fill) (domain.Position, error) {
	if err := f.Validate(); err != nil {
		return domain.Position{}, fmt.Errorf("inventory: apply fill %s: %w", f.MarketID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.get(f.MarketID)
	amount, avg := &p.YesAmount, &p.AvgYesPrice
	if f.Token == domain.TokenNo {
		amount, avg = &p.NoAmount, &p.AvgNoPrice
	}
	switch f.Side {
	case domain.SideBuy:
		total := *amount + f.Size
		*avg = ((*avg)*(*amount) + f.Price*f.Size) / total
		*amount = total
	case domain.SideSell:
		*amount -= math.Min(f.Size, *amount)
	}
	m.refresh(p)
	return *p, nil
}

// UpdatePosition overwrites the holding of a market and marks it at
// yesPrice. avgEntry, when positive, sets the yes side's entry price.
func (m *Manager) UpdatePosition(marketID string, yes, no, yesPrice, avgEntry float64) domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.get(marketID)
	p.YesAmount, p.NoAmount = yes, no
	if avgEntry > 0 {
		p.AvgYesPrice = avgEntry
	}
	m.refresh(p)
	m.mark(p, yesPrice)
	return *p
}

// MarkPrice revalues a market at the given yes price.
func (m *Manager) MarkPrice(marketID string, yesPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[marketID]; ok {
		m.mark(p, yesPrice)
	}
}

func (m *Manager) mark(p *domain.Position, yesPrice float64) {
	var pnl float64
	if p.AvgYesPrice > 0 {
		pnl += (yesPrice - p.AvgYesPrice) * p.YesAmount
	}
	if p.AvgNoPrice > 0 {
		pnl += ((1 - yesPrice) - p.AvgNoPrice) * p.NoAmount
	}
	p.UnrealizedPnL = pnl

	h := append(m.prices[p.MarketID], yesPrice)
	if len(h) > priceHistoryLimit {
		h = h[len(h)-priceHistoryLimit:]
	}
	m.prices[p.MarketID] = h
}

// Position returns a copy of the market's position.
func (m *Manager) Position(marketID string) (domain.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[marketID]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions returns copies of all positions sorted by market ID.
func (m *Manager) Positions() []domain.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// ExposureRatio is |net| / MaxPosition for a market.
func (m *Manager) ExposureRatio(marketID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[marketID]
	if !ok {
		return 0
	}
	return m.ratio(p)
}

// Recommend returns the hedge recommendation for one market.
func (m *Manager) Recommend(marketID string) HedgeRecommendation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recommend(marketID)
}

func (m *Manager) recommend(marketID string) HedgeRecommendation {
	rec := HedgeRecommendation{MarketID: marketID, Urgency: UrgencyLow}
	p, ok := m.positions[marketID]
	if !ok || p.Flat() {
		rec.Reason = "no position"
		return rec
	}
	ratio := m.ratio(p)
	if ratio < m.cfg.HedgeThreshold {
		rec.Reason = fmt.Sprintf("exposure within limits (%.1f%%)", ratio*100)
		return rec
	}

	rec.ShouldHedge = true
	rec.Side = domain.SideSell
	rec.Token = domain.TokenYes
	if p.NetExposure < 0 {
		rec.Token = domain.TokenNo
	}
	rec.Amount = math.Abs(p.NetExposure) * m.cfg.HedgeRatio
	switch p.Tier {
	case domain.RiskCritical:
		rec.Urgency = UrgencyHigh
	case domain.RiskHigh:
		rec.Urgency = UrgencyMedium
	}
	rec.Reason = m.reason(p, ratio)
	return rec
}

func (m *Manager) reason(p *domain.Position, ratio float64) string {
	var parts []string
	switch p.Tier {
	case domain.RiskCritical:
		parts = append(parts, "exposure near critical limit")
	case domain.RiskHigh:
		parts = append(parts, "exposure high")
	}
	if p.UnrealizedPnL < -10 {
		parts = append(parts, fmt.Sprintf("unrealized loss $%.2f", p.UnrealizedPnL))
	}
	if priceVolatility(m.prices[p.MarketID]) > m.cfg.VolatilityThreshold {
		parts = append(parts, "high price volatility")
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("exposure ratio %.0f%%", ratio*100))
	}
	return strings.Join(parts, "; ")
}

// Recommendations returns every market that should hedge, most urgent
// first.
func (m *Manager) Recommendations() []HedgeRecommendation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []HedgeRecommendation
	for id := range m.positions {
		if rec := m.recommend(id); rec.ShouldHedge {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Urgency.rank() != out[j].Urgency.rank() {
			return out[i].Urgency.rank() > out[j].Urgency.rank()
		}
		return out[i].MarketID < out[j].MarketID
	})
	return out
}

// ExecuteHedge applies a hedge to the position. A sell reduces the heavy
// token; a buy adds to the light token. Amounts, net exposure and tier
// change together under one lock.
func (m *Manager) ExecuteHedge(marketID string, side domain.Side, amount, price float64) (HedgeRecord, error) {
	if amount <= 0 || (side != domain.SideBuy && side != domain.SideSell) {
		return HedgeRecord{}, fmt.Errorf("inventory: hedge %s: %w", marketID, domain.ErrInvalidFill)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[marketID]
	if !ok {
		return HedgeRecord{}, fmt.Errorf("inventory: hedge %s: %w", marketID, domain.ErrNotFound)
	}
	rec := HedgeRecord{
		MarketID:       marketID,
		Side:           side,
		Amount:         amount,
		Price:          price,
		ExposureBefore: p.NetExposure,
		Timestamp:      m.now(),
	}

	yesHeavy := p.NetExposure > 0
	switch side {
	case domain.SideSell:
		if yesHeavy {
			rec.Token = domain.TokenYes
			p.YesAmount -= math.Min(amount, p.YesAmount)
		} else {
			rec.Token = domain.TokenNo
			p.NoAmount -= math.Min(amount, p.NoAmount)
		}
	case domain.SideBuy:
		if p.NetExposure < 0 {
			rec.Token = domain.TokenYes
			p.AvgYesPrice = weighted(p.AvgYesPrice, p.YesAmount, price, amount)
			p.YesAmount += amount
		} else {
			rec.Token = domain.TokenNo
			p.AvgNoPrice = weighted(p.AvgNoPrice, p.NoAmount, price, amount)
			p.NoAmount += amount
		}
	}
	m.refresh(p)
	rec.ExposureAfter = p.NetExposure

	m.hedges = append(m.hedges, rec)
	if len(m.hedges) > hedgeHistoryLimit {
		m.hedges = m.hedges[len(m.hedges)-hedgeHistoryLimit:]
	}
	return rec, nil
}

func weighted(avg, qty, price, add float64) float64 {
	if qty+add == 0 {
		return 0
	}
	return (avg*qty + price*add) / (qty + add)
}

// HedgeHistory returns executed hedges, oldest first.
func (m *Manager) HedgeHistory() []HedgeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]HedgeRecord(nil), m.hedges...)
}

// PriceVolatility is the population std of simple returns of the
// market's recent marks.
func (m *Manager) PriceVolatility(marketID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return priceVolatility(m.prices[marketID])
}

func priceVolatility(h []float64) float64 {
	var returns []float64
	for i := 1; i < len(h); i++ {
		if h[i-1] > 0 {
			returns = append(returns, (h[i]-h[i-1])/h[i-1])
		}
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss / float64(len(returns)))
}

// Remove forgets a market. It refuses while exposure is nonzero.
func (m *Manager) Remove(marketID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[marketID]
	if !ok || p.NetExposure != 0 {
		return false
	}
	delete(m.positions, marketID)
	delete(m.prices, marketID)
	return true
}

// Clear drops every position and history.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = make(map[string]*domain.Position)
	m.prices = make(map[string][]float64)
	m.hedges = nil
}
