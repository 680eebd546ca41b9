package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// BreakerState is the global trading state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerHalfOpen BreakerState = "half_open"
	BreakerOpen     BreakerState = "open"
)

// Alert types and recommended actions.
const (
	AlertStopLoss        = "STOP_LOSS"
	AlertTakeProfit      = "TAKE_PROFIT"
	AlertTrailingStop    = "TRAILING_STOP"
	AlertCircuitBreaker  = "CIRCUIT_BREAKER"
	AlertVolatilityPause = "VOLATILITY_PAUSE"
	AlertEmergencyStop   = "EMERGENCY_STOP"
	AlertTradeWarning    = "TRADE_WARNING"

	ActionClosePosition = "CLOSE_POSITION"
	ActionTakeProfit    = "TAKE_PROFIT"
	ActionStopTrading   = "STOP_ALL_TRADING"
	ActionPause         = "PAUSE_TRADING"
)

// Config holds the risk envelope.
type Config struct {
	MaxPositionSize     float64
	MaxDailyLoss        float64
	MaxDrawdown         float64 // fraction of peak daily PnL
	StopLossPct         float64
	TakeProfitPct       float64
	TrailingStopPct     float64
	TrailingActivation  float64 // profit fraction that arms the trailing stop
	BreakerThreshold    float64 // fraction of MaxDailyLoss that trips on close
	BreakerCooldown     time.Duration
	VolatilityThreshold float64 // fractional move between two marks
	VolatilityPause     time.Duration
	CancelCooldown      time.Duration
	TradeCooldown       time.Duration
	MaxSlippageBps      float64
	AlertLogSize        int
}

// DefaultConfig returns the production risk defaults.
func DefaultConfig() Config {
	return Config{
		MaxPositionSize:     100,
		MaxDailyLoss:        50,
		MaxDrawdown:         0.20,
		StopLossPct:         0.30,
		TakeProfitPct:       0.20,
		TrailingStopPct:     0.10,
		TrailingActivation:  0.05,
		BreakerThreshold:    0.10,
		BreakerCooldown:     time.Hour,
		VolatilityThreshold: 0.02,
		VolatilityPause:     5 * time.Minute,
		CancelCooldown:      4 * time.Second,
		TradeCooldown:       10 * time.Second,
		MaxSlippageBps:      250,
		AlertLogSize:        500,
	}
}

// TrackedPosition is an open position watched for stop-loss, take-profit
// and trailing-stop conditions.
type TrackedPosition struct {
	MarketID      string       `json:"market_id"`
	Token         domain.Token `json:"token"`
	Size          float64      `json:"size"`
	EntryPrice    float64      `json:"entry_price"`
	CurrentPrice  float64      `json:"current_price"`
	HighWaterMark float64      `json:"high_water_mark"`
	OpenedAt      time.Time    `json:"opened_at"`

	fired map[string]bool
}

// PnL is the unrealised profit at the current price.
func (p *TrackedPosition) PnL() float64 {
	return (p.CurrentPrice - p.EntryPrice) * p.Size
}

// PnLPct is PnL relative to cost.
func (p *TrackedPosition) PnLPct() float64 {
	if p.EntryPrice <= 0 || p.Size == 0 {
		return 0
	}
	return p.PnL() / (p.EntryPrice * p.Size)
}

type positionKey struct {
	market string
	token  domain.Token
}

// Manager is the single owner of RiskState. Every mutating operation
// takes mu exactly once; alerts raised during an operation are delivered
// to the handler after mu is released.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	limits  *Limits
	handler func(domain.Alert)
	now     func() time.Time

	mu             sync.Mutex
	dailyPnL       decimal.Decimal
	peakPnL        decimal.Decimal
	breaker        BreakerState
	trippedAt      time.Time
	tripReason     string
	manualStop     bool
	volPausedUntil time.Time
	lastTradeAt    time.Time
	lastCancelAt   time.Time
	positions      map[positionKey]*TrackedPosition

	alerts *alertLog
}

// Option configures a Manager.
type Option func(*Manager)

// WithLimits attaches trade limits checked by Admit.
func WithLimits(l *Limits) Option { return func(m *Manager) { m.limits = l } }

// WithAlertHandler receives every alert. It is called without locks held
// and must not block.
func WithAlertHandler(h func(domain.Alert)) Option { return func(m *Manager) { m.handler = h } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager creates a Manager with the breaker closed.
func NewManager(cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "risk")),
		now:       time.Now,
		breaker:   BreakerClosed,
		positions: make(map[positionKey]*TrackedPosition),
		alerts:    newAlertLog(cfg.AlertLogSize),
	}
	for _, o := range opts {
		o(m)
	}
	if m.limits != nil {
		m.limits.now = m.now
	}
	return m
}

// Config returns the risk configuration.
func (m *Manager) Config() Config { return m.cfg }

// CanTrade runs the admission check for a trade of the given size. A nil
// error admits the trade. Checks run in order: breaker, volatility pause,
// trade cooldown, size cap, daily loss, drawdown. A half-open breaker that
// passes every check closes.
func (m *Manager) CanTrade(size float64) error {
	m.mu.Lock()
	raised, err := m.canTradeLocked(size, false)
	m.mu.Unlock()
	m.deliver(raised)
	return err
}

// Admit runs CanTrade and then the trade limits for a notional of
// size×price. Soft-limit warnings are returned alongside a nil error.
func (m *Manager) Admit(ctx context.Context, size, price float64) ([]string, error) {
	if err := m.CanTrade(size); err != nil {
		return nil, err
	}
	if m.limits == nil {
		return nil, nil
	}
	return m.limits.Check(ctx, size*price)
}

// AdmitHedge gates a corrective hedge. It runs the same checks as Admit
// except the post-trade cooldown, since a hedge follows a fill directly.
func (m *Manager) AdmitHedge(ctx context.Context, size, price float64) ([]string, error) {
	m.mu.Lock()
	raised, err := m.canTradeLocked(size, true)
	m.mu.Unlock()
	m.deliver(raised)
	if err != nil {
		return nil, err
	}
	if m.limits == nil {
		return nil, nil
	}
	return m.limits.Check(ctx, size*price)
}

func (m *Manager) canTradeLocked(size float64, hedge bool) ([]domain.Alert, error) {
	now := m.now()

	if m.breaker == BreakerOpen {
		if m.manualStop {
			return nil, reject(domain.ErrEmergencyStop, 0, "emergency stop active: %s", m.tripReason)
		}
		elapsed := now.Sub(m.trippedAt)
		if elapsed < m.cfg.BreakerCooldown {
			return nil, reject(domain.ErrCircuitOpen, m.cfg.BreakerCooldown-elapsed,
				"circuit breaker open: %s", m.tripReason)
		}
		m.breaker = BreakerHalfOpen
		m.logger.Info("circuit breaker half-open, allowing trial trade")
	}

	if now.Before(m.volPausedUntil) {
		return nil, reject(domain.ErrVolatilityPause, m.volPausedUntil.Sub(now), "volatility pause active")
	}

	if !hedge && !m.lastTradeAt.IsZero() {
		if elapsed := now.Sub(m.lastTradeAt); elapsed < m.cfg.TradeCooldown {
			return nil, reject(domain.ErrCooldown, m.cfg.TradeCooldown-elapsed, "trade cooldown active")
		}
	}

	if size > m.cfg.MaxPositionSize {
		return nil, reject(domain.ErrSizeLimit, 0, "size %.4g exceeds cap %.4g", size, m.cfg.MaxPositionSize)
	}

	if m.dailyPnL.LessThan(decimal.NewFromFloat(m.cfg.MaxDailyLoss).Neg()) {
		a := m.tripLocked("daily loss limit reached", false)
		return []domain.Alert{a}, reject(domain.ErrDailyLoss, 0, "daily loss %s below limit -%.2f",
			m.dailyPnL.StringFixed(2), m.cfg.MaxDailyLoss)
	}

	if m.peakPnL.IsPositive() {
		dd := m.peakPnL.Sub(m.dailyPnL).Div(m.peakPnL)
		if dd.GreaterThan(decimal.NewFromFloat(m.cfg.MaxDrawdown)) {
			a := m.tripLocked("max drawdown exceeded", false)
			return []domain.Alert{a}, reject(domain.ErrDrawdown, 0, "drawdown %s exceeds %.2f",
				dd.StringFixed(4), m.cfg.MaxDrawdown)
		}
	}

	if m.breaker == BreakerHalfOpen {
		m.breaker = BreakerClosed
		m.trippedAt = time.Time{}
		m.tripReason = ""
		m.logger.Info("circuit breaker closed after successful trial")
	}
	return nil, nil
}

// CanCancel reports whether the cancel cooldown has elapsed.
func (m *Manager) CanCancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastCancelAt.IsZero() {
		return nil
	}
	if elapsed := m.now().Sub(m.lastCancelAt); elapsed < m.cfg.CancelCooldown {
		return reject(domain.ErrCooldown, m.cfg.CancelCooldown-elapsed, "cancel cooldown active")
	}
	return nil
}

// RecordCancel starts the cancel cooldown.
func (m *Manager) RecordCancel() {
	m.mu.Lock()
	m.lastCancelAt = m.now()
	m.mu.Unlock()
}

// OpenPosition starts tracking a position, averaging into an existing
// one for the same market and token.
func (m *Manager) OpenPosition(marketID string, token domain.Token, size, price float64) TrackedPosition {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	key := positionKey{marketID, token}
	p, ok := m.positions[key]
	if !ok {
		p = &TrackedPosition{MarketID: marketID, Token: token, OpenedAt: now, fired: map[string]bool{}}
		m.positions[key] = p
	}
	total := p.Size + size
	if total > 0 {
		p.EntryPrice = (p.EntryPrice*p.Size + price*size) / total
	}
	p.Size = total
	p.CurrentPrice = price
	p.HighWaterMark = math.Max(p.HighWaterMark, price)
	m.lastTradeAt = now

	m.logger.Info("position opened",
		slog.String("market_id", marketID),
		slog.String("token", string(token)),
		slog.Float64("size", size),
		slog.Float64("price", price),
	)
	return p.snapshot()
}

// ClosePosition realises the PnL of size units at price. A size at or
// above the holding closes it. It returns the realised PnL and false when
// nothing was open.
func (m *Manager) ClosePosition(marketID string, token domain.Token, size, price float64) (float64, bool) {
	m.mu.Lock()
	pnl, ok, raised := m.closeLocked(positionKey{marketID, token}, size, price)
	m.mu.Unlock()
	m.deliver(raised)
	return pnl, ok
}

func (m *Manager) closeLocked(key positionKey, size, price float64) (float64, bool, []domain.Alert) {
	p, ok := m.positions[key]
	if !ok {
		return 0, false, nil
	}
	qty := math.Min(size, p.Size)
	pnl := (price - p.EntryPrice) * qty
	p.Size -= qty
	p.CurrentPrice = price
	if p.Size <= 0 {
		delete(m.positions, key)
	}

	m.dailyPnL = m.dailyPnL.Add(decimal.NewFromFloat(pnl))
	m.peakPnL = decimal.Max(m.peakPnL, m.dailyPnL)
	m.lastTradeAt = m.now()

	m.logger.Info("position closed",
		slog.String("market_id", key.market),
		slog.String("token", string(key.token)),
		slog.Float64("pnl", pnl),
		slog.String("daily_pnl", m.dailyPnL.StringFixed(2)),
	)

	floor := decimal.NewFromFloat(m.cfg.BreakerThreshold * m.cfg.MaxDailyLoss).Neg()
	if m.dailyPnL.LessThan(floor) && m.breaker != BreakerOpen {
		return pnl, true, []domain.Alert{m.tripLocked("consecutive losses", false)}
	}
	return pnl, true, nil
}

// ApplyFill maps an execution onto tracked positions: buys open or add,
// sells realise PnL against the position of the same token.
func (m *Manager) ApplyFill(f domain.Fill) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("risk: apply fill %s: %w", f.MarketID, err)
	}
	switch f.Side {
	case domain.SideBuy:
		m.OpenPosition(f.MarketID, f.Token, f.Size, f.Price)
	case domain.SideSell:
		m.ClosePosition(f.MarketID, f.Token, f.Size, f.Price)
	}
	if m.limits != nil {
		if err := m.limits.Record(context.Background(), f.Side, f.Size*f.Price); err != nil {
			m.logger.Warn("trade window not updated", slog.String("fill_id", f.ID), slog.String("error", err.Error()))
		}
	}
	return nil
}

// UpdatePrice marks one position and runs the volatility, stop-loss,
// take-profit and trailing-stop checks. Each exit check alerts once per
// position. The position is never closed here.
func (m *Manager) UpdatePrice(marketID string, token domain.Token, price float64) []domain.Alert {
	m.mu.Lock()
	var raised []domain.Alert
	if p, ok := m.positions[positionKey{marketID, token}]; ok {
		raised = m.updateLocked(p, price)
	}
	m.mu.Unlock()
	m.deliver(raised)
	return raised
}

// MarkMarket marks both tokens of a market from its yes price.
func (m *Manager) MarkMarket(marketID string, yesPrice float64) []domain.Alert {
	m.mu.Lock()
	var raised []domain.Alert
	if p, ok := m.positions[positionKey{marketID, domain.TokenYes}]; ok {
		raised = append(raised, m.updateLocked(p, yesPrice)...)
	}
	if p, ok := m.positions[positionKey{marketID, domain.TokenNo}]; ok {
		raised = append(raised, m.updateLocked(p, 1-yesPrice)...)
	}
	m.mu.Unlock()
	m.deliver(raised)
	return raised
}

// CheckAllPositions marks every market present in yesPrices.
func (m *Manager) CheckAllPositions(yesPrices map[string]float64) []domain.Alert {
	ids := make([]string, 0, len(yesPrices))
	for id := range yesPrices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []domain.Alert
	for _, id := range ids {
		out = append(out, m.MarkMarket(id, yesPrices[id])...)
	}
	return out
}

func (m *Manager) updateLocked(p *TrackedPosition, price float64) []domain.Alert {
	var raised []domain.Alert
	now := m.now()

	old := p.CurrentPrice
	p.CurrentPrice = price
	p.HighWaterMark = math.Max(p.HighWaterMark, price)

	if old > 0 {
		if change := math.Abs(price-old) / old; change > m.cfg.VolatilityThreshold {
			m.volPausedUntil = now.Add(m.cfg.VolatilityPause)
			m.logger.Warn("volatility pause",
				slog.String("market_id", p.MarketID),
				slog.Float64("change", change),
				slog.Duration("pause", m.cfg.VolatilityPause),
			)
			raised = append(raised, m.alertLocked(domain.AlertWarning, AlertVolatilityPause, ActionPause, p.MarketID,
				fmt.Sprintf("price moved %.2f%%, pausing %s", change*100, m.cfg.VolatilityPause),
				map[string]any{"change": change, "from": old, "to": price}))
		}
	}

	pct := p.PnLPct()
	details := map[string]any{"token": string(p.Token), "pnl_pct": pct, "entry": p.EntryPrice, "price": price}
	switch {
	case pct <= -m.cfg.StopLossPct:
		if !p.fired[AlertStopLoss] {
			p.fired[AlertStopLoss] = true
			raised = append(raised, m.alertLocked(domain.AlertCritical, AlertStopLoss, ActionClosePosition, p.MarketID,
				fmt.Sprintf("stop loss hit: %.2f%%", pct*100), details))
		}
	case pct >= m.cfg.TakeProfitPct:
		if !p.fired[AlertTakeProfit] {
			p.fired[AlertTakeProfit] = true
			raised = append(raised, m.alertLocked(domain.AlertInfo, AlertTakeProfit, ActionTakeProfit, p.MarketID,
				fmt.Sprintf("take profit hit: %.2f%%", pct*100), details))
		}
	default:
		armed := p.EntryPrice > 0 && (p.HighWaterMark-p.EntryPrice)/p.EntryPrice > m.cfg.TrailingActivation
		if armed && price < p.HighWaterMark*(1-m.cfg.TrailingStopPct) && !p.fired[AlertTrailingStop] {
			p.fired[AlertTrailingStop] = true
			details["high_water_mark"] = p.HighWaterMark
			raised = append(raised, m.alertLocked(domain.AlertWarning, AlertTrailingStop, ActionClosePosition, p.MarketID,
				fmt.Sprintf("trailing stop hit at %.4f (peak %.4f)", price, p.HighWaterMark), details))
		}
	}
	return raised
}

// EmergencyStop opens the breaker until ResetBreaker is called. Cooldown
// recovery and the daily reset do not clear it.
func (m *Manager) EmergencyStop(reason string) {
	m.mu.Lock()
	m.manualStop = true
	a := m.tripLocked(reason, true)
	m.mu.Unlock()
	m.deliver([]domain.Alert{a})
}

// ResetBreaker closes the breaker, including after an emergency stop.
func (m *Manager) ResetBreaker() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breaker = BreakerClosed
	m.manualStop = false
	m.trippedAt = time.Time{}
	m.tripReason = ""
	m.logger.Info("circuit breaker reset")
}

// DailyReset starts a new trading day: PnL, peak, pause and cooldowns are
// cleared and an automatic trip is closed. A manual stop survives.
func (m *Manager) DailyReset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = decimal.Zero
	m.peakPnL = decimal.Zero
	m.volPausedUntil = time.Time{}
	m.lastTradeAt = time.Time{}
	m.lastCancelAt = time.Time{}
	if !m.manualStop {
		m.breaker = BreakerClosed
		m.trippedAt = time.Time{}
		m.tripReason = ""
	}
	if m.limits != nil {
		m.limits.Reset()
	}
	m.logger.Info("daily risk state reset")
}

func (m *Manager) tripLocked(reason string, manual bool) domain.Alert {
	m.breaker = BreakerOpen
	m.trippedAt = m.now()
	m.tripReason = reason
	m.logger.Error("circuit breaker tripped", slog.String("reason", reason), slog.Bool("manual", manual))

	typ := AlertCircuitBreaker
	if manual {
		typ = AlertEmergencyStop
	}
	return m.alertLocked(domain.AlertCritical, typ, ActionStopTrading, "",
		"circuit breaker tripped: "+reason,
		map[string]any{"daily_pnl": m.dailyPnL.String(), "peak_pnl": m.peakPnL.String()})
}

func (m *Manager) alertLocked(level domain.AlertLevel, typ, action, marketID, msg string, details map[string]any) domain.Alert {
	a := domain.Alert{
		ID:        uuid.NewString(),
		Level:     level,
		Type:      typ,
		Message:   msg,
		MarketID:  marketID,
		Action:    action,
		Timestamp: m.now(),
		Details:   details,
	}
	m.alerts.add(a)
	return a
}

func (m *Manager) deliver(alerts []domain.Alert) {
	if m.handler == nil {
		return
	}
	for _, a := range alerts {
		m.handler(a)
	}
}

// RaiseWarning records an informational alert from another component.
func (m *Manager) RaiseWarning(marketID, msg string, details map[string]any) {
	m.mu.Lock()
	a := m.alertLocked(domain.AlertWarning, AlertTradeWarning, "", marketID, msg, details)
	m.mu.Unlock()
	m.deliver([]domain.Alert{a})
}

// Alerts returns up to n recent alerts, newest first.
func (m *Manager) Alerts(n int) []domain.Alert { return m.alerts.recent(n) }

func (p *TrackedPosition) snapshot() TrackedPosition {
	cp := *p
	cp.fired = nil
	return cp
}
