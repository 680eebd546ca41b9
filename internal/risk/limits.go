package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// FrequencyLimiter counts events in a sliding window shared across
// replicas. Count must not record anything. The Redis rate limiter
// satisfies it.
type FrequencyLimiter interface {
	Record(ctx context.Context, key string, window time.Duration) error
	Count(ctx context.Context, key string, window time.Duration) (int, error)
}

// LimitConfig bounds trading activity per day.
type LimitConfig struct {
	MaxSingleTradeUSD     float64
	MaxDailyTrades        int
	MaxDailyVolumeUSD     float64
	MaxTradesPerMinute    int
	UnusualSizeMultiplier float64
	// LargeTradeUSD warns on any single trade at or above this notional.
	LargeTradeUSD float64
	// OutflowWarnPct warns once the day's net purchases would reach this
	// share of BankrollUSD.
	BankrollUSD    float64
	OutflowWarnPct float64
}

// DefaultLimitConfig returns the production trade limits.
func DefaultLimitConfig() LimitConfig {
	return LimitConfig{
		MaxSingleTradeUSD:     100,
		MaxDailyTrades:        100,
		MaxDailyVolumeUSD:     5000,
		MaxTradesPerMinute:    10,
		UnusualSizeMultiplier: 5,
		LargeTradeUSD:         50,
		BankrollUSD:           5000,
		OutflowWarnPct:        0.10,
	}
}

// LimitStats summarises the day's activity.
type LimitStats struct {
	DailyTrades    int             `json:"daily_trades"`
	DailyVolumeUSD decimal.Decimal `json:"daily_volume_usd"`
	AvgTradeUSD    decimal.Decimal `json:"avg_trade_usd"`
	TradesLastMin  int             `json:"trades_last_minute"`
	OutflowUSD     decimal.Decimal `json:"outflow_usd"`
}

const frequencyKey = "risk:trades"

// Limits enforces hard per-trade and per-day caps and raises warnings for
// high frequency or unusual size.
type Limits struct {
	cfg  LimitConfig
	freq FrequencyLimiter
	now  func() time.Time

	mu      sync.Mutex
	trades  int
	volume  decimal.Decimal
	outflow decimal.Decimal
	recent  []time.Time
}

// NewLimits creates Limits. freq may be nil, in which case trades per
// minute are counted in process.
func NewLimits(cfg LimitConfig, freq FrequencyLimiter) *Limits {
	return &Limits{cfg: cfg, freq: freq, now: time.Now, volume: decimal.Zero, outflow: decimal.Zero}
}

// Check validates a purchase of notional usd. Hard limits return a
// *Rejection wrapping domain.ErrTradeLimit. Check only reads the
// counters; fills are counted by Record.
func (l *Limits) Check(ctx context.Context, usd float64) ([]string, error) {
	l.mu.Lock()
	now := l.now()
	l.pruneLocked(now)
	trades, volume, outflow := l.trades, l.volume, l.outflow
	localRecent := len(l.recent)
	l.mu.Unlock()

	amount := decimal.NewFromFloat(usd)
	if usd > l.cfg.MaxSingleTradeUSD {
		return nil, reject(domain.ErrTradeLimit, 0, "trade $%.2f exceeds single-trade limit $%.2f", usd, l.cfg.MaxSingleTradeUSD)
	}
	if l.cfg.MaxDailyTrades > 0 && trades >= l.cfg.MaxDailyTrades {
		return nil, reject(domain.ErrTradeLimit, 0, "daily trade count %d reached", l.cfg.MaxDailyTrades)
	}
	if volume.Add(amount).GreaterThan(decimal.NewFromFloat(l.cfg.MaxDailyVolumeUSD)) {
		return nil, reject(domain.ErrTradeLimit, 0, "daily volume would exceed $%.2f", l.cfg.MaxDailyVolumeUSD)
	}

	var warnings []string
	if l.cfg.MaxTradesPerMinute > 0 {
		recent := localRecent
		if l.freq != nil {
			if n, err := l.freq.Count(ctx, frequencyKey, time.Minute); err == nil {
				recent = n
			}
		}
		if recent >= l.cfg.MaxTradesPerMinute {
			warnings = append(warnings, fmt.Sprintf("more than %d trades in the last minute", l.cfg.MaxTradesPerMinute))
		}
	}
	if l.cfg.LargeTradeUSD > 0 && usd >= l.cfg.LargeTradeUSD {
		warnings = append(warnings, fmt.Sprintf("large trade $%.2f", usd))
	}
	if l.cfg.BankrollUSD > 0 && l.cfg.OutflowWarnPct > 0 {
		next := outflow.Add(amount)
		pct := next.Div(decimal.NewFromFloat(l.cfg.BankrollUSD))
		if pct.GreaterThanOrEqual(decimal.NewFromFloat(l.cfg.OutflowWarnPct)) {
			warnings = append(warnings, fmt.Sprintf("fund outflow $%s is %s%% of bankroll",
				next.StringFixed(2), pct.Mul(decimal.NewFromInt(100)).StringFixed(1)))
		}
	}
	if trades > 0 && l.cfg.UnusualSizeMultiplier > 0 {
		avg := volume.Div(decimal.NewFromInt(int64(trades)))
		if amount.GreaterThan(avg.Mul(decimal.NewFromFloat(l.cfg.UnusualSizeMultiplier))) {
			warnings = append(warnings, fmt.Sprintf("trade $%.2f is over %.0fx the average $%s",
				usd, l.cfg.UnusualSizeMultiplier, avg.StringFixed(2)))
		}
	}
	return warnings, nil
}

// Record counts an executed trade of notional usd. Buys add to the day's
// outflow and sells return cash against it. The local counters always
// move; an error means only the shared window missed the fill.
func (l *Limits) Record(ctx context.Context, side domain.Side, usd float64) error {
	l.mu.Lock()
	now := l.now()
	amount := decimal.NewFromFloat(usd)
	l.trades++
	l.volume = l.volume.Add(amount)
	switch side {
	case domain.SideBuy:
		l.outflow = l.outflow.Add(amount)
	case domain.SideSell:
		l.outflow = decimal.Max(decimal.Zero, l.outflow.Sub(amount))
	}
	l.recent = append(l.recent, now)
	l.pruneLocked(now)
	l.mu.Unlock()

	if l.freq == nil {
		return nil
	}
	if err := l.freq.Record(ctx, frequencyKey, time.Minute); err != nil {
		return fmt.Errorf("risk: record trade: %w", err)
	}
	return nil
}

// Reset clears the daily counters.
func (l *Limits) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = 0
	l.volume = decimal.Zero
	l.outflow = decimal.Zero
	l.recent = nil
}

// Stats returns the day's counters.
func (l *Limits) Stats() LimitStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
	st := LimitStats{
		DailyTrades:    l.trades,
		DailyVolumeUSD: l.volume,
		AvgTradeUSD:    decimal.Zero,
		TradesLastMin:  len(l.recent),
		OutflowUSD:     l.outflow,
	}
	if l.trades > 0 {
		st.AvgTradeUSD = l.volume.Div(decimal.NewFromInt(int64(l.trades)))
	}
	return st
}

func (l *Limits) pruneLocked(now time.Time) {
	cut := now.Add(-time.Minute)
	i := 0
	for i < len(l.recent) && l.recent[i].Before(cut) {
		i++
	}
	l.recent = l.recent[i:]
}
