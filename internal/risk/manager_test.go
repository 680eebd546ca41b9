package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeClock, *[]domain.Alert) {
	t.Helper()
	clk := newClock()
	var mu sync.Mutex
	var got []domain.Alert
	opts = append(opts,
		WithClock(clk.Now),
		WithAlertHandler(func(a domain.Alert) {
			mu.Lock()
			got = append(got, a)
			mu.Unlock()
		}),
	)
	return NewManager(DefaultConfig(), discard(), opts...), clk, &got
}

// lose books a realised loss and steps past the trade cooldown.
func lose(m *Manager, clk *fakeClock, market string, amount float64) {
	m.OpenPosition(market, domain.TokenYes, amount, 1)
	m.ClosePosition(market, domain.TokenYes, amount, 0)
	clk.Advance(time.Minute)
}

func TestCanTradeFreshManager(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.CanTrade(10))
	assert.Equal(t, BreakerClosed, m.Breaker())
}

func TestSizeCap(t *testing.T) {
	m, _, _ := newTestManager(t)
	err := m.CanTrade(101)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSizeLimit))
	assert.Equal(t, BreakerClosed, m.Breaker())
}

func TestDailyLossRejectsUntilReset(t *testing.T) {
	m, clk, alerts := newTestManager(t)
	lose(m, clk, "m1", 51)
	assert.True(t, m.DailyPnL().Equal(decimal.NewFromInt(-51)))

	for _, size := range []float64{0, 1, 50, 100} {
		require.Error(t, m.CanTrade(size))
	}
	assert.Equal(t, BreakerOpen, m.Breaker())

	// cooldown elapses, trial trade fails on the same loss and reopens
	clk.Advance(2 * time.Hour)
	err := m.CanTrade(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDailyLoss))
	assert.Equal(t, BreakerOpen, m.Breaker())

	m.DailyReset()
	require.NoError(t, m.CanTrade(1))
	assert.NotEmpty(t, *alerts)
}

func TestCloseTripsBreakerBelowThreshold(t *testing.T) {
	m, clk, alerts := newTestManager(t)
	// threshold 0.10 × 50 = 5
	lose(m, clk, "m1", 6)

	assert.Equal(t, BreakerOpen, m.Breaker())
	var rej *Rejection
	err := m.CanTrade(1)
	require.ErrorAs(t, err, &rej)
	assert.True(t, errors.Is(err, domain.ErrCircuitOpen))
	assert.Greater(t, rej.RetryAfter, 50*time.Minute)

	found := false
	for _, a := range *alerts {
		if a.Type == AlertCircuitBreaker {
			found = true
			assert.Equal(t, domain.AlertCritical, a.Level)
		}
	}
	assert.True(t, found)
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	m, clk, _ := newTestManager(t)
	lose(m, clk, "m1", 6)
	require.Equal(t, BreakerOpen, m.Breaker())

	clk.Advance(time.Hour)
	require.NoError(t, m.CanTrade(1))
	assert.Equal(t, BreakerClosed, m.Breaker())
}

func TestHalfOpenCooldownKeepsTrial(t *testing.T) {
	m, clk, _ := newTestManager(t)
	lose(m, clk, "m1", 6)
	clk.Advance(time.Hour)

	m.MarkMarket("none", 0.5)
	m.OpenPosition("m2", domain.TokenYes, 1, 0.5)
	err := m.CanTrade(1)
	assert.True(t, errors.Is(err, domain.ErrCooldown))
	assert.Equal(t, BreakerHalfOpen, m.Breaker())
}

func TestDrawdownTrips(t *testing.T) {
	m, clk, _ := newTestManager(t)
	m.OpenPosition("m1", domain.TokenYes, 10, 0.5)
	m.ClosePosition("m1", domain.TokenYes, 10, 1.5) // +10
	m.OpenPosition("m2", domain.TokenYes, 3, 1)
	m.ClosePosition("m2", domain.TokenYes, 3, 0) // -3 → 7, drawdown 30%
	clk.Advance(time.Minute)

	err := m.CanTrade(1)
	assert.True(t, errors.Is(err, domain.ErrDrawdown))
	assert.Equal(t, BreakerOpen, m.Breaker())
}

func TestEmergencyStopNeedsExplicitReset(t *testing.T) {
	m, clk, alerts := newTestManager(t)
	m.EmergencyStop("operator")

	err := m.CanTrade(1)
	assert.True(t, errors.Is(err, domain.ErrEmergencyStop))

	clk.Advance(48 * time.Hour)
	m.DailyReset()
	assert.True(t, errors.Is(m.CanTrade(1), domain.ErrEmergencyStop))
	assert.Equal(t, domain.RiskCritical, m.Level())

	m.ResetBreaker()
	assert.NoError(t, m.CanTrade(1))
	assert.Equal(t, AlertEmergencyStop, (*alerts)[0].Type)
}

func TestTradeCooldown(t *testing.T) {
	m, clk, _ := newTestManager(t)
	m.OpenPosition("m1", domain.TokenYes, 1, 0.5)

	var rej *Rejection
	require.ErrorAs(t, m.CanTrade(1), &rej)
	assert.Equal(t, 10*time.Second, rej.RetryAfter)

	clk.Advance(10 * time.Second)
	assert.NoError(t, m.CanTrade(1))
}

func TestAdmitHedgeSkipsTradeCooldown(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.OpenPosition("m1", domain.TokenYes, 1, 0.5)

	_, err := m.Admit(context.Background(), 1, 0.5)
	require.ErrorIs(t, err, domain.ErrCooldown)

	_, err = m.AdmitHedge(context.Background(), 1, 0.5)
	assert.NoError(t, err)

	m.EmergencyStop("test")
	_, err = m.AdmitHedge(context.Background(), 1, 0.5)
	assert.ErrorIs(t, err, domain.ErrEmergencyStop)
}

func TestCancelCooldown(t *testing.T) {
	m, clk, _ := newTestManager(t)
	require.NoError(t, m.CanCancel())
	m.RecordCancel()
	assert.True(t, errors.Is(m.CanCancel(), domain.ErrCooldown))
	clk.Advance(4 * time.Second)
	assert.NoError(t, m.CanCancel())
}

func TestVolatilityPause(t *testing.T) {
	m, clk, _ := newTestManager(t)
	m.OpenPosition("m1", domain.TokenYes, 10, 0.50)
	clk.Advance(time.Minute)

	alerts := m.UpdatePrice("m1", domain.TokenYes, 0.52) // 4% move
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertVolatilityPause, alerts[0].Type)

	var rej *Rejection
	require.ErrorAs(t, m.CanTrade(1), &rej)
	assert.True(t, errors.Is(rej, domain.ErrVolatilityPause))
	assert.Equal(t, 5*time.Minute, rej.RetryAfter)
	assert.Equal(t, domain.RiskHigh, m.Level())

	clk.Advance(5 * time.Minute)
	assert.NoError(t, m.CanTrade(1))
}

func TestExitAlertsFireOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VolatilityThreshold = 10
	clk := newClock()
	m := NewManager(cfg, discard(), WithClock(clk.Now))

	m.OpenPosition("sl", domain.TokenYes, 10, 0.50)
	got := m.UpdatePrice("sl", domain.TokenYes, 0.30)
	require.Len(t, got, 1)
	assert.Equal(t, AlertStopLoss, got[0].Type)
	assert.Equal(t, ActionClosePosition, got[0].Action)
	assert.Empty(t, m.UpdatePrice("sl", domain.TokenYes, 0.29))

	m.OpenPosition("tp", domain.TokenNo, 10, 0.50)
	got = m.UpdatePrice("tp", domain.TokenNo, 0.61)
	require.Len(t, got, 1)
	assert.Equal(t, AlertTakeProfit, got[0].Type)
	assert.Equal(t, ActionTakeProfit, got[0].Action)

	// positions are never closed by checks
	assert.Len(t, m.Positions(), 2)
}

func TestTrailingStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VolatilityThreshold = 10
	m := NewManager(cfg, discard())

	m.OpenPosition("m1", domain.TokenYes, 10, 0.50)
	assert.Empty(t, m.UpdatePrice("m1", domain.TokenYes, 0.59)) // +18%, armed
	assert.Empty(t, m.UpdatePrice("m1", domain.TokenYes, 0.54)) // above 0.531
	got := m.UpdatePrice("m1", domain.TokenYes, 0.53)
	require.Len(t, got, 1)
	assert.Equal(t, AlertTrailingStop, got[0].Type)
	assert.Empty(t, m.UpdatePrice("m1", domain.TokenYes, 0.52))
}

func TestMarkMarketUsesComplementForNo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VolatilityThreshold = 10
	m := NewManager(cfg, discard())
	m.OpenPosition("m1", domain.TokenNo, 10, 0.50)

	got := m.CheckAllPositions(map[string]float64{"m1": 0.80})
	require.Len(t, got, 1)
	assert.Equal(t, AlertStopLoss, got[0].Type)
	assert.InDelta(t, 0.2, m.Positions()[0].CurrentPrice, 1e-12)
}

func TestApplyFillRealisesPnL(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.ApplyFill(domain.Fill{MarketID: "m1", Side: domain.SideBuy, Token: domain.TokenYes, Size: 10, Price: 0.4}))
	require.NoError(t, m.ApplyFill(domain.Fill{MarketID: "m1", Side: domain.SideSell, Token: domain.TokenYes, Size: 4, Price: 0.5}))

	assert.InDelta(t, 0.4, m.DailyPnL().InexactFloat64(), 1e-9)
	ps := m.Positions()
	require.Len(t, ps, 1)
	assert.InDelta(t, 6, ps[0].Size, 1e-12)

	assert.Error(t, m.ApplyFill(domain.Fill{MarketID: "m1", Side: "hold", Token: domain.TokenYes, Size: 1}))
}

func TestRiskLevelFromLoss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BreakerThreshold = 10 // keep the breaker closed
	clk := newClock()
	m := NewManager(cfg, discard(), WithClock(clk.Now))

	assert.Equal(t, domain.RiskLow, m.Level())
	lose(m, clk, "a", 25)
	assert.Equal(t, domain.RiskMedium, m.Level())
	lose(m, clk, "b", 13)
	assert.Equal(t, domain.RiskHigh, m.Level())
	lose(m, clk, "c", 12)
	assert.Equal(t, domain.RiskCritical, m.Level())
}

func TestSummaryAndAlerts(t *testing.T) {
	m, clk, _ := newTestManager(t, WithLimits(NewLimits(DefaultLimitConfig(), nil)))
	lose(m, clk, "m1", 6)

	s := m.Summary()
	assert.Equal(t, BreakerOpen, s.Breaker)
	assert.Equal(t, domain.RiskCritical, s.RiskLevel)
	assert.Equal(t, "consecutive losses", s.BreakerReason)
	assert.Equal(t, 1, s.AlertsCount)
	assert.Equal(t, 1, s.AlertsToday)
	require.NotNil(t, s.Limits)

	recent := m.Alerts(10)
	require.Len(t, recent, 1)

	snap := m.Snapshot(clk.Now())
	assert.Equal(t, "open", snap.Breaker)
	assert.True(t, snap.DailyPnL.Equal(decimal.NewFromInt(-6)))
}

func TestSnapshotDescribesClosingDay(t *testing.T) {
	m, clk, _ := newTestManager(t)
	m.RaiseWarning("m1", "first", nil)
	m.RaiseWarning("m2", "second", nil)

	closing := startOfDay(clk.Now())
	clk.Advance(12*time.Hour + time.Millisecond)
	m.RaiseWarning("m1", "after midnight", nil)

	snap := m.Snapshot(closing)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), snap.Day)
	assert.Equal(t, 2, snap.AlertCount)
	assert.Equal(t, clk.Now(), snap.TakenAt)

	next := m.Snapshot(clk.Now())
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), next.Day)
	assert.Equal(t, 1, next.AlertCount)
}

func TestAdmitAppliesLimits(t *testing.T) {
	m, _, _ := newTestManager(t, WithLimits(NewLimits(DefaultLimitConfig(), nil)))

	warnings, err := m.Admit(context.Background(), 50, 0.5)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	_, err = m.Admit(context.Background(), 100, 1.5)
	assert.True(t, errors.Is(err, domain.ErrTradeLimit))
}

func TestConcurrentAdmission(t *testing.T) {
	m, _, _ := newTestManager(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); _ = m.CanTrade(1) }()
		go func() { defer wg.Done(); m.MarkMarket("m1", 0.5) }()
		go func() { defer wg.Done(); _ = m.Summary() }()
	}
	m.EmergencyStop("test")
	wg.Wait()
	assert.True(t, errors.Is(m.CanTrade(1), domain.ErrEmergencyStop))
}
