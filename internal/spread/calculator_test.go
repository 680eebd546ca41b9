package spread

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

func TestHighVolatilityLowLiquidityWidens(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	cond := Condition{Volatility: 0.05, Liquidity: 100, DepthTrend: 1}

	adj := c.Adjust("m1", cond, 0.02)
	assert.Greater(t, adj.NewSpread, 0.02)
	assert.Greater(t, adj.Confidence, 0.5)
	assert.Contains(t, adj.Reason, "widen spread")
	assert.Contains(t, adj.Reason, "high volatility")
	assert.Contains(t, adj.Reason, "thin liquidity")

	// weighted = 0.2*0.3 + 0.27*0.25 = 0.1275; smoothed = 0.02*0.5 + 0.02255*0.5
	assert.InDelta(t, 0.021275, adj.NewSpread, 1e-9)
	// 0.5 + vol + liquidity + sign agreement
	assert.InDelta(t, 0.85, adj.Confidence, 1e-9)
}

func TestNeutralConditionIsStable(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	cond := Condition{Volatility: 0.007, Liquidity: 5000, Volume: 5000, DepthTrend: 1}

	adj := c.Adjust("m1", cond, 0.03)
	assert.InDelta(t, 0.03, adj.NewSpread, 1e-12)
	assert.Equal(t, "market stable", adj.Reason)
	assert.InDelta(t, 0.8, adj.Confidence, 1e-9)
}

func TestSpreadIsClamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdjustmentSpeed = 1
	c := NewCalculator(cfg)

	wide := c.Adjust("m1", Condition{Volatility: 1, Pressure: 1, Imbalance: 1, DepthTrend: 0}, 0.099)
	assert.Equal(t, cfg.MaxSpread, wide.NewSpread)

	narrow := c.Adjust("m1", Condition{Volatility: 0, Liquidity: 1e6, Volume: 1e6, DepthTrend: 1}, 0.005)
	assert.Equal(t, cfg.MinSpread, narrow.NewSpread)
	assert.Contains(t, narrow.Reason, "narrow spread")
}

func TestFactors(t *testing.T) {
	assert.InDelta(t, 0.5, volatilityFactor(0.5), 1e-12)
	assert.InDelta(t, 0.05, volatilityFactor(0.02), 1e-12)
	assert.InDelta(t, -0.015, volatilityFactor(0), 1e-12)
	assert.Zero(t, volatilityFactor(0.008))

	assert.InDelta(t, 0.3, liquidityFactor(0), 1e-12)
	assert.InDelta(t, 0.15, liquidityFactor(500), 1e-12)
	assert.Zero(t, liquidityFactor(1000))

	assert.InDelta(t, -0.1, volumeFactor(15000), 1e-12)
	assert.InDelta(t, -0.2, volumeFactor(1e9), 1e-12)

	assert.InDelta(t, 0.15, pressureFactor(-1), 1e-12)
	assert.Zero(t, pressureFactor(0.5))
	assert.InDelta(t, 0.16, depthTrendFactor(0), 1e-12)
	assert.InDelta(t, 0.21, imbalanceFactor(-1), 1e-12)
}

func TestConfidenceSignAgreement(t *testing.T) {
	mixed := map[string]float64{FactorVolatility: 0.1, FactorVolume: -0.1}
	agree := map[string]float64{FactorVolatility: 0.1, FactorLiquidity: 0.1}
	none := map[string]float64{FactorVolatility: 0}

	assert.InDelta(t, 0.5, confidence(Condition{}, mixed), 1e-12)
	assert.InDelta(t, 0.7, confidence(Condition{}, agree), 1e-12)
	assert.InDelta(t, 0.5, confidence(Condition{}, none), 1e-12)
	assert.InDelta(t, 1.0, confidence(Condition{Volatility: 1, Liquidity: 1, Volume: 1}, agree), 1e-12)
}

func TestHistoryAndStats(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	for i := 0; i < historyLimit+10; i++ {
		c.Adjust("m1", Condition{Volatility: 0.007, Liquidity: 5000, DepthTrend: 1}, 0.02)
	}
	c.Adjust("m2", Condition{Volatility: 0.05, Liquidity: 100}, 0.02)

	assert.Len(t, c.History("m1"), historyLimit)
	assert.Zero(t, c.SpreadVolatility("m1"))
	assert.Zero(t, c.SpreadVolatility("m2"))

	st := c.Stats()
	assert.Equal(t, historyLimit+11, st.AdjustmentCount)
	assert.Equal(t, 2, st.MarketsTracked)
	assert.Greater(t, st.TotalAdjustments, 0.0)

	c.Reset()
	assert.Equal(t, Stats{}, c.Stats())
	assert.Empty(t, c.History("m1"))
}

func TestOptimalFromBook(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	book := &domain.Orderbook{
		Bids: []domain.PriceLevel{{Price: 0.48, Size: 300}, {Price: 0.47, Size: 100}},
		Asks: []domain.PriceLevel{{Price: 0.52, Size: 100}},
	}
	for i := 0; i < 25; i++ {
		book.RecentTrades = append(book.RecentTrades, domain.TradePrint{Price: 0.5, Size: float64(i)})
	}

	cond, current := c.ConditionFromBook(book, 0.006)
	assert.InDelta(t, 0.04, current, 1e-12)
	assert.Equal(t, 500.0, cond.Liquidity)
	assert.InDelta(t, 0.6, cond.Pressure, 1e-12)
	assert.InDelta(t, 0.6, cond.Imbalance, 1e-12)
	// last 20 of 0..24
	assert.Equal(t, 290.0, cond.Volume)

	adj := c.Optimal("m1", book, 0.006)
	require.NotEmpty(t, adj.Factors)
	assert.Greater(t, adj.NewSpread, current)
	assert.Contains(t, adj.Reason, "book imbalance")
}

func TestConditionWithoutBid(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	_, current := c.ConditionFromBook(&domain.Orderbook{Asks: []domain.PriceLevel{{Price: 0.6, Size: 1}}}, 0)
	assert.Equal(t, 0.02, current)

	_, current = c.ConditionFromBook(nil, 0)
	assert.Equal(t, 0.02, current)
}

func ExampleCalculator_Adjust() {
	c := NewCalculator(DefaultConfig())
	adj := c.Adjust("m1", Condition{Volatility: 0.007, Liquidity: 5000, DepthTrend: 1}, 0.02)
	fmt.Println(adj.NewSpread, adj.Reason)
	// Output: 0.02 market stable
}
