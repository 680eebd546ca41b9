package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

func newTestPricer() *Pricer {
	return NewPricer(DefaultConfig())
}

func TestCallPlusPutIsDiscountedPayoff(t *testing.T) {
	p := newTestPricer()
	cases := []struct{ S, K, T, sigma float64 }{
		{100, 100, 0.1, 0.5},
		{100, 95, 0.25, 0.3},
		{50000, 51000, 0.01, 0.8},
		{1.2, 1.0, 1, 0.2},
	}
	for _, c := range cases {
		call := p.CallPrice(c.S, c.K, c.T, c.sigma)
		put := p.PutPrice(c.S, c.K, c.T, c.sigma)
		assert.InDelta(t, math.Exp(-0.05*c.T), call+put, 1e-9, "S=%v K=%v", c.S, c.K)
	}
}

func TestCallMonotonicInSpot(t *testing.T) {
	p := newTestPricer()
	prev := 0.0
	for S := 80.0; S <= 120; S += 0.5 {
		v := p.CallPrice(S, 100, 0.05, 0.6)
		assert.GreaterOrEqual(t, v, prev, "S=%v", S)
		prev = v
	}
}

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	p := newTestPricer()
	cases := []struct{ S, K, T, sigma float64 }{
		{100, 95, 0.1, 0.6},
		{100, 110, 0.5, 0.4},
		{100, 102, 0.02, 0.8},
	}
	for _, c := range cases {
		price := p.CallPrice(c.S, c.K, c.T, c.sigma)
		require.Greater(t, price, 0.001)
		require.Less(t, price, 0.999)

		iv := p.ImpliedVolatility(price, c.S, c.K, c.T)
		assert.InDelta(t, price, p.CallPrice(c.S, c.K, c.T, iv), 1e-6)
	}
}

func TestImpliedVolatilityFallbacks(t *testing.T) {
	p := newTestPricer()

	assert.Zero(t, p.ImpliedVolatility(0.5, 100, 100, 0))

	// deep in the money: no σ in range produces a price this low
	assert.Equal(t, 0.8, p.ImpliedVolatility(0.01, 200, 100, 0.5))
}

func TestNearExpiryAtTheMoney(t *testing.T) {
	p := newTestPricer()
	v := p.CallPrice(100, 100, 0.001, 0.5)
	assert.InDelta(t, 0.5, v, 0.01)
	assert.Greater(t, v, 0.001)
	assert.Less(t, v, 0.999)
}

func TestExpiredAndDegenerateInputs(t *testing.T) {
	p := newTestPricer()

	assert.Equal(t, 0.999, p.CallPrice(101, 100, 0, 0.5))
	assert.Equal(t, 0.001, p.CallPrice(99, 100, 0, 0.5))
	assert.Equal(t, 0.999, p.PutPrice(99, 100, -1, 0.5))

	v := p.CallPrice(100, 90, 0.1, 0)
	assert.False(t, math.IsNaN(v))
	assert.Equal(t, p.CallPrice(100, 90, 0.1, 0.01), v)

	assert.Equal(t, domain.Greeks{}, p.Greeks(100, 100, 0, 0.5))
}

func TestGreeksMatchFiniteDifferences(t *testing.T) {
	p := newTestPricer()
	S, K, T, sigma := 100.0, 102.0, 0.2, 0.5
	g := p.Greeks(S, K, T, sigma)
	const h = 1e-4

	delta := (p.rawCall(S+h, K, T, sigma) - p.rawCall(S-h, K, T, sigma)) / (2 * h)
	vega := (p.rawCall(S, K, T, sigma+h) - p.rawCall(S, K, T, sigma-h)) / (2 * h)
	theta := -(p.rawCall(S, K, T+h, sigma) - p.rawCall(S, K, T-h, sigma)) / (2 * h)
	dUp := p.Greeks(S+h, K, T, sigma).Delta
	dDown := p.Greeks(S-h, K, T, sigma).Delta
	gamma := (dUp - dDown) / (2 * h)

	assert.InDelta(t, delta, g.Delta, 1e-6)
	assert.InDelta(t, vega, g.Vega, 1e-5)
	assert.InDelta(t, theta, g.Theta, 1e-4)
	assert.InDelta(t, gamma, g.Gamma, 1e-5)
}

func TestAnalyze(t *testing.T) {
	p := newTestPricer()
	snap := domain.MarketSnapshot{
		MarketID:        "btc-100k",
		YesPrice:        0.30,
		NoPrice:         0.72,
		StrikePrice:     100,
		UnderlyingPrice: 105,
		ExpirySeconds:   7 * 24 * 3600,
	}

	res := p.Analyze(snap, 0.5)
	assert.Equal(t, "btc-100k", res.MarketID)
	assert.Greater(t, res.Yes.TheoreticalPrice, 0.5)
	assert.InDelta(t, res.Yes.TheoreticalPrice-0.30, res.Yes.Edge, 1e-12)
	assert.InDelta(t, res.Yes.Edge-0.02, res.Yes.NetEdge, 1e-12)
	assert.Equal(t, domain.RecStrongBuy, res.Yes.Recommendation)
	assert.Less(t, res.No.NetEdge, 0.0)
	assert.Equal(t, domain.RecNoEdge, res.No.Recommendation)
	assert.Greater(t, res.ImpliedVolatility, 0.0)

	tok, best := res.Best()
	assert.Equal(t, domain.TokenYes, tok)
	assert.Equal(t, res.Yes, best)
}

func TestRecommendationOrder(t *testing.T) {
	minute := 1.0 / (365 * 24 * 60)
	assert.Equal(t, domain.RecNearExpiry, recommend(0.5, 0.9, minute/2))
	assert.Equal(t, domain.RecNoTrade, recommend(0.5, 0.39, 1))
	assert.Equal(t, domain.RecStrongBuy, recommend(0.031, 0.5, 1))
	assert.Equal(t, domain.RecConsider, recommend(0.02, 0.5, 1))
	assert.Equal(t, domain.RecSmallEdge, recommend(0.005, 0.5, 1))
	assert.Equal(t, domain.RecNoEdge, recommend(0, 0.5, 1))
}

func TestConfidence(t *testing.T) {
	// 0.5*min(1,0.1*5) + 0.25*max(0.3,1-0.1) + 0.25*max(0.3,1-0.25)
	assert.InDelta(t, 0.25+0.225+0.1875, confidence(0.1, 0.1, 0.5), 1e-3)
	assert.InDelta(t, 0.5+0.075+0.075, confidence(-0.5, 2, 4), 1e-9)
}
