package arbitrage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

func market(id string, v domain.Venue, q string, yes, no float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{MarketID: id, Venue: v, Question: q, YesPrice: yes, NoPrice: no, Liquidity: 1000}
}

func TestScanIntraVenueOverpriced(t *testing.T) {
	s := NewScanner(DefaultConfig())
	opps := s.Scan([]domain.MarketSnapshot{
		market("m1", domain.VenuePolymarket, "Will it rain?", 0.60, 0.55),
	})

	require.Len(t, opps, 1)
	o := opps[0]
	assert.Equal(t, domain.ArbIntraVenue, o.Type)
	assert.InDelta(t, 0.13, o.ProfitPercent, 1e-9)
	assert.InDelta(t, 500*0.13, o.ProfitAbsolute, 1e-6)
	assert.Equal(t, ActionSellBoth, o.Action)
	assert.Equal(t, 0.7, o.Confidence, "selling both sides needs inventory")
	assert.Nil(t, o.MarketB)
}

func TestScanIntraVenueUnderpricedAndFair(t *testing.T) {
	s := NewScanner(DefaultConfig())
	opps := s.ScanIntraVenue([]domain.MarketSnapshot{
		market("cheap", domain.VenueKalshi, "q", 0.40, 0.50),
		market("fair", domain.VenueKalshi, "q", 0.50, 0.51),
	})

	require.Len(t, opps, 1)
	assert.Equal(t, "cheap", opps[0].MarketA.MarketID)
	assert.Equal(t, ActionBuyBoth, opps[0].Action)
	assert.Equal(t, 0.9, opps[0].Confidence)
	assert.InDelta(t, 0.08, opps[0].ProfitPercent, 1e-9)
}

func TestScanCrossVenue(t *testing.T) {
	s := NewScanner(DefaultConfig())
	a := market("a", domain.VenuePolymarket, "Will BTC be above 100k on Friday?", 0.40, 0.60)
	b := market("b", domain.VenueKalshi, "BTC above 100k on Friday", 0.55, 0.45)

	opps := s.ScanCrossVenue([]domain.MarketSnapshot{a, b})
	require.Len(t, opps, 1)
	o := opps[0]
	assert.Equal(t, domain.ArbCrossVenue, o.Type)
	require.NotNil(t, o.MarketB)
	assert.Equal(t, "b", o.MarketB.MarketID)
	assert.InDelta(t, 0.15-0.072, o.ProfitPercent, 1e-9)
	assert.Equal(t, 1.0, o.Confidence)
	assert.Equal(t, "BUY_YES_polymarket_SELL_YES_kalshi", o.Action)
}

func TestScanCrossVenueSkipsUnrelatedAndSameVenue(t *testing.T) {
	s := NewScanner(DefaultConfig())
	opps := s.ScanCrossVenue([]domain.MarketSnapshot{
		market("a", domain.VenuePolymarket, "Will BTC be above 100k on Friday?", 0.20, 0.80),
		market("b", domain.VenuePolymarket, "Will BTC be above 100k on Friday?", 0.70, 0.30),
		market("c", domain.VenueKalshi, "Who wins the election in Ohio", 0.90, 0.10),
	})
	assert.Empty(t, opps)
}

func TestScanRanksAndTruncates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopN = 3
	s := NewScanner(cfg)

	var markets []domain.MarketSnapshot
	for i := 0; i < 6; i++ {
		no := 0.40 - float64(i)*0.02
		markets = append(markets, market(fmt.Sprintf("m%d", i), domain.VenueProbable, "q", 0.40, no))
	}
	opps := s.Scan(markets)

	require.Len(t, opps, 3)
	assert.Equal(t, "m5", opps[0].MarketA.MarketID)
	assert.Equal(t, "m4", opps[1].MarketA.MarketID)
	assert.Equal(t, "m3", opps[2].MarketA.MarketID)
	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].ProfitPercent, opps[i].ProfitPercent)
	}
}

func TestScanIgnoresUnknownVenue(t *testing.T) {
	s := NewScanner(DefaultConfig())
	opps := s.Scan([]domain.MarketSnapshot{market("x", domain.Venue("nowhere"), "q", 0.2, 0.2)})
	assert.Empty(t, opps)
}

func TestScanCapsMarketsByLiquidity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMarkets = 1
	s := NewScanner(cfg)
	thin := market("thin", domain.VenuePolymarket, "q", 0.2, 0.2)
	thin.Liquidity = 10
	deep := market("deep", domain.VenuePolymarket, "q", 0.3, 0.3)
	deep.Liquidity = 10000

	opps := s.Scan([]domain.MarketSnapshot{thin, deep})
	require.Len(t, opps, 1)
	assert.Equal(t, "deep", opps[0].MarketA.MarketID)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Will BTC be above $100k?", "btc above 100k"))
	assert.Equal(t, 0.0, Similarity("yes no the", "btc"))
	assert.InDelta(t, 2.0/4.0, Similarity("btc above 100k", "btc above 90k"), 1e-9)
	assert.Equal(t, 0.0, Similarity("", ""))
}
