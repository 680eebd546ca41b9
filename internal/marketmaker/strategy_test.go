package marketmaker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

func TestAnalyzeStates(t *testing.T) {
	s := NewStrategy(DefaultConfig())

	tests := []struct {
		name      string
		yes, no   float64
		state     State
		heavy     domain.Token
		sells     bool
		sellSize  float64
		balanced  bool
		deviation float64
	}{
		{name: "flat", yes: 0, no: 0, state: StateEmpty, balanced: true},
		{name: "balanced below minimum", yes: 3, no: 3, state: StateEmpty, balanced: true},
		{name: "dual track", yes: 50, no: 50, state: StateDualTrack, sells: true, sellSize: 10, balanced: true},
		{name: "yes heavy", yes: 60, no: 40, state: StateHedged, heavy: domain.TokenYes, sells: true, sellSize: 10, deviation: 0.4},
		{name: "no heavy small", yes: 0, no: 6, state: StateHedged, heavy: domain.TokenNo, sells: true, sellSize: 3, deviation: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := s.Analyze(tt.yes, tt.no)
			assert.Equal(t, tt.state, p.State)
			assert.Equal(t, tt.heavy, p.Heavy)
			assert.True(t, p.PlaceBuys)
			assert.Equal(t, 10.0, p.BuySize)
			assert.Equal(t, tt.sells, p.PlaceSells)
			assert.Equal(t, tt.sellSize, p.SellSize)
			assert.Equal(t, tt.balanced, p.Balanced)
			assert.InDelta(t, tt.deviation, p.Deviation, 1e-9)
		})
	}
}

func TestHedgeFor(t *testing.T) {
	s := NewStrategy(DefaultConfig())
	fill := domain.Fill{MarketID: "m1", Side: domain.SideBuy, Token: domain.TokenYes, Size: 20, Price: 0.5}

	h := s.HedgeFor(fill, 70, 50)
	assert.True(t, h.Needed)
	assert.Equal(t, domain.TokenNo, h.Token)
	assert.Equal(t, 20.0, h.Size)
	assert.Contains(t, h.Reason, "buying 20 no")

	h = s.HedgeFor(fill, 10, 40)
	assert.True(t, h.Needed)
	assert.Equal(t, domain.TokenYes, h.Token)
	assert.Equal(t, 30.0, h.Size)

	assert.False(t, s.HedgeFor(fill, 51, 50).Needed, "inside tolerance")
	assert.False(t, s.HedgeFor(fill, 5, 0).Needed, "below minimum size")
}

func TestHedgeForCapsSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHedgeSize = 5
	s := NewStrategy(cfg)
	h := s.HedgeFor(domain.Fill{Side: domain.SideBuy, Token: domain.TokenYes, Size: 100}, 100, 0)
	assert.Equal(t, 5.0, h.Size)
}

func TestHedgePrice(t *testing.T) {
	s := NewStrategy(DefaultConfig())
	assert.InDelta(t, 0.5125, s.HedgePrice(0.5), 1e-12)
	assert.Equal(t, 0.99, s.HedgePrice(0.98))
	assert.Equal(t, 0.01, s.HedgePrice(0))
}

func TestQuotesFixedSpread(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DynamicOffset = false
	s := NewStrategy(cfg)

	q := s.Quotes(0.6, 0.4, nil, 1)
	assert.Equal(t, "fixed_spread", q.Source)
	assert.InDelta(t, 0.591, q.YesBid, 1e-9)
	assert.InDelta(t, 0.609, q.YesAsk, 1e-9)
	assert.InDelta(t, 0.394, q.NoBid, 1e-9)
	assert.InDelta(t, 0.406, q.NoAsk, 1e-9)

	wide := s.Quotes(0.6, 0.4, nil, 2)
	assert.Less(t, wide.YesBid, q.YesBid)
	assert.Greater(t, wide.YesAsk, q.YesAsk)

	capped := s.Quotes(0.98, 0.02, nil, 1)
	assert.Equal(t, 0.99, capped.YesAsk)
}

func TestQuotesDynamicOffset(t *testing.T) {
	s := NewStrategy(DefaultConfig())
	book := &domain.Orderbook{
		Bids: []domain.PriceLevel{{Price: 0.50, Size: 100}},
		Asks: []domain.PriceLevel{{Price: 0.52, Size: 100}},
	}

	q := s.Quotes(0.6, 0.4, book, 1)
	assert.Equal(t, "dynamic_offset", q.Source)
	assert.InDelta(t, 0.495, q.YesBid, 1e-9)
	assert.InDelta(t, 0.5252, q.YesAsk, 1e-9)
	assert.InDelta(t, 0.4752, q.NoBid, 1e-9)
	assert.InDelta(t, 0.505, q.NoAsk, 1e-9)
}

func TestQuotesDynamicOffsetWithoutBook(t *testing.T) {
	s := NewStrategy(DefaultConfig())
	q := s.Quotes(0.6, 0.4, nil, 1)
	assert.InDelta(t, 0.594, q.YesBid, 1e-9)
	assert.InDelta(t, 0.6121, q.YesAsk, 1e-9)
	assert.InDelta(t, 0.396, q.NoBid, 1e-9)
	assert.InDelta(t, 0.408, q.NoAsk, 1e-9)
}

func TestDeviation(t *testing.T) {
	assert.Equal(t, 0.0, Deviation(0, 0))
	assert.InDelta(t, 0.4, Deviation(60, 40), 1e-12)
	assert.InDelta(t, 2.0, Deviation(10, 0), 1e-12)
}
