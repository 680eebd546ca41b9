package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

type fakeFetcher struct {
	tick  domain.PriceTick
	err   error
	calls int
	bars  []domain.Kline
}

func (f *fakeFetcher) LatestPrice(context.Context, string) (domain.PriceTick, error) {
	f.calls++
	return f.tick, f.err
}

func (f *fakeFetcher) Klines(context.Context, string, string, int) ([]domain.Kline, error) {
	return f.bars, f.err
}

type fakePriceCache struct {
	mu     sync.Mutex
	price  float64
	ts     time.Time
	err    error
	writes map[string]float64
}

func (c *fakePriceCache) SetPrice(_ context.Context, symbol string, price float64, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writes == nil {
		c.writes = make(map[string]float64)
	}
	c.writes[symbol] = price
	return nil
}

func (c *fakePriceCache) GetPrice(context.Context, string) (float64, time.Time, error) {
	return c.price, c.ts, c.err
}

func (c *fakePriceCache) GetPrices(context.Context, []string) (map[string]float64, error) {
	return nil, nil
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestTracker(rest PriceFetcher, cache domain.PriceCache) (*Tracker, *time.Time) {
	now := t0
	tr := NewTracker(TrackerConfig{HistorySize: 3, StaleAfter: 10 * time.Second}, rest, cache, discardLogger())
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestTrackerServesFreshTick(t *testing.T) {
	rest := &fakeFetcher{}
	tr, _ := newTestTracker(rest, nil)
	tr.OnTick(domain.PriceTick{Symbol: "btcusdt", Price: 100, Timestamp: t0})

	tick, ok := tr.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, tick.Price)
	assert.Equal(t, 0, rest.calls)
}

func TestTrackerFallsBackToREST(t *testing.T) {
	rest := &fakeFetcher{tick: domain.PriceTick{Symbol: "BTCUSDT", Price: 101, Timestamp: t0.Add(time.Minute)}}
	tr, now := newTestTracker(rest, nil)
	tr.OnTick(domain.PriceTick{Symbol: "BTCUSDT", Price: 100, Timestamp: t0})
	*now = t0.Add(time.Minute)

	tick, ok := tr.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 101.0, tick.Price)
	assert.Equal(t, 1, rest.calls)

	tick, ok = tr.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 101.0, tick.Price)
	assert.Equal(t, 1, rest.calls, "fallback result is fresh")
}

func TestTrackerFallsBackToCacheThenLastKnown(t *testing.T) {
	rest := &fakeFetcher{err: errors.New("timeout")}
	cache := &fakePriceCache{price: 102, ts: t0.Add(30 * time.Second)}
	tr, now := newTestTracker(rest, cache)
	tr.OnTick(domain.PriceTick{Symbol: "BTCUSDT", Price: 100, Timestamp: t0})
	*now = t0.Add(time.Minute)

	tick, ok := tr.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 102.0, tick.Price)

	cache.err = domain.ErrNotFound
	tick, ok = tr.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, tick.Price)
}

func TestTrackerUnknownSymbol(t *testing.T) {
	tr, _ := newTestTracker(nil, nil)
	_, ok := tr.Latest("DOGEUSDT")
	assert.False(t, ok)
	assert.Empty(t, tr.Closes("DOGEUSDT"))
}

func TestTrackerHistoryIsBounded(t *testing.T) {
	tr, _ := newTestTracker(nil, nil)
	for i := 1; i <= 5; i++ {
		tr.OnKline(bar(i, float64(i)+1, float64(i)-1, float64(i)))
	}
	assert.Equal(t, []float64{3, 4, 5}, tr.Closes("BTCUSDT"))
}

func TestTrackerClosesIgnoreTicks(t *testing.T) {
	tr, _ := newTestTracker(nil, nil)
	for i := 1; i <= 5; i++ {
		tr.OnTick(domain.PriceTick{Symbol: "BTCUSDT", Price: float64(i), Timestamp: t0})
	}
	assert.Nil(t, tr.Closes("BTCUSDT"))
	tick, ok := tr.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 5.0, tick.Price)
}

func bar(minute int, high, low, closeP float64) domain.Kline {
	open := t0.Add(time.Duration(minute) * time.Minute)
	return domain.Kline{Symbol: "BTCUSDT", Interval: "1m", High: high, Low: low, Close: closeP, OpenTime: open, CloseTime: open.Add(time.Minute - time.Millisecond)}
}

func TestTrackerKlines(t *testing.T) {
	tr, _ := newTestTracker(nil, nil)
	tr.OnTick(domain.PriceTick{Symbol: "BTCUSDT", Price: 7, Timestamp: t0})
	tr.OnKline(bar(0, 11, 9, 10))
	assert.Nil(t, tr.Closes("BTCUSDT"), "one bar is not enough")

	tr.OnKline(bar(1, 12, 10, 11))
	tr.OnKline(bar(1, 13, 10, 12))
	tr.OnKline(bar(0, 99, 1, 50))
	assert.Equal(t, []float64{10, 12}, tr.Closes("BTCUSDT"))

	tr.OnKline(bar(2, 14, 11, 13))
	tr.OnKline(bar(3, 15, 12, 14))
	highs, lows := tr.Ranges("BTCUSDT")
	assert.Equal(t, []float64{13, 14, 15}, highs)
	assert.Equal(t, []float64{10, 11, 12}, lows)
}

func TestTrackerSeed(t *testing.T) {
	src := &fakeFetcher{bars: []domain.Kline{bar(0, 11, 9, 10), bar(1, 12, 10, 11)}}
	tr, now := newTestTracker(nil, nil)
	*now = t0.Add(2 * time.Minute)

	require.NoError(t, tr.Seed(context.Background(), src, []string{"btcusdt"}, "1m"))
	assert.Equal(t, []float64{10, 11}, tr.Closes("BTCUSDT"))
	tick, ok := tr.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 11.0, tick.Price)

	src.err = errors.New("down")
	assert.Error(t, tr.Seed(context.Background(), src, []string{"ETHUSDT"}, "1m"))
}

func TestTrackerFlushWritesChangedTicksOnce(t *testing.T) {
	cache := &fakePriceCache{}
	tr, _ := newTestTracker(nil, cache)
	tr.OnTick(domain.PriceTick{Symbol: "BTCUSDT", Price: 100, Timestamp: t0})
	tr.OnTick(domain.PriceTick{Symbol: "ETHUSDT", Price: 5, Timestamp: t0})

	tr.Flush(context.Background())
	assert.Equal(t, map[string]float64{"BTCUSDT": 100, "ETHUSDT": 5}, cache.writes)

	cache.writes = nil
	tr.Flush(context.Background())
	assert.Nil(t, cache.writes)
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, tr.Symbols())
}
