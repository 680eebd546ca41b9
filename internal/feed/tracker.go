package feed

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/metrics"
)

// PriceFetcher reads one price on demand.
type PriceFetcher interface {
	LatestPrice(ctx context.Context, symbol string) (domain.PriceTick, error)
}

// KlineFetcher reads historical bars.
type KlineFetcher interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error)
}

// TrackerConfig controls history depth and fallback timing.
type TrackerConfig struct {
	HistorySize   int
	StaleAfter    time.Duration
	FetchTimeout  time.Duration
	FlushInterval time.Duration
}

// DefaultTrackerConfig keeps 1000 entries and treats a tick older than 30s
// as stale.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		HistorySize:   1000,
		StaleAfter:    30 * time.Second,
		FetchTimeout:  3 * time.Second,
		FlushInterval: time.Second,
	}
}

// Tracker holds the latest tick and bounded history per symbol. It is the
// engine's source of underlying prices. When the stream goes quiet, reads
// fall back to REST, then to the shared price cache, then to the last
// value seen.
type Tracker struct {
	cfg    TrackerConfig
	rest   PriceFetcher
	cache  domain.PriceCache
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	ticks map[string]domain.PriceTick
	bars  map[string][]domain.Kline
	dirty map[string]struct{}
}

// NewTracker creates a tracker. rest and cache may be nil.
func NewTracker(cfg TrackerConfig, rest PriceFetcher, cache domain.PriceCache, logger *slog.Logger) *Tracker {
	def := DefaultTrackerConfig()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &Tracker{
		cfg:    cfg,
		rest:   rest,
		cache:  cache,
		logger: logger.With(slog.String("component", "price_tracker")),
		now:    time.Now,
		ticks:  make(map[string]domain.PriceTick),
		bars:   make(map[string][]domain.Kline),
		dirty:  make(map[string]struct{}),
	}
}

func normalize(symbol string) string { return strings.ToUpper(strings.TrimSpace(symbol)) }

// OnTick records a tick. It matches TickHandler.
func (t *Tracker) OnTick(tick domain.PriceTick) {
	if tick.Price <= 0 {
		return
	}
	sym := normalize(tick.Symbol)
	tick.Symbol = sym
	if tick.Timestamp.IsZero() {
		tick.Timestamp = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks[sym] = tick
	t.dirty[sym] = struct{}{}
}

// OnKline records a bar. An update for the bar already at the tail replaces
// it, so an in-progress bar never counts twice.
func (t *Tracker) OnKline(k domain.Kline) {
	if k.Close <= 0 {
		return
	}
	sym := normalize(k.Symbol)
	k.Symbol = sym

	t.mu.Lock()
	defer t.mu.Unlock()
	bars := t.bars[sym]
	if n := len(bars); n > 0 && bars[n-1].OpenTime.Equal(k.OpenTime) {
		bars[n-1] = k
		return
	}
	if n := len(bars); n > 0 && k.OpenTime.Before(bars[n-1].OpenTime) {
		return
	}
	t.bars[sym] = appendBounded(bars, k, t.cfg.HistorySize)
}

// Seed loads historical bars so volatility is available before the first
// live bar closes.
func (t *Tracker) Seed(ctx context.Context, src KlineFetcher, symbols []string, interval string) error {
	for _, s := range symbols {
		bars, err := src.Klines(ctx, s, interval, t.cfg.HistorySize)
		if err != nil {
			return err
		}
		for _, b := range bars {
			t.OnKline(b)
		}
		if n := len(bars); n > 0 {
			last := bars[n-1]
			t.OnTick(domain.PriceTick{Symbol: s, Price: last.Close, Volume: last.Volume, Timestamp: last.CloseTime})
		}
		t.logger.InfoContext(ctx, "seeded bar history",
			slog.String("symbol", normalize(s)),
			slog.Int("bars", len(bars)),
		)
	}
	return nil
}

// Latest returns the freshest price available for symbol.
func (t *Tracker) Latest(symbol string) (domain.PriceTick, bool) {
	sym := normalize(symbol)

	t.mu.RLock()
	tick, ok := t.ticks[sym]
	t.mu.RUnlock()
	if ok && t.now().Sub(tick.Timestamp) <= t.cfg.StaleAfter {
		return tick, true
	}

	if t.rest != nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.FetchTimeout)
		fresh, err := t.rest.LatestPrice(ctx, sym)
		cancel()
		if err == nil {
			metrics.FeedFallbacks.WithLabelValues("rest").Inc()
			t.OnTick(fresh)
			return t.tick(sym)
		}
		t.logger.Warn("rest price fallback failed", slog.String("symbol", sym), slog.String("error", err.Error()))
	}

	if t.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.FetchTimeout)
		price, ts, err := t.cache.GetPrice(ctx, sym)
		cancel()
		if err == nil && price > 0 && ts.After(tick.Timestamp) {
			metrics.FeedFallbacks.WithLabelValues("cache").Inc()
			return domain.PriceTick{Symbol: sym, Price: price, Timestamp: ts}, true
		}
	}

	if ok {
		metrics.FeedFallbacks.WithLabelValues("last_known").Inc()
	}
	return tick, ok
}

func (t *Tracker) tick(sym string) (domain.PriceTick, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tick, ok := t.ticks[sym]
	return tick, ok
}

// Closes returns bar closes, oldest first, or nil with fewer than two
// bars. Ticks arrive at irregular intervals and are never mixed in.
func (t *Tracker) Closes(symbol string) []float64 {
	sym := normalize(symbol)
	t.mu.RLock()
	defer t.mu.RUnlock()

	bars := t.bars[sym]
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Ranges returns bar highs and lows, oldest first.
func (t *Tracker) Ranges(symbol string) (highs, lows []float64) {
	sym := normalize(symbol)
	t.mu.RLock()
	defer t.mu.RUnlock()

	bars := t.bars[sym]
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}
	return highs, lows
}

// Symbols lists every symbol with a recorded tick.
func (t *Tracker) Symbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.ticks))
	for s := range t.ticks {
		out = append(out, s)
	}
	return out
}

// Run writes changed ticks through to the price cache every flush
// interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	if t.cache == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Flush(ctx)
		}
	}
}

// Flush writes every tick changed since the last flush to the cache.
func (t *Tracker) Flush(ctx context.Context) {
	if t.cache == nil {
		return
	}
	t.mu.Lock()
	pending := make([]domain.PriceTick, 0, len(t.dirty))
	for sym := range t.dirty {
		pending = append(pending, t.ticks[sym])
	}
	clear(t.dirty)
	t.mu.Unlock()

	for _, tick := range pending {
		wctx, cancel := context.WithTimeout(ctx, t.cfg.FetchTimeout)
		err := t.cache.SetPrice(wctx, tick.Symbol, tick.Price, tick.Timestamp)
		cancel()
		if err != nil {
			t.logger.WarnContext(ctx, "price cache write failed",
				slog.String("symbol", tick.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = append(s[:0:0], s[len(s)-limit:]...)
	}
	return s
}
