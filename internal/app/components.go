package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/binarymm/internal/arbitrage"
	"github.com/alanyoungcy/binarymm/internal/config"
	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/feed"
	"github.com/alanyoungcy/binarymm/internal/inventory"
	"github.com/alanyoungcy/binarymm/internal/marketmaker"
	"github.com/alanyoungcy/binarymm/internal/pricing"
	"github.com/alanyoungcy/binarymm/internal/risk"
	"github.com/alanyoungcy/binarymm/internal/spread"
	"github.com/alanyoungcy/binarymm/internal/venue"
)

// components are the in-process building blocks shared by the modes.
type components struct {
	pricer    *pricing.Pricer
	vol       *pricing.VolatilityEstimator
	spreads   *spread.Calculator
	inventory *inventory.Manager
	risk      *risk.Manager
	strategy  *marketmaker.Strategy
	exec      *marketmaker.Execution
}

func pricingConfig(c config.PricingConfig) pricing.Config {
	return pricing.Config{
		RiskFreeRate:  c.RiskFreeRate,
		MinVolatility: c.MinVolatility,
		FeeRate:       c.FeeRate,
		PriceFloor:    c.PriceFloor,
		PriceCeil:     c.PriceCeil,
	}
}

func volatilityConfig(c config.VolatilityConfig) pricing.VolatilityConfig {
	return pricing.VolatilityConfig{
		Window:         c.Window,
		PeriodsPerYear: c.PeriodsPerYear,
		Default:        c.Default,
	}
}

// executionConfig maps the execution section. maxSize is the risk size cap,
// so no decision is sized beyond what admission accepts.
func executionConfig(c config.ExecutionConfig, maxSize float64) (marketmaker.ExecutionConfig, error) {
	style, err := marketmaker.ParseStyle(c.Style)
	if err != nil {
		return marketmaker.ExecutionConfig{}, err
	}
	return marketmaker.ExecutionConfig{
		Style:                   style,
		MaxPositionUSD:          c.MaxPositionUSD,
		MaxSize:                 maxSize,
		MinEdge:                 c.MinEdge,
		TakerCost:               c.TakerCost,
		TakerSlippageBps:        c.TakerSlippageBps,
		ExpiryBuffer:            c.ExpiryBuffer.Duration,
		MaxEntryPrice:           c.MaxEntryPrice,
		HybridTakerEdge:         c.HybridTakerEdge,
		HybridTakerMaxLiquidity: c.HybridTakerMaxLiquidity,
		HybridMakerEdge:         c.HybridMakerEdge,
		HybridMakerMinLiquidity: c.HybridMakerMinLiquidity,
	}, nil
}

func riskConfig(c config.RiskConfig) risk.Config {
	return risk.Config{
		MaxPositionSize:     c.MaxPositionSize,
		MaxDailyLoss:        c.MaxDailyLoss,
		MaxDrawdown:         c.MaxDrawdown,
		StopLossPct:         c.StopLossPct,
		TakeProfitPct:       c.TakeProfitPct,
		TrailingStopPct:     c.TrailingStopPct,
		TrailingActivation:  c.TrailingActivation,
		BreakerThreshold:    c.BreakerThreshold,
		BreakerCooldown:     c.BreakerCooldown.Duration,
		VolatilityThreshold: c.VolatilityThreshold,
		VolatilityPause:     c.VolatilityPause.Duration,
		CancelCooldown:      c.CancelCooldown.Duration,
		TradeCooldown:       c.TradeCooldown.Duration,
		MaxSlippageBps:      c.MaxSlippageBps,
		AlertLogSize:        c.AlertLogSize,
	}
}

func limitConfig(c config.LimitsConfig) risk.LimitConfig {
	return risk.LimitConfig{
		MaxSingleTradeUSD:     c.MaxSingleTradeUSD,
		MaxDailyTrades:        c.MaxDailyTrades,
		MaxDailyVolumeUSD:     c.MaxDailyVolumeUSD,
		MaxTradesPerMinute:    c.MaxTradesPerMinute,
		UnusualSizeMultiplier: c.UnusualSizeMultiplier,
		LargeTradeUSD:         c.LargeTradeUSD,
		BankrollUSD:           c.BankrollUSD,
		OutflowWarnPct:        c.OutflowWarnPct,
	}
}

func arbitrageConfig(c config.ArbitrageConfig) arbitrage.Config {
	return arbitrage.Config{
		MinProfit:      c.MinProfit,
		MinSimilarity:  c.MinSimilarity,
		TransferCost:   c.TransferCost,
		SlippageBps:    c.SlippageBps,
		FeeBps:         c.FeeBps,
		MaxPositionUSD: c.MaxPositionUSD,
		TopN:           c.TopN,
		MaxMarkets:     c.MaxMarkets,
		Interval:       c.Interval.Duration,
	}
}

// arbExecutorConfig splits the scanner's position notional across both
// legs, each capped at the risk size limit.
func arbExecutorConfig(c config.ArbitrageConfig, maxShares float64) arbitrage.ExecutorConfig {
	return arbitrage.ExecutorConfig{
		SizeUSD:       c.MaxPositionUSD,
		MaxShares:     maxShares,
		MinConfidence: c.MinConfidence,
	}
}

// markets converts the configured markets for the venue poller.
func markets(cfg []config.MarketConfig) ([]venue.Market, error) {
	out := make([]venue.Market, 0, len(cfg))
	for _, m := range cfg {
		v, err := domain.ParseVenue(m.Venue)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", m.ID, err)
		}
		out = append(out, venue.Market{
			ID:          m.ID,
			Venue:       v,
			ExternalID:  m.ExternalID,
			Question:    m.Question,
			Symbol:      m.Symbol,
			StrikePrice: m.StrikePrice,
			Expiry:      m.Expiry,
		})
	}
	return out, nil
}

// buildComponents constructs the pricing, spread, inventory, risk and
// strategy layers. onAlert receives every risk alert and may be nil.
func buildComponents(cfg *config.Config, deps *Dependencies, onAlert func(domain.Alert), logger *slog.Logger) (*components, error) {
	execCfg, err := executionConfig(cfg.Execution, cfg.Risk.MaxPositionSize)
	if err != nil {
		return nil, err
	}
	exec, err := marketmaker.NewExecution(execCfg)
	if err != nil {
		return nil, err
	}

	var freq risk.FrequencyLimiter
	if cfg.Limits.UseRedis && deps.TradeCounter != nil {
		freq = deps.TradeCounter
	}
	opts := []risk.Option{risk.WithLimits(risk.NewLimits(limitConfig(cfg.Limits), freq))}
	if onAlert != nil {
		opts = append(opts, risk.WithAlertHandler(onAlert))
	}

	mmCfg := cfg.MarketMaker
	return &components{
		pricer: pricing.NewPricer(pricingConfig(cfg.Pricing)),
		vol:    pricing.NewVolatilityEstimator(volatilityConfig(cfg.Volatility)),
		spreads: spread.NewCalculator(spread.Config{
			BaseSpread:          cfg.Spread.BaseSpread,
			MinSpread:           cfg.Spread.MinSpread,
			MaxSpread:           cfg.Spread.MaxSpread,
			VolatilityWeight:    cfg.Spread.VolatilityWeight,
			LiquidityWeight:     cfg.Spread.LiquidityWeight,
			VolumeWeight:        cfg.Spread.VolumeWeight,
			PressureWeight:      cfg.Spread.PressureWeight,
			DepthWeight:         cfg.Spread.DepthWeight,
			ImbalanceWeight:     cfg.Spread.ImbalanceWeight,
			AdjustmentSpeed:     cfg.Spread.AdjustmentSpeed,
			ConfidenceThreshold: cfg.Spread.ConfidenceThreshold,
		}),
		inventory: inventory.NewManager(inventory.Config{
			MaxPosition:         cfg.Inventory.MaxPosition,
			MaxNetExposure:      cfg.Inventory.MaxNetExposure,
			HedgeThreshold:      cfg.Inventory.HedgeThreshold,
			HedgeRatio:          cfg.Inventory.HedgeRatio,
			VolatilityThreshold: cfg.Inventory.VolatilityThreshold,
		}),
		risk: risk.NewManager(riskConfig(cfg.Risk), logger, opts...),
		strategy: marketmaker.NewStrategy(marketmaker.Config{
			Tolerance:        mmCfg.Tolerance,
			MinHedgeSize:     mmCfg.MinHedgeSize,
			MaxHedgeSize:     mmCfg.MaxHedgeSize,
			BuySpreadBps:     mmCfg.BuySpreadBps,
			SellSpreadBps:    mmCfg.SellSpreadBps,
			HedgeSlippageBps: mmCfg.HedgeSlippageBps,
			DynamicOffset:    mmCfg.DynamicOffset,
			BuyOffsetBps:     mmCfg.BuyOffsetBps,
			SellOffsetBps:    mmCfg.SellOffsetBps,
		}),
		exec: exec,
	}, nil
}

// buildFeed constructs the price tracker and its Binance stream, seeding
// bar history over REST. A failed seed is logged; live bars fill in.
func buildFeed(ctx context.Context, cfg config.FeedConfig, cache domain.PriceCache, logger *slog.Logger) (*feed.Tracker, *feed.BinanceStream) {
	rest := feed.NewRESTClient(cfg.RESTURL, cfg.FetchTimeout.Duration)
	tracker := feed.NewTracker(feed.TrackerConfig{
		HistorySize:   cfg.HistorySize,
		StaleAfter:    cfg.StaleAfter.Duration,
		FetchTimeout:  cfg.FetchTimeout.Duration,
		FlushInterval: cfg.FlushInterval.Duration,
	}, rest, cache, logger)

	if err := tracker.Seed(ctx, rest, cfg.Symbols, cfg.KlineInterval); err != nil {
		logger.WarnContext(ctx, "bar history seed failed, volatility starts from defaults",
			slog.String("error", err.Error()),
		)
	}

	stream := feed.NewBinanceStream(feed.BinanceConfig{
		WSURL:          cfg.WSURL,
		Symbols:        cfg.Symbols,
		KlineInterval:  cfg.KlineInterval,
		Ticker:         cfg.Ticker,
		ReconnectDelay: cfg.ReconnectDelay.Duration,
	}, logger)
	stream.OnTick(tracker.OnTick)
	stream.OnKline(tracker.OnKline)
	return tracker, stream
}

// buildPoller constructs the venue poller for the configured markets.
func buildPoller(cfg *config.Config, sink venue.SnapshotSink, logger *slog.Logger) (*venue.Poller, []venue.Market, error) {
	ms, err := markets(cfg.Markets)
	if err != nil {
		return nil, nil, err
	}
	listers, err := venue.Listers(ms, venue.Endpoints{
		GammaURL:  cfg.Venues.GammaURL,
		KalshiURL: cfg.Venues.KalshiURL,
		Timeout:   cfg.Venues.PollTimeout.Duration,
	})
	if err != nil {
		return nil, nil, err
	}
	p := venue.NewPoller(venue.PollerConfig{
		Interval:    cfg.Venues.PollInterval.Duration,
		Timeout:     cfg.Venues.PollTimeout.Duration,
		Concurrency: cfg.Venues.Concurrency,
	}, ms, listers, sink, logger)
	return p, ms, nil
}

// busTarget routes bus events: pushed snapshots go through the poller so
// they are completed from configuration and recorded for the scanner, and
// fills go straight to the engine. engine is nil in scan mode, where fills
// are ignored.
type busTarget struct {
	poller *venue.Poller
	engine *marketmaker.Engine
}

func (t busTarget) HandleSnapshot(ctx context.Context, snap domain.MarketSnapshot) error {
	return t.poller.HandleSnapshot(ctx, snap)
}

func (t busTarget) HandleFill(ctx context.Context, f domain.Fill) error {
	if t.engine == nil {
		return nil
	}
	return t.engine.HandleFill(ctx, f)
}

var _ feed.EngineInput = busTarget{}

var (
	_ arbitrage.Gate = (*risk.Manager)(nil)
	_ arbitrage.Sink = (*marketmaker.Publisher)(nil)
)
