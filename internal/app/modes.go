package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/binarymm/internal/arbitrage"
	"github.com/alanyoungcy/binarymm/internal/backtest"
	"github.com/alanyoungcy/binarymm/internal/feed"
	"github.com/alanyoungcy/binarymm/internal/marketmaker"
	"github.com/alanyoungcy/binarymm/internal/server"
	"github.com/alanyoungcy/binarymm/internal/server/handler"
	"github.com/alanyoungcy/binarymm/internal/venue"
)

// EngineMode runs the market maker: reference feed, venue poller, per-market
// workers, the arbitrage scanner, the risk watch, alert delivery, the daily
// close-out and the HTTP API.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	return a.runMarketMaker(ctx, deps, false)
}

// MonitorMode runs the same pipeline as EngineMode but never decides:
// positions are marked and risk alerts still fire.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	return a.runMarketMaker(ctx, deps, true)
}

func (a *App) runMarketMaker(ctx context.Context, deps *Dependencies, monitorOnly bool) error {
	a.logger.InfoContext(ctx, "starting market maker",
		slog.Bool("monitor_only", monitorOnly),
		slog.Int("markets", len(a.cfg.Markets)),
		slog.String("execution", a.cfg.Execution.Style),
	)

	g, ctx := errgroup.WithContext(ctx)

	comp, err := buildComponents(a.cfg, deps, deps.Notifier.Handle, a.logger)
	if err != nil {
		return fmt.Errorf("app: build components: %w", err)
	}

	tracker, stream := buildFeed(ctx, a.cfg.Feed, deps.PriceCache, a.logger)
	g.Go(func() error { return stream.Run(ctx) })
	g.Go(func() error { return tracker.Run(ctx) })

	sink := marketmaker.NewPublisher(deps.SignalBus, deps.DecisionJournal)
	engine := marketmaker.NewEngine(marketmaker.EngineConfig{
		Strategy:    comp.strategy,
		Execution:   comp.exec,
		Pricer:      comp.pricer,
		Volatility:  comp.vol,
		Spreads:     comp.spreads,
		Inventory:   comp.inventory,
		Risk:        comp.risk,
		Refs:        tracker,
		Sink:        sink,
		Logger:      a.logger,
		FillBuffer:  a.cfg.MarketMaker.FillBuffer,
		MonitorOnly: monitorOnly,
	})

	poller, ms, err := buildPoller(a.cfg, engine, a.logger)
	if err != nil {
		return fmt.Errorf("app: build poller: %w", err)
	}
	for _, m := range ms {
		engine.Register(m.ID)
	}

	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return poller.Run(ctx) })
	g.Go(func() error { return deps.Notifier.Run(ctx) })
	g.Go(func() error {
		return riskWatch(ctx, comp.risk, poller, a.cfg.Risk.CheckInterval.Duration)
	})

	if deps.SignalBus != nil {
		feeder := feed.NewBusFeeder(deps.SignalBus, busTarget{poller: poller, engine: engine}, a.logger)
		g.Go(func() error { return feeder.Run(ctx) })
	} else {
		a.logger.WarnContext(ctx, "redis disabled: fills and pushed snapshots will not be received")
	}

	var opps handler.OpportunitySource
	daily := &DailyJob{
		Risk:      comp.risk,
		Journal:   deps.SnapshotJournal,
		Archiver:  deps.Reports,
		Positions: comp.inventory,
		Notifier:  deps.Notifier,
		Summary:   a.cfg.Notify.DailySummary,
		Logger:    a.logger.With(slog.String("component", "daily")),
	}
	if a.cfg.Arbitrage.Enabled {
		var exec *arbitrage.Executor
		if a.cfg.Arbitrage.AutoExecute && !monitorOnly {
			exec = arbitrage.NewExecutor(arbExecutorConfig(a.cfg.Arbitrage, a.cfg.Risk.MaxPositionSize), comp.risk, sink, a.logger)
		}
		runner := a.newArbRunner(deps, poller, exec)
		g.Go(func() error { return runner.Run(ctx) })
		opps = runner
		daily.Opps = runner
	}
	g.Go(func() error { return daily.Run(ctx) })

	if a.cfg.Server.Enabled {
		srv := a.newServer(deps, server.Handlers{
			Risk:      handler.NewRiskHandler(a.cfg.Mode, comp.risk, comp.inventory, a.logger),
			Portfolio: handler.NewPortfolioHandler(comp.inventory, comp.risk),
			Market:    handler.NewMarketHandler(opps, comp.spreads, engine),
		})
		g.Go(func() error { return srv.Run(ctx) })
	}

	return g.Wait()
}

// ScanMode polls every venue and runs the arbitrage scanner without the
// market maker.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode", slog.Int("markets", len(a.cfg.Markets)))

	g, ctx := errgroup.WithContext(ctx)

	poller, _, err := buildPoller(a.cfg, nil, a.logger)
	if err != nil {
		return fmt.Errorf("app: build poller: %w", err)
	}
	runner := a.newArbRunner(deps, poller, nil)

	g.Go(func() error { return poller.Run(ctx) })
	g.Go(func() error { return runner.Run(ctx) })
	if deps.SignalBus != nil {
		feeder := feed.NewBusFeeder(deps.SignalBus, busTarget{poller: poller}, a.logger)
		g.Go(func() error { return feeder.Run(ctx) })
	}

	if a.cfg.Server.Enabled {
		srv := a.newServer(deps, server.Handlers{
			Market: handler.NewMarketHandler(runner, nil, nil),
		})
		g.Go(func() error { return srv.Run(ctx) })
	}

	return g.Wait()
}

// BacktestMode replays a CSV of bars through the pricer and execution
// policy and writes the result as JSON to stdout.
func (a *App) BacktestMode(ctx context.Context, _ *Dependencies) error {
	bt := a.cfg.Backtest
	mc, ok := a.cfg.Market(bt.MarketID)
	if !ok {
		return fmt.Errorf("app: backtest market %q is not configured", bt.MarketID)
	}
	a.logger.InfoContext(ctx, "starting backtest",
		slog.String("market_id", mc.ID),
		slog.String("data_file", bt.DataFile),
	)

	bars, err := backtest.LoadFile(bt.DataFile)
	if err != nil {
		return err
	}
	comp, err := buildComponents(a.cfg, &Dependencies{}, nil, a.logger)
	if err != nil {
		return fmt.Errorf("app: build components: %w", err)
	}
	runner, err := backtest.NewRunner(backtest.Config{
		InitialCapital: bt.InitialCapital,
		Commission:     bt.Commission,
		StakeFraction:  bt.StakeFraction,
		MinStake:       bt.MinStake,
		Warmup:         bt.Warmup,
	}, comp.pricer, comp.vol, comp.exec, a.logger)
	if err != nil {
		return err
	}

	res, err := runner.Run(backtest.Market{
		ID:          mc.ID,
		Symbol:      mc.Symbol,
		StrikePrice: mc.StrikePrice,
		Expiry:      mc.Expiry,
	}, bars)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "backtest finished",
		slog.Int("bars", len(bars)),
		slog.Int("trades", len(res.Trades)),
		slog.Float64("total_return", res.TotalReturn),
		slog.Float64("max_drawdown", res.MaxDrawdown),
		slog.Bool("settled", res.Settled),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func (a *App) newArbRunner(deps *Dependencies, src arbitrage.SnapshotSource, exec *arbitrage.Executor) *arbitrage.Runner {
	return arbitrage.NewRunner(arbitrage.RunnerConfig{
		Scanner:  arbitrage.NewScanner(arbitrageConfig(a.cfg.Arbitrage)),
		Source:   src,
		Bus:      deps.SignalBus,
		Journal:  deps.OpportunityJournal,
		Locks:    deps.LockManager,
		Executor: exec,
		Logger:   a.logger,
	})
}

func (a *App) newServer(deps *Dependencies, h server.Handlers) *server.Server {
	h.Health = handler.NewHealthHandler(deps.Checks, a.logger)
	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		CORSMethods: a.cfg.Server.CORSMethods,
		CORSMaxAge:  a.cfg.Server.CORSMaxAge.Duration,
		PublicPaths: a.cfg.Server.PublicPaths,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, h, deps.RateLimiter, a.logger)
}

var (
	_ arbitrage.SnapshotSource = (*venue.Poller)(nil)
	_ SnapshotSource           = (*venue.Poller)(nil)
)
