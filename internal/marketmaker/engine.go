package marketmaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/inventory"
	"github.com/alanyoungcy/binarymm/internal/metrics"
	"github.com/alanyoungcy/binarymm/internal/pricing"
	"github.com/alanyoungcy/binarymm/internal/risk"
	"github.com/alanyoungcy/binarymm/internal/spread"
)

// ReferencePrices is the engine's view of the underlying price feed.
type ReferencePrices interface {
	Latest(symbol string) (domain.PriceTick, bool)
	Closes(symbol string) []float64
	Ranges(symbol string) (highs, lows []float64)
}

// EngineConfig wires the engine. Refs may be nil when snapshots carry the
// underlying price themselves.
type EngineConfig struct {
	Strategy    *Strategy
	Execution   *Execution
	Pricer      *pricing.Pricer
	Volatility  *pricing.VolatilityEstimator
	Spreads     *spread.Calculator
	Inventory   *inventory.Manager
	Risk        *risk.Manager
	Refs        ReferencePrices
	Sink        Sink
	Logger      *slog.Logger
	FillBuffer  int
	MonitorOnly bool // mark positions but never decide
}

// Engine runs one worker per market. Snapshots are coalesced so a worker
// always prices the latest one; fills are queued and handled in arrival
// order. Every decision passes the risk gate just before it is emitted.
type Engine struct {
	strategy  *Strategy
	exec      *Execution
	pricer    *pricing.Pricer
	vol       *pricing.VolatilityEstimator
	spreads   *spread.Calculator
	inventory *inventory.Manager
	risk      *risk.Manager
	refs      ReferencePrices
	sink      Sink
	logger    *slog.Logger
	monitor   bool
	fillBuf   int
	now       func() time.Time

	mu          sync.Mutex
	workers     map[string]*worker
	recent      []domain.Decision
	recentLimit int
}

type worker struct {
	marketID string
	snaps    chan domain.MarketSnapshot
	fills    chan domain.Fill

	// owned by the worker goroutine
	last    domain.MarketSnapshot
	hasLast bool
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	buf := cfg.FillBuffer
	if buf <= 0 {
		buf = 64
	}
	return &Engine{
		strategy:    cfg.Strategy,
		exec:        cfg.Execution,
		pricer:      cfg.Pricer,
		vol:         cfg.Volatility,
		spreads:     cfg.Spreads,
		inventory:   cfg.Inventory,
		risk:        cfg.Risk,
		refs:        cfg.Refs,
		sink:        cfg.Sink,
		logger:      cfg.Logger.With(slog.String("component", "market_maker")),
		monitor:     cfg.MonitorOnly,
		fillBuf:     buf,
		now:         time.Now,
		workers:     make(map[string]*worker),
		recentLimit: 500,
	}
}

// Register adds markets to the engine. Call before Run.
func (e *Engine) Register(marketIDs ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range marketIDs {
		if _, ok := e.workers[id]; ok {
			continue
		}
		e.workers[id] = &worker{
			marketID: id,
			snaps:    make(chan domain.MarketSnapshot, 1),
			fills:    make(chan domain.Fill, e.fillBuf),
		}
	}
}

// Markets returns the registered market IDs.
func (e *Engine) Markets() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.workers))
	for id := range e.workers {
		out = append(out, id)
	}
	return out
}

func (e *Engine) lookup(marketID string) (*worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.workers[marketID]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", marketID, domain.ErrNotFound)
	}
	return w, nil
}

// HandleSnapshot queues a snapshot for its market, replacing any snapshot
// the worker has not picked up yet.
func (e *Engine) HandleSnapshot(ctx context.Context, snap domain.MarketSnapshot) error {
	w, err := e.lookup(snap.MarketID)
	if err != nil {
		return err
	}
	for {
		select {
		case w.snaps <- snap:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		select {
		case <-w.snaps:
		default:
		}
	}
}

// HandleFill queues a fill for its market. Fills are never dropped; the
// call blocks while the market's queue is full.
func (e *Engine) HandleFill(ctx context.Context, f domain.Fill) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("fill %s: %w", f.ID, err)
	}
	w, err := e.lookup(f.MarketID)
	if err != nil {
		return err
	}
	select {
	case w.fills <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts one goroutine per registered market and blocks until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	workers := make([]*worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	e.logger.Info("market maker started",
		slog.Int("markets", len(workers)),
		slog.String("execution", string(e.exec.Style())),
		slog.Bool("monitor_only", e.monitor),
	)
	defer e.logger.Info("market maker stopped")

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			return e.runWorker(gctx, w)
		})
	}
	return g.Wait()
}

func (e *Engine) runWorker(ctx context.Context, w *worker) error {
	for {
		// Drain pending fills before pricing the next snapshot so quotes
		// reflect the latest inventory.
		select {
		case f := <-w.fills:
			e.onFill(ctx, w, f)
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-w.fills:
			e.onFill(ctx, w, f)
		case s := <-w.snaps:
			e.onSnapshot(ctx, w, s)
		}
	}
}

func (e *Engine) onSnapshot(ctx context.Context, w *worker, snap domain.MarketSnapshot) {
	w.last, w.hasLast = snap, true
	e.risk.MarkMarket(snap.MarketID, snap.YesPrice)
	e.inventory.MarkPrice(snap.MarketID, snap.YesPrice)
	if e.monitor {
		return
	}
	for _, d := range e.decide(snap) {
		e.emit(ctx, d, false)
	}
}

// decide prices a snapshot and returns the execution policy's decisions.
// Markets without an underlying or strike price cannot be priced and
// produce nothing.
func (e *Engine) decide(snap domain.MarketSnapshot) []domain.Decision {
	var closes, highs, lows []float64
	if e.refs != nil && snap.Symbol != "" {
		if snap.UnderlyingPrice <= 0 {
			if tick, ok := e.refs.Latest(snap.Symbol); ok {
				snap.UnderlyingPrice = tick.Price
			}
		}
		closes = e.refs.Closes(snap.Symbol)
		highs, lows = e.refs.Ranges(snap.Symbol)
	}
	if snap.UnderlyingPrice <= 0 || snap.StrikePrice <= 0 {
		e.logger.Debug("snapshot not priceable", slog.String("market_id", snap.MarketID))
		return nil
	}

	sigma := e.vol.Estimate(closes, highs, lows)
	pr := e.pricer.Analyze(snap, sigma)

	pos, _ := e.inventory.Position(snap.MarketID)
	plan := e.strategy.Analyze(pos.YesAmount, pos.NoAmount)
	quotes := e.strategy.Quotes(pr.Yes.TheoreticalPrice, pr.No.TheoreticalPrice, snap.Book, e.spreadScale(snap, sigma))

	return e.exec.Decide(Input{Snapshot: snap, Pricing: pr, Plan: plan, Quotes: quotes})
}

// spreadScale widens or narrows quotes by the calculator's target spread
// relative to its base, when the calculator is confident enough.
func (e *Engine) spreadScale(snap domain.MarketSnapshot, sigma float64) float64 {
	if e.spreads == nil {
		return 1
	}
	cfg := e.spreads.Config()
	adj := e.spreads.Optimal(snap.MarketID, snap.Book, e.vol.PerPeriod(sigma))
	if !adj.Actionable(cfg.ConfidenceThreshold) || cfg.BaseSpread <= 0 {
		return 1
	}
	return adj.NewSpread / cfg.BaseSpread
}

func (e *Engine) onFill(ctx context.Context, w *worker, f domain.Fill) {
	pos, err := e.inventory.ApplyFill(f)
	if err != nil {
		e.logger.WarnContext(ctx, "inventory rejected fill", slog.String("fill_id", f.ID), slog.String("error", err.Error()))
		return
	}
	if err := e.risk.ApplyFill(f); err != nil {
		e.logger.WarnContext(ctx, "risk rejected fill", slog.String("fill_id", f.ID), slog.String("error", err.Error()))
	}
	if e.monitor {
		return
	}

	h := e.strategy.HedgeFor(f, pos.YesAmount, pos.NoAmount)
	if !h.Needed {
		return
	}
	// Each fill gets one corrective order; past the risk size cap it
	// covers as much of the excess as admission allows.
	size := h.Size
	if limit := e.risk.Config().MaxPositionSize; limit > 0 && size > limit {
		size = limit
	}
	d := domain.Decision{
		MarketID:   f.MarketID,
		Action:     domain.ActionFor(domain.SideBuy, h.Token),
		Token:      h.Token,
		Size:       size,
		LimitPrice: e.strategy.HedgePrice(marketPrice(w, f, h.Token)),
		Reason:     h.Reason,
		Confidence: 1,
		Priority:   domain.PriorityUrgent,
		Source:     "hedge",
	}
	if e.emit(ctx, d, true) {
		metrics.HedgesIssued.Inc()
	}
}

// marketPrice is the last known market price of token: the latest
// snapshot when there is one, otherwise implied by the fill.
func marketPrice(w *worker, f domain.Fill, token domain.Token) float64 {
	if w.hasLast {
		if token == domain.TokenYes {
			return w.last.YesPrice
		}
		return w.last.NoPrice
	}
	if f.Token == token {
		return f.Price
	}
	return 1 - f.Price
}

// emit re-checks admission and hands the decision to the sink. It reports
// whether the decision went out.
func (e *Engine) emit(ctx context.Context, d domain.Decision, hedge bool) bool {
	if !d.Action.Trades() || d.Size <= 0 {
		return false
	}

	var warnings []string
	var err error
	if hedge {
		warnings, err = e.risk.AdmitHedge(ctx, d.Size, d.Price())
	} else {
		warnings, err = e.risk.Admit(ctx, d.Size, d.Price())
	}
	if err != nil {
		metrics.RiskRejections.WithLabelValues(risk.Category(err)).Inc()
		e.logger.InfoContext(ctx, "decision rejected",
			slog.String("market_id", d.MarketID),
			slog.String("action", string(d.Action)),
			slog.String("reason", err.Error()),
		)
		return false
	}
	for _, msg := range warnings {
		e.risk.RaiseWarning(d.MarketID, msg, map[string]any{"action": string(d.Action), "size": d.Size})
	}

	d.ID = uuid.NewString()
	d.CreatedAt = e.now()
	if err := e.sink.Emit(ctx, d); err != nil {
		e.logger.WarnContext(ctx, "emit decision failed",
			slog.String("decision_id", d.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	metrics.DecisionsEmitted.WithLabelValues(d.Source, string(d.Action)).Inc()
	e.remember(d)
	e.logger.DebugContext(ctx, "decision emitted",
		slog.String("decision_id", d.ID),
		slog.String("market_id", d.MarketID),
		slog.String("action", string(d.Action)),
		slog.Float64("size", d.Size),
		slog.String("priority", d.Priority.String()),
	)
	return true
}

func (e *Engine) remember(d domain.Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = append(e.recent, d)
	if overflow := len(e.recent) - e.recentLimit; overflow > 0 {
		e.recent = append([]domain.Decision(nil), e.recent[overflow:]...)
	}
}

// RecentDecisions returns up to limit emitted decisions, newest first.
func (e *Engine) RecentDecisions(limit int) []domain.Decision {
	if limit <= 0 {
		limit = 20
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.recent)
	if limit > n {
		limit = n
	}
	out := make([]domain.Decision, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.recent[i])
	}
	return out
}
