package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/metrics"
	"github.com/alanyoungcy/binarymm/internal/risk"
)

const decisionSource = "arbitrage"

// Gate admits a trade of size shares at price. The risk manager satisfies
// it.
type Gate interface {
	Admit(ctx context.Context, size, price float64) ([]string, error)
	RaiseWarning(marketID, msg string, details map[string]any)
}

// Sink receives the admitted legs.
type Sink interface {
	Emit(ctx context.Context, d domain.Decision) error
}

// ExecutorConfig sizes and filters the opportunities turned into orders.
type ExecutorConfig struct {
	SizeUSD       float64 // notional across both legs
	MaxShares     float64 // per leg
	MinConfidence float64
}

// Executor turns an opportunity into paired buy decisions. Both legs pass
// the gate before either is emitted.
type Executor struct {
	cfg    ExecutorConfig
	gate   Gate
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig, gate Gate, sink Sink, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		gate:   gate,
		sink:   sink,
		logger: logger.With(slog.String("component", "arb_executor")),
		now:    time.Now,
	}
}

// Legs returns the buy decisions that capture o. Sell-both opportunities
// need inventory in both tokens and produce no legs.
func (x *Executor) Legs(o domain.ArbitrageOpportunity) []domain.Decision {
	var a, b domain.Decision
	switch {
	case o.Type == domain.ArbIntraVenue && o.Action == ActionBuyBoth:
		a = leg(o.MarketA.MarketID, domain.TokenYes, o.MarketA.YesPrice)
		b = leg(o.MarketA.MarketID, domain.TokenNo, o.MarketA.NoPrice)
	case o.Type == domain.ArbCrossVenue && o.MarketB != nil:
		cheap, dear := o.MarketA, *o.MarketB
		if cheap.YesPrice > dear.YesPrice {
			cheap, dear = dear, cheap
		}
		a = leg(cheap.MarketID, domain.TokenYes, cheap.YesPrice)
		b = leg(dear.MarketID, domain.TokenNo, 1-dear.YesPrice)
	default:
		return nil
	}

	pair := a.LimitPrice + b.LimitPrice
	if a.LimitPrice <= 0 || b.LimitPrice <= 0 || pair <= 0 {
		return nil
	}
	size := x.cfg.SizeUSD / pair
	if x.cfg.MaxShares > 0 {
		size = math.Min(size, x.cfg.MaxShares)
	}
	size = math.Floor(size*100) / 100
	if size <= 0 {
		return nil
	}

	reason := fmt.Sprintf("%s net %.2f%%", o.Action, o.ProfitPercent*100)
	legs := []domain.Decision{a, b}
	for i := range legs {
		legs[i].Size = size
		legs[i].Reason = reason
		legs[i].Confidence = o.Confidence
	}
	return legs
}

func leg(marketID string, token domain.Token, price float64) domain.Decision {
	return domain.Decision{
		MarketID:   marketID,
		Action:     domain.ActionFor(domain.SideBuy, token),
		Token:      token,
		LimitPrice: price,
		Priority:   domain.PriorityHigh,
		Source:     decisionSource,
	}
}

// Execute gates and emits the legs of o. It returns the emitted decisions;
// a rejected leg means nothing is emitted.
func (x *Executor) Execute(ctx context.Context, o domain.ArbitrageOpportunity) ([]domain.Decision, error) {
	if o.Confidence < x.cfg.MinConfidence {
		return nil, nil
	}
	legs := x.Legs(o)
	if len(legs) == 0 {
		return nil, nil
	}

	var warnings []string
	for _, d := range legs {
		w, err := x.gate.Admit(ctx, d.Size, d.LimitPrice)
		if err != nil {
			metrics.RiskRejections.WithLabelValues(risk.Category(err)).Inc()
			x.logger.InfoContext(ctx, "arbitrage rejected",
				slog.String("opportunity_id", o.ID),
				slog.String("market_id", d.MarketID),
				slog.String("reason", err.Error()),
			)
			return nil, nil
		}
		warnings = append(warnings, w...)
	}
	for _, msg := range warnings {
		x.gate.RaiseWarning(o.MarketA.MarketID, msg, map[string]any{"opportunity_id": o.ID})
	}

	out := make([]domain.Decision, 0, len(legs))
	for _, d := range legs {
		d.ID = uuid.NewString()
		d.CreatedAt = x.now()
		if err := x.sink.Emit(ctx, d); err != nil {
			return out, fmt.Errorf("arbitrage: emit %s leg of %s: %w", d.Action, o.ID, err)
		}
		metrics.DecisionsEmitted.WithLabelValues(d.Source, string(d.Action)).Inc()
		out = append(out, d)
	}
	x.logger.InfoContext(ctx, "arbitrage executed",
		slog.String("opportunity_id", o.ID),
		slog.String("action", o.Action),
		slog.Float64("size", legs[0].Size),
		slog.Float64("expected_profit", o.ProfitPercent*legs[0].Size*(legs[0].LimitPrice+legs[1].LimitPrice)),
	)
	return out, nil
}
