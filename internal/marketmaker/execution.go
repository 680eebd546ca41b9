package marketmaker

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// Style selects how decisions are expressed: crossing the book (taker),
// resting quotes (maker), or switching between them per market (hybrid).
type Style string

const (
	StyleTaker  Style = "taker"
	StyleMaker  Style = "maker"
	StyleHybrid Style = "hybrid"
)

// ParseStyle converts a configuration string into a Style.
func ParseStyle(s string) (Style, error) {
	switch st := Style(s); st {
	case StyleTaker, StyleMaker, StyleHybrid:
		return st, nil
	default:
		return "", fmt.Errorf("marketmaker: unknown execution style %q", s)
	}
}

// ExecutionConfig holds the execution policy thresholds.
type ExecutionConfig struct {
	Style            Style
	MaxPositionUSD   float64
	MaxSize          float64 // shares per decision; keep at or below the risk size cap
	MinEdge          float64
	TakerCost        float64 // fees plus expected slippage, in price units
	TakerSlippageBps float64

	// Taker entries are refused inside ExpiryBuffer of expiry and at
	// prices above MaxEntryPrice or below 1-MaxEntryPrice.
	ExpiryBuffer  time.Duration
	MaxEntryPrice float64

	HybridTakerEdge         float64 // edge above which thin markets are taken
	HybridTakerMaxLiquidity float64
	HybridMakerEdge         float64 // edge below which deep markets are made
	HybridMakerMinLiquidity float64
}

// DefaultExecutionConfig returns the execution defaults.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		Style:                   StyleTaker,
		MaxPositionUSD:          100,
		MaxSize:                 100,
		MinEdge:                 0.02,
		TakerCost:               0.02,
		TakerSlippageBps:        50,
		ExpiryBuffer:            time.Minute,
		MaxEntryPrice:           0.95,
		HybridTakerEdge:         0.05,
		HybridTakerMaxLiquidity: 50000,
		HybridMakerEdge:         0.03,
		HybridMakerMinLiquidity: 100000,
	}
}

// Input is everything the policy needs to decide on one market.
type Input struct {
	Snapshot domain.MarketSnapshot
	Pricing  domain.PricingResult
	Plan     Plan
	Quotes   Quotes
}

// Execution is the execution policy.
type Execution struct {
	cfg ExecutionConfig
}

// NewExecution creates an Execution. An invalid style is rejected.
func NewExecution(cfg ExecutionConfig) (*Execution, error) {
	if _, err := ParseStyle(string(cfg.Style)); err != nil {
		return nil, err
	}
	return &Execution{cfg: cfg}, nil
}

// Style returns the configured style.
func (e *Execution) Style() Style { return e.cfg.Style }

// Decide returns the decisions for one market. Decisions carry no ID or
// timestamp; the engine stamps them when they are emitted.
func (e *Execution) Decide(in Input) []domain.Decision {
	switch e.cfg.Style {
	case StyleTaker:
		return e.taker(in)
	case StyleMaker:
		return e.maker(in)
	case StyleHybrid:
		return e.hybrid(in)
	}
	return nil
}

func (e *Execution) hybrid(in Input) []domain.Decision {
	edge := math.Abs(in.Pricing.Edge)
	liq := in.Snapshot.Liquidity
	switch {
	case edge > e.cfg.HybridTakerEdge && liq < e.cfg.HybridTakerMaxLiquidity:
		return e.taker(in)
	case edge < e.cfg.HybridMakerEdge && liq > e.cfg.HybridMakerMinLiquidity:
		return e.maker(in)
	default:
		return e.taker(in)
	}
}

// taker crosses the book when the model edge covers fees and slippage.
// A positive edge buys yes, a negative one buys no.
func (e *Execution) taker(in Input) []domain.Decision {
	snap, pr := in.Snapshot, in.Pricing
	edge := pr.Edge
	if math.Abs(edge) < math.Max(e.cfg.MinEdge, e.cfg.TakerCost) {
		return nil
	}
	if pr.Yes.Recommendation == domain.RecNearExpiry {
		return nil
	}
	if snap.ExpirySeconds < e.cfg.ExpiryBuffer.Seconds() {
		return nil
	}

	ask, okAsk := snap.Book.BestAsk()
	if !okAsk {
		ask = snap.YesPrice
	}
	bid, okBid := snap.Book.BestBid()
	if !okBid {
		bid = snap.YesPrice
	}

	theo := pr.TheoreticalPrice
	d := domain.Decision{
		MarketID:   snap.MarketID,
		Confidence: pr.Confidence,
		Source:     string(StyleTaker),
	}
	if edge > 0 {
		d.Action, d.Token = domain.ActionBuyYes, domain.TokenYes
		d.LimitPrice = math.Min(ask, theo-e.cfg.TakerCost/2)
		if maxPrice := ask * (1 + e.cfg.TakerSlippageBps/10000); d.LimitPrice > maxPrice {
			return nil
		}
	} else {
		d.Action, d.Token = domain.ActionBuyNo, domain.TokenNo
		d.LimitPrice = math.Min(1-bid, 1-theo-e.cfg.TakerCost/2)
	}
	if d.LimitPrice <= 0 || !e.entryPriceOK(d.LimitPrice) {
		return nil
	}
	d.LimitPrice = round4(d.LimitPrice)
	d.Size = e.takerSize(edge, d.LimitPrice)
	if d.Size <= 0 {
		return nil
	}
	d.Reason = fmt.Sprintf("taker: edge %.4f vs theoretical %.4f", edge, theo)
	return []domain.Decision{d}
}

// maker posts the strategy's quotes according to its plan: buys on both
// tokens when empty, a buy on the light token and a sell on the heavy one
// when imbalanced, and two-sided quotes on both tokens in dual track.
func (e *Execution) maker(in Input) []domain.Decision {
	snap, plan, q := in.Snapshot, in.Plan, in.Quotes
	base := domain.Decision{
		MarketID:   snap.MarketID,
		Confidence: in.Pricing.Confidence,
		Source:     string(StyleMaker),
	}
	order := func(a domain.Action, tok domain.Token, price, size float64) domain.Decision {
		d := base
		d.Action, d.Token, d.LimitPrice = a, tok, price
		d.Size = e.capSize(size, price)
		d.Reason = fmt.Sprintf("maker %s: %s %s @ %.4f (%s)", plan.State, a, tok, price, q.Source)
		return d
	}

	switch plan.State {
	case StateEmpty:
		return []domain.Decision{
			order(domain.ActionBuyYes, domain.TokenYes, q.YesBid, plan.BuySize),
			order(domain.ActionBuyNo, domain.TokenNo, q.NoBid, plan.BuySize),
		}
	case StateHedged:
		if plan.Heavy == domain.TokenYes {
			out := []domain.Decision{order(domain.ActionBuyNo, domain.TokenNo, q.NoBid, plan.BuySize)}
			if plan.PlaceSells {
				out = append(out, order(domain.ActionSellYes, domain.TokenYes, q.YesAsk, plan.SellSize))
			}
			return out
		}
		out := []domain.Decision{order(domain.ActionBuyYes, domain.TokenYes, q.YesBid, plan.BuySize)}
		if plan.PlaceSells {
			out = append(out, order(domain.ActionSellNo, domain.TokenNo, q.NoAsk, plan.SellSize))
		}
		return out
	case StateDualTrack:
		size := math.Min(plan.BuySize, plan.SellSize)
		both := func(tok domain.Token, bid, ask float64) domain.Decision {
			d := base
			d.Action, d.Token = domain.ActionMakeBoth, tok
			d.BidPrice, d.AskPrice = bid, ask
			d.Size = e.capSize(size, bid)
			d.Reason = fmt.Sprintf("maker dual track: %s %.4f/%.4f (%s)", tok, bid, ask, q.Source)
			return d
		}
		return []domain.Decision{
			both(domain.TokenYes, q.YesBid, q.YesAsk),
			both(domain.TokenNo, q.NoBid, q.NoAsk),
		}
	}
	return nil
}

func (e *Execution) entryPriceOK(price float64) bool {
	if e.cfg.MaxEntryPrice <= 0 {
		return true
	}
	return price <= e.cfg.MaxEntryPrice && price >= 1-e.cfg.MaxEntryPrice
}

// strengthMultiplier scales the stake by how strong the edge is.
func strengthMultiplier(edge float64) float64 {
	switch {
	case edge > 0.05:
		return 1.0
	case edge > 0.03:
		return 0.7
	case edge > 0.02:
		return 0.5
	default:
		return 0.3
	}
}

// takerSize stakes a capped Kelly fraction of MaxPositionUSD, scaled by
// signal strength, and converts it to shares at price.
func (e *Execution) takerSize(edge, price float64) float64 {
	edge = math.Abs(edge)
	kelly := math.Min(0.25, edge/0.5)
	usd := e.cfg.MaxPositionUSD * kelly * strengthMultiplier(edge)
	return math.Floor(e.capSize(usd/price, price)*100) / 100
}

// capSize bounds size by the notional cap and the share cap.
func (e *Execution) capSize(size, price float64) float64 {
	if price > 0 && e.cfg.MaxPositionUSD > 0 {
		size = math.Min(size, e.cfg.MaxPositionUSD/price)
	}
	if e.cfg.MaxSize > 0 {
		size = math.Min(size, e.cfg.MaxSize)
	}
	return size
}
