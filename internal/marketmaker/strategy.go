// Package marketmaker turns priced snapshots and fills into decisions for
// the external execution component.
package marketmaker

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// State is the per-market inventory state of the market maker.
type State string

const (
	StateEmpty     State = "empty"
	StateHedged    State = "hedged"
	StateDualTrack State = "dual_track"
)

// Config holds the market maker thresholds. Prices are in probability
// units and spreads and offsets in basis points.
type Config struct {
	Tolerance        float64 // allowed |yes−no| / mean before hedging
	MinHedgeSize     float64
	MaxHedgeSize     float64
	BuySpreadBps     float64
	SellSpreadBps    float64
	HedgeSlippageBps float64
	DynamicOffset    bool
	BuyOffsetBps     float64
	SellOffsetBps    float64
}

// DefaultConfig returns the market maker defaults.
func DefaultConfig() Config {
	return Config{
		Tolerance:        0.05,
		MinHedgeSize:     10,
		MaxHedgeSize:     500,
		BuySpreadBps:     150,
		SellSpreadBps:    150,
		HedgeSlippageBps: 250,
		DynamicOffset:    true,
		BuyOffsetBps:     100,
		SellOffsetBps:    100,
	}
}

const (
	quoteFloor = 0.01
	quoteCeil  = 0.99
)

// Plan is the quoting plan for one market at its current inventory.
type Plan struct {
	State      State
	Heavy      domain.Token // larger holding when not balanced
	Deviation  float64
	Balanced   bool
	PlaceBuys  bool
	PlaceSells bool
	BuySize    float64
	SellSize   float64
}

// Quotes are the four resting prices for one market.
type Quotes struct {
	YesBid float64
	YesAsk float64
	NoBid  float64
	NoAsk  float64
	Source string // "dynamic_offset" or "fixed_spread"
}

// Hedge is the corrective order issued after a fill.
type Hedge struct {
	Needed bool
	Token  domain.Token
	Size   float64
	Reason string
}

// Strategy holds the market maker rules. It keeps no per-market state;
// the inventory manager owns the amounts.
type Strategy struct {
	cfg Config
}

// NewStrategy creates a Strategy.
func NewStrategy(cfg Config) *Strategy {
	return &Strategy{cfg: cfg}
}

// Config returns the strategy configuration.
func (s *Strategy) Config() Config { return s.cfg }

// Deviation is |yes−no| relative to the mean holding; 0 when flat.
func Deviation(yes, no float64) float64 {
	avg := (yes + no) / 2
	if avg <= 0 {
		return 0
	}
	return math.Abs(yes-no) / avg
}

// Analyze classifies the holding and plans which quotes to post.
func (s *Strategy) Analyze(yes, no float64) Plan {
	total := yes + no
	dev := Deviation(yes, no)
	p := Plan{Deviation: dev, Balanced: dev <= s.cfg.Tolerance, PlaceBuys: true}

	switch {
	case total <= 0:
		p.State = StateEmpty
	case p.Balanced && total >= s.cfg.MinHedgeSize:
		p.State = StateDualTrack
		p.PlaceSells = true
	case !p.Balanced:
		p.State = StateHedged
		p.PlaceSells = true
		p.Heavy = domain.TokenYes
		if no > yes {
			p.Heavy = domain.TokenNo
		}
	default:
		// Balanced but below the minimum size: keep building.
		p.State = StateEmpty
	}

	base := math.Max(10, math.Floor(s.cfg.MinHedgeSize))
	p.BuySize = base
	if p.PlaceSells {
		p.SellSize = math.Min(base, math.Floor(total/2))
		if p.SellSize <= 0 {
			p.PlaceSells = false
			p.SellSize = 0
		}
	}
	return p
}

// HedgeFor decides the corrective hedge for a market holding yes and no
// after a fill. The light side is bought for the full excess, capped at
// MaxHedgeSize. Resting orders are never cancelled.
func (s *Strategy) HedgeFor(f domain.Fill, yes, no float64) Hedge {
	total := yes + no
	dev := Deviation(yes, no)
	if dev <= s.cfg.Tolerance || total < s.cfg.MinHedgeSize {
		return Hedge{Reason: "position balanced"}
	}
	h := Hedge{Needed: true, Token: domain.TokenNo}
	excess := yes - no
	if no > yes {
		h.Token = domain.TokenYes
		excess = no - yes
	}
	h.Size = math.Min(excess, s.cfg.MaxHedgeSize)
	h.Reason = fmt.Sprintf("%s %s fill of %.4g left deviation %.2f%%, buying %.4g %s",
		f.Side, f.Token, f.Size, dev*100, h.Size, h.Token)
	return h
}

// HedgePrice is the limit price for a hedge bought at the token's
// current market price, allowing for slippage.
func (s *Strategy) HedgePrice(market float64) float64 {
	return round4(clamp(market*(1+s.cfg.HedgeSlippageBps/10000), quoteFloor, quoteCeil))
}

// Quotes prices both tokens. In dynamic-offset mode the quotes sit behind
// the best bid and ask of the yes book, with the no book mirrored from
// it. Otherwise a fixed spread is applied around the theoretical prices.
// scale widens or narrows the spread or offset; 1 leaves it unchanged.
func (s *Strategy) Quotes(theoYes, theoNo float64, book *domain.Orderbook, scale float64) Quotes {
	if scale <= 0 {
		scale = 1
	}
	var q Quotes
	if s.cfg.DynamicOffset {
		buy := s.cfg.BuyOffsetBps / 10000 * scale
		sell := s.cfg.SellOffsetBps / 10000 * scale

		yesBid, okBid := book.BestBid()
		yesAsk, okAsk := book.BestAsk()
		if !okBid {
			yesBid = theoYes
		}
		if !okAsk {
			yesAsk = theoYes * 1.01
		}
		noBid, noAsk := 1-yesAsk, 1-yesBid
		if !okBid || !okAsk {
			noBid, noAsk = theoNo, theoNo*1.01
		}

		q = Quotes{
			YesBid: math.Max(quoteFloor, yesBid*(1-buy)),
			YesAsk: math.Max(quoteFloor, yesAsk*(1+sell)),
			NoBid:  math.Max(quoteFloor, noBid*(1-buy)),
			NoAsk:  math.Max(quoteFloor, noAsk*(1+sell)),
			Source: "dynamic_offset",
		}
	} else {
		buy := s.cfg.BuySpreadBps / 10000 * scale
		sell := s.cfg.SellSpreadBps / 10000 * scale
		q = Quotes{
			YesBid: math.Max(quoteFloor, theoYes*(1-buy)),
			YesAsk: theoYes * (1 + sell),
			NoBid:  math.Max(quoteFloor, theoNo*(1-buy)),
			NoAsk:  theoNo * (1 + sell),
			Source: "fixed_spread",
		}
	}
	q.YesBid = round4(q.YesBid)
	q.NoBid = round4(q.NoBid)
	q.YesAsk = round4(math.Min(quoteCeil, q.YesAsk))
	q.NoAsk = round4(math.Min(quoteCeil, q.NoAsk))
	return q
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
