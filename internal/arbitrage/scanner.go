package arbitrage

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// Config holds the scanner thresholds. Fees and slippage are per leg.
type Config struct {
	MinProfit      float64 // minimum net profit per unit notional
	MinSimilarity  float64
	TransferCost   float64
	SlippageBps    float64
	FeeBps         float64
	MaxPositionUSD float64
	TopN           int
	MaxMarkets     int // markets considered per scan, by liquidity
	Interval       time.Duration
}

// DefaultConfig returns the scanner defaults.
func DefaultConfig() Config {
	return Config{
		MinProfit:      0.01,
		MinSimilarity:  0.78,
		TransferCost:   0.002,
		SlippageBps:    250,
		FeeBps:         100,
		MaxPositionUSD: 500,
		TopN:           10,
		MaxMarkets:     80,
		Interval:       10 * time.Second,
	}
}

// Intra-venue and cross-venue action labels.
const (
	ActionBuyBoth  = "BUY_BOTH"
	ActionSellBoth = "SELL_BOTH"
)

// Scanner finds intra-venue and cross-venue mispricing in a set of market
// snapshots. It keeps no state between scans.
type Scanner struct {
	cfg Config
	now func() time.Time
}

// NewScanner creates a Scanner. Zero fields in cfg take their defaults.
func NewScanner(cfg Config) *Scanner {
	def := DefaultConfig()
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = def.MinSimilarity
	}
	if cfg.MaxPositionUSD <= 0 {
		cfg.MaxPositionUSD = def.MaxPositionUSD
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &Scanner{cfg: cfg, now: time.Now}
}

// Config returns the scanner configuration.
func (s *Scanner) Config() Config { return s.cfg }

func (s *Scanner) legFee() float64 { return s.cfg.FeeBps / 10000 }
func (s *Scanner) legSlippage() float64 { return s.cfg.SlippageBps / 10000 }

// crossCost is the round-trip cost of a two-venue trade.
func (s *Scanner) crossCost() float64 {
	return 2*s.legFee() + 2*s.legSlippage() + s.cfg.TransferCost
}

// Scan runs both scans over markets and returns the merged result, ranked
// by profit percent descending and truncated to TopN. Markets with an
// unknown venue are ignored.
func (s *Scanner) Scan(markets []domain.MarketSnapshot) []domain.ArbitrageOpportunity {
	considered := s.candidates(markets)
	opps := s.ScanIntraVenue(considered)
	opps = append(opps, s.ScanCrossVenue(considered)...)
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].ProfitPercent != opps[j].ProfitPercent {
			return opps[i].ProfitPercent > opps[j].ProfitPercent
		}
		return opps[i].ID < opps[j].ID
	})
	if len(opps) > s.cfg.TopN {
		opps = opps[:s.cfg.TopN]
	}
	return opps
}

// candidates drops markets with unknown venues and keeps the MaxMarkets most
// liquid ones.
func (s *Scanner) candidates(markets []domain.MarketSnapshot) []domain.MarketSnapshot {
	out := make([]domain.MarketSnapshot, 0, len(markets))
	for _, m := range markets {
		if m.Venue.Valid() {
			out = append(out, m)
		}
	}
	if s.cfg.MaxMarkets <= 0 || len(out) <= s.cfg.MaxMarkets {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Liquidity != out[j].Liquidity {
			return out[i].Liquidity > out[j].Liquidity
		}
		return out[i].MarketID < out[j].MarketID
	})
	return out[:s.cfg.MaxMarkets]
}

// ScanIntraVenue reports markets whose yes and no prices do not sum to 1 by
// more than the two-leg fee.
func (s *Scanner) ScanIntraVenue(markets []domain.MarketSnapshot) []domain.ArbitrageOpportunity {
	var opps []domain.ArbitrageOpportunity
	feeCost := 2 * s.legFee()
	now := s.now()
	for _, m := range markets {
		total := m.YesPrice + m.NoPrice
		deviation := math.Abs(total - 1)
		net := deviation - feeCost
		if net < s.cfg.MinProfit || net <= 0 {
			continue
		}
		action, confidence := ActionBuyBoth, 0.9
		if total > 1 {
			// Selling both sides needs inventory in both tokens.
			action, confidence = ActionSellBoth, 0.7
		}
		opps = append(opps, domain.ArbitrageOpportunity{
			ID:             uuid.NewString(),
			Type:           domain.ArbIntraVenue,
			MarketA:        m,
			ProfitPercent:  net,
			ProfitAbsolute: s.cfg.MaxPositionUSD * net,
			Confidence:     confidence,
			Action:         action,
			Details: map[string]float64{
				"yes_price": m.YesPrice,
				"no_price":  m.NoPrice,
				"total":     total,
				"deviation": deviation,
				"fee_cost":  feeCost,
			},
			DetectedAt: now,
		})
	}
	return opps
}

// ScanCrossVenue compares every unordered pair of markets on different
// venues whose questions are similar enough to describe the same event.
func (s *Scanner) ScanCrossVenue(markets []domain.MarketSnapshot) []domain.ArbitrageOpportunity {
	var opps []domain.ArbitrageOpportunity
	cost := s.crossCost()
	now := s.now()
	for i := 0; i < len(markets); i++ {
		for j := i + 1; j < len(markets); j++ {
			a, b := markets[i], markets[j]
			if a.Venue == b.Venue {
				continue
			}
			sim := Similarity(a.Question, b.Question)
			if sim < s.cfg.MinSimilarity {
				continue
			}
			diff := a.YesPrice - b.YesPrice
			net := math.Abs(diff) - cost
			if net < s.cfg.MinProfit || net <= 0 {
				continue
			}
			cheap, dear := a, b
			if diff > 0 {
				cheap, dear = b, a
			}
			mb := b
			opps = append(opps, domain.ArbitrageOpportunity{
				ID:             uuid.NewString(),
				Type:           domain.ArbCrossVenue,
				MarketA:        a,
				MarketB:        &mb,
				ProfitPercent:  net,
				ProfitAbsolute: s.cfg.MaxPositionUSD * net,
				Confidence:     sim,
				Action:         crossAction(cheap.Venue, dear.Venue),
				Details: map[string]float64{
					"yes_price_a": a.YesPrice,
					"yes_price_b": b.YesPrice,
					"price_diff":  diff,
					"total_cost":  cost,
					"similarity":  sim,
				},
				DetectedAt: now,
			})
		}
	}
	return opps
}

func crossAction(buy, sell domain.Venue) string {
	return fmt.Sprintf("BUY_YES_%s_SELL_YES_%s", buy, sell)
}
