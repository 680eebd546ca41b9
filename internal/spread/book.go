package spread

import "github.com/alanyoungcy/binarymm/internal/domain"

const (
	pressureLevels = 5
	volumeTrades   = 20
)

// ConditionFromBook derives a Condition and the current spread from an
// orderbook. Without a bid the configured base spread is used.
func (c *Calculator) ConditionFromBook(book *domain.Orderbook, volatility float64) (Condition, float64) {
	current := c.cfg.BaseSpread
	if book == nil {
		return Condition{Volatility: volatility, Spread: current, DepthTrend: 1}, current
	}

	bestBid, hasBid := book.BestBid()
	bestAsk, hasAsk := book.BestAsk()
	if !hasAsk {
		bestAsk = 1
	}
	if hasBid && bestBid > 0 {
		current = bestAsk - bestBid
	}

	var volume float64
	trades := book.RecentTrades
	if len(trades) > volumeTrades {
		trades = trades[len(trades)-volumeTrades:]
	}
	for _, t := range trades {
		volume += t.Size
	}

	return Condition{
		Volatility: volatility,
		Liquidity:  sumSize(book.Bids, len(book.Bids)) + sumSize(book.Asks, len(book.Asks)),
		Spread:     current,
		Volume:     volume,
		Pressure:   ratio(sumSize(book.Bids, pressureLevels), sumSize(book.Asks, pressureLevels)),
		DepthTrend: 1,
		Imbalance:  ratio(sumSize(book.Bids, len(book.Bids)), sumSize(book.Asks, len(book.Asks))),
	}, current
}

// Optimal derives the condition from the book and adjusts the spread.
func (c *Calculator) Optimal(marketID string, book *domain.Orderbook, volatility float64) Adjustment {
	cond, current := c.ConditionFromBook(book, volatility)
	return c.Adjust(marketID, cond, current)
}

func sumSize(levels []domain.PriceLevel, n int) float64 {
	var s float64
	for i := 0; i < len(levels) && i < n; i++ {
		s += levels[i].Size
	}
	return s
}

func ratio(bid, ask float64) float64 {
	total := bid + ask
	if total == 0 {
		return 0
	}
	return (bid - ask) / total
}
