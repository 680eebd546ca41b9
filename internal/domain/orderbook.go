package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// TradePrint is one executed trade observed on the venue.
type TradePrint struct {
	Price     float64
	Size      float64
	Timestamp time.Time
}

// Orderbook holds the yes-token book of a market. Bids are sorted
// descending by price and asks ascending.
type Orderbook struct {
	MarketID     string
	Bids         []PriceLevel
	Asks         []PriceLevel
	RecentTrades []TradePrint
	Timestamp    time.Time
}

// BestBid returns the top bid, or false when the bid side is empty.
func (b *Orderbook) BestBid() (float64, bool) {
	if b == nil || len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the top ask, or false when the ask side is empty.
func (b *Orderbook) BestAsk() (float64, bool) {
	if b == nil || len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}
