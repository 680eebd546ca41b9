package domain

import "time"

// Token is one side of a binary market.
type Token string

const (
	TokenYes Token = "yes"
	TokenNo  Token = "no"
)

// Side is the direction of an order or fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// MarketSnapshot is an immutable per-tick view of one tracked market.
// YesPrice and NoPrice are not required to sum to 1.
type MarketSnapshot struct {
	MarketID        string
	Venue           Venue
	Question        string
	Symbol          string // underlying reference symbol, e.g. BTCUSDT
	YesPrice        float64
	NoPrice         float64
	Liquidity       float64
	Volume24h       float64
	StrikePrice     float64
	ExpirySeconds   float64
	UnderlyingPrice float64
	Book            *Orderbook
	Timestamp       time.Time
}

// Fill is an executed order reported by the external execution component.
type Fill struct {
	ID        string
	MarketID  string
	Side      Side
	Token     Token
	Size      float64
	Price     float64
	Timestamp time.Time
}

// Validate rejects fills the inventory cannot apply.
func (f Fill) Validate() error {
	switch {
	case f.MarketID == "":
		return ErrInvalidFill
	case f.Side != SideBuy && f.Side != SideSell:
		return ErrInvalidFill
	case f.Token != TokenYes && f.Token != TokenNo:
		return ErrInvalidFill
	case f.Size <= 0 || f.Price < 0:
		return ErrInvalidFill
	}
	return nil
}
