package domain

import "time"

// PriceTick is a reference-price update for an underlying symbol.
type PriceTick struct {
	Symbol    string
	Price     float64
	Bid       float64
	Ask       float64
	Volume    float64
	Timestamp time.Time
}

// Kline is a completed or in-progress OHLCV bar.
type Kline struct {
	Symbol    string
	Interval  string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	OpenTime  time.Time
	CloseTime time.Time
}
