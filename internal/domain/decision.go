package domain

import "time"

// Action is what the engine asks the execution component to do.
type Action string

const (
	ActionBuyYes   Action = "buyYes"
	ActionBuyNo    Action = "buyNo"
	ActionSellYes  Action = "sellYes"
	ActionSellNo   Action = "sellNo"
	ActionMakeBoth Action = "makeBoth"
	ActionHold     Action = "hold"
)

// ActionFor maps a side and token onto an Action.
func ActionFor(side Side, token Token) Action {
	switch {
	case side == SideBuy && token == TokenYes:
		return ActionBuyYes
	case side == SideBuy && token == TokenNo:
		return ActionBuyNo
	case side == SideSell && token == TokenYes:
		return ActionSellYes
	case side == SideSell && token == TokenNo:
		return ActionSellNo
	}
	return ActionHold
}

// Trades reports whether the action results in an order.
func (a Action) Trades() bool {
	return a != ActionHold && a != ""
}

// Priority orders decisions for the executor.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// Decision is the engine's output, consumed by an external executor.
// For ActionMakeBoth, Token names the quoted token, BidPrice and AskPrice
// carry the two quotes and LimitPrice is unused.
type Decision struct {
	ID         string
	MarketID   string
	Action     Action
	Token      Token
	Size       float64
	LimitPrice float64
	BidPrice   float64
	AskPrice   float64
	Reason     string
	Confidence float64
	Priority   Priority
	Source     string // "taker", "maker" or "hedge"
	CreatedAt  time.Time
}

// Price is the order price used by the admission gate. A two-sided quote
// is priced at its bid.
func (d Decision) Price() float64 {
	if d.Action == ActionMakeBoth {
		return d.BidPrice
	}
	return d.LimitPrice
}
