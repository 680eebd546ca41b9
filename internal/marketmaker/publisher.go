package marketmaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// Sink receives admitted decisions.
type Sink interface {
	Emit(ctx context.Context, d domain.Decision) error
}

// decisionEvent is the JSON shape published for the execution component.
type decisionEvent struct {
	ID         string    `json:"id"`
	MarketID   string    `json:"market_id"`
	Action     string    `json:"action"`
	Token      string    `json:"token,omitempty"`
	Size       float64   `json:"size"`
	LimitPrice float64   `json:"limit_price,omitempty"`
	BidPrice   float64   `json:"bid_price,omitempty"`
	AskPrice   float64   `json:"ask_price,omitempty"`
	Reason     string    `json:"reason"`
	Confidence float64   `json:"confidence"`
	Priority   string    `json:"priority"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// EncodeDecision renders a decision as the published JSON payload.
func EncodeDecision(d domain.Decision) ([]byte, error) {
	return json.Marshal(decisionEvent{
		ID:         d.ID,
		MarketID:   d.MarketID,
		Action:     string(d.Action),
		Token:      string(d.Token),
		Size:       d.Size,
		LimitPrice: d.LimitPrice,
		BidPrice:   d.BidPrice,
		AskPrice:   d.AskPrice,
		Reason:     d.Reason,
		Confidence: d.Confidence,
		Priority:   d.Priority.String(),
		Source:     d.Source,
		CreatedAt:  d.CreatedAt,
	})
}

// Publisher fans decisions out to the signal bus (pub/sub channel and the
// capped decision stream) and the journal. Either may be nil.
type Publisher struct {
	bus     domain.SignalBus
	journal domain.DecisionJournal
}

// NewPublisher creates a Publisher.
func NewPublisher(bus domain.SignalBus, journal domain.DecisionJournal) *Publisher {
	return &Publisher{bus: bus, journal: journal}
}

// Emit publishes d. Every destination is attempted; failures are joined.
func (p *Publisher) Emit(ctx context.Context, d domain.Decision) error {
	var errs []error
	if p.bus != nil {
		payload, err := EncodeDecision(d)
		if err != nil {
			return fmt.Errorf("encode decision %s: %w", d.ID, err)
		}
		if err := p.bus.Publish(ctx, domain.ChannelDecisions, payload); err != nil {
			errs = append(errs, fmt.Errorf("publish decision %s: %w", d.ID, err))
		}
		if err := p.bus.StreamAppend(ctx, domain.StreamDecisions, payload); err != nil {
			errs = append(errs, fmt.Errorf("stream decision %s: %w", d.ID, err))
		}
	}
	if p.journal != nil {
		if err := p.journal.RecordDecision(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("journal decision %s: %w", d.ID, err))
		}
	}
	return errors.Join(errs...)
}
