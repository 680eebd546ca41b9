// Package venue polls prediction-market venues for snapshots of the
// markets the engine tracks.
package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// Market is a tracked market as configured by the operator. ExternalID is
// the venue's own identifier (a Gamma market id or a Kalshi ticker); when
// empty, ID is used.
type Market struct {
	ID          string
	Venue       domain.Venue
	ExternalID  string
	Question    string
	Symbol      string
	StrikePrice float64
	Expiry      time.Time
}

func (m Market) externalID() string {
	if m.ExternalID != "" {
		return m.ExternalID
	}
	return m.ID
}

// Lister fetches the current snapshot of one market from one venue.
type Lister interface {
	Snapshot(ctx context.Context, m Market) (domain.MarketSnapshot, error)
}

// Endpoints holds the REST roots for the venues that are polled.
type Endpoints struct {
	GammaURL  string
	KalshiURL string
	Timeout   time.Duration
}

// NewLister returns the lister for v. Venues without a public snapshot API
// (predict.fun and Probable) return a nil Lister: their snapshots are
// pushed over the event bus instead.
func NewLister(v domain.Venue, ep Endpoints) (Lister, error) {
	switch v {
	case domain.VenuePolymarket:
		return NewGammaLister(ep.GammaURL, ep.Timeout), nil
	case domain.VenueKalshi:
		return NewKalshiLister(ep.KalshiURL, ep.Timeout), nil
	case domain.VenuePredictFun, domain.VenueProbable:
		return nil, nil
	default:
		return nil, fmt.Errorf("venue: %w: %q", domain.ErrUnknownVenue, v)
	}
}

// complete fills the fields every snapshot takes from configuration.
func complete(snap domain.MarketSnapshot, m Market, now time.Time) domain.MarketSnapshot {
	snap.MarketID = m.ID
	snap.Venue = m.Venue
	if m.Question != "" {
		snap.Question = m.Question
	}
	if m.Symbol != "" {
		snap.Symbol = m.Symbol
	}
	if m.StrikePrice > 0 {
		snap.StrikePrice = m.StrikePrice
	}
	if !m.Expiry.IsZero() {
		snap.ExpirySeconds = max(0, m.Expiry.Sub(now).Seconds())
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = now
	}
	return snap
}

// Listers builds one lister per venue referenced by markets.
func Listers(markets []Market, ep Endpoints) (map[domain.Venue]Lister, error) {
	out := make(map[domain.Venue]Lister)
	for _, m := range markets {
		if _, seen := out[m.Venue]; seen {
			continue
		}
		l, err := NewLister(m.Venue, ep)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", m.ID, err)
		}
		out[m.Venue] = l
	}
	return out, nil
}
