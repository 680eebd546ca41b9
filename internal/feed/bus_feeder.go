package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// EngineInput is the part of the market maker the feeder drives.
type EngineInput interface {
	HandleSnapshot(ctx context.Context, snap domain.MarketSnapshot) error
	HandleFill(ctx context.Context, f domain.Fill) error
}

// fillEvent is the JSON shape an executor publishes to "fills".
type fillEvent struct {
	ID        string  `json:"id"`
	MarketID  string  `json:"market_id"`
	Side      string  `json:"side"`
	Token     string  `json:"token"`
	Size      float64 `json:"size"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// snapshotEvent is the JSON shape an external poller publishes to
// "snapshots".
type snapshotEvent struct {
	MarketID        string  `json:"market_id"`
	Venue           string  `json:"venue"`
	Question        string  `json:"question"`
	YesPrice        float64 `json:"yes_price"`
	NoPrice         float64 `json:"no_price"`
	Liquidity       float64 `json:"liquidity"`
	Volume24h       float64 `json:"volume_24h"`
	StrikePrice     float64 `json:"strike_price"`
	ExpirySeconds   float64 `json:"expiry_seconds"`
	UnderlyingPrice float64 `json:"underlying_price"`
	Symbol          string  `json:"symbol"`
	Timestamp       string  `json:"timestamp"`
}

// BusFeeder subscribes to the fills and snapshots channels and feeds the
// decoded events into the market maker.
type BusFeeder struct {
	bus    domain.SignalBus
	engine EngineInput
	logger *slog.Logger
}

// NewBusFeeder creates a BusFeeder.
func NewBusFeeder(bus domain.SignalBus, engine EngineInput, logger *slog.Logger) *BusFeeder {
	return &BusFeeder{
		bus:    bus,
		engine: engine,
		logger: logger.With(slog.String("component", "bus_feeder")),
	}
}

// Run consumes both channels until ctx is cancelled.
func (f *BusFeeder) Run(ctx context.Context) error {
	fills, err := f.bus.Subscribe(ctx, domain.ChannelFills)
	if err != nil {
		return fmt.Errorf("feed: subscribe fills: %w", err)
	}
	snaps, err := f.bus.Subscribe(ctx, domain.ChannelSnapshots)
	if err != nil {
		return fmt.Errorf("feed: subscribe snapshots: %w", err)
	}
	f.logger.InfoContext(ctx, "bus feeder started")
	defer f.logger.InfoContext(ctx, "bus feeder stopped")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.consume(gctx, fills, f.handleFill) })
	g.Go(func() error { return f.consume(gctx, snaps, f.handleSnapshot) })
	return g.Wait()
}

func (f *BusFeeder) consume(ctx context.Context, ch <-chan []byte, handle func(context.Context, []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := handle(ctx, data); err != nil {
				f.logger.WarnContext(ctx, "bus feeder dropped message",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
			}
		}
	}
}

func (f *BusFeeder) handleFill(ctx context.Context, data []byte) error {
	fill, err := DecodeFill(data)
	if err != nil {
		return err
	}
	return f.engine.HandleFill(ctx, fill)
}

func (f *BusFeeder) handleSnapshot(ctx context.Context, data []byte) error {
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	return f.engine.HandleSnapshot(ctx, snap)
}

// DecodeFill parses a fill event and validates it.
func DecodeFill(data []byte) (domain.Fill, error) {
	var ev fillEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.Fill{}, fmt.Errorf("feed: decode fill: %w", err)
	}
	fill := domain.Fill{
		ID:        ev.ID,
		MarketID:  strings.TrimSpace(ev.MarketID),
		Side:      domain.Side(strings.ToLower(ev.Side)),
		Token:     domain.Token(strings.ToLower(ev.Token)),
		Size:      ev.Size,
		Price:     ev.Price,
		Timestamp: parseTimestamp(ev.Timestamp),
	}
	if err := fill.Validate(); err != nil {
		return domain.Fill{}, err
	}
	return fill, nil
}

// DecodeSnapshot parses a snapshot event. Unknown venues are rejected.
func DecodeSnapshot(data []byte) (domain.MarketSnapshot, error) {
	var ev snapshotEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("feed: decode snapshot: %w", err)
	}
	venue, err := domain.ParseVenue(ev.Venue)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	if ev.MarketID == "" {
		return domain.MarketSnapshot{}, fmt.Errorf("feed: snapshot without market id")
	}
	return domain.MarketSnapshot{
		MarketID:        ev.MarketID,
		Venue:           venue,
		Question:        ev.Question,
		YesPrice:        ev.YesPrice,
		NoPrice:         ev.NoPrice,
		Liquidity:       ev.Liquidity,
		Volume24h:       ev.Volume24h,
		StrikePrice:     ev.StrikePrice,
		ExpirySeconds:   ev.ExpirySeconds,
		UnderlyingPrice: ev.UnderlyingPrice,
		Symbol:          strings.ToUpper(ev.Symbol),
		Timestamp:       parseTimestamp(ev.Timestamp),
	}, nil
}

func parseTimestamp(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
