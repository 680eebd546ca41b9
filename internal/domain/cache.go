package domain

import (
	"context"
	"time"
)

// Bus channels and streams shared by publishers and subscribers.
const (
	ChannelDecisions     = "decisions"
	ChannelAlerts        = "alerts"
	ChannelOpportunities = "opportunities"
	ChannelSnapshots     = "snapshots"
	ChannelFills         = "fills"
	StreamDecisions      = "stream:decisions"
)

// PriceCache keeps the latest reference price per symbol.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// EventCounter records events in a sliding window and counts them without
// recording.
type EventCounter interface {
	Record(ctx context.Context, key string, window time.Duration) error
	Count(ctx context.Context, key string, window time.Duration) (int, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
