package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// SignalBusConfig sizes the bus.
type SignalBusConfig struct {
	// StreamMaxLen caps each stream approximately through XADD MAXLEN ~.
	StreamMaxLen int64
	// Buffer is the capacity of each subscription channel.
	Buffer int
}

// DefaultSignalBusConfig keeps about 10,000 decisions per stream.
func DefaultSignalBusConfig() SignalBusConfig {
	return SignalBusConfig{StreamMaxLen: 10000, Buffer: 128}
}

// SignalBus implements domain.SignalBus. Decisions, alerts, opportunities,
// snapshots and fills travel over Pub/Sub; the decision stream gives an
// executor that was down a way to catch up.
type SignalBus struct {
	rdb *redis.Client
	cfg SignalBusConfig
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client, cfg SignalBusConfig) *SignalBus {
	def := DefaultSignalBusConfig()
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = def.StreamMaxLen
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	return &SignalBus{rdb: c.Underlying(), cfg: cfg}
}

// Publish sends payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel. The
// subscription and the returned channel close when ctx is cancelled. A
// consumer slower than the buffer applies backpressure to the reader
// goroutine; messages are not dropped.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := sb.rdb.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so no message published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, sb.cfg.Buffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// StreamAppend adds payload to a capped stream.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.cfg.StreamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" reads from the
// start). An empty stream yields no entries and no error.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	results, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			var data []byte
			switch v := msg.Values["payload"].(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}
			messages = append(messages, domain.StreamMessage{ID: msg.ID, Payload: data})
		}
	}
	return messages, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
