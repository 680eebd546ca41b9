package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

type chanBus struct {
	mu    sync.Mutex
	chans map[string]chan []byte
}

func newChanBus() *chanBus {
	return &chanBus{chans: map[string]chan []byte{
		domain.ChannelFills:     make(chan []byte, 8),
		domain.ChannelSnapshots: make(chan []byte, 8),
	}}
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	ch, ok := b.chans[channel]
	b.mu.Unlock()
	if !ok {
		return errors.New("no such channel")
	}
	ch <- payload
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chans[channel], nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type recordingEngine struct {
	mu    sync.Mutex
	fills []domain.Fill
	snaps []domain.MarketSnapshot
}

func (e *recordingEngine) HandleSnapshot(_ context.Context, s domain.MarketSnapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snaps = append(e.snaps, s)
	return nil
}

func (e *recordingEngine) HandleFill(_ context.Context, f domain.Fill) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fills = append(e.fills, f)
	return nil
}

func (e *recordingEngine) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fills), len(e.snaps)
}

func TestDecodeFill(t *testing.T) {
	f, err := DecodeFill([]byte(`{"id":"f1","market_id":"m1","side":"BUY","token":"Yes","size":20,"price":0.5,"timestamp":"2026-03-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.SideBuy, f.Side)
	assert.Equal(t, domain.TokenYes, f.Token)
	assert.Equal(t, 20.0, f.Size)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), f.Timestamp)

	_, err = DecodeFill([]byte(`{"market_id":"m1","side":"buy","token":"maybe","size":1,"price":0.5}`))
	assert.ErrorIs(t, err, domain.ErrInvalidFill)

	_, err = DecodeFill([]byte(`{`))
	assert.Error(t, err)
}

func TestDecodeSnapshot(t *testing.T) {
	s, err := DecodeSnapshot([]byte(`{"market_id":"m1","venue":"kalshi","yes_price":0.4,"no_price":0.62,"symbol":"btcusdt","strike_price":100000,"expiry_seconds":3600}`))
	require.NoError(t, err)
	assert.Equal(t, domain.VenueKalshi, s.Venue)
	assert.Equal(t, "BTCUSDT", s.Symbol)
	assert.Equal(t, 3600.0, s.ExpirySeconds)

	_, err = DecodeSnapshot([]byte(`{"market_id":"m1","venue":"nasdaq"}`))
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)

	_, err = DecodeSnapshot([]byte(`{"venue":"kalshi"}`))
	assert.Error(t, err)
}

func TestBusFeederRoutesMessages(t *testing.T) {
	bus := newChanBus()
	eng := &recordingEngine{}
	feeder := NewBusFeeder(bus, eng, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feeder.Run(ctx) }()

	require.NoError(t, bus.Publish(ctx, domain.ChannelFills, []byte(`{"market_id":"m1","side":"buy","token":"yes","size":5,"price":0.5}`)))
	require.NoError(t, bus.Publish(ctx, domain.ChannelFills, []byte(`garbage`)))
	require.NoError(t, bus.Publish(ctx, domain.ChannelSnapshots, []byte(`{"market_id":"m1","venue":"polymarket","yes_price":0.5,"no_price":0.5}`)))

	require.Eventually(t, func() bool {
		fills, snaps := eng.counts()
		return fills == 1 && snaps == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
