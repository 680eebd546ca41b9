package marketmaker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

type recordingBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
	failPub   error
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPub != nil {
		return b.failPub
	}
	if b.published == nil {
		b.published = make(map[string][][]byte)
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *recordingBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamed == nil {
		b.streamed = make(map[string][][]byte)
	}
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type recordingJournal struct {
	mu        sync.Mutex
	decisions []domain.Decision
}

func (j *recordingJournal) RecordDecision(_ context.Context, d domain.Decision) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.decisions = append(j.decisions, d)
	return nil
}

func TestPublisherFansOut(t *testing.T) {
	bus := &recordingBus{}
	journal := &recordingJournal{}
	p := NewPublisher(bus, journal)

	d := domain.Decision{
		ID:         "d1",
		MarketID:   "m1",
		Action:     domain.ActionBuyNo,
		Token:      domain.TokenNo,
		Size:       20,
		LimitPrice: 0.5125,
		Priority:   domain.PriorityUrgent,
		Source:     "hedge",
		CreatedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Emit(context.Background(), d))

	require.Len(t, bus.published[domain.ChannelDecisions], 1)
	require.Len(t, bus.streamed[domain.StreamDecisions], 1)
	require.Len(t, journal.decisions, 1)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(bus.published[domain.ChannelDecisions][0], &ev))
	assert.Equal(t, "buyNo", ev["action"])
	assert.Equal(t, "urgent", ev["priority"])
	assert.Equal(t, "no", ev["token"])
	assert.NotContains(t, ev, "bid_price")
}

func TestPublisherJoinsErrors(t *testing.T) {
	bus := &recordingBus{failPub: errors.New("redis down")}
	journal := &recordingJournal{}
	p := NewPublisher(bus, journal)

	err := p.Emit(context.Background(), domain.Decision{ID: "d1", Action: domain.ActionBuyYes})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Len(t, journal.decisions, 1, "journal is still written")
	assert.Len(t, bus.streamed[domain.StreamDecisions], 1)
}

func TestPublisherWithoutDestinations(t *testing.T) {
	assert.NoError(t, NewPublisher(nil, nil).Emit(context.Background(), domain.Decision{}))
}
