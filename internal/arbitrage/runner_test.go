package arbitrage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

type staticSource []domain.MarketSnapshot

func (s staticSource) Snapshots() []domain.MarketSnapshot { return s }

type recordingBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = make(map[string][][]byte)
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *recordingBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type failingJournal struct{ calls int }

func (j *failingJournal) RecordOpportunities(context.Context, []domain.ArbitrageOpportunity) error {
	j.calls++
	return errors.New("db down")
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerScanOncePublishesAndStores(t *testing.T) {
	bus := &recordingBus{}
	r := NewRunner(RunnerConfig{
		Scanner: NewScanner(DefaultConfig()),
		Source:  staticSource{market("m1", domain.VenuePolymarket, "q", 0.60, 0.55)},
		Bus:     bus,
		Logger:  discardLogger(),
	})

	opps, err := r.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 1)

	latest, at := r.Latest()
	assert.Len(t, latest, 1)
	assert.False(t, at.IsZero())

	require.Len(t, bus.published[domain.ChannelOpportunities], 1)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(bus.published[domain.ChannelOpportunities][0], &ev))
	assert.Equal(t, "intra_venue", ev["type"])
	assert.Equal(t, "m1", ev["market_a"])
}

func TestRunnerScanReplacesPreviousResult(t *testing.T) {
	src := staticSource{market("m1", domain.VenuePolymarket, "q", 0.60, 0.55)}
	r := NewRunner(RunnerConfig{Scanner: NewScanner(DefaultConfig()), Source: src, Logger: discardLogger()})
	_, err := r.ScanOnce(context.Background())
	require.NoError(t, err)

	r.source = staticSource{market("m1", domain.VenuePolymarket, "q", 0.50, 0.50)}
	_, err = r.ScanOnce(context.Background())
	require.NoError(t, err)

	latest, _ := r.Latest()
	assert.Empty(t, latest)
}

func TestRunnerReportsJournalFailure(t *testing.T) {
	j := &failingJournal{}
	r := NewRunner(RunnerConfig{
		Scanner: NewScanner(DefaultConfig()),
		Source:  staticSource{market("m1", domain.VenuePolymarket, "q", 0.60, 0.55)},
		Journal: j,
		Logger:  discardLogger(),
	})

	opps, err := r.ScanOnce(context.Background())
	assert.Error(t, err)
	assert.Len(t, opps, 1)
	assert.Equal(t, 1, j.calls)

	latest, _ := r.Latest()
	assert.Len(t, latest, 1)
}

func TestRunnerSkipsTickWhenLockHeld(t *testing.T) {
	r := NewRunner(RunnerConfig{
		Scanner: NewScanner(DefaultConfig()),
		Source:  staticSource{market("m1", domain.VenuePolymarket, "q", 0.60, 0.55)},
		Locks:   heldLocks{},
		Logger:  discardLogger(),
	})

	r.tick(context.Background(), time.Second)
	latest, at := r.Latest()
	assert.Empty(t, latest)
	assert.True(t, at.IsZero())
}

func TestRunnerRunStopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	r := NewRunner(RunnerConfig{Scanner: NewScanner(cfg), Source: staticSource{}, Logger: discardLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
