package arbitrage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/risk"
)

type stubGate struct {
	prices   []float64
	rejectOn int // 1-based admission to reject, 0 admits all
	warnings []string
	raised   []string
}

func (g *stubGate) Admit(_ context.Context, _, price float64) ([]string, error) {
	g.prices = append(g.prices, price)
	if g.rejectOn == len(g.prices) {
		return nil, errors.New("size cap")
	}
	return g.warnings, nil
}

func (g *stubGate) RaiseWarning(_, msg string, _ map[string]any) {
	g.raised = append(g.raised, msg)
}

type recordingSink struct{ got []domain.Decision }

func (s *recordingSink) Emit(_ context.Context, d domain.Decision) error {
	s.got = append(s.got, d)
	return nil
}

func buyBothOpportunity(t *testing.T) domain.ArbitrageOpportunity {
	t.Helper()
	opps := NewScanner(DefaultConfig()).Scan([]domain.MarketSnapshot{
		market("m1", domain.VenuePolymarket, "Will it rain?", 0.40, 0.50),
	})
	require.Len(t, opps, 1)
	require.Equal(t, ActionBuyBoth, opps[0].Action)
	return opps[0]
}

func testExecutorConfig() ExecutorConfig {
	return ExecutorConfig{SizeUSD: 500, MaxShares: 100, MinConfidence: 0.8}
}

func TestExecutorBuyBothEmitsBothLegs(t *testing.T) {
	gate := &stubGate{warnings: []string{"large trade $40.00"}}
	sink := &recordingSink{}
	x := NewExecutor(testExecutorConfig(), gate, sink, discardLogger())

	out, err := x.Execute(context.Background(), buyBothOpportunity(t))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, out, sink.got)

	assert.Equal(t, domain.ActionBuyYes, out[0].Action)
	assert.Equal(t, 0.40, out[0].LimitPrice)
	assert.Equal(t, domain.ActionBuyNo, out[1].Action)
	assert.Equal(t, 0.50, out[1].LimitPrice)
	for _, d := range out {
		assert.Equal(t, "m1", d.MarketID)
		assert.Equal(t, 100.0, d.Size, "500 USD over a 0.90 pair is capped at 100 shares")
		assert.Equal(t, "arbitrage", d.Source)
		assert.Equal(t, domain.PriorityHigh, d.Priority)
		assert.NotEmpty(t, d.ID)
		assert.False(t, d.CreatedAt.IsZero())
	}
	assert.Equal(t, []float64{0.40, 0.50}, gate.prices)
	assert.Len(t, gate.raised, 2)
}

func TestExecutorCrossVenueBuysCheapYesAndDearNo(t *testing.T) {
	dear := market("k1", domain.VenueKalshi, "BTC above 100k", 0.55, 0.45)
	cheap := market("p1", domain.VenuePolymarket, "BTC above 100k", 0.40, 0.60)
	o := domain.ArbitrageOpportunity{
		ID:            "o1",
		Type:          domain.ArbCrossVenue,
		MarketA:       dear,
		MarketB:       &cheap,
		ProfitPercent: 0.078,
		Confidence:    1,
		Action:        crossAction(cheap.Venue, dear.Venue),
	}
	cfg := testExecutorConfig()
	cfg.SizeUSD = 50
	x := NewExecutor(cfg, &stubGate{}, &recordingSink{}, discardLogger())

	legs := x.Legs(o)
	require.Len(t, legs, 2)
	assert.Equal(t, "p1", legs[0].MarketID)
	assert.Equal(t, domain.ActionBuyYes, legs[0].Action)
	assert.Equal(t, 0.40, legs[0].LimitPrice)
	assert.Equal(t, "k1", legs[1].MarketID)
	assert.Equal(t, domain.ActionBuyNo, legs[1].Action)
	assert.InDelta(t, 0.45, legs[1].LimitPrice, 1e-12)
	assert.Equal(t, 58.82, legs[0].Size)
	assert.Equal(t, legs[0].Size, legs[1].Size)
}

func TestExecutorSkipsSellBoth(t *testing.T) {
	opps := NewScanner(DefaultConfig()).Scan([]domain.MarketSnapshot{
		market("m1", domain.VenuePolymarket, "q", 0.60, 0.55),
	})
	require.Len(t, opps, 1)
	gate := &stubGate{}
	x := NewExecutor(testExecutorConfig(), gate, &recordingSink{}, discardLogger())

	assert.Empty(t, x.Legs(opps[0]))
	out, err := x.Execute(context.Background(), opps[0])
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, gate.prices)
}

func TestExecutorRejectedLegEmitsNothing(t *testing.T) {
	gate := &stubGate{rejectOn: 2}
	sink := &recordingSink{}
	x := NewExecutor(testExecutorConfig(), gate, sink, discardLogger())

	out, err := x.Execute(context.Background(), buyBothOpportunity(t))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, sink.got)
	assert.Len(t, gate.prices, 2)
}

func TestExecutorIgnoresLowConfidence(t *testing.T) {
	gate := &stubGate{}
	cfg := testExecutorConfig()
	cfg.MinConfidence = 0.95
	x := NewExecutor(cfg, gate, &recordingSink{}, discardLogger())

	out, err := x.Execute(context.Background(), buyBothOpportunity(t))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, gate.prices)
}

func TestExecutorHonoursRiskManager(t *testing.T) {
	rm := risk.NewManager(risk.DefaultConfig(), discardLogger())
	sink := &recordingSink{}

	uncapped := testExecutorConfig()
	uncapped.MaxShares = 0
	x := NewExecutor(uncapped, rm, sink, discardLogger())
	out, err := x.Execute(context.Background(), buyBothOpportunity(t))
	require.NoError(t, err)
	assert.Empty(t, out, "555 shares per leg exceeds the risk size cap")

	x = NewExecutor(testExecutorConfig(), rm, sink, discardLogger())
	out, err = x.Execute(context.Background(), buyBothOpportunity(t))
	require.NoError(t, err)
	assert.Len(t, out, 2)

	rm.EmergencyStop("manual")
	out, err = x.Execute(context.Background(), buyBothOpportunity(t))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRunnerExecutesBestOpportunity(t *testing.T) {
	sink := &recordingSink{}
	r := NewRunner(RunnerConfig{
		Scanner: NewScanner(DefaultConfig()),
		Source: staticSource{
			market("m1", domain.VenuePolymarket, "rain", 0.45, 0.50),
			market("m2", domain.VenuePolymarket, "snow", 0.40, 0.50),
		},
		Executor: NewExecutor(testExecutorConfig(), &stubGate{}, sink, discardLogger()),
		Logger:   discardLogger(),
	})

	opps, err := r.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 2)
	require.Len(t, sink.got, 2)
	assert.Equal(t, "m2", sink.got[0].MarketID)
	assert.Equal(t, "m2", sink.got[1].MarketID)
}
