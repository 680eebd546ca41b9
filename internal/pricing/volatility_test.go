package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoricalVolatility(t *testing.T) {
	e := NewVolatilityEstimator(DefaultVolatilityConfig())

	v := e.Historical([]float64{100, 101, 99, 102, 98})
	assert.Greater(t, v, 0.0)
	assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))

	assert.Equal(t, 0.5, e.Historical([]float64{100}))
	assert.Equal(t, 0.5, e.Historical(nil))
	assert.Equal(t, 0.5, e.Historical([]float64{100, 101}))
}

func TestHistoricalVolatilityValue(t *testing.T) {
	e := NewVolatilityEstimator(VolatilityConfig{Window: 20, PeriodsPerYear: 1, Default: 0.5})
	prices := []float64{100, 110, 100}
	r1, r2 := math.Log(1.1), math.Log(100.0/110)
	mean := (r1 + r2) / 2
	want := math.Sqrt(((r1-mean)*(r1-mean) + (r2-mean)*(r2-mean)) / 1)
	assert.InDelta(t, want, e.Historical(prices), 1e-12)
}

func TestHistoricalUsesWindow(t *testing.T) {
	e := NewVolatilityEstimator(VolatilityConfig{Window: 2, PeriodsPerYear: 1, Default: 0.5})
	// only the last two returns are flat
	assert.Equal(t, 0.0, e.Historical([]float64{100, 150, 75, 75, 75}))
}

func TestParkinson(t *testing.T) {
	e := NewVolatilityEstimator(VolatilityConfig{Window: 20, PeriodsPerYear: 1, Default: 0.5})
	highs := []float64{101, 102, 0}
	lows := []float64{99, 100, 98}
	l1, l2 := math.Log(101.0/99), math.Log(102.0/100)
	want := math.Sqrt((l1*l1 + l2*l2) / (4 * 2 * math.Ln2))
	assert.InDelta(t, want, e.Parkinson(highs, lows), 1e-12)

	assert.Equal(t, 0.5, e.Parkinson(nil, nil))
	assert.Equal(t, 0.5, e.Parkinson([]float64{0}, []float64{1}))
}

func TestEstimatePrefersCloseToClose(t *testing.T) {
	e := NewVolatilityEstimator(VolatilityConfig{Window: 3, PeriodsPerYear: 1, Default: 0.5})
	prices := []float64{100, 101, 102, 103, 104}
	assert.Equal(t, e.Historical(prices), e.Estimate(prices, []float64{110}, []float64{90}))
	assert.Equal(t, e.Parkinson([]float64{110}, []float64{90}), e.Estimate(prices[:2], []float64{110}, []float64{90}))
	assert.Equal(t, 0.5, e.Estimate([]float64{100}, nil, nil))
}

func TestPerPeriodInvertsAnnualisation(t *testing.T) {
	e := NewVolatilityEstimator(VolatilityConfig{PeriodsPerYear: 100})
	assert.InDelta(t, 0.05, e.PerPeriod(0.5), 1e-12)
}
