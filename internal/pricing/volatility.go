package pricing

import "math"

// MinutesPerYear is the annualisation factor for one-minute samples.
const MinutesPerYear = 525600

// VolatilityConfig controls the volatility estimator.
type VolatilityConfig struct {
	Window         int     // number of returns (or bars) used
	PeriodsPerYear float64 // sampling periods per year
	Default        float64 // returned when there is not enough data
}

// DefaultVolatilityConfig matches one-minute sampling.
func DefaultVolatilityConfig() VolatilityConfig {
	return VolatilityConfig{Window: 20, PeriodsPerYear: MinutesPerYear, Default: 0.5}
}

// VolatilityEstimator turns price history into an annualised volatility.
// It never fails: insufficient or invalid input yields the default.
type VolatilityEstimator struct {
	cfg VolatilityConfig
}

// NewVolatilityEstimator creates an estimator, filling zero fields from
// DefaultVolatilityConfig.
func NewVolatilityEstimator(cfg VolatilityConfig) *VolatilityEstimator {
	def := DefaultVolatilityConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = def.PeriodsPerYear
	}
	if cfg.Default <= 0 {
		cfg.Default = def.Default
	}
	return &VolatilityEstimator{cfg: cfg}
}

// Default returns the fallback volatility.
func (e *VolatilityEstimator) Default() float64 { return e.cfg.Default }

// Historical computes close-to-close volatility from the last Window log
// returns using the sample variance.
func (e *VolatilityEstimator) Historical(prices []float64) float64 {
	returns := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) > e.cfg.Window {
		returns = returns[len(returns)-e.cfg.Window:]
	}
	if len(returns) < 2 {
		return e.cfg.Default
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	return e.annualise(std)
}

// Parkinson computes range-based volatility from high/low pairs. Pairs
// with a non-positive price are skipped.
func (e *VolatilityEstimator) Parkinson(highs, lows []float64) float64 {
	n := min(len(highs), len(lows))
	start := 0
	if n > e.cfg.Window {
		start = n - e.cfg.Window
	}

	var sum float64
	valid := 0
	for i := start; i < n; i++ {
		h, l := highs[i], lows[i]
		if h <= 0 || l <= 0 {
			continue
		}
		lr := math.Log(h / l)
		sum += lr * lr
		valid++
	}
	if valid < 1 {
		return e.cfg.Default
	}
	return e.annualise(math.Sqrt(sum / (4 * float64(valid) * math.Ln2)))
}

// Estimate picks the best available estimator: close-to-close when more
// than Window prices exist, then Parkinson, then the default.
func (e *VolatilityEstimator) Estimate(prices, highs, lows []float64) float64 {
	if len(prices) > e.cfg.Window {
		return e.Historical(prices)
	}
	if len(highs) > 0 && len(lows) > 0 {
		return e.Parkinson(highs, lows)
	}
	if len(prices) >= 3 {
		return e.Historical(prices)
	}
	return e.cfg.Default
}

// PerPeriod converts an annualised volatility back to one sampling period.
func (e *VolatilityEstimator) PerPeriod(annual float64) float64 {
	return annual / math.Sqrt(e.cfg.PeriodsPerYear)
}

func (e *VolatilityEstimator) annualise(std float64) float64 {
	v := std * math.Sqrt(e.cfg.PeriodsPerYear)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return e.cfg.Default
	}
	return v
}
