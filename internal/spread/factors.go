package spread

import "math"

// Factor names used in Adjustment.Factors.
const (
	FactorVolatility = "volatility"
	FactorLiquidity  = "liquidity"
	FactorVolume     = "volume"
	FactorPressure   = "pressure"
	FactorDepthTrend = "depth_trend"
	FactorImbalance  = "imbalance"
)

var factorOrder = []string{
	FactorVolatility, FactorLiquidity, FactorVolume,
	FactorPressure, FactorDepthTrend, FactorImbalance,
}

// Condition is the market state fed to the calculator. Volatility is the
// per-period (not annualised) standard deviation of returns.
type Condition struct {
	Volatility float64
	Liquidity  float64
	Spread     float64
	Volume     float64
	Pressure   float64 // [-1, 1], positive means buy pressure
	DepthTrend float64 // 1 means unchanged depth
	Imbalance  float64 // [-1, 1]
}

// volatilityFactor widens above 1% and narrows below 0.5%.
func volatilityFactor(v float64) float64 {
	switch {
	case v > 0.01:
		return math.Min((v-0.01)*5, 0.5)
	case v < 0.005:
		return -(0.005 - v) * 3
	}
	return 0
}

// liquidityFactor widens when resting size is below 1000.
func liquidityFactor(liq float64) float64 {
	const threshold = 1000
	if liq < threshold {
		return (threshold - math.Max(liq, 0)) / threshold * 0.3
	}
	return 0
}

// volumeFactor narrows when traded volume is above 10000.
func volumeFactor(vol float64) float64 {
	const threshold = 10000
	if vol > threshold {
		return -math.Min((vol-threshold)/threshold*0.2, 0.2)
	}
	return 0
}

func pressureFactor(p float64) float64 {
	if a := math.Abs(p); a > 0.5 {
		return (a - 0.5) * 0.3
	}
	return 0
}

func depthTrendFactor(d float64) float64 {
	if d < 0.8 {
		return (0.8 - d) * 0.2
	}
	return 0
}

func imbalanceFactor(i float64) float64 {
	if a := math.Abs(i); a > 0.3 {
		return (a - 0.3) * 0.3
	}
	return 0
}

func computeFactors(c Condition) map[string]float64 {
	return map[string]float64{
		FactorVolatility: volatilityFactor(c.Volatility),
		FactorLiquidity:  liquidityFactor(c.Liquidity),
		FactorVolume:     volumeFactor(c.Volume),
		FactorPressure:   pressureFactor(c.Pressure),
		FactorDepthTrend: depthTrendFactor(c.DepthTrend),
		FactorImbalance:  imbalanceFactor(c.Imbalance),
	}
}
