package spread

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

const historyLimit = 100

// Config holds spread bounds, factor weights and smoothing.
type Config struct {
	BaseSpread          float64
	MinSpread           float64
	MaxSpread           float64
	VolatilityWeight    float64
	LiquidityWeight     float64
	VolumeWeight        float64
	PressureWeight      float64
	DepthWeight         float64
	ImbalanceWeight     float64
	AdjustmentSpeed     float64 // α in new = old·(1−α) + target·α
	ConfidenceThreshold float64
}

// DefaultConfig returns the production spread defaults.
func DefaultConfig() Config {
	return Config{
		BaseSpread:          0.02,
		MinSpread:           0.005,
		MaxSpread:           0.10,
		VolatilityWeight:    0.30,
		LiquidityWeight:     0.25,
		VolumeWeight:        0.20,
		PressureWeight:      0.15,
		DepthWeight:         0.05,
		ImbalanceWeight:     0.05,
		AdjustmentSpeed:     0.5,
		ConfidenceThreshold: 0.6,
	}
}

// Adjustment is the calculator's output for one market.
type Adjustment struct {
	MarketID   string
	NewSpread  float64
	Confidence float64
	Reason     string
	Factors    map[string]float64
	Timestamp  time.Time
}

// Actionable reports whether the confidence clears the configured threshold.
func (a Adjustment) Actionable(threshold float64) bool {
	return a.Confidence >= threshold
}

// Stats summarises calculator activity.
type Stats struct {
	AdjustmentCount  int     `json:"adjustment_count"`
	TotalAdjustments float64 `json:"total_adjustments"`
	AvgAdjustment    float64 `json:"avg_adjustment"`
	MarketsTracked   int     `json:"markets_tracked"`
}

// Calculator produces smoothed, bounded spread adjustments. The factor
// arithmetic is pure; the mutex guards only history and counters.
type Calculator struct {
	cfg Config

	mu      sync.Mutex
	history map[string][]float64
	count   int
	total   float64
}

// NewCalculator creates a Calculator.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg, history: make(map[string][]float64)}
}

// Config returns the calculator configuration.
func (c *Calculator) Config() Config { return c.cfg }

// Adjust computes the next spread for marketID from the current spread.
func (c *Calculator) Adjust(marketID string, cond Condition, current float64) Adjustment {
	factors := computeFactors(cond)

	weighted := factors[FactorVolatility]*c.cfg.VolatilityWeight +
		factors[FactorLiquidity]*c.cfg.LiquidityWeight +
		factors[FactorVolume]*c.cfg.VolumeWeight +
		factors[FactorPressure]*c.cfg.PressureWeight +
		factors[FactorDepthTrend]*c.cfg.DepthWeight +
		factors[FactorImbalance]*c.cfg.ImbalanceWeight

	target := current * (1 + weighted)
	clamped := math.Max(c.cfg.MinSpread, math.Min(c.cfg.MaxSpread, target))
	alpha := c.cfg.AdjustmentSpeed
	smoothed := current*(1-alpha) + clamped*alpha

	c.record(marketID, smoothed, math.Abs(smoothed-current))

	rounded := make(map[string]float64, len(factors))
	for k, v := range factors {
		rounded[k] = roundTo(v, 4)
	}
	return Adjustment{
		MarketID:   marketID,
		NewSpread:  roundTo(smoothed, 6),
		Confidence: roundTo(confidence(cond, factors), 3),
		Reason:     reason(cond, factors, weighted),
		Factors:    rounded,
		Timestamp:  time.Now(),
	}
}

func (c *Calculator) record(marketID string, spread, delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := append(c.history[marketID], spread)
	if len(h) > historyLimit {
		h = h[len(h)-historyLimit:]
	}
	c.history[marketID] = h
	c.count++
	c.total += delta
}

// History returns a copy of the recent spreads for a market.
func (c *Calculator) History(marketID string) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.history[marketID]...)
}

// SpreadVolatility is the population standard deviation of the market's
// recent spreads, or 0 with fewer than two entries.
func (c *Calculator) SpreadVolatility(marketID string) float64 {
	h := c.History(marketID)
	if len(h) < 2 {
		return 0
	}
	var mean float64
	for _, v := range h {
		mean += v
	}
	mean /= float64(len(h))
	var ss float64
	for _, v := range h {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(h)))
}

// Stats returns counters since the last Reset.
func (c *Calculator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		AdjustmentCount:  c.count,
		TotalAdjustments: roundTo(c.total, 6),
		AvgAdjustment:    roundTo(c.total/float64(max(1, c.count)), 6),
		MarketsTracked:   len(c.history),
	}
}

// Reset clears history and counters.
func (c *Calculator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = make(map[string][]float64)
	c.count = 0
	c.total = 0
}

// confidence starts at 0.5 and rewards populated inputs, factors that
// agree in sign, and a moderate total adjustment.
func confidence(cond Condition, factors map[string]float64) float64 {
	conf := 0.5
	if cond.Volatility > 0 {
		conf += 0.1
	}
	if cond.Liquidity > 0 {
		conf += 0.1
	}
	if cond.Volume > 0 {
		conf += 0.1
	}

	var pos, neg int
	var sum float64
	for _, f := range factors {
		sum += f
		switch {
		case f > 0:
			pos++
		case f < 0:
			neg++
		}
	}
	// zero factors abstain
	if (pos > 0 && neg == 0) || (neg > 0 && pos == 0) {
		conf += 0.15
	}
	if s := math.Abs(sum); s > 0.05 && s < 0.3 {
		conf += 0.05
	}
	return math.Min(1, conf)
}

func reason(cond Condition, factors map[string]float64, weighted float64) string {
	var parts []string
	for _, name := range factorOrder {
		f := factors[name]
		if math.Abs(f) <= 0.05 {
			continue
		}
		switch name {
		case FactorVolatility:
			parts = append(parts, pick(f > 0, "high volatility", "low volatility"))
		case FactorLiquidity:
			parts = append(parts, "thin liquidity")
		case FactorVolume:
			parts = append(parts, "high volume")
		case FactorPressure:
			parts = append(parts, pick(cond.Pressure > 0, "buy pressure", "sell pressure"))
		case FactorDepthTrend:
			parts = append(parts, "falling depth")
		case FactorImbalance:
			parts = append(parts, "book imbalance")
		}
	}
	if len(parts) == 0 {
		return "market stable"
	}
	return fmt.Sprintf("%s spread: %s", pick(weighted > 0, "widen", "narrow"), strings.Join(parts, ", "))
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func roundTo(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(x*p) / p
}
