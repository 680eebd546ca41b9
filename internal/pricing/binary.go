package pricing

import (
	"math"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

const (
	secondsPerYear = 365 * 24 * 3600

	ivLow     = 0.001
	ivHigh    = 5.0
	ivGrid    = 64
	ivTol     = 1e-8
	ivMaxIter = 100
)

// Config holds pricing parameters.
type Config struct {
	RiskFreeRate  float64
	MinVolatility float64 // floor substituted for σ ≤ 0
	FeeRate       float64 // subtracted from the raw edge
	PriceFloor    float64
	PriceCeil     float64
}

// DefaultConfig returns the production pricing defaults.
func DefaultConfig() Config {
	return Config{
		RiskFreeRate:  0.05,
		MinVolatility: 0.01,
		FeeRate:       0.02,
		PriceFloor:    0.001,
		PriceCeil:     0.999,
	}
}

// Pricer values binary (digital) options under Black-Scholes. It holds no
// mutable state and is safe for concurrent use.
type Pricer struct {
	cfg Config
}

// NewPricer creates a Pricer.
func NewPricer(cfg Config) *Pricer {
	if cfg.MinVolatility <= 0 {
		cfg.MinVolatility = 0.01
	}
	if cfg.PriceFloor <= 0 || cfg.PriceCeil <= cfg.PriceFloor || cfg.PriceCeil >= 1 {
		cfg.PriceFloor, cfg.PriceCeil = 0.001, 0.999
	}
	return &Pricer{cfg: cfg}
}

// YearsUntil converts seconds to expiry into years.
func YearsUntil(seconds float64) float64 {
	return seconds / secondsPerYear
}

func (p *Pricer) sigma(s float64) float64 {
	if s <= 0 || math.IsNaN(s) {
		return p.cfg.MinVolatility
	}
	return s
}

// d2 assumes T > 0 and σ > 0.
func (p *Pricer) d2(S, K, T, sigma float64) float64 {
	return (math.Log(S/K) + (p.cfg.RiskFreeRate-sigma*sigma/2)*T) / (sigma * math.Sqrt(T))
}

// rawCall is the unclamped binary call value.
func (p *Pricer) rawCall(S, K, T, sigma float64) float64 {
	if T <= 0 {
		if S >= K {
			return 1
		}
		return 0
	}
	if S <= 0 || K <= 0 {
		return 0
	}
	return math.Exp(-p.cfg.RiskFreeRate*T) * normCDF(p.d2(S, K, T, p.sigma(sigma)))
}

func (p *Pricer) rawPut(S, K, T, sigma float64) float64 {
	if T <= 0 {
		if S < K {
			return 1
		}
		return 0
	}
	if S <= 0 || K <= 0 {
		return 0
	}
	return math.Exp(-p.cfg.RiskFreeRate*T) * normCDF(-p.d2(S, K, T, p.sigma(sigma)))
}

func (p *Pricer) clampPrice(v float64) float64 {
	return clamp(v, p.cfg.PriceFloor, p.cfg.PriceCeil)
}

// CallPrice is the fair value of the yes token (pays 1 if S_T ≥ K).
// T is in years. The result is clamped to the configured price bounds.
func (p *Pricer) CallPrice(S, K, T, sigma float64) float64 {
	return p.clampPrice(p.rawCall(S, K, T, sigma))
}

// PutPrice is the fair value of the no token (pays 1 if S_T < K).
func (p *Pricer) PutPrice(S, K, T, sigma float64) float64 {
	return p.clampPrice(p.rawPut(S, K, T, sigma))
}

// Greeks returns the closed-form sensitivities of the binary call. Theta
// is the value change per year of calendar time. All are zero at expiry.
func (p *Pricer) Greeks(S, K, T, sigma float64) domain.Greeks {
	if T <= 0 || S <= 0 || K <= 0 {
		return domain.Greeks{}
	}
	sigma = p.sigma(sigma)
	r := p.cfg.RiskFreeRate
	sqrtT := math.Sqrt(T)
	d2 := p.d2(S, K, T, sigma)
	d1 := d2 + sigma*sqrtT
	disc := math.Exp(-r * T)
	pdf := normPDF(d2)

	// ∂d2/∂T
	dd2dT := -math.Log(S/K)/(2*sigma*T*sqrtT) + (r-sigma*sigma/2)/(2*sigma*sqrtT)

	return domain.Greeks{
		Delta: disc * pdf / (S * sigma * sqrtT),
		Gamma: -disc * pdf * d1 / (S * S * sigma * sigma * T),
		Vega:  -disc * pdf * d1 / sigma,
		Theta: r*disc*normCDF(d2) - disc*pdf*dd2dT,
	}
}

// ImpliedVolatility solves CallPrice(σ) = price over σ ∈ [0.001, 5]. The
// range is scanned for the first sign change and refined with Brent's
// method. When no bracket exists a capped fallback is returned. Expired
// contracts return 0.
func (p *Pricer) ImpliedVolatility(price, S, K, T float64) float64 {
	if T <= 0 || S <= 0 || K <= 0 {
		return 0
	}
	f := func(sigma float64) float64 { return p.rawCall(S, K, T, sigma) - price }

	prevS := ivLow
	prevF := f(prevS)
	if prevF == 0 {
		return prevS
	}
	step := (ivHigh - ivLow) / ivGrid
	for i := 1; i <= ivGrid; i++ {
		s := ivLow + float64(i)*step
		fs := f(s)
		if fs == 0 {
			return s
		}
		if prevF*fs < 0 {
			return brent(f, prevS, s, prevF, fs, ivTol, ivMaxIter)
		}
		prevS, prevF = s, fs
	}

	if price > 0.5 {
		return 0.5
	}
	return 0.8
}

// Analyze prices both tokens of a snapshot with volatility sigma and
// compares them with the market.
func (p *Pricer) Analyze(snap domain.MarketSnapshot, sigma float64) domain.PricingResult {
	S, K := snap.UnderlyingPrice, snap.StrikePrice
	T := YearsUntil(snap.ExpirySeconds)
	sigma = p.sigma(sigma)

	yes := p.side(p.CallPrice(S, K, T, sigma), snap.YesPrice, T, sigma)
	no := p.side(p.PutPrice(S, K, T, sigma), snap.NoPrice, T, sigma)

	var iv float64
	if snap.YesPrice > 0 && snap.YesPrice < 1 {
		iv = p.ImpliedVolatility(snap.YesPrice, S, K, T)
	}

	return domain.PricingResult{
		MarketID:          snap.MarketID,
		TheoreticalPrice:  yes.TheoreticalPrice,
		ImpliedVolatility: iv,
		Volatility:        sigma,
		TimeToExpiry:      T,
		Greeks:            p.Greeks(S, K, T, sigma),
		Edge:              yes.Edge,
		Confidence:        yes.Confidence,
		Yes:               yes,
		No:                no,
	}
}

func (p *Pricer) side(theo, market, T, sigma float64) domain.SideAnalysis {
	edge := theo - market
	net := edge - p.cfg.FeeRate
	conf := confidence(edge, T, sigma)
	return domain.SideAnalysis{
		TheoreticalPrice: theo,
		MarketPrice:      market,
		Edge:             edge,
		NetEdge:          net,
		Confidence:       conf,
		Recommendation:   recommend(net, conf, T),
	}
}

func confidence(mispricing, T, sigma float64) float64 {
	mis := math.Min(1, math.Abs(mispricing)*5)
	tc := math.Max(0.3, 1-T)
	vc := math.Max(0.3, 1-sigma/2)
	return round(mis*0.5+tc*0.25+vc*0.25, 3)
}

func recommend(netEdge, conf, T float64) domain.Recommendation {
	switch {
	case T < 1.0/(365*24*60):
		return domain.RecNearExpiry
	case conf < 0.4:
		return domain.RecNoTrade
	case netEdge > 0.03:
		return domain.RecStrongBuy
	case netEdge > 0.01:
		return domain.RecConsider
	case netEdge > 0:
		return domain.RecSmallEdge
	default:
		return domain.RecNoEdge
	}
}
