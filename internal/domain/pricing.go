package domain

// Greeks are sensitivities of a binary option price.
type Greeks struct {
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
}

// Recommendation is the pricer's verdict on one side of a market.
type Recommendation string

const (
	RecStrongBuy  Recommendation = "strong_buy"
	RecConsider   Recommendation = "consider"
	RecSmallEdge  Recommendation = "small_edge"
	RecNoEdge     Recommendation = "no_edge"
	RecNoTrade    Recommendation = "no_trade"
	RecNearExpiry Recommendation = "near_expiry"
)

// SideAnalysis compares the model price of one token with its market price.
type SideAnalysis struct {
	TheoreticalPrice float64
	MarketPrice      float64
	Edge             float64 // theoretical − market
	NetEdge          float64 // edge after fees
	Confidence       float64
	Recommendation   Recommendation
}

// PricingResult is the pricer's output for one snapshot. The top-level
// price, edge and confidence describe the yes side.
type PricingResult struct {
	MarketID          string
	TheoreticalPrice  float64
	ImpliedVolatility float64
	Volatility        float64
	TimeToExpiry      float64 // years
	Greeks            Greeks
	Edge              float64
	Confidence        float64
	Yes               SideAnalysis
	No                SideAnalysis
}

// Best returns the token with the larger net edge.
func (r PricingResult) Best() (Token, SideAnalysis) {
	if r.No.NetEdge > r.Yes.NetEdge {
		return TokenNo, r.No
	}
	return TokenYes, r.Yes
}
