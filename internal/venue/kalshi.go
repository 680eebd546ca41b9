package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// DefaultKalshiURL is the public Kalshi trade API root.
const DefaultKalshiURL = "https://api.elections.kalshi.com/trade-api/v2"

// KalshiLister reads market data from Kalshi's public endpoints. No
// request signing is needed for reads.
type KalshiLister struct {
	baseURL    string
	httpClient *http.Client
}

// NewKalshiLister creates a Kalshi client.
func NewKalshiLister(baseURL string, timeout time.Duration) *KalshiLister {
	if baseURL == "" {
		baseURL = DefaultKalshiURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KalshiLister{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// kalshiMarket carries prices in cents (1-99).
type kalshiMarket struct {
	Ticker         string  `json:"ticker"`
	Title          string  `json:"title"`
	Status         string  `json:"status"` // "open", "closed", "settled"
	YesBid         float64 `json:"yes_bid"`
	YesAsk         float64 `json:"yes_ask"`
	NoBid          float64 `json:"no_bid"`
	NoAsk          float64 `json:"no_ask"`
	LastPrice      float64 `json:"last_price"`
	Volume24H      float64 `json:"volume_24h"`
	Liquidity      float64 `json:"liquidity"` // cents
	FloorStrike    float64 `json:"floor_strike"`
	ExpirationTime string  `json:"expiration_time"`
	CloseTime      string  `json:"close_time"`
}

// Snapshot returns the mid prices for m.
func (k *KalshiLister) Snapshot(ctx context.Context, m Market) (domain.MarketSnapshot, error) {
	path := "/markets/" + url.PathEscape(m.externalID())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+path, nil)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("kalshi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	body, err := do(k.httpClient, req)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("kalshi: get market %s: %w", m.ID, err)
	}

	var resp struct {
		Market kalshiMarket `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("kalshi: decode market: %w", err)
	}
	km := resp.Market
	if km.Status != "" && km.Status != "open" && km.Status != "active" {
		return domain.MarketSnapshot{}, fmt.Errorf("kalshi: market %s is %s", m.ID, km.Status)
	}

	yes := centsMid(km.YesBid, km.YesAsk, km.LastPrice)
	no := centsMid(km.NoBid, km.NoAsk, 100-km.LastPrice)
	if yes <= 0 || no <= 0 {
		return domain.MarketSnapshot{}, fmt.Errorf("kalshi: market %s has no prices", m.ID)
	}

	now := time.Now().UTC()
	snap := domain.MarketSnapshot{
		Question:    km.Title,
		YesPrice:    yes,
		NoPrice:     no,
		Liquidity:   km.Liquidity / 100,
		Volume24h:   km.Volume24H,
		StrikePrice: km.FloorStrike,
		Timestamp:   now,
	}
	expiry := km.CloseTime
	if expiry == "" {
		expiry = km.ExpirationTime
	}
	if end, err := time.Parse(time.RFC3339, expiry); err == nil {
		snap.ExpirySeconds = max(0, end.Sub(now).Seconds())
	}
	return complete(snap, m, now), nil
}

// centsMid converts a bid/ask pair in cents to a probability. A one-sided
// or empty book falls back to the last trade.
func centsMid(bid, ask, last float64) float64 {
	var c float64
	switch {
	case bid > 0 && ask > 0:
		c = (bid + ask) / 2
	case last > 0 && last < 100:
		c = last
	default:
		return 0
	}
	return c / 100
}
