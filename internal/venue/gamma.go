package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// DefaultGammaURL is the Polymarket Gamma API root.
const DefaultGammaURL = "https://gamma-api.polymarket.com"

// GammaLister reads Polymarket markets from the Gamma REST API.
type GammaLister struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaLister creates a Gamma client.
func NewGammaLister(baseURL string, timeout time.Duration) *GammaLister {
	if baseURL == "" {
		baseURL = DefaultGammaURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GammaLister{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// flexFloat unmarshals from a JSON number or a numeric string; Gamma sends
// both depending on the field.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type gammaMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	OutcomePrices string    `json:"outcomePrices"` // JSON-encoded: "[\"0.5\",\"0.5\"]"
	Liquidity     flexFloat `json:"liquidity"`
	Volume24hr    flexFloat `json:"volume24hr"`
	EndDate       string    `json:"endDate"`
	Closed        bool      `json:"closed"`
}

// Snapshot returns the current yes/no prices for m.
func (g *GammaLister) Snapshot(ctx context.Context, m Market) (domain.MarketSnapshot, error) {
	path := "/markets/" + url.PathEscape(m.externalID())
	body, err := g.doGet(ctx, path)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("polymarket/gamma: get market %s: %w", m.ID, err)
	}

	var gm gammaMarket
	if err := json.Unmarshal(body, &gm); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}
	if gm.Closed {
		return domain.MarketSnapshot{}, fmt.Errorf("polymarket/gamma: market %s is closed", m.ID)
	}

	yes, no, err := parseOutcomePrices(gm.OutcomePrices)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("polymarket/gamma: market %s: %w", m.ID, err)
	}

	now := time.Now().UTC()
	snap := domain.MarketSnapshot{
		Question:  gm.Question,
		YesPrice:  yes,
		NoPrice:   no,
		Liquidity: float64(gm.Liquidity),
		Volume24h: float64(gm.Volume24hr),
		Timestamp: now,
	}
	if end, err := time.Parse(time.RFC3339, gm.EndDate); err == nil {
		snap.ExpirySeconds = max(0, end.Sub(now).Seconds())
	}
	return complete(snap, m, now), nil
}

func parseOutcomePrices(raw string) (yes, no float64, err error) {
	var prices []string
	if err := json.Unmarshal([]byte(raw), &prices); err != nil {
		return 0, 0, fmt.Errorf("outcome prices %q: %w", raw, err)
	}
	if len(prices) != 2 {
		return 0, 0, fmt.Errorf("outcome prices %q: want 2 entries", raw)
	}
	if yes, err = strconv.ParseFloat(prices[0], 64); err != nil {
		return 0, 0, fmt.Errorf("yes price: %w", err)
	}
	if no, err = strconv.ParseFloat(prices[1], 64); err != nil {
		return 0, 0, fmt.Errorf("no price: %w", err)
	}
	return yes, no, nil
}

func (g *GammaLister) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return do(g.httpClient, req)
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
