package feed

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

// DefaultBinanceRESTURL is the spot REST root.
const DefaultBinanceRESTURL = "https://api.binance.com/api/v3"

// RESTClient reads the reference price over Binance's public REST API. It
// backs the stream when the stream is stale and warms up bar history at
// start-up.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a REST client. An empty baseURL uses the public
// spot endpoint.
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	if baseURL == "" {
		baseURL = DefaultBinanceRESTURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// LatestPrice returns the last traded price for symbol.
func (c *RESTClient) LatestPrice(ctx context.Context, symbol string) (domain.PriceTick, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))

	body, err := c.doGet(ctx, "/ticker/price?"+params.Encode())
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("binance/rest: ticker %s: %w", symbol, err)
	}

	var tp tickerPrice
	if err := json.Unmarshal(body, &tp); err != nil {
		return domain.PriceTick{}, fmt.Errorf("binance/rest: decode ticker: %w", err)
	}
	price := parseFloat(tp.Price)
	if price <= 0 {
		return domain.PriceTick{}, fmt.Errorf("binance/rest: ticker %s: bad price %q", symbol, tp.Price)
	}
	return domain.PriceTick{Symbol: tp.Symbol, Price: price, Timestamp: time.Now().UTC()}, nil
}

// Klines returns up to limit bars for symbol, oldest first.
func (c *RESTClient) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.doGet(ctx, "/klines?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("binance/rest: klines %s: %w", symbol, err)
	}

	// Each row is [openTime, open, high, low, close, volume, closeTime, ...].
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance/rest: decode klines: %w", err)
	}

	bars := make([]domain.Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		var (
			openTime, closeTime             int64
			open, high, low, closeP, volume string
		)
		if json.Unmarshal(row[0], &openTime) != nil ||
			json.Unmarshal(row[1], &open) != nil ||
			json.Unmarshal(row[2], &high) != nil ||
			json.Unmarshal(row[3], &low) != nil ||
			json.Unmarshal(row[4], &closeP) != nil ||
			json.Unmarshal(row[5], &volume) != nil ||
			json.Unmarshal(row[6], &closeTime) != nil {
			continue
		}
		bars = append(bars, domain.Kline{
			Symbol:    strings.ToUpper(symbol),
			Interval:  interval,
			Open:      parseFloat(open),
			High:      parseFloat(high),
			Low:       parseFloat(low),
			Close:     parseFloat(closeP),
			Volume:    parseFloat(volume),
			OpenTime:  time.UnixMilli(openTime).UTC(),
			CloseTime: time.UnixMilli(closeTime).UTC(),
		})
	}
	return bars, nil
}

func (c *RESTClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
