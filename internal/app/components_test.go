package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymm/internal/config"
	"github.com/alanyoungcy/binarymm/internal/domain"
)

func testMarkets() []config.MarketConfig {
	return []config.MarketConfig{
		{
			ID:          "btc-100k",
			Venue:       "polymarket",
			ExternalID:  "0xabc",
			Question:    "Will BTC be above $100,000 on Dec 31?",
			Symbol:      "BTCUSDT",
			StrikePrice: 100000,
			Expiry:      time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:         "btc-100k-kalshi",
			Venue:      "kalshi",
			ExternalID: "KXBTC-26DEC31-B100000",
			Question:   "Bitcoin above 100k at year end",
			Symbol:     "BTCUSDT",
		},
	}
}

func TestMarketsConversion(t *testing.T) {
	ms, err := markets(testMarkets())
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, domain.VenuePolymarket, ms[0].Venue)
	assert.Equal(t, 100000.0, ms[0].StrikePrice)
	assert.Equal(t, domain.VenueKalshi, ms[1].Venue)
	assert.Equal(t, "KXBTC-26DEC31-B100000", ms[1].ExternalID)
}

func TestMarketsRejectsUnknownVenue(t *testing.T) {
	_, err := markets([]config.MarketConfig{{ID: "x", Venue: "nyse"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market x")
}

func TestExecutionConfigRejectsUnknownStyle(t *testing.T) {
	_, err := executionConfig(config.ExecutionConfig{Style: "yolo"}, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown execution style")
}

func TestBuildComponentsRoutesAlerts(t *testing.T) {
	cfg := config.Defaults()
	var got []domain.Alert
	comp, err := buildComponents(&cfg, &Dependencies{}, func(a domain.Alert) { got = append(got, a) }, discardLogger())
	require.NoError(t, err)

	require.NotNil(t, comp.pricer)
	require.NotNil(t, comp.exec)
	comp.risk.EmergencyStop("manual")
	require.Len(t, got, 1)
	assert.Equal(t, domain.AlertCritical, got[0].Level)
}

func TestBusTargetIgnoresFillsWithoutEngine(t *testing.T) {
	err := busTarget{}.HandleFill(context.Background(), domain.Fill{ID: "f1", MarketID: "m1"})
	assert.NoError(t, err)
}

func TestBuildSenders(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.NotifyConfig
		want []string
	}{
		{name: "none", want: nil},
		{
			name: "telegram without chat",
			cfg:  config.NotifyConfig{TelegramToken: "t"},
			want: nil,
		},
		{
			name: "all channels",
			cfg: config.NotifyConfig{
				TelegramToken:     "t",
				TelegramChatID:    "42",
				DiscordWebhookURL: "https://discord.example/hook",
				LarkAppID:         "cli_1",
				LarkAppSecret:     "s",
				LarkChatID:        "oc_1",
			},
			want: []string{"telegram", "discord", "lark"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var names []string
			for _, s := range buildSenders(tt.cfg) {
				names = append(names, s.Name())
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestWireSkipsInfraForBacktest(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "backtest"

	deps, cleanup, err := Wire(context.Background(), &cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.DecisionJournal)
	assert.Nil(t, deps.Reports)
	assert.Nil(t, deps.Notifier)
	assert.Empty(t, deps.Checks)
}

func TestNeedsReports(t *testing.T) {
	assert.True(t, needsReports("engine"))
	assert.True(t, needsReports("monitor"))
	assert.False(t, needsReports("scan"))
	assert.False(t, needsReports("backtest"))
}

func backtestConfig(t *testing.T) config.Config {
	t.Helper()
	data := "time,underlying,yes_price\n" +
		"2026-03-01T00:00:00Z,95000,0.40\n" +
		"2026-03-01T00:01:00Z,95100,0.41\n" +
		"2026-03-01T00:02:00Z,95050,0.41\n" +
		"2026-03-01T00:03:00Z,95200,0.42\n"
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg := config.Defaults()
	cfg.Mode = "backtest"
	cfg.Markets = testMarkets()
	cfg.Backtest.DataFile = path
	cfg.Backtest.MarketID = "btc-100k"
	return cfg
}

func TestBacktestMode(t *testing.T) {
	cfg := backtestConfig(t)
	a := New(&cfg, discardLogger())
	assert.NoError(t, a.BacktestMode(context.Background(), &Dependencies{}))
}

func TestBacktestModeUnknownMarket(t *testing.T) {
	cfg := backtestConfig(t)
	cfg.Backtest.MarketID = "missing"
	a := New(&cfg, discardLogger())

	err := a.BacktestMode(context.Background(), &Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing" is not configured`)
}

func TestBacktestModeMissingData(t *testing.T) {
	cfg := backtestConfig(t)
	cfg.Backtest.DataFile = filepath.Join(t.TempDir(), "nope.csv")
	a := New(&cfg, discardLogger())

	assert.Error(t, a.BacktestMode(context.Background(), &Dependencies{}))
}
