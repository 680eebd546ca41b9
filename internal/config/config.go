// Package config defines the top-level configuration for binarymm and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BINARYMM_* environment variables.
// Fields tagged toml:"-" are secrets and can only come from the environment.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Pricing     PricingConfig     `toml:"pricing"`
	Volatility  VolatilityConfig  `toml:"volatility"`
	Spread      SpreadConfig      `toml:"spread"`
	Inventory   InventoryConfig   `toml:"inventory"`
	Risk        RiskConfig        `toml:"risk"`
	Limits      LimitsConfig      `toml:"limits"`
	MarketMaker MarketMakerConfig `toml:"market_maker"`
	Execution   ExecutionConfig   `toml:"execution"`
	Arbitrage   ArbitrageConfig   `toml:"arbitrage"`
	Feed        FeedConfig        `toml:"feed"`
	Venues      VenuesConfig      `toml:"venues"`
	Markets     []MarketConfig    `toml:"markets"`
	Backtest    BacktestConfig    `toml:"backtest"`

	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
}

// PricingConfig holds the binary option pricer parameters.
type PricingConfig struct {
	RiskFreeRate  float64 `toml:"risk_free_rate"`
	MinVolatility float64 `toml:"min_volatility"`
	FeeRate       float64 `toml:"fee_rate"`
	PriceFloor    float64 `toml:"price_floor"`
	PriceCeil     float64 `toml:"price_ceil"`
}

// VolatilityConfig holds the volatility estimator parameters.
type VolatilityConfig struct {
	Window         int     `toml:"window"`
	PeriodsPerYear float64 `toml:"periods_per_year"`
	Default        float64 `toml:"default"`
}

// SpreadConfig holds the dynamic spread weights and bounds.
type SpreadConfig struct {
	BaseSpread          float64 `toml:"base_spread"`
	MinSpread           float64 `toml:"min_spread"`
	MaxSpread           float64 `toml:"max_spread"`
	VolatilityWeight    float64 `toml:"volatility_weight"`
	LiquidityWeight     float64 `toml:"liquidity_weight"`
	VolumeWeight        float64 `toml:"volume_weight"`
	PressureWeight      float64 `toml:"pressure_weight"`
	DepthWeight         float64 `toml:"depth_weight"`
	ImbalanceWeight     float64 `toml:"imbalance_weight"`
	AdjustmentSpeed     float64 `toml:"adjustment_speed"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
}

// InventoryConfig holds exposure caps and hedge triggers.
type InventoryConfig struct {
	MaxPosition         float64 `toml:"max_position"`
	MaxNetExposure      float64 `toml:"max_net_exposure"`
	HedgeThreshold      float64 `toml:"hedge_threshold"`
	HedgeRatio          float64 `toml:"hedge_ratio"`
	VolatilityThreshold float64 `toml:"volatility_threshold"`
}

// RiskConfig holds the risk manager thresholds.
type RiskConfig struct {
	MaxPositionSize     float64  `toml:"max_position_size"`
	MaxDailyLoss        float64  `toml:"max_daily_loss"`
	MaxDrawdown         float64  `toml:"max_drawdown"`
	StopLossPct         float64  `toml:"stop_loss_pct"`
	TakeProfitPct       float64  `toml:"take_profit_pct"`
	TrailingStopPct     float64  `toml:"trailing_stop_pct"`
	TrailingActivation  float64  `toml:"trailing_activation"`
	BreakerThreshold    float64  `toml:"breaker_threshold"`
	BreakerCooldown     duration `toml:"breaker_cooldown"`
	VolatilityThreshold float64  `toml:"volatility_threshold"`
	VolatilityPause     duration `toml:"volatility_pause"`
	CancelCooldown      duration `toml:"cancel_cooldown"`
	TradeCooldown       duration `toml:"trade_cooldown"`
	MaxSlippageBps      float64  `toml:"max_slippage_bps"`
	AlertLogSize        int      `toml:"alert_log_size"`
	// CheckInterval is how often open positions are re-checked against
	// the latest snapshots.
	CheckInterval duration `toml:"check_interval"`
}

// LimitsConfig holds hard trade caps and warning thresholds.
type LimitsConfig struct {
	MaxSingleTradeUSD     float64 `toml:"max_single_trade_usd"`
	MaxDailyTrades        int     `toml:"max_daily_trades"`
	MaxDailyVolumeUSD     float64 `toml:"max_daily_volume_usd"`
	MaxTradesPerMinute    int     `toml:"max_trades_per_minute"`
	UnusualSizeMultiplier float64 `toml:"unusual_size_multiplier"`
	LargeTradeUSD         float64 `toml:"large_trade_usd"`
	BankrollUSD           float64 `toml:"bankroll_usd"`
	OutflowWarnPct        float64 `toml:"outflow_warn_pct"`
	// UseRedis routes the per-minute count through the shared Redis
	// sliding window so every replica sees the same rate.
	UseRedis bool `toml:"use_redis"`
}

// MarketMakerConfig holds the inventory-balancing strategy parameters.
type MarketMakerConfig struct {
	Tolerance        float64 `toml:"tolerance"`
	MinHedgeSize     float64 `toml:"min_hedge_size"`
	MaxHedgeSize     float64 `toml:"max_hedge_size"`
	BuySpreadBps     float64 `toml:"buy_spread_bps"`
	SellSpreadBps    float64 `toml:"sell_spread_bps"`
	HedgeSlippageBps float64 `toml:"hedge_slippage_bps"`
	DynamicOffset    bool    `toml:"dynamic_offset"`
	BuyOffsetBps     float64 `toml:"buy_offset_bps"`
	SellOffsetBps    float64 `toml:"sell_offset_bps"`
	FillBuffer       int     `toml:"fill_buffer"`
}

// ExecutionConfig selects and tunes the execution policy.
type ExecutionConfig struct {
	Style                   string   `toml:"style"`
	MaxPositionUSD          float64  `toml:"max_position_usd"`
	MinEdge                 float64  `toml:"min_edge"`
	TakerCost               float64  `toml:"taker_cost"`
	TakerSlippageBps        float64  `toml:"taker_slippage_bps"`
	ExpiryBuffer            duration `toml:"expiry_buffer"`
	MaxEntryPrice           float64  `toml:"max_entry_price"`
	HybridTakerEdge         float64  `toml:"hybrid_taker_edge"`
	HybridTakerMaxLiquidity float64  `toml:"hybrid_taker_max_liquidity"`
	HybridMakerEdge         float64  `toml:"hybrid_maker_edge"`
	HybridMakerMinLiquidity float64  `toml:"hybrid_maker_min_liquidity"`
}

// ArbitrageConfig holds the opportunity scanner parameters.
type ArbitrageConfig struct {
	Enabled        bool     `toml:"enabled"`
	MinProfit      float64  `toml:"min_profit"`
	MinSimilarity  float64  `toml:"min_similarity"`
	TransferCost   float64  `toml:"transfer_cost"`
	SlippageBps    float64  `toml:"slippage_bps"`
	FeeBps         float64  `toml:"fee_bps"`
	MaxPositionUSD float64  `toml:"max_position_usd"`
	TopN           int      `toml:"top_n"`
	MaxMarkets     int      `toml:"max_markets"`
	Interval       duration `toml:"interval"`
	// AutoExecute sends the best opportunity of each scan through the
	// risk gate as paired buy decisions. Engine mode only.
	AutoExecute   bool    `toml:"auto_execute"`
	MinConfidence float64 `toml:"min_confidence"`
}

// FeedConfig holds the reference price feed parameters.
type FeedConfig struct {
	WSURL          string   `toml:"ws_url"`
	RESTURL        string   `toml:"rest_url"`
	Symbols        []string `toml:"symbols"`
	KlineInterval  string   `toml:"kline_interval"`
	Ticker         bool     `toml:"ticker"`
	ReconnectDelay duration `toml:"reconnect_delay"`
	HistorySize    int      `toml:"history_size"`
	StaleAfter     duration `toml:"stale_after"`
	FetchTimeout   duration `toml:"fetch_timeout"`
	FlushInterval  duration `toml:"flush_interval"`
	CacheTTL       duration `toml:"cache_ttl"`
}

// VenuesConfig holds venue endpoints and the snapshot poller settings.
type VenuesConfig struct {
	GammaURL     string   `toml:"gamma_url"`
	KalshiURL    string   `toml:"kalshi_url"`
	PollInterval duration `toml:"poll_interval"`
	PollTimeout  duration `toml:"poll_timeout"`
	Concurrency  int      `toml:"concurrency"`
}

// MarketConfig is one tracked binary market.
type MarketConfig struct {
	ID          string    `toml:"id"`
	Venue       string    `toml:"venue"`
	ExternalID  string    `toml:"external_id"`
	Question    string    `toml:"question"`
	Symbol      string    `toml:"symbol"`
	StrikePrice float64   `toml:"strike_price"`
	Expiry      time.Time `toml:"expiry"`
}

// BacktestConfig holds the replay parameters for backtest mode.
type BacktestConfig struct {
	DataFile       string  `toml:"data_file"`
	MarketID       string  `toml:"market_id"`
	InitialCapital float64 `toml:"initial_capital"`
	Commission     float64 `toml:"commission"`
	StakeFraction  float64 `toml:"stake_fraction"`
	MinStake       float64 `toml:"min_stake"`
	Warmup         int     `toml:"warmup"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"-"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	StreamMaxLen int64    `toml:"stream_max_len"`
	DialTimeout  duration `toml:"dial_timeout"`
	// KeyPrefix namespaces every key; replicas of one deployment share it.
	KeyPrefix string `toml:"key_prefix"`
}

// PostgresConfig holds journal database connection parameters.
type PostgresConfig struct {
	Enabled        bool     `toml:"enabled"`
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"-"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"-"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	MinLevel          string `toml:"min_level"`
	TelegramURL       string `toml:"telegram_url"`
	TelegramToken     string `toml:"-"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	LarkURL           string `toml:"lark_url"`
	LarkAppID         string `toml:"lark_app_id"`
	LarkAppSecret     string `toml:"-"`
	LarkChatID        string `toml:"lark_chat_id"`
	DailySummary      bool   `toml:"daily_summary"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	CORSMethods []string `toml:"cors_methods"`
	CORSMaxAge  duration `toml:"cors_max_age"`
	PublicPaths []string `toml:"public_paths"`
	APIKey      string   `toml:"-"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// Backtest mode additionally needs a data file and a configured market.
func Defaults() Config {
	return Config{
		Mode:     "engine",
		LogLevel: "info",
		Pricing: PricingConfig{
			RiskFreeRate:  0.05,
			MinVolatility: 0.01,
			FeeRate:       0.02,
			PriceFloor:    0.001,
			PriceCeil:     0.999,
		},
		Volatility: VolatilityConfig{
			Window:         20,
			PeriodsPerYear: 525600,
			Default:        0.5,
		},
		Spread: SpreadConfig{
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
		},
		Inventory: InventoryConfig{
			MaxPosition:         100,
			MaxNetExposure:      50,
			HedgeThreshold:      0.7,
			HedgeRatio:          0.5,
			VolatilityThreshold: 0.02,
		},
		Risk: RiskConfig{
			MaxPositionSize:     100,
			MaxDailyLoss:        50,
			MaxDrawdown:         0.20,
			StopLossPct:         0.30,
			TakeProfitPct:       0.20,
			TrailingStopPct:     0.10,
			TrailingActivation:  0.05,
			BreakerThreshold:    0.10,
			BreakerCooldown:     duration{time.Hour},
			VolatilityThreshold: 0.02,
			VolatilityPause:     duration{5 * time.Minute},
			CancelCooldown:      duration{4 * time.Second},
			TradeCooldown:       duration{10 * time.Second},
			MaxSlippageBps:      250,
			AlertLogSize:        500,
			CheckInterval:       duration{5 * time.Second},
		},
		Limits: LimitsConfig{
			MaxSingleTradeUSD:     100,
			MaxDailyTrades:        100,
			MaxDailyVolumeUSD:     5000,
			MaxTradesPerMinute:    10,
			UnusualSizeMultiplier: 5,
			LargeTradeUSD:         50,
			BankrollUSD:           5000,
			OutflowWarnPct:        0.10,
			UseRedis:              true,
		},
		MarketMaker: MarketMakerConfig{
			Tolerance:        0.05,
			MinHedgeSize:     10,
			MaxHedgeSize:     500,
			BuySpreadBps:     150,
			SellSpreadBps:    150,
			HedgeSlippageBps: 250,
			DynamicOffset:    true,
			BuyOffsetBps:     100,
			SellOffsetBps:    100,
			FillBuffer:       256,
		},
		Execution: ExecutionConfig{
			Style:                   "taker",
			MaxPositionUSD:          100,
			MinEdge:                 0.02,
			TakerCost:               0.02,
			TakerSlippageBps:        50,
			ExpiryBuffer:            duration{time.Minute},
			MaxEntryPrice:           0.95,
			HybridTakerEdge:         0.05,
			HybridTakerMaxLiquidity: 50000,
			HybridMakerEdge:         0.03,
			HybridMakerMinLiquidity: 100000,
		},
		Arbitrage: ArbitrageConfig{
			Enabled:        true,
			MinProfit:      0.01,
			MinSimilarity:  0.78,
			TransferCost:   0.002,
			SlippageBps:    250,
			FeeBps:         100,
			MaxPositionUSD: 500,
			TopN:           10,
			MaxMarkets:     80,
			Interval:       duration{10 * time.Second},
			MinConfidence:  0.8,
		},
		Feed: FeedConfig{
			WSURL:          "wss://stream.binance.com:9443/ws",
			RESTURL:        "https://api.binance.com/api/v3",
			Symbols:        []string{"BTCUSDT", "ETHUSDT"},
			KlineInterval:  "1m",
			Ticker:         false,
			ReconnectDelay: duration{2 * time.Second},
			HistorySize:    1000,
			StaleAfter:     duration{30 * time.Second},
			FetchTimeout:   duration{3 * time.Second},
			FlushInterval:  duration{time.Second},
			CacheTTL:       duration{10 * time.Minute},
		},
		Venues: VenuesConfig{
			GammaURL:     "https://gamma-api.polymarket.com",
			KalshiURL:    "https://api.elections.kalshi.com/trade-api/v2",
			PollInterval: duration{5 * time.Second},
			PollTimeout:  duration{4 * time.Second},
			Concurrency:  8,
		},
		Backtest: BacktestConfig{
			InitialCapital: 1000,
			Commission:     0.001,
			StakeFraction:  0.1,
			MinStake:       1,
			Warmup:         30,
		},
		Redis: RedisConfig{
			Enabled:      true,
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			StreamMaxLen: 10000,
			DialTimeout:  duration{5 * time.Second},
			KeyPrefix:    "binarymm",
		},
		Postgres: PostgresConfig{
			Enabled:        true,
			Host:           "localhost",
			Port:           5432,
			Database:       "binarymm",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   2,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "binarymm-reports",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			MinLevel:     "warning",
			DailySummary: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			CORSMethods: []string{"GET", "POST"},
			CORSMaxAge:  duration{24 * time.Hour},
			PublicPaths: []string{"/api/health", "/metrics"},
			RateLimit:   10,
			RateWindow:  duration{time.Minute},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine":   true,
	"scan":     true,
	"monitor":  true,
	"backtest": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validVenues = map[string]bool{
	"polymarket":  true,
	"kalshi":      true,
	"predict_fun": true,
	"probable":    true,
}

var validStyles = map[string]bool{
	"taker":  true,
	"maker":  true,
	"hybrid": true,
}

var validAlertLevels = map[string]bool{
	"info":     true,
	"warning":  true,
	"critical": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[c.Mode] {
		add("unknown mode %q (valid: engine, scan, monitor, backtest)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Pricing
	if c.Pricing.PriceFloor <= 0 || c.Pricing.PriceCeil >= 1 || c.Pricing.PriceFloor >= c.Pricing.PriceCeil {
		add("pricing: need 0 < price_floor < price_ceil < 1, got %g and %g", c.Pricing.PriceFloor, c.Pricing.PriceCeil)
	}
	if c.Pricing.FeeRate < 0 {
		add("pricing: fee_rate must be >= 0")
	}
	if c.Volatility.Window < 2 {
		add("volatility: window must be >= 2")
	}

	// Spread
	if c.Spread.MinSpread <= 0 || c.Spread.MinSpread > c.Spread.MaxSpread {
		add("spread: need 0 < min_spread <= max_spread")
	}
	if c.Spread.AdjustmentSpeed <= 0 || c.Spread.AdjustmentSpeed > 1 {
		add("spread: adjustment_speed must be in (0, 1]")
	}

	// Inventory
	if c.Inventory.MaxPosition <= 0 {
		add("inventory: max_position must be > 0")
	}
	if c.Inventory.HedgeRatio <= 0 || c.Inventory.HedgeRatio > 1 {
		add("inventory: hedge_ratio must be in (0, 1]")
	}

	// Risk
	if c.Risk.MaxDailyLoss <= 0 {
		add("risk: max_daily_loss must be > 0")
	}
	if c.Risk.MaxPositionSize <= 0 {
		add("risk: max_position_size must be > 0")
	}
	for name, v := range map[string]float64{
		"stop_loss_pct":     c.Risk.StopLossPct,
		"take_profit_pct":   c.Risk.TakeProfitPct,
		"trailing_stop_pct": c.Risk.TrailingStopPct,
		"max_drawdown":      c.Risk.MaxDrawdown,
	} {
		if v <= 0 || v >= 1 {
			add("risk: %s must be in (0, 1), got %g", name, v)
		}
	}
	if c.Risk.CheckInterval.Duration <= 0 {
		add("risk: check_interval must be > 0")
	}

	// Limits
	if c.Limits.MaxSingleTradeUSD <= 0 || c.Limits.MaxDailyTrades <= 0 || c.Limits.MaxDailyVolumeUSD <= 0 {
		add("limits: max_single_trade_usd, max_daily_trades and max_daily_volume_usd must be > 0")
	}
	if c.Limits.OutflowWarnPct < 0 || c.Limits.OutflowWarnPct > 1 {
		add("limits: outflow_warn_pct must be in [0, 1]")
	}
	if c.Limits.UseRedis && !c.Redis.Enabled {
		add("limits: use_redis requires redis.enabled")
	}

	// Execution
	if !validStyles[c.Execution.Style] {
		add("execution: unknown style %q (valid: taker, maker, hybrid)", c.Execution.Style)
	}
	if c.Execution.MaxPositionUSD <= 0 {
		add("execution: max_position_usd must be > 0")
	}
	if c.Execution.MaxEntryPrice != 0 && (c.Execution.MaxEntryPrice <= 0.5 || c.Execution.MaxEntryPrice >= 1) {
		add("execution: max_entry_price must be in (0.5, 1)")
	}

	// Arbitrage
	if c.Arbitrage.Enabled {
		if c.Arbitrage.Interval.Duration <= 0 {
			add("arbitrage: interval must be > 0 when enabled")
		}
		if c.Arbitrage.MinSimilarity <= 0 || c.Arbitrage.MinSimilarity > 1 {
			add("arbitrage: min_similarity must be in (0, 1]")
		}
	}

	// Feed
	if c.Mode != "scan" && c.Mode != "backtest" && len(c.Feed.Symbols) == 0 {
		add("feed: at least one symbol is required for mode %s", c.Mode)
	}
	if c.Feed.StaleAfter.Duration <= 0 {
		add("feed: stale_after must be > 0")
	}

	// Venues and markets
	if c.Venues.PollInterval.Duration <= 0 {
		add("venues: poll_interval must be > 0")
	}
	seen := make(map[string]bool, len(c.Markets))
	for i, m := range c.Markets {
		switch {
		case m.ID == "":
			add("markets[%d]: id must not be empty", i)
		case seen[m.ID]:
			add("markets[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
		if !validVenues[m.Venue] {
			add("markets[%d]: unknown venue %q", i, m.Venue)
		}
		if m.StrikePrice < 0 {
			add("markets[%d]: strike_price must be >= 0", i)
		}
	}
	if (c.Mode == "engine" || c.Mode == "scan") && len(c.Markets) == 0 {
		add("markets: at least one market is required for mode %s", c.Mode)
	}

	// Backtest
	if c.Mode == "backtest" {
		if c.Backtest.DataFile == "" {
			add("backtest: data_file is required")
		}
		if _, ok := c.Market(c.Backtest.MarketID); !ok {
			add("backtest: market_id %q is not a configured market", c.Backtest.MarketID)
		}
		if c.Backtest.Commission < 0 || c.Backtest.Commission >= 1 {
			add("backtest: commission must be in [0, 1)")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			add("s3: access_key and BINARYMM_S3_SECRET_KEY must be set together")
		}
	}

	// Notify
	if !validAlertLevels[c.Notify.MinLevel] {
		add("notify: unknown min_level %q (valid: info, warning, critical)", c.Notify.MinLevel)
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: BINARYMM_TELEGRAM_TOKEN and telegram_chat_id must be set together")
	}
	if c.Notify.LarkAppID != "" && (c.Notify.LarkAppSecret == "" || c.Notify.LarkChatID == "") {
		add("notify: lark_app_id needs BINARYMM_LARK_APP_SECRET and lark_chat_id")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			add("server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Market returns the tracked market with the given ID.
func (c *Config) Market(id string) (MarketConfig, bool) {
	for _, m := range c.Markets {
		if m.ID == id {
			return m, true
		}
	}
	return MarketConfig{}, false
}
