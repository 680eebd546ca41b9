package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix namespaces every environment override.
const envPrefix = "BINARYMM_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BINARYMM_* environment variable overrides, and
// returns the final Config. An empty path runs on defaults and environment
// alone. The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BINARYMM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). Secrets have no TOML key and arrive only through this path.
func applyEnvOverrides(cfg *Config) {
	// ── Secrets ──
	setStr(&cfg.Redis.Password, envPrefix+"REDIS_PASSWORD")
	setStr(&cfg.Postgres.Password, envPrefix+"POSTGRES_PASSWORD")
	setStr(&cfg.S3.SecretKey, envPrefix+"S3_SECRET_KEY")
	setStr(&cfg.Notify.TelegramToken, envPrefix+"TELEGRAM_TOKEN")
	setStr(&cfg.Notify.LarkAppSecret, envPrefix+"LARK_APP_SECRET")
	setStr(&cfg.Server.APIKey, envPrefix+"API_KEY")

	// ── Execution ──
	setStr(&cfg.Execution.Style, envPrefix+"EXECUTION_STYLE")
	setFloat64(&cfg.Execution.MaxPositionUSD, envPrefix+"EXECUTION_MAX_POSITION_USD")
	setFloat64(&cfg.Execution.MinEdge, envPrefix+"EXECUTION_MIN_EDGE")
	setDuration(&cfg.Execution.ExpiryBuffer, envPrefix+"EXECUTION_EXPIRY_BUFFER")
	setFloat64(&cfg.Execution.MaxEntryPrice, envPrefix+"EXECUTION_MAX_ENTRY_PRICE")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxDailyLoss, envPrefix+"RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.MaxPositionSize, envPrefix+"RISK_MAX_POSITION_SIZE")
	setFloat64(&cfg.Risk.StopLossPct, envPrefix+"RISK_STOP_LOSS_PCT")
	setFloat64(&cfg.Risk.TakeProfitPct, envPrefix+"RISK_TAKE_PROFIT_PCT")
	setDuration(&cfg.Risk.BreakerCooldown, envPrefix+"RISK_BREAKER_COOLDOWN")

	// ── Limits ──
	setFloat64(&cfg.Limits.MaxSingleTradeUSD, envPrefix+"LIMITS_MAX_SINGLE_TRADE_USD")
	setInt(&cfg.Limits.MaxDailyTrades, envPrefix+"LIMITS_MAX_DAILY_TRADES")
	setFloat64(&cfg.Limits.MaxDailyVolumeUSD, envPrefix+"LIMITS_MAX_DAILY_VOLUME_USD")
	setInt(&cfg.Limits.MaxTradesPerMinute, envPrefix+"LIMITS_MAX_TRADES_PER_MINUTE")
	setFloat64(&cfg.Limits.LargeTradeUSD, envPrefix+"LIMITS_LARGE_TRADE_USD")
	setFloat64(&cfg.Limits.BankrollUSD, envPrefix+"LIMITS_BANKROLL_USD")
	setFloat64(&cfg.Limits.OutflowWarnPct, envPrefix+"LIMITS_OUTFLOW_WARN_PCT")
	setBool(&cfg.Limits.UseRedis, envPrefix+"LIMITS_USE_REDIS")

	// ── Arbitrage ──
	setBool(&cfg.Arbitrage.Enabled, envPrefix+"ARBITRAGE_ENABLED")
	setFloat64(&cfg.Arbitrage.MinProfit, envPrefix+"ARBITRAGE_MIN_PROFIT")
	setDuration(&cfg.Arbitrage.Interval, envPrefix+"ARBITRAGE_INTERVAL")
	setBool(&cfg.Arbitrage.AutoExecute, envPrefix+"ARBITRAGE_AUTO_EXECUTE")
	setFloat64(&cfg.Arbitrage.MinConfidence, envPrefix+"ARBITRAGE_MIN_CONFIDENCE")

	// ── Feed ──
	setStr(&cfg.Feed.WSURL, envPrefix+"FEED_WS_URL")
	setStr(&cfg.Feed.RESTURL, envPrefix+"FEED_REST_URL")
	setStringSlice(&cfg.Feed.Symbols, envPrefix+"FEED_SYMBOLS")
	setStr(&cfg.Feed.KlineInterval, envPrefix+"FEED_KLINE_INTERVAL")

	// ── Venues ──
	setStr(&cfg.Venues.GammaURL, envPrefix+"VENUES_GAMMA_URL")
	setStr(&cfg.Venues.KalshiURL, envPrefix+"VENUES_KALSHI_URL")
	setDuration(&cfg.Venues.PollInterval, envPrefix+"VENUES_POLL_INTERVAL")

	// ── Backtest ──
	setStr(&cfg.Backtest.DataFile, envPrefix+"BACKTEST_DATA_FILE")
	setStr(&cfg.Backtest.MarketID, envPrefix+"BACKTEST_MARKET_ID")
	setFloat64(&cfg.Backtest.InitialCapital, envPrefix+"BACKTEST_INITIAL_CAPITAL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, envPrefix+"REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, envPrefix+"REDIS_ADDR")
	setInt(&cfg.Redis.DB, envPrefix+"REDIS_DB")
	setInt(&cfg.Redis.PoolSize, envPrefix+"REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, envPrefix+"REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, envPrefix+"REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, envPrefix+"REDIS_STREAM_MAX_LEN")
	setDuration(&cfg.Redis.DialTimeout, envPrefix+"REDIS_DIAL_TIMEOUT")
	setStr(&cfg.Redis.KeyPrefix, envPrefix+"REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, envPrefix+"POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, envPrefix+"POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, envPrefix+"POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, envPrefix+"POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, envPrefix+"POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, envPrefix+"POSTGRES_USER")
	setStr(&cfg.Postgres.SSLMode, envPrefix+"POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, envPrefix+"POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, envPrefix+"POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, envPrefix+"POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, envPrefix+"S3_ENABLED")
	setStr(&cfg.S3.Endpoint, envPrefix+"S3_ENDPOINT")
	setStr(&cfg.S3.Region, envPrefix+"S3_REGION")
	setStr(&cfg.S3.Bucket, envPrefix+"S3_BUCKET")
	setStr(&cfg.S3.Prefix, envPrefix+"S3_PREFIX")
	setStr(&cfg.S3.AccessKey, envPrefix+"S3_ACCESS_KEY")
	setBool(&cfg.S3.UseSSL, envPrefix+"S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, envPrefix+"S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.MinLevel, envPrefix+"NOTIFY_MIN_LEVEL")
	setStr(&cfg.Notify.TelegramChatID, envPrefix+"TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, envPrefix+"DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.LarkAppID, envPrefix+"LARK_APP_ID")
	setStr(&cfg.Notify.LarkChatID, envPrefix+"LARK_CHAT_ID")

	// ── Server ──
	setBool(&cfg.Server.Enabled, envPrefix+"SERVER_ENABLED")
	setInt(&cfg.Server.Port, envPrefix+"SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, envPrefix+"SERVER_CORS_ORIGINS")
	setStringSlice(&cfg.Server.CORSMethods, envPrefix+"SERVER_CORS_METHODS")
	setDuration(&cfg.Server.CORSMaxAge, envPrefix+"SERVER_CORS_MAX_AGE")
	setStringSlice(&cfg.Server.PublicPaths, envPrefix+"SERVER_PUBLIC_PATHS")
	setInt(&cfg.Server.RateLimit, envPrefix+"SERVER_RATE_LIMIT")

	// ── Top-level ──
	setStr(&cfg.Mode, envPrefix+"MODE")
	setStr(&cfg.LogLevel, envPrefix+"LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
