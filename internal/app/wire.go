package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/binarymm/internal/blob/s3"
	"github.com/alanyoungcy/binarymm/internal/cache/redis"
	"github.com/alanyoungcy/binarymm/internal/config"
	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/notify"
	"github.com/alanyoungcy/binarymm/internal/server/handler"
	"github.com/alanyoungcy/binarymm/internal/store/postgres"
)

// Dependencies bundles the infrastructure adapters the modes run on. Every
// adapter is optional: a nil field means the backing service is disabled
// and the components that use it run without it.
type Dependencies struct {
	// Caches and bus (Redis)
	SignalBus    domain.SignalBus
	PriceCache   domain.PriceCache
	RateLimiter  domain.RateLimiter
	TradeCounter domain.EventCounter
	LockManager  domain.LockManager

	// Journals (Postgres)
	DecisionJournal    domain.DecisionJournal
	AlertJournal       domain.AlertJournal
	OpportunityJournal domain.OpportunityJournal
	SnapshotJournal    domain.RiskSnapshotJournal

	// Daily report archive (S3)
	Reports *s3blob.ReportArchiver

	// Notifications
	Notifier *notify.Notifier

	// Health checks keyed by dependency name.
	Checks map[string]handler.Check
}

// needsInfra returns false for modes that run entirely offline.
func needsInfra(mode string) bool {
	return mode != "backtest"
}

// needsReports returns true for modes that close out trading days.
func needsReports(mode string) bool {
	switch mode {
	case "engine", "monitor":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}
	if !needsInfra(cfg.Mode) {
		return deps, cleanup, nil
	}

	// --- PostgreSQL journals ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.DecisionJournal = postgres.NewDecisionStore(pool)
		deps.AlertJournal = postgres.NewAlertStore(pool)
		deps.OpportunityJournal = postgres.NewOpportunityStore(pool)
		deps.SnapshotJournal = postgres.NewRiskSnapshotStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			TLSEnabled:  cfg.Redis.TLSEnabled,
			DialTimeout: cfg.Redis.DialTimeout.Duration,
			KeyPrefix:   cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, redis.SignalBusConfig{
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		})
		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Feed.CacheTTL.Duration)
		limiter := redis.NewRateLimiter(redisClient)
		deps.RateLimiter = limiter
		deps.TradeCounter = limiter
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 daily reports ---
	if cfg.S3.Enabled && needsReports(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Reports = s3blob.NewReportArchiver(s3blob.NewWriter(s3Client))
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	deps.Notifier = notify.NewNotifier(
		notify.Config{MinLevel: domain.AlertLevel(cfg.Notify.MinLevel)},
		buildSenders(cfg.Notify),
		deps.SignalBus,
		deps.AlertJournal,
		logger,
	)

	return deps, cleanup, nil
}

// buildSenders returns one sender per configured channel.
func buildSenders(cfg config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramURL, cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if cfg.LarkAppID != "" && cfg.LarkAppSecret != "" && cfg.LarkChatID != "" {
		senders = append(senders, notify.NewLarkSender(notify.LarkConfig{
			BaseURL:   cfg.LarkURL,
			AppID:     cfg.LarkAppID,
			AppSecret: cfg.LarkAppSecret,
			ChatID:    cfg.LarkChatID,
		}))
	}
	return senders
}
