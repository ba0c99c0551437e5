package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/arbdetector/internal/blob/s3"
	"github.com/alanyoungcy/arbdetector/internal/cache/memory"
	"github.com/alanyoungcy/arbdetector/internal/cache/redis"
	"github.com/alanyoungcy/arbdetector/internal/config"
	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/metrics"
	"github.com/alanyoungcy/arbdetector/internal/notify"
	"github.com/alanyoungcy/arbdetector/internal/ratelimit"
	"github.com/alanyoungcy/arbdetector/internal/server/handler"
	"github.com/alanyoungcy/arbdetector/internal/store/guard"
	"github.com/alanyoungcy/arbdetector/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Repository fields stay nil in monitor mode.
type Dependencies struct {
	// Stores, each behind a circuit breaker.
	SettingsRepo  domain.SettingsRepository
	ArbitrageRepo domain.ArbitrageRepository
	MatrixRepo    domain.MatrixRepository

	// Coordination
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Archive
	Archiver domain.Archiver

	Notifier *notify.Notifier
	Metrics  *metrics.Registry

	// HealthChecks are reported by GET /api/health.
	HealthChecks map[string]handler.Pinger
}

// needsStores returns true for modes that use Postgres and Redis.
func needsStores(mode string) bool {
	return mode != "monitor"
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
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{
		Metrics:      metrics.New(),
		HealthChecks: make(map[string]handler.Pinger),
	}

	if !needsStores(cfg.Mode) {
		deps.SignalBus = memory.NewSignalBus()
		deps.RateLimiter = ratelimit.New()
	} else {
		// --- PostgreSQL ---
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		stores := pgClient.Stores()
		deps.SettingsRepo = guard.Settings(stores.Settings, logger)
		deps.ArbitrageRepo = guard.Arbitrages(stores.Arbitrages, logger)
		deps.MatrixRepo = guard.Matrices(stores.Matrices, logger)
		deps.HealthChecks["postgres"] = pgClient.Ping

		// --- Redis ---
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, logger)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- S3 archive ---
	if cfg.Archive.Enabled && deps.ArbitrageRepo != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.ArchiverConfig{
			Writer:     s3blob.NewWriter(s3Client),
			Reader:     s3blob.NewReader(s3Client),
			Arbitrages: deps.ArbitrageRepo,
			Matrices:   deps.MatrixRepo,
			BatchSize:  cfg.Archive.BatchSize,
			Logger:     logger,
		})
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	deps.Notifier = notify.NewNotifier(notify.Senders(notify.SendersConfig{
		TelegramToken:     cfg.Notify.TelegramToken,
		TelegramChatID:    cfg.Notify.TelegramChatID,
		DiscordWebhookURL: cfg.Notify.DiscordWebhookURL,
	}), cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
