package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBDETECTOR_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBDETECTOR_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBDETECTOR_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBDETECTOR_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBDETECTOR_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBDETECTOR_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBDETECTOR_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBDETECTOR_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBDETECTOR_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBDETECTOR_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBDETECTOR_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBDETECTOR_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBDETECTOR_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBDETECTOR_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBDETECTOR_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBDETECTOR_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBDETECTOR_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBDETECTOR_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARBDETECTOR_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBDETECTOR_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBDETECTOR_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBDETECTOR_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBDETECTOR_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBDETECTOR_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBDETECTOR_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "ARBDETECTOR_S3_PREFIX")

	// ── Feed ──
	setStringSlice(&cfg.Feed.WebSocketURLs, "ARBDETECTOR_FEED_WEBSOCKET_URLS")
	setStr(&cfg.Feed.BusChannel, "ARBDETECTOR_FEED_BUS_CHANNEL")
	setDuration(&cfg.Feed.ReconnectMin, "ARBDETECTOR_FEED_RECONNECT_MIN")
	setDuration(&cfg.Feed.ReconnectMax, "ARBDETECTOR_FEED_RECONNECT_MAX")

	// ── Detector ──
	setInt(&cfg.Detector.HistoryMaxSize, "ARBDETECTOR_DETECTOR_HISTORY_MAX_SIZE")
	setInt(&cfg.Detector.ExpirationTimeInSeconds, "ARBDETECTOR_DETECTOR_EXPIRATION_TIME_IN_SECONDS")
	setInt(&cfg.Detector.ExecutionDelayInMilliseconds, "ARBDETECTOR_DETECTOR_EXECUTION_DELAY_IN_MILLISECONDS")
	setFloat64(&cfg.Detector.MinimumPnL, "ARBDETECTOR_DETECTOR_MINIMUM_PNL")
	setFloat64(&cfg.Detector.MinimumVolume, "ARBDETECTOR_DETECTOR_MINIMUM_VOLUME")
	setFloat64(&cfg.Detector.MinSpread, "ARBDETECTOR_DETECTOR_MIN_SPREAD")
	setStringSlice(&cfg.Detector.BaseAssets, "ARBDETECTOR_DETECTOR_BASE_ASSETS")
	setStringSlice(&cfg.Detector.IntermediateAssets, "ARBDETECTOR_DETECTOR_INTERMEDIATE_ASSETS")
	setStr(&cfg.Detector.QuoteAsset, "ARBDETECTOR_DETECTOR_QUOTE_ASSET")
	setStringSlice(&cfg.Detector.Exchanges, "ARBDETECTOR_DETECTOR_EXCHANGES")
	setStr(&cfg.Detector.OwnExchange, "ARBDETECTOR_DETECTOR_OWN_EXCHANGE")
	setStringSlice(&cfg.Detector.MatrixHistoryAssetPairs, "ARBDETECTOR_DETECTOR_MATRIX_HISTORY_ASSET_PAIRS")
	setInt(&cfg.Detector.MatrixHistoryIntervalInSeconds, "ARBDETECTOR_DETECTOR_MATRIX_HISTORY_INTERVAL_IN_SECONDS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ARBDETECTOR_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "ARBDETECTOR_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "ARBDETECTOR_ARCHIVE_RETENTION_DAYS")
	setInt(&cfg.Archive.BatchSize, "ARBDETECTOR_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBDETECTOR_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBDETECTOR_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBDETECTOR_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBDETECTOR_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBDETECTOR_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ARBDETECTOR_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.CacheTTL, "ARBDETECTOR_SERVER_CACHE_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBDETECTOR_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBDETECTOR_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBDETECTOR_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBDETECTOR_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinPnL, "ARBDETECTOR_NOTIFY_MIN_PNL")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBDETECTOR_MODE")
	setStr(&cfg.LogLevel, "ARBDETECTOR_LOG_LEVEL")
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
