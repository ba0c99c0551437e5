// Package config defines the top-level configuration for the arbitrage
// detector and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBDETECTOR_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Feed     FeedConfig     `toml:"feed"`
	Detector DetectorConfig `toml:"detector"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// Prefix is prepended to every object key, e.g. "prod/".
	Prefix string `toml:"prefix"`
}

// FeedConfig selects the inbound order-book transports.
type FeedConfig struct {
	// WebSocketURLs are dialled and read for order-book messages.
	WebSocketURLs []string `toml:"websocket_urls"`
	// BusChannel is the Redis channel carrying order-book messages. Empty
	// disables the bus feed; monitor mode ignores it.
	BusChannel   string   `toml:"bus_channel"`
	ReconnectMin duration `toml:"reconnect_min"`
	ReconnectMax duration `toml:"reconnect_max"`
}

// FeeConfig holds the configured fees of one exchange, in percent.
type FeeConfig struct {
	DepositFee float64 `toml:"deposit_fee"`
	TradingFee float64 `toml:"trading_fee"`
}

// DetectorConfig is the initial detection settings. Once persisted settings
// exist they take precedence; these values are only the first-run defaults.
type DetectorConfig struct {
	HistoryMaxSize                 int                  `toml:"history_max_size"`
	ExpirationTimeInSeconds        int                  `toml:"expiration_time_in_seconds"`
	ExecutionDelayInMilliseconds   int                  `toml:"execution_delay_in_milliseconds"`
	MinimumPnL                     float64              `toml:"minimum_pnl"`
	MinimumVolume                  float64              `toml:"minimum_volume"`
	MinSpread                      float64              `toml:"min_spread"`
	BaseAssets                     []string             `toml:"base_assets"`
	IntermediateAssets             []string             `toml:"intermediate_assets"`
	QuoteAsset                     string               `toml:"quote_asset"`
	Exchanges                      []string             `toml:"exchanges"`
	OwnExchange                    string               `toml:"own_exchange"`
	MatrixAssetPairs               []string             `toml:"matrix_asset_pairs"`
	MatrixExchanges                []string             `toml:"matrix_exchanges"`
	MatrixHistoryAssetPairs        []string             `toml:"matrix_history_asset_pairs"`
	MatrixHistoryIntervalInSeconds int                  `toml:"matrix_history_interval_in_seconds"`
	ExchangeFees                   map[string]FeeConfig `toml:"exchange_fees"`
}

// Settings converts the detector section into domain settings.
func (d DetectorConfig) Settings() domain.Settings {
	s := domain.Settings{
		HistoryMaxSize:                 d.HistoryMaxSize,
		ExpirationTimeInSeconds:        d.ExpirationTimeInSeconds,
		ExecutionDelayInMilliseconds:   d.ExecutionDelayInMilliseconds,
		MinimumPnL:                     d.MinimumPnL,
		MinimumVolume:                  d.MinimumVolume,
		MinSpread:                      d.MinSpread,
		BaseAssets:                     d.BaseAssets,
		IntermediateAssets:             d.IntermediateAssets,
		QuoteAsset:                     d.QuoteAsset,
		Exchanges:                      d.Exchanges,
		OwnExchange:                    d.OwnExchange,
		MatrixAssetPairs:               d.MatrixAssetPairs,
		MatrixExchanges:                d.MatrixExchanges,
		MatrixHistoryAssetPairs:        d.MatrixHistoryAssetPairs,
		MatrixHistoryIntervalInSeconds: d.MatrixHistoryIntervalInSeconds,
	}
	if len(d.ExchangeFees) > 0 {
		s.ExchangeFees = make(map[string]domain.ExchangeFees, len(d.ExchangeFees))
		for name, f := range d.ExchangeFees {
			s.ExchangeFees[name] = domain.ExchangeFees{DepositFee: f.DepositFee, TradingFee: f.TradingFee}
		}
	}
	return s.Normalized()
}

// ArchiveConfig controls the export of old history to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
	BatchSize     int      `toml:"batch_size"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is the number of requests a client may make per RateWindow.
	// Zero disables rate limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// MinPnL suppresses notifications for smaller opportunities.
	MinPnL float64 `toml:"min_pnl"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbdetector",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbdetector-archive",
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			BusChannel:   "orderbooks",
			ReconnectMin: duration{2 * time.Second},
			ReconnectMax: duration{60 * time.Second},
		},
		Detector: DetectorConfig{
			HistoryMaxSize:                 1000,
			ExpirationTimeInSeconds:        10,
			ExecutionDelayInMilliseconds:   1000,
			MinimumPnL:                     0,
			MinimumVolume:                  0,
			MinSpread:                      0,
			BaseAssets:                     []string{"BTC", "ETH"},
			IntermediateAssets:             []string{"EUR", "USDT", "BTC"},
			QuoteAsset:                     "USD",
			MatrixHistoryIntervalInSeconds: 0,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 30,
			BatchSize:     5000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
			CacheTTL:    duration{500 * time.Millisecond},
		},
		Notify: NotifyConfig{
			Events: []string{"arbitrage_opened"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":    true, // detection, persistence, archive and HTTP API
	"detect":  true, // detection and persistence, no HTTP API
	"monitor": true, // in-memory detection and HTTP API, no external stores
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, detect, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if err := c.Detector.Settings().Validate(); err != nil {
		errs = append(errs, "detector: "+err.Error())
	}

	// Postgres and Redis back the full and detect modes.
	if mode != "monitor" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if mode == "monitor" {
			errs = append(errs, "archive: not available in monitor mode")
		}
	}

	if c.Feed.ReconnectMin.Duration <= 0 || c.Feed.ReconnectMax.Duration < c.Feed.ReconnectMin.Duration {
		errs = append(errs, "feed: reconnect_min must be > 0 and not exceed reconnect_max")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
