package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Detector.QuoteAsset = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "config validation failed")
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "quote_asset is required")
	assert.Contains(t, msg, "server: port must be 1-65535")
}

func TestValidateMonitorModeSkipsStores(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.Postgres.Host = ""
	cfg.Redis.Addr = ""
	require.NoError(t, cfg.Validate())

	cfg.Archive.Enabled = true
	require.ErrorContains(t, cfg.Validate(), "archive: not available in monitor mode")
}

func TestValidatePostgresDSNReplacesFields(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Host = ""
	require.ErrorContains(t, cfg.Validate(), "postgres: host must not be empty")

	cfg.Postgres.DSN = "postgres://u:p@db:5432/arb"
	require.NoError(t, cfg.Validate())
}

func TestDetectorSettings(t *testing.T) {
	d := Defaults().Detector
	d.BaseAssets = []string{"btc"}
	d.QuoteAsset = "usd"
	d.ExchangeFees = map[string]FeeConfig{"kraken": {DepositFee: 0.1, TradingFee: 0.2}}

	s := d.Settings()
	assert.Equal(t, []string{"BTC"}, s.BaseAssets)
	assert.Equal(t, "USD", s.QuoteAsset)
	assert.Equal(t, 0.2, s.ExchangeFees["kraken"].TradingFee)
	require.NoError(t, s.Validate())
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	const body = `
mode = "detect"
log_level = "debug"

[detector]
base_assets = ["BTC", "SOL"]
quote_asset = "USDT"
expiration_time_in_seconds = 30

[feed]
reconnect_min = "1s"
reconnect_max = "30s"

[server]
port = 9000
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("ARBDETECTOR_SERVER_PORT", "9100")
	t.Setenv("ARBDETECTOR_DETECTOR_EXCHANGES", "binance, kraken ,")
	t.Setenv("ARBDETECTOR_FEED_RECONNECT_MAX", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "detect", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"BTC", "SOL"}, cfg.Detector.BaseAssets)
	assert.Equal(t, "USDT", cfg.Detector.QuoteAsset)
	assert.Equal(t, 30, cfg.Detector.ExpirationTimeInSeconds)
	assert.Equal(t, time.Second, cfg.Feed.ReconnectMin.Duration)
	assert.Equal(t, 45*time.Second, cfg.Feed.ReconnectMax.Duration)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"binance", "kraken"}, cfg.Detector.Exchanges)
	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Detector.HistoryMaxSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "key"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)

	out.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
