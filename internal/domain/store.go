package domain

import (
	"context"
	"time"
)

// SettingsRepository persists the active Settings.
type SettingsRepository interface {
	Get(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// MatrixRepository persists periodic matrix snapshots.
type MatrixRepository interface {
	Insert(ctx context.Context, m Matrix) error
	// Get returns the latest snapshot for pair taken at or before at.
	Get(ctx context.Context, pair AssetPair, at time.Time) (Matrix, error)
	ListTimestamps(ctx context.Context, pair AssetPair, from, to time.Time) ([]time.Time, error)
	ListAssetPairs(ctx context.Context, from, to time.Time) ([]AssetPair, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Matrix, error)
}

// ArbitrageRepository persists closed arbitrages.
type ArbitrageRepository interface {
	Insert(ctx context.Context, a Arbitrage) error
	FindByConversionPath(ctx context.Context, path string) (Arbitrage, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Arbitrage, error)
}
