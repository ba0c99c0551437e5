package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// ArbitrageRepository guards a domain.ArbitrageRepository.
type ArbitrageRepository struct {
	next domain.ArbitrageRepository
	b    *Breaker
}

var _ domain.ArbitrageRepository = (*ArbitrageRepository)(nil)

// Arbitrages wraps next in a breaker named "arbitrage-store".
func Arbitrages(next domain.ArbitrageRepository, logger *slog.Logger) *ArbitrageRepository {
	return &ArbitrageRepository{next: next, b: NewBreaker("arbitrage-store", logger)}
}

func (r *ArbitrageRepository) Insert(ctx context.Context, a domain.Arbitrage) error {
	return exec(r.b, func() error { return r.next.Insert(ctx, a) })
}

func (r *ArbitrageRepository) FindByConversionPath(ctx context.Context, path string) (domain.Arbitrage, error) {
	return do(r.b, func() (domain.Arbitrage, error) { return r.next.FindByConversionPath(ctx, path) })
}

func (r *ArbitrageRepository) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Arbitrage, error) {
	return do(r.b, func() ([]domain.Arbitrage, error) { return r.next.ListBefore(ctx, before, limit) })
}

// MatrixRepository guards a domain.MatrixRepository.
type MatrixRepository struct {
	next domain.MatrixRepository
	b    *Breaker
}

var _ domain.MatrixRepository = (*MatrixRepository)(nil)

// Matrices wraps next in a breaker named "matrix-store".
func Matrices(next domain.MatrixRepository, logger *slog.Logger) *MatrixRepository {
	return &MatrixRepository{next: next, b: NewBreaker("matrix-store", logger)}
}

func (r *MatrixRepository) Insert(ctx context.Context, m domain.Matrix) error {
	return exec(r.b, func() error { return r.next.Insert(ctx, m) })
}

func (r *MatrixRepository) Get(ctx context.Context, pair domain.AssetPair, at time.Time) (domain.Matrix, error) {
	return do(r.b, func() (domain.Matrix, error) { return r.next.Get(ctx, pair, at) })
}

func (r *MatrixRepository) ListTimestamps(ctx context.Context, pair domain.AssetPair, from, to time.Time) ([]time.Time, error) {
	return do(r.b, func() ([]time.Time, error) { return r.next.ListTimestamps(ctx, pair, from, to) })
}

func (r *MatrixRepository) ListAssetPairs(ctx context.Context, from, to time.Time) ([]domain.AssetPair, error) {
	return do(r.b, func() ([]domain.AssetPair, error) { return r.next.ListAssetPairs(ctx, from, to) })
}

func (r *MatrixRepository) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Matrix, error) {
	return do(r.b, func() ([]domain.Matrix, error) { return r.next.ListBefore(ctx, before, limit) })
}

// SettingsRepository guards a domain.SettingsRepository.
type SettingsRepository struct {
	next domain.SettingsRepository
	b    *Breaker
}

var _ domain.SettingsRepository = (*SettingsRepository)(nil)

// Settings wraps next in a breaker named "settings-store".
func Settings(next domain.SettingsRepository, logger *slog.Logger) *SettingsRepository {
	return &SettingsRepository{next: next, b: NewBreaker("settings-store", logger)}
}

func (r *SettingsRepository) Get(ctx context.Context) (domain.Settings, error) {
	return do(r.b, func() (domain.Settings, error) { return r.next.Get(ctx) })
}

func (r *SettingsRepository) Save(ctx context.Context, s domain.Settings) error {
	return exec(r.b, func() error { return r.next.Save(ctx, s) })
}
