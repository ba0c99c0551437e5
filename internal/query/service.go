// Package query defines the read/write surface the API serves and the
// decorators layered on top of it.
package query

import (
	"context"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// Service is implemented by engine.Engine and by every decorator here.
type Service interface {
	OrderBooks(ctx context.Context, exchange string, pair domain.AssetPair) ([]domain.OrderBook, error)
	CrossRates(ctx context.Context) ([]domain.CrossRate, error)
	Arbitrages(ctx context.Context) ([]domain.Arbitrage, error)
	ArbitrageHistory(ctx context.Context, since time.Time, take int) ([]domain.Arbitrage, error)
	ArbitrageFromHistory(ctx context.Context, conversionPath string) (domain.Arbitrage, error)
	OwnExchangeArbitrages(ctx context.Context, q domain.OwnExchangeQuery) ([]domain.OwnExchangeArbitrage, error)

	Matrix(ctx context.Context, pair domain.AssetPair, fees domain.Fees) (domain.Matrix, error)
	MatrixAssetPairs(ctx context.Context) ([]domain.AssetPair, error)
	MatrixHistory(ctx context.Context, pair domain.AssetPair, at time.Time) (domain.Matrix, error)
	MatrixHistoryTimestamps(ctx context.Context, pair domain.AssetPair, from, to time.Time) ([]time.Time, error)
	MatrixHistoryAssetPairs(ctx context.Context, from, to time.Time) ([]domain.AssetPair, error)

	Settings(ctx context.Context) (domain.Settings, error)
	SetSettings(ctx context.Context, s domain.Settings) error
}
