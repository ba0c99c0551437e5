package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// passthrough errors are part of the API contract and reach callers as is.
var passthrough = []error{
	domain.ErrNotFound,
	domain.ErrInvalidArgument,
	domain.ErrInvalidSettings,
	domain.ErrInvalidOrderBook,
	domain.ErrUnavailable,
	domain.ErrInternal,
	context.Canceled,
	context.DeadlineExceeded,
}

// Logged logs failed calls and hides unexpected errors behind
// domain.ErrInternal so storage details never reach API clients.
type Logged struct {
	next   Service
	logger *slog.Logger
}

func WithLogging(next Service, logger *slog.Logger) *Logged {
	return &Logged{next: next, logger: logger.With(slog.String("component", "query"))}
}

func (l *Logged) check(ctx context.Context, method string, err error, attrs ...any) error {
	if err == nil {
		return nil
	}
	attrs = append(attrs, slog.String("method", method), slog.String("error", err.Error()))
	for _, known := range passthrough {
		if errors.Is(err, known) {
			l.logger.DebugContext(ctx, "query failed", attrs...)
			return err
		}
	}
	l.logger.ErrorContext(ctx, "query failed", attrs...)
	return fmt.Errorf("%w: %s", domain.ErrInternal, method)
}

func (l *Logged) OrderBooks(ctx context.Context, exchange string, pair domain.AssetPair) ([]domain.OrderBook, error) {
	v, err := l.next.OrderBooks(ctx, exchange, pair)
	return v, l.check(ctx, "OrderBooks", err, slog.String("exchange", exchange), slog.String("asset_pair", pair.String()))
}

func (l *Logged) CrossRates(ctx context.Context) ([]domain.CrossRate, error) {
	v, err := l.next.CrossRates(ctx)
	return v, l.check(ctx, "CrossRates", err)
}

func (l *Logged) Arbitrages(ctx context.Context) ([]domain.Arbitrage, error) {
	v, err := l.next.Arbitrages(ctx)
	return v, l.check(ctx, "Arbitrages", err)
}

func (l *Logged) ArbitrageHistory(ctx context.Context, since time.Time, take int) ([]domain.Arbitrage, error) {
	v, err := l.next.ArbitrageHistory(ctx, since, take)
	return v, l.check(ctx, "ArbitrageHistory", err, slog.Time("since", since), slog.Int("take", take))
}

func (l *Logged) ArbitrageFromHistory(ctx context.Context, conversionPath string) (domain.Arbitrage, error) {
	v, err := l.next.ArbitrageFromHistory(ctx, conversionPath)
	return v, l.check(ctx, "ArbitrageFromHistory", err, slog.String("conversion_path", conversionPath))
}

func (l *Logged) OwnExchangeArbitrages(ctx context.Context, q domain.OwnExchangeQuery) ([]domain.OwnExchangeArbitrage, error) {
	v, err := l.next.OwnExchangeArbitrages(ctx, q)
	return v, l.check(ctx, "OwnExchangeArbitrages", err,
		slog.String("own", q.Own), slog.String("target", q.Target), slog.String("property", q.Property))
}

func (l *Logged) Matrix(ctx context.Context, pair domain.AssetPair, fees domain.Fees) (domain.Matrix, error) {
	v, err := l.next.Matrix(ctx, pair, fees)
	return v, l.check(ctx, "Matrix", err, slog.String("asset_pair", pair.String()))
}

func (l *Logged) MatrixAssetPairs(ctx context.Context) ([]domain.AssetPair, error) {
	v, err := l.next.MatrixAssetPairs(ctx)
	return v, l.check(ctx, "MatrixAssetPairs", err)
}

func (l *Logged) MatrixHistory(ctx context.Context, pair domain.AssetPair, at time.Time) (domain.Matrix, error) {
	v, err := l.next.MatrixHistory(ctx, pair, at)
	return v, l.check(ctx, "MatrixHistory", err, slog.String("asset_pair", pair.String()), slog.Time("at", at))
}

func (l *Logged) MatrixHistoryTimestamps(ctx context.Context, pair domain.AssetPair, from, to time.Time) ([]time.Time, error) {
	v, err := l.next.MatrixHistoryTimestamps(ctx, pair, from, to)
	return v, l.check(ctx, "MatrixHistoryTimestamps", err, slog.String("asset_pair", pair.String()))
}

func (l *Logged) MatrixHistoryAssetPairs(ctx context.Context, from, to time.Time) ([]domain.AssetPair, error) {
	v, err := l.next.MatrixHistoryAssetPairs(ctx, from, to)
	return v, l.check(ctx, "MatrixHistoryAssetPairs", err)
}

func (l *Logged) Settings(ctx context.Context) (domain.Settings, error) {
	v, err := l.next.Settings(ctx)
	return v, l.check(ctx, "Settings", err)
}

func (l *Logged) SetSettings(ctx context.Context, s domain.Settings) error {
	return l.check(ctx, "SetSettings", l.next.SetSettings(ctx, s))
}

var _ Service = (*Logged)(nil)
