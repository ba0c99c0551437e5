// Package engine ties the order-book store, rate synthesizer, detectors and
// matrix builder into one component with a single inbound operation and a
// set of read-only queries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbdetector/internal/arbitrage"
	"github.com/alanyoungcy/arbdetector/internal/crossrate"
	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/matrix"
	"github.com/alanyoungcy/arbdetector/internal/metrics"
	"github.com/alanyoungcy/arbdetector/internal/orderbook"
	"github.com/alanyoungcy/arbdetector/internal/query"
	"github.com/alanyoungcy/arbdetector/internal/settings"
)

// Config wires an Engine. Only Settings and Logger are required; a nil
// repository disables the features that need it.
type Config struct {
	Settings      *settings.Holder
	MatrixRepo    domain.MatrixRepository
	ArbitrageRepo domain.ArbitrageRepository
	Locks         domain.LockManager
	Observer      arbitrage.Observer
	Metrics       *metrics.Registry
	Logger        *slog.Logger
	Now           func() time.Time
}

type Engine struct {
	settings   *settings.Holder
	books      *orderbook.Store
	validator  *orderbook.Validator
	synth      *crossrate.Synthesizer
	history    *arbitrage.History
	detector   *arbitrage.Detector
	own        *arbitrage.OwnExchangeDetector
	matrix     *matrix.Builder
	snapshots  *matrix.Snapshotter
	matrixRepo domain.MatrixRepository
	arbRepo    domain.ArbitrageRepository
	metrics    *metrics.Registry
	logger     *slog.Logger
	now        func() time.Time
}

func New(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	get := cfg.Settings.Get
	expiration := func() time.Duration { return get().Expiration() }

	e := &Engine{
		settings:   cfg.Settings,
		books:      orderbook.NewStore(expiration).WithClock(now),
		validator:  orderbook.NewValidator(cfg.Logger),
		history:    arbitrage.NewHistory(get().HistoryMaxSize),
		matrixRepo: cfg.MatrixRepo,
		arbRepo:    cfg.ArbitrageRepo,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With(slog.String("component", "engine")),
		now:        now,
	}
	e.synth = crossrate.NewSynthesizer(e.books, get).WithClock(now)
	e.detector = arbitrage.NewDetector(arbitrage.DetectorConfig{
		Rates:    e.synth,
		History:  e.history,
		Settings: get,
		Observer: cfg.Observer,
		Metrics:  cfg.Metrics,
		Logger:   cfg.Logger,
		Now:      now,
	})
	e.own = arbitrage.NewOwnExchangeDetector(e.synth, get)
	e.matrix = matrix.NewBuilder(e.books, e.synth, get).WithClock(now)
	if cfg.MatrixRepo != nil {
		e.snapshots = matrix.NewSnapshotter(matrix.SnapshotterConfig{
			Builder:  e.matrix,
			Repo:     cfg.MatrixRepo,
			Locks:    cfg.Locks,
			Settings: get,
			Metrics:  cfg.Metrics,
			Logger:   cfg.Logger,
		})
	}

	cfg.Settings.OnChange(func(s domain.Settings) {
		e.history.Resize(s.HistoryMaxSize)
		e.synth.Rebuild()
	})
	return e
}

// Handle ingests one order-book update. Invalid books are rejected with an
// error wrapping domain.ErrInvalidOrderBook and leave the store untouched.
func (e *Engine) Handle(ctx context.Context, u domain.OrderBookUpdate) error {
	b := u.Normalize()
	if b.Timestamp.IsZero() {
		b.Timestamp = e.now()
	}
	if err := e.validator.Check(ctx, b); err != nil {
		e.metrics.OrderBookRejected(b.Source)
		return err
	}
	e.books.Upsert(b)
	e.synth.OnUpdate(b.Source, b.AssetPair)
	e.metrics.OrderBookReceived(b.Source, e.books.Len())
	return nil
}

// Run starts the detection loop and, when a matrix repository is
// configured, the matrix snapshot loop. It returns when ctx is cancelled,
// after closing every open arbitrage.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.detector.Run(gctx) })
	if e.snapshots != nil {
		g.Go(func() error { return e.snapshots.Run(gctx) })
	}
	err := g.Wait()
	e.detector.Close(context.WithoutCancel(ctx))
	e.logger.Info("engine stopped", slog.Int("history", e.history.Len()))
	return err
}

// Scan runs one detection cycle immediately.
func (e *Engine) Scan(ctx context.Context) (arbitrage.ScanStats, error) {
	return e.detector.Scan(ctx)
}

func (e *Engine) OrderBooks(_ context.Context, exchange string, pair domain.AssetPair) ([]domain.OrderBook, error) {
	return e.books.GetAll(orderbook.Filter{Exchange: exchange, AssetPair: pair}), nil
}

func (e *Engine) CrossRates(context.Context) ([]domain.CrossRate, error) {
	return e.synth.CrossRates(), nil
}

func (e *Engine) Arbitrages(context.Context) ([]domain.Arbitrage, error) {
	return e.detector.Arbitrages(), nil
}

func (e *Engine) ArbitrageHistory(_ context.Context, since time.Time, take int) ([]domain.Arbitrage, error) {
	return e.history.Range(since, take), nil
}

// ArbitrageFromHistory looks in memory first, then in the persisted history.
func (e *Engine) ArbitrageFromHistory(ctx context.Context, conversionPath string) (domain.Arbitrage, error) {
	a, err := e.history.FindByConversionPath(conversionPath)
	if err == nil || !errors.Is(err, domain.ErrNotFound) || e.arbRepo == nil {
		return a, err
	}
	return e.arbRepo.FindByConversionPath(ctx, conversionPath)
}

func (e *Engine) OwnExchangeArbitrages(_ context.Context, q domain.OwnExchangeQuery) ([]domain.OwnExchangeArbitrage, error) {
	return e.own.Find(q)
}

func (e *Engine) Matrix(_ context.Context, pair domain.AssetPair, fees domain.Fees) (domain.Matrix, error) {
	return e.matrix.Build(pair, fees)
}

func (e *Engine) MatrixAssetPairs(context.Context) ([]domain.AssetPair, error) {
	return e.matrix.AssetPairs(), nil
}

func (e *Engine) MatrixHistory(ctx context.Context, pair domain.AssetPair, at time.Time) (domain.Matrix, error) {
	if e.matrixRepo == nil {
		return domain.Matrix{}, errNoMatrixHistory
	}
	return e.matrixRepo.Get(ctx, pair, at)
}

func (e *Engine) MatrixHistoryTimestamps(ctx context.Context, pair domain.AssetPair, from, to time.Time) ([]time.Time, error) {
	if e.matrixRepo == nil {
		return nil, errNoMatrixHistory
	}
	return e.matrixRepo.ListTimestamps(ctx, pair, from, to)
}

func (e *Engine) MatrixHistoryAssetPairs(ctx context.Context, from, to time.Time) ([]domain.AssetPair, error) {
	if e.matrixRepo == nil {
		return nil, errNoMatrixHistory
	}
	return e.matrixRepo.ListAssetPairs(ctx, from, to)
}

// Settings returns a private copy of the active settings.
func (e *Engine) Settings(context.Context) (domain.Settings, error) {
	return e.settings.Get().Clone(), nil
}

func (e *Engine) SetSettings(ctx context.Context, s domain.Settings) error {
	return e.settings.Set(ctx, s)
}

var errNoMatrixHistory = fmt.Errorf("%w: matrix history is not configured", domain.ErrUnavailable)

var _ query.Service = (*Engine)(nil)
