package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/settings"
)

var btcUSD = domain.NewAssetPair("BTC", "USD")

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type arbRepo struct{ byPath map[string]domain.Arbitrage }

func (r arbRepo) Insert(context.Context, domain.Arbitrage) error { return nil }

func (r arbRepo) FindByConversionPath(_ context.Context, path string) (domain.Arbitrage, error) {
	a, ok := r.byPath[path]
	if !ok {
		return domain.Arbitrage{}, domain.ErrNotFound
	}
	return a, nil
}

func (r arbRepo) ListBefore(context.Context, time.Time, int) ([]domain.Arbitrage, error) {
	return nil, nil
}

func newEngine(t *testing.T, repo domain.ArbitrageRepository) (*Engine, *clock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	holder, err := settings.NewHolder(domain.Settings{
		HistoryMaxSize:               10,
		ExpirationTimeInSeconds:      10,
		ExecutionDelayInMilliseconds: 100,
		MinSpread:                    1,
		MinimumVolume:                1,
		MinimumPnL:                   1,
		BaseAssets:                   []string{"BTC"},
		IntermediateAssets:           []string{"EUR"},
		QuoteAsset:                   "USD",
		OwnExchange:                  "x",
	}, nil, logger)
	require.NoError(t, err)

	c := &clock{t: time.Unix(1_700_000_000, 0)}
	return New(Config{Settings: holder, ArbitrageRepo: repo, Logger: logger, Now: c.Now}), c
}

func update(source string, pair domain.AssetPair, ts time.Time, ask, askVol, bid, bidVol float64) domain.OrderBookUpdate {
	return domain.OrderBookUpdate{
		Source:    source,
		AssetPair: pair,
		Timestamp: ts,
		Asks:      []domain.VolumePrice{{Price: ask, Volume: askVol}},
		Bids:      []domain.VolumePrice{{Price: bid, Volume: bidVol}},
	}
}

func TestHandleToArbitrage(t *testing.T) {
	e, c := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.Handle(ctx, update("x", btcUSD, c.t, 100, 5, 99, 5)))
	require.NoError(t, e.Handle(ctx, update("y", btcUSD, c.t, 106, 3, 105, 3)))

	stats, err := e.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CrossRates)

	arbs, err := e.Arbitrages(ctx)
	require.NoError(t, err)
	require.Len(t, arbs, 1)
	assert.Equal(t, 5.0, arbs[0].Spread)
	assert.Equal(t, 3.0, arbs[0].Volume)
	assert.Equal(t, 15.0, arbs[0].PnL)

	own, err := e.OwnExchangeArbitrages(ctx, domain.OwnExchangeQuery{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "y", own[0].Target)

	// Re-sending the same book keeps the same arbitrage open.
	require.NoError(t, e.Handle(ctx, update("y", btcUSD, c.t, 106, 3, 105, 3)))
	_, err = e.Scan(ctx)
	require.NoError(t, err)
	again, _ := e.Arbitrages(ctx)
	require.Len(t, again, 1)
	assert.Equal(t, arbs[0].ID, again[0].ID)

	// y's bid drops below x's ask: the arbitrage closes.
	require.NoError(t, e.Handle(ctx, update("y", btcUSD, c.t, 106, 3, 99, 3)))
	_, err = e.Scan(ctx)
	require.NoError(t, err)
	open, _ := e.Arbitrages(ctx)
	assert.Empty(t, open)
	hist, _ := e.ArbitrageHistory(ctx, time.Time{}, 0)
	require.Len(t, hist, 1)

	found, err := e.ArbitrageFromHistory(ctx, hist[0].ConversionPath())
	require.NoError(t, err)
	assert.Equal(t, hist[0].ID, found.ID)
}

func TestHandleRejectsInvalidBook(t *testing.T) {
	e, c := newEngine(t, nil)
	ctx := context.Background()

	err := e.Handle(ctx, update("x", btcUSD, c.t, 100, 1, 101, 1))
	require.ErrorIs(t, err, domain.ErrInvalidOrderBook)

	books, _ := e.OrderBooks(ctx, "", domain.AssetPair{})
	assert.Empty(t, books)
}

func TestHandleStampsMissingTimestamp(t *testing.T) {
	e, c := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.Handle(ctx, update("x", btcUSD, time.Time{}, 100, 1, 99, 1)))
	books, _ := e.OrderBooks(ctx, "x", btcUSD)
	require.Len(t, books, 1)
	assert.Equal(t, c.t, books[0].Timestamp)
}

func TestSettingsChangeRebuildsRates(t *testing.T) {
	e, c := newEngine(t, nil)
	ctx := context.Background()
	eth := domain.NewAssetPair("ETH", "USD")

	require.NoError(t, e.Handle(ctx, update("x", eth, c.t, 2000, 1, 1999, 1)))
	rates, _ := e.CrossRates(ctx)
	assert.Empty(t, rates)

	s, _ := e.Settings(ctx)
	s.BaseAssets = []string{"BTC", "ETH"}
	s.HistoryMaxSize = 3
	require.NoError(t, e.SetSettings(ctx, s))

	rates, _ = e.CrossRates(ctx)
	require.Len(t, rates, 1)
	assert.Equal(t, eth, rates[0].AssetPair)
	assert.Equal(t, 3, e.history.Cap())

	s.QuoteAsset = ""
	require.ErrorIs(t, e.SetSettings(ctx, s), domain.ErrInvalidSettings)
	got, _ := e.Settings(ctx)
	assert.Equal(t, "USD", got.QuoteAsset)
}

func TestArbitrageFromHistoryFallsBackToRepository(t *testing.T) {
	stored := domain.Arbitrage{ID: "persisted"}
	e, _ := newEngine(t, arbRepo{byPath: map[string]domain.Arbitrage{"(a) > (b)": stored}})
	ctx := context.Background()

	got, err := e.ArbitrageFromHistory(ctx, "(a) > (b)")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.ID)

	_, err = e.ArbitrageFromHistory(ctx, "(c) > (d)")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMatrixHistoryUnavailableWithoutRepository(t *testing.T) {
	e, c := newEngine(t, nil)
	_, err := e.MatrixHistory(context.Background(), btcUSD, c.t)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestRunClosesOpenArbitragesOnShutdown(t *testing.T) {
	e, c := newEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, e.Handle(ctx, update("x", btcUSD, c.t, 100, 5, 99, 5)))
	require.NoError(t, e.Handle(ctx, update("y", btcUSD, c.t, 106, 3, 105, 3)))
	_, err := e.Scan(ctx)
	require.NoError(t, err)

	cancel()
	assert.ErrorIs(t, e.Run(ctx), context.Canceled)
	open, _ := e.Arbitrages(context.Background())
	assert.Empty(t, open)
	assert.Equal(t, 1, e.history.Len())
}

func TestSettingsReturnsPrivateCopy(t *testing.T) {
	e, _ := newEngine(t, nil)

	got, err := e.Settings(context.Background())
	require.NoError(t, err)
	got.BaseAssets[0] = "ETH"
	got.IntermediateAssets[0] = "JPY"

	again, err := e.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC"}, again.BaseAssets)
	assert.Equal(t, []string{"EUR"}, again.IntermediateAssets)
}
