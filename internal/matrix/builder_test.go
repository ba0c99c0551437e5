package matrix

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/orderbook"
)

var btcUSD = domain.NewAssetPair("BTC", "USD")

type fakeRates struct{ rates []domain.CrossRate }

func (f fakeRates) CrossRatesFor(pair domain.AssetPair) []domain.CrossRate {
	var out []domain.CrossRate
	for _, r := range f.rates {
		if r.AssetPair == pair {
			out = append(out, r)
		}
	}
	return out
}

type fixture struct {
	now      time.Time
	settings domain.Settings
	books    *orderbook.Store
	rates    *fakeRates
	builder  *Builder
}

func newFixture() *fixture {
	f := &fixture{
		now:      time.Unix(1_700_000_000, 0),
		settings: domain.Settings{ExpirationTimeInSeconds: 10, BaseAssets: []string{"BTC"}, QuoteAsset: "USD"},
		rates:    &fakeRates{},
	}
	clock := func() time.Time { return f.now }
	get := func() domain.Settings { return f.settings }
	f.books = orderbook.NewStore(func() time.Duration { return f.settings.Expiration() }).WithClock(clock)
	f.builder = NewBuilder(f.books, f.rates, get).WithClock(clock)
	return f
}

func (f *fixture) put(source string, asks, bids []domain.VolumePrice) {
	f.books.Upsert(domain.OrderBook{Source: source, AssetPair: btcUSD, Timestamp: f.now, Asks: asks, Bids: bids})
}

func TestBuildCells(t *testing.T) {
	f := newFixture()
	f.put("kraken", []domain.VolumePrice{{Price: 100, Volume: 2}}, []domain.VolumePrice{{Price: 99, Volume: 1}})
	f.put("bitstamp", []domain.VolumePrice{{Price: 103, Volume: 1}}, []domain.VolumePrice{{Price: 102, Volume: 5}})
	f.put("asksonly", []domain.VolumePrice{{Price: 104, Volume: 1}}, nil)

	m, err := f.builder.Build(btcUSD, domain.Fees{})
	require.NoError(t, err)

	require.Len(t, m.Exchanges, 3)
	assert.Equal(t, "asksonly", m.Exchanges[0].Name)
	assert.Equal(t, "bitstamp", m.Exchanges[1].Name)
	assert.Equal(t, "kraken", m.Exchanges[2].Name)
	assert.True(t, m.Exchanges[2].Actual)
	assert.Nil(t, m.Bids[0])

	for i := range m.Cells {
		assert.Nil(t, m.Cells[i][i], "diagonal")
		assert.Nil(t, m.Cells[i][0], "no bid on asksonly")
	}

	// Buy on kraken at 100, sell on bitstamp at 102.
	cell := m.Cells[2][1]
	require.NotNil(t, cell)
	assert.InDelta(t, 2, cell.Spread, 1e-9)
	assert.InDelta(t, 2, cell.Volume, 1e-9)

	// Buy on bitstamp, sell on kraken loses money.
	assert.Less(t, m.Cells[1][2].Spread, 0.0)
}

func TestBuildConfiguredExchangesAndMissingData(t *testing.T) {
	f := newFixture()
	f.settings.MatrixExchanges = []string{"kraken", "ghost", "bitstamp", "kraken"}
	f.put("kraken", []domain.VolumePrice{{Price: 100, Volume: 2}}, []domain.VolumePrice{{Price: 99, Volume: 1}})
	f.put("bitstamp", []domain.VolumePrice{{Price: 103, Volume: 1}}, []domain.VolumePrice{{Price: 102, Volume: 5}})

	m, err := f.builder.Build(btcUSD, domain.Fees{})
	require.NoError(t, err)

	require.Len(t, m.Exchanges, 3)
	assert.Equal(t, []string{"kraken", "ghost", "bitstamp"},
		[]string{m.Exchanges[0].Name, m.Exchanges[1].Name, m.Exchanges[2].Name})
	assert.Nil(t, m.Asks[1])
	for j := range m.Cells {
		assert.Nil(t, m.Cells[1][j])
		assert.Nil(t, m.Cells[j][1])
	}
	assert.NotNil(t, m.Cells[0][2])
}

func TestBuildFallsBackToSynthesizedRate(t *testing.T) {
	f := newFixture()
	eur := domain.NewAssetPair("BTC", "EUR")
	f.rates.rates = []domain.CrossRate{
		{
			Source: "lykke", AssetPair: btcUSD,
			BestAsk:        &domain.VolumePrice{Price: 101, Volume: 1},
			BestBid:        &domain.VolumePrice{Price: 100, Volume: 1},
			ConversionPath: domain.ConversionPath{{Source: "lykke", AssetPair: eur}, {Source: "lykke", AssetPair: domain.NewAssetPair("EUR", "USD")}},
		},
		{
			Source: "lykke-kraken", AssetPair: btcUSD,
			BestAsk:        &domain.VolumePrice{Price: 50, Volume: 1},
			ConversionPath: domain.ConversionPath{{Source: "lykke", AssetPair: eur}, {Source: "kraken", AssetPair: domain.NewAssetPair("EUR", "USD")}},
		},
	}

	m, err := f.builder.Build(btcUSD, domain.Fees{})
	require.NoError(t, err)
	require.Len(t, m.Exchanges, 1)
	assert.Equal(t, domain.MatrixExchange{Name: "lykke", Actual: false}, m.Exchanges[0])
	assert.Equal(t, 101.0, m.Asks[0].Price)
}

func TestBuildAppliesFees(t *testing.T) {
	f := newFixture()
	f.settings.ExchangeFees = map[string]domain.ExchangeFees{"kraken": {TradingFee: 1}}
	f.put("kraken", []domain.VolumePrice{{Price: 100, Volume: 2}}, []domain.VolumePrice{{Price: 99, Volume: 1}})
	f.put("bitstamp", []domain.VolumePrice{{Price: 103, Volume: 1}}, []domain.VolumePrice{{Price: 102, Volume: 5}})

	m, err := f.builder.Build(btcUSD, domain.Fees{})
	require.NoError(t, err)
	assert.InDelta(t, 101, m.Asks[1].Price, 1e-9)
	assert.InDelta(t, 102, m.Bids[0].Price, 1e-9)

	deposit, trading := 1.0, 0.0
	m, err = f.builder.Build(btcUSD, domain.Fees{DepositFee: &deposit, TradingFee: &trading})
	require.NoError(t, err)
	assert.InDelta(t, 101, m.Asks[1].Price, 1e-9)
	assert.InDelta(t, 104.03, m.Asks[0].Price, 1e-9)

	negative := -1.0
	_, err = f.builder.Build(btcUSD, domain.Fees{TradingFee: &negative})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	for _, v := range []float64{math.NaN(), math.Inf(1)} {
		_, err = f.builder.Build(btcUSD, domain.Fees{DepositFee: &v})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	}
}

func TestAssetPairs(t *testing.T) {
	f := newFixture()
	assert.Equal(t, []domain.AssetPair{btcUSD}, f.builder.AssetPairs())

	f.settings.MatrixAssetPairs = []string{"ETH/BTC"}
	assert.Equal(t, []domain.AssetPair{domain.NewAssetPair("ETH", "BTC")}, f.builder.AssetPairs())
}

type memMatrixRepo struct {
	mu       sync.Mutex
	inserted []domain.Matrix
}

func (r *memMatrixRepo) Insert(_ context.Context, m domain.Matrix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted = append(r.inserted, m)
	return nil
}

func (r *memMatrixRepo) Get(context.Context, domain.AssetPair, time.Time) (domain.Matrix, error) {
	return domain.Matrix{}, domain.ErrNotFound
}

func (r *memMatrixRepo) ListTimestamps(context.Context, domain.AssetPair, time.Time, time.Time) ([]time.Time, error) {
	return nil, nil
}

func (r *memMatrixRepo) ListAssetPairs(context.Context, time.Time, time.Time) ([]domain.AssetPair, error) {
	return nil, nil
}

func (r *memMatrixRepo) ListBefore(context.Context, time.Time, int) ([]domain.Matrix, error) {
	return nil, nil
}

type onceLocks struct{ held map[string]bool }

func (l *onceLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {}, nil
}

func TestSnapshotAll(t *testing.T) {
	f := newFixture()
	f.settings.MatrixHistoryAssetPairs = []string{"BTC/USD", "ETH/USD"}
	f.settings.MatrixHistoryIntervalInSeconds = 60
	f.put("kraken", []domain.VolumePrice{{Price: 100, Volume: 2}}, []domain.VolumePrice{{Price: 99, Volume: 1}})

	repo := &memMatrixRepo{}
	locks := &onceLocks{held: map[string]bool{}}
	s := NewSnapshotter(SnapshotterConfig{
		Builder:  f.builder,
		Repo:     repo,
		Locks:    locks,
		Settings: func() domain.Settings { return f.settings },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s.now = func() time.Time { return f.now }

	s.SnapshotAll(context.Background())
	require.Len(t, repo.inserted, 2)
	assert.Equal(t, btcUSD, repo.inserted[0].AssetPair)
	assert.Empty(t, repo.inserted[1].Exchanges)

	// Same interval bucket: another replica already holds the locks.
	s.SnapshotAll(context.Background())
	assert.Len(t, repo.inserted, 2)

	f.now = f.now.Add(time.Minute)
	s.SnapshotAll(context.Background())
	assert.Len(t, repo.inserted, 4)
}

func TestSnapshotterStopsOnCancel(t *testing.T) {
	f := newFixture()
	s := NewSnapshotter(SnapshotterConfig{
		Builder:  f.builder,
		Repo:     &memMatrixRepo{},
		Settings: func() domain.Settings { return f.settings },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(s.Run(ctx), context.Canceled))
}
