package arbitrage

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

type detectorFixture struct {
	rates    *staticRates
	history  *History
	observer *recordingObserver
	clock    *stepClock
	settings domain.Settings
	det      *Detector
}

func newDetectorFixture() *detectorFixture {
	f := &detectorFixture{
		rates:    &staticRates{},
		history:  NewHistory(10),
		observer: &recordingObserver{},
		clock:    &stepClock{t: time.Unix(1_700_000_000, 0)},
		settings: domain.Settings{
			ExecutionDelayInMilliseconds: 10,
			MinSpread:                    1,
			MinimumVolume:                1,
			MinimumPnL:                   1,
		},
	}
	f.det = NewDetector(DetectorConfig{
		Rates:    f.rates,
		History:  f.history,
		Settings: func() domain.Settings { return f.settings },
		Observer: f.observer,
		Logger:   discardLogger(),
		Now:      f.clock.Now,
	})
	return f
}

func TestDetectsCrossedRates(t *testing.T) {
	f := newDetectorFixture()
	f.rates.set(
		direct("x", 100, 5, 0, 0),
		direct("y", 0, 0, 105, 3),
	)

	stats, err := f.det.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Opened)

	arbs := f.det.Arbitrages()
	require.Len(t, arbs, 1)
	a := arbs[0]
	assert.Equal(t, 5.0, a.Spread)
	assert.Equal(t, 3.0, a.Volume)
	assert.Equal(t, 15.0, a.PnL)
	assert.Equal(t, "x", a.AskSynth.Source)
	assert.Equal(t, "y", a.BidSynth.Source)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, f.clock.Now(), a.StartedAt)
	assert.Equal(t, "(x-BTC/USD) > (y-BTC/USD)", a.ConversionPath())
}

func TestThresholds(t *testing.T) {
	tests := map[string]func(*domain.Settings){
		"spread": func(s *domain.Settings) { s.MinSpread = 6 },
		"volume": func(s *domain.Settings) { s.MinimumVolume = 4 },
		"pnl":    func(s *domain.Settings) { s.MinimumPnL = 16 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			f := newDetectorFixture()
			mutate(&f.settings)
			f.rates.set(direct("x", 100, 5, 0, 0), direct("y", 0, 0, 105, 3))

			_, err := f.det.Scan(context.Background())
			require.NoError(t, err)
			assert.Empty(t, f.det.Arbitrages())
		})
	}
}

func TestRedetectionRefreshesEndedAt(t *testing.T) {
	f := newDetectorFixture()
	f.rates.set(direct("x", 100, 5, 0, 0), direct("y", 0, 0, 105, 3))

	_, err := f.det.Scan(context.Background())
	require.NoError(t, err)
	first := f.det.Arbitrages()[0]

	f.clock.Tick()
	stats, err := f.det.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Opened)

	arbs := f.det.Arbitrages()
	require.Len(t, arbs, 1)
	assert.Equal(t, first.ID, arbs[0].ID)
	assert.Equal(t, first.StartedAt, arbs[0].StartedAt)
	assert.Equal(t, f.clock.Now(), arbs[0].EndedAt)
	assert.Len(t, f.observer.opened, 1)
}

func TestVanishedArbitrageMovesToHistory(t *testing.T) {
	f := newDetectorFixture()
	f.rates.set(direct("x", 100, 5, 0, 0), direct("y", 0, 0, 105, 3))
	_, err := f.det.Scan(context.Background())
	require.NoError(t, err)
	f.clock.Tick()
	_, err = f.det.Scan(context.Background())
	require.NoError(t, err)
	lastSeen := f.clock.Now()

	f.clock.Tick()
	f.rates.set(direct("x", 100, 5, 0, 0), direct("y", 0, 0, 99, 3))
	stats, err := f.det.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Closed)
	assert.Empty(t, f.det.Arbitrages())
	hist := f.history.Range(time.Time{}, 0)
	require.Len(t, hist, 1)
	assert.Equal(t, lastSeen, hist[0].EndedAt)
	assert.Equal(t, time.Second, hist[0].Duration())
	require.Len(t, f.observer.closed, 1)
}

func TestSameKeyRatesAreNotCompared(t *testing.T) {
	f := newDetectorFixture()
	f.settings.MinSpread, f.settings.MinimumVolume, f.settings.MinimumPnL = 0, 0, 0
	f.rates.set(direct("x", 100, 5, 90, 5))

	_, err := f.det.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.det.Arbitrages())
}

func TestCloseFlushesOpenArbitrages(t *testing.T) {
	f := newDetectorFixture()
	f.rates.set(direct("x", 100, 5, 0, 0), direct("y", 0, 0, 105, 3))
	_, err := f.det.Scan(context.Background())
	require.NoError(t, err)

	f.det.Close(context.Background())
	assert.Empty(t, f.det.Arbitrages())
	assert.Equal(t, 1, f.history.Len())
}

func TestRunScansUntilCancelled(t *testing.T) {
	f := newDetectorFixture()
	f.rates.set(direct("x", 100, 5, 0, 0), direct("y", 0, 0, 105, 3))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.det.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.det.Arbitrages()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// flakyRates panics while broken is set.
type flakyRates struct {
	*staticRates
	broken atomic.Bool
	panics atomic.Int32
}

func (r *flakyRates) CrossRates() []domain.CrossRate {
	if r.broken.Load() {
		r.panics.Add(1)
		panic("rate source failure")
	}
	return r.staticRates.CrossRates()
}

func TestScanRecoversFromRateSourcePanic(t *testing.T) {
	f := newDetectorFixture()
	rates := &flakyRates{staticRates: f.rates}
	f.det.rates = rates
	f.rates.set(direct("x", 100, 5, 0, 0), direct("y", 0, 0, 105, 3))

	ctx := context.Background()
	_, err := f.det.Scan(ctx)
	require.NoError(t, err)
	before := f.det.Arbitrages()
	require.Len(t, before, 1)

	rates.broken.Store(true)
	f.clock.Tick()
	_, err = f.det.Scan(ctx)
	require.ErrorIs(t, err, domain.ErrInternal)
	assert.Equal(t, before, f.det.Arbitrages())
	assert.Zero(t, f.history.Len())

	rates.broken.Store(false)
	f.clock.Tick()
	stats, err := f.det.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, before[0].ID, f.det.Arbitrages()[0].ID)
}

func TestFindCrossedRecoversPerPair(t *testing.T) {
	rates := []domain.CrossRate{direct("x", 100, 5, 0, 0), direct("y", 0, 0, 105, 3)}

	_, err := findCrossed(rates, func(_, _ domain.CrossRate) bool { panic("bad filter") })
	require.ErrorIs(t, err, domain.ErrInternal)
	assert.Contains(t, err.Error(), btcUSD.String())

	found, err := findCrossed(rates, nil)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestRunSurvivesPanickingScans(t *testing.T) {
	f := newDetectorFixture()
	rates := &flakyRates{staticRates: f.rates}
	rates.broken.Store(true)
	f.det.rates = rates
	f.rates.set(direct("x", 100, 5, 0, 0), direct("y", 0, 0, 105, 3))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.det.Run(ctx) }()

	require.Eventually(t, func() bool { return rates.panics.Load() >= 2 }, time.Second, 5*time.Millisecond)
	rates.broken.Store(false)
	require.Eventually(t, func() bool { return len(f.det.Arbitrages()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
