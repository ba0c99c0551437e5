package query

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// stub implements only what the tests call; other methods panic via the nil
// embedded interface.
type stub struct {
	Service
	calls    atomic.Int32
	err      error
	release  chan struct{}
	settings domain.Settings
}

func (s *stub) Arbitrages(context.Context) ([]domain.Arbitrage, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Arbitrage{{ID: "a"}}, nil
}

func (s *stub) Matrix(_ context.Context, pair domain.AssetPair, _ domain.Fees) (domain.Matrix, error) {
	s.calls.Add(1)
	return domain.Matrix{AssetPair: pair}, s.err
}

func (s *stub) MatrixHistory(_ context.Context, pair domain.AssetPair, at time.Time) (domain.Matrix, error) {
	s.calls.Add(1)
	return domain.Matrix{AssetPair: pair, DateTime: at}, nil
}

func (s *stub) Settings(context.Context) (domain.Settings, error) {
	s.calls.Add(1)
	return s.settings, nil
}

func (s *stub) SetSettings(_ context.Context, st domain.Settings) error {
	if s.err != nil {
		return s.err
	}
	s.settings = st
	return nil
}

func TestCachedServesWithinTTL(t *testing.T) {
	next := &stub{}
	c := WithCache(next, time.Minute)
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for range 3 {
		got, err := c.Arbitrages(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	assert.EqualValues(t, 1, next.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err := c.Arbitrages(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestCachedKeysByArguments(t *testing.T) {
	next := &stub{}
	c := WithCache(next, time.Minute)
	ctx := context.Background()
	fee := 0.1

	_, _ = c.Matrix(ctx, domain.NewAssetPair("BTC", "USD"), domain.Fees{})
	_, _ = c.Matrix(ctx, domain.NewAssetPair("BTC", "USD"), domain.Fees{TradingFee: &fee})
	_, _ = c.Matrix(ctx, domain.NewAssetPair("ETH", "USD"), domain.Fees{})
	_, _ = c.Matrix(ctx, domain.NewAssetPair("BTC", "USD"), domain.Fees{})
	assert.EqualValues(t, 3, next.calls.Load())
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	next := &stub{err: errors.New("boom")}
	c := WithCache(next, time.Minute)

	_, err := c.Arbitrages(context.Background())
	require.Error(t, err)
	_, err = c.Arbitrages(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestCachedCollapsesConcurrentCalls(t *testing.T) {
	next := &stub{release: make(chan struct{})}
	c := WithCache(next, time.Minute)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Arbitrages(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(next.release)
	wg.Wait()
	assert.EqualValues(t, 1, next.calls.Load())
}

func TestCachedSetSettingsInvalidates(t *testing.T) {
	next := &stub{settings: domain.Settings{QuoteAsset: "USD"}}
	c := WithCache(next, time.Minute)
	ctx := context.Background()

	s, _ := c.Settings(ctx)
	assert.Equal(t, "USD", s.QuoteAsset)

	require.NoError(t, c.SetSettings(ctx, domain.Settings{QuoteAsset: "EUR"}))
	s, _ = c.Settings(ctx)
	assert.Equal(t, "EUR", s.QuoteAsset)
}

func TestLoggedTranslatesUnexpectedErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	l := WithLogging(&stub{err: errors.New("pq: connection reset")}, logger)
	_, err := l.Arbitrages(context.Background())
	require.ErrorIs(t, err, domain.ErrInternal)
	assert.NotContains(t, err.Error(), "connection reset")
	assert.Contains(t, buf.String(), "connection reset")
	assert.Contains(t, buf.String(), "method=Arbitrages")

	l = WithLogging(&stub{err: domain.ErrNotFound}, logger)
	_, err = l.Matrix(context.Background(), domain.NewAssetPair("BTC", "USD"), domain.Fees{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrInternal)
}

func TestCachedDropsExpiredEntries(t *testing.T) {
	next := &stub{}
	c := WithCache(next, 10*time.Millisecond)
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	pair := domain.NewAssetPair("BTC", "USD")

	for range 10_000 {
		_, err := c.MatrixHistory(ctx, pair, now)
		require.NoError(t, err)
		now = now.Add(time.Second)
	}
	assert.LessOrEqual(t, c.size(), maxCacheEntries)
	assert.EqualValues(t, 10_000, next.calls.Load())

	_, err := c.Arbitrages(ctx)
	require.NoError(t, err)
	now = now.Add(time.Second)
	_, ok := c.lookup("arbitrages")
	assert.False(t, ok)
	_, present := c.entries["arbitrages"]
	assert.False(t, present)
}

func TestCachedStaysBoundedWithLiveEntries(t *testing.T) {
	next := &stub{}
	c := WithCache(next, time.Hour)
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	pair := domain.NewAssetPair("BTC", "USD")

	for i := range 3 * maxCacheEntries {
		_, err := c.MatrixHistory(ctx, pair, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, c.size(), maxCacheEntries)
}
