package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

type flakyArbitrages struct {
	err   error
	calls int
}

func (f *flakyArbitrages) Insert(context.Context, domain.Arbitrage) error {
	f.calls++
	return f.err
}

func (f *flakyArbitrages) FindByConversionPath(context.Context, string) (domain.Arbitrage, error) {
	f.calls++
	if f.err != nil {
		return domain.Arbitrage{}, f.err
	}
	return domain.Arbitrage{ID: "a1"}, nil
}

func (f *flakyArbitrages) ListBefore(context.Context, time.Time, int) ([]domain.Arbitrage, error) {
	f.calls++
	return nil, f.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &flakyArbitrages{err: errors.New("connection refused")}
	repo := Arbitrages(next, discard())
	ctx := context.Background()

	for range 3 {
		err := repo.Insert(ctx, domain.Arbitrage{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrUnavailable)
	}
	assert.Equal(t, "open", repo.b.State())

	err := repo.Insert(ctx, domain.Arbitrage{})
	require.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, 3, next.calls, "open breaker must not reach the repository")
}

func TestNotFoundDoesNotTrip(t *testing.T) {
	next := &flakyArbitrages{err: domain.ErrNotFound}
	repo := Arbitrages(next, discard())

	for range 5 {
		_, err := repo.FindByConversionPath(context.Background(), "p")
		require.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, "closed", repo.b.State())
	assert.Equal(t, 5, next.calls)
}

func TestPassesResultsThrough(t *testing.T) {
	repo := Arbitrages(&flakyArbitrages{}, discard())

	a, err := repo.FindByConversionPath(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)

	list, err := repo.ListBefore(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
