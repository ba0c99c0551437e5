package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// DefaultCacheTTL suits dashboards polling several times a second.
const DefaultCacheTTL = 500 * time.Millisecond

// maxCacheEntries bounds the map; expired entries are swept when it is reached.
const maxCacheEntries = 1024

type cacheEntry struct {
	value   any
	expires time.Time
}

// Cached memoises read results per argument tuple for a short TTL and
// collapses concurrent identical reads into one call. Errors are not cached.
type Cached struct {
	next Service
	ttl  time.Duration
	now  func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// WithCache wraps next. A non-positive ttl uses DefaultCacheTTL.
func WithCache(next Service, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{next: next, ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

func cached[T any](c *Cached, key string, load func() (T, error)) (T, error) {
	if v, ok := c.lookup(key); ok {
		return v.(T), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return v, err
		}
		c.store(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *Cached) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cached) store(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.entries) >= maxCacheEntries {
		for k, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, k)
			}
		}
		// Everything is live: start over rather than grow.
		if len(c.entries) >= maxCacheEntries {
			c.entries = make(map[string]cacheEntry)
		}
	}
	c.entries[key] = cacheEntry{value: v, expires: now.Add(c.ttl)}
}

func (c *Cached) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate drops every cached result.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *Cached) OrderBooks(ctx context.Context, exchange string, pair domain.AssetPair) ([]domain.OrderBook, error) {
	return cached(c, fmt.Sprintf("orderbooks|%s|%s", exchange, pair), func() ([]domain.OrderBook, error) {
		return c.next.OrderBooks(ctx, exchange, pair)
	})
}

func (c *Cached) CrossRates(ctx context.Context) ([]domain.CrossRate, error) {
	return cached(c, "crossrates", func() ([]domain.CrossRate, error) {
		return c.next.CrossRates(ctx)
	})
}

func (c *Cached) Arbitrages(ctx context.Context) ([]domain.Arbitrage, error) {
	return cached(c, "arbitrages", func() ([]domain.Arbitrage, error) {
		return c.next.Arbitrages(ctx)
	})
}

func (c *Cached) ArbitrageHistory(ctx context.Context, since time.Time, take int) ([]domain.Arbitrage, error) {
	return cached(c, fmt.Sprintf("history|%d|%d", since.UnixNano(), take), func() ([]domain.Arbitrage, error) {
		return c.next.ArbitrageHistory(ctx, since, take)
	})
}

func (c *Cached) ArbitrageFromHistory(ctx context.Context, conversionPath string) (domain.Arbitrage, error) {
	return cached(c, "history-path|"+conversionPath, func() (domain.Arbitrage, error) {
		return c.next.ArbitrageFromHistory(ctx, conversionPath)
	})
}

func (c *Cached) OwnExchangeArbitrages(ctx context.Context, q domain.OwnExchangeQuery) ([]domain.OwnExchangeArbitrage, error) {
	key := fmt.Sprintf("own|%s|%s|%s|%g", q.Own, q.Target, q.Property, q.MinValue)
	return cached(c, key, func() ([]domain.OwnExchangeArbitrage, error) {
		return c.next.OwnExchangeArbitrages(ctx, q)
	})
}

func (c *Cached) Matrix(ctx context.Context, pair domain.AssetPair, fees domain.Fees) (domain.Matrix, error) {
	key := fmt.Sprintf("matrix|%s|%s|%s", pair, optional(fees.DepositFee), optional(fees.TradingFee))
	return cached(c, key, func() (domain.Matrix, error) {
		return c.next.Matrix(ctx, pair, fees)
	})
}

func (c *Cached) MatrixAssetPairs(ctx context.Context) ([]domain.AssetPair, error) {
	return cached(c, "matrix-pairs", func() ([]domain.AssetPair, error) {
		return c.next.MatrixAssetPairs(ctx)
	})
}

func (c *Cached) MatrixHistory(ctx context.Context, pair domain.AssetPair, at time.Time) (domain.Matrix, error) {
	return cached(c, fmt.Sprintf("matrix-history|%s|%d", pair, at.UnixNano()), func() (domain.Matrix, error) {
		return c.next.MatrixHistory(ctx, pair, at)
	})
}

func (c *Cached) MatrixHistoryTimestamps(ctx context.Context, pair domain.AssetPair, from, to time.Time) ([]time.Time, error) {
	key := fmt.Sprintf("matrix-timestamps|%s|%d|%d", pair, from.UnixNano(), to.UnixNano())
	return cached(c, key, func() ([]time.Time, error) {
		return c.next.MatrixHistoryTimestamps(ctx, pair, from, to)
	})
}

func (c *Cached) MatrixHistoryAssetPairs(ctx context.Context, from, to time.Time) ([]domain.AssetPair, error) {
	key := fmt.Sprintf("matrix-history-pairs|%d|%d", from.UnixNano(), to.UnixNano())
	return cached(c, key, func() ([]domain.AssetPair, error) {
		return c.next.MatrixHistoryAssetPairs(ctx, from, to)
	})
}

func (c *Cached) Settings(ctx context.Context) (domain.Settings, error) {
	return cached(c, "settings", func() (domain.Settings, error) {
		return c.next.Settings(ctx)
	})
}

// SetSettings is never cached and invalidates everything on success.
func (c *Cached) SetSettings(ctx context.Context, s domain.Settings) error {
	if err := c.next.SetSettings(ctx, s); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

var _ Service = (*Cached)(nil)
