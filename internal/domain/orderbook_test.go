package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSortsAndMergesLevels(t *testing.T) {
	u := OrderBookUpdate{
		Source:    "kraken",
		AssetPair: NewAssetPair("BTC", "USD"),
		Timestamp: time.Unix(100, 0),
		Asks:      []VolumePrice{{102, 1}, {101, -2}, {102, 3}},
		Bids:      []VolumePrice{{99, 1}, {100, 1}, {99, 0.5}},
	}

	b := u.Normalize()

	assert.Equal(t, []VolumePrice{{101, 2}, {102, 4}}, b.Asks)
	assert.Equal(t, []VolumePrice{{100, 1}, {99, 1.5}}, b.Bids)
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 101.0, ask.Price)
}

func TestReverse(t *testing.T) {
	b := OrderBook{
		Source:    "bitstamp",
		AssetPair: NewAssetPair("BTC", "USD"),
		Asks:      []VolumePrice{{200, 1}, {250, 2}},
		Bids:      []VolumePrice{{100, 3}, {50, 1}},
	}

	r := b.Reverse()

	assert.Equal(t, NewAssetPair("USD", "BTC"), r.AssetPair)
	require.Len(t, r.Asks, 2)
	assert.InDelta(t, 0.01, r.Asks[0].Price, 1e-12)
	assert.InDelta(t, 300, r.Asks[0].Volume, 1e-9)
	assert.InDelta(t, 0.02, r.Asks[1].Price, 1e-12)
	require.Len(t, r.Bids, 2)
	assert.InDelta(t, 0.005, r.Bids[0].Price, 1e-12)
	assert.InDelta(t, 200, r.Bids[0].Volume, 1e-9)
	assert.Greater(t, r.Bids[0].Price, r.Bids[1].Price)
}

func TestOriented(t *testing.T) {
	b := OrderBook{AssetPair: NewAssetPair("ETH", "BTC"), Bids: []VolumePrice{{0.05, 10}}}

	same, ok := b.Oriented(NewAssetPair("ETH", "BTC"))
	require.True(t, ok)
	assert.Equal(t, b, same)

	rev, ok := b.Oriented(NewAssetPair("BTC", "ETH"))
	require.True(t, ok)
	ask, ok := rev.BestAsk()
	require.True(t, ok)
	assert.InDelta(t, 20, ask.Price, 1e-9)

	_, ok = b.Oriented(NewAssetPair("ETH", "USD"))
	assert.False(t, ok)
}
