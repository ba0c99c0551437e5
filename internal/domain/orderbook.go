package domain

import (
	"math"
	"sort"
	"time"
)

// VolumePrice is a single price level. Volume is always a magnitude.
type VolumePrice struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// OrderBook is the latest depth snapshot for one (source, pair). Asks are
// ascending by price, bids descending.
type OrderBook struct {
	Source    string        `json:"source"`
	AssetPair AssetPair     `json:"asset_pair"`
	Timestamp time.Time     `json:"timestamp"`
	Asks      []VolumePrice `json:"asks"`
	Bids      []VolumePrice `json:"bids"`
}

// BestAsk returns the lowest ask.
func (b OrderBook) BestAsk() (VolumePrice, bool) {
	if len(b.Asks) == 0 {
		return VolumePrice{}, false
	}
	return b.Asks[0], true
}

// BestBid returns the highest bid.
func (b OrderBook) BestBid() (VolumePrice, bool) {
	if len(b.Bids) == 0 {
		return VolumePrice{}, false
	}
	return b.Bids[0], true
}

// Reverse returns the same book quoted in the reversed pair. A bid (p, v)
// becomes an ask (1/p, p*v) and vice versa; volume is re-expressed in the new
// base asset, which is the old quote asset.
func (b OrderBook) Reverse() OrderBook {
	return OrderBook{
		Source:    b.Source,
		AssetPair: b.AssetPair.Reverse(),
		Timestamp: b.Timestamp,
		Asks:      invertLevels(b.Bids),
		Bids:      invertLevels(b.Asks),
	}
}

func invertLevels(levels []VolumePrice) []VolumePrice {
	out := make([]VolumePrice, 0, len(levels))
	for _, l := range levels {
		if l.Price == 0 {
			continue
		}
		out = append(out, VolumePrice{Price: 1 / l.Price, Volume: l.Price * l.Volume})
	}
	return out
}

// Oriented returns the book quoted as pair, reversing it when it is stored
// the other way round. ok is false when the book does not quote pair at all.
func (b OrderBook) Oriented(pair AssetPair) (OrderBook, bool) {
	switch {
	case b.AssetPair == pair:
		return b, true
	case b.AssetPair.IsReversed(pair):
		return b.Reverse(), true
	}
	return OrderBook{}, false
}

// OrderBookUpdate is an order book as delivered by a transport: levels may be
// unsorted, repeated or carry signed volumes.
type OrderBookUpdate struct {
	Source    string
	AssetPair AssetPair
	Timestamp time.Time
	Asks      []VolumePrice
	Bids      []VolumePrice
}

// Normalize sorts the levels, folds repeated prices into one level and turns
// volumes into magnitudes. It does not drop zero entries; rejecting those is
// up to validation.
func (u OrderBookUpdate) Normalize() OrderBook {
	return OrderBook{
		Source:    u.Source,
		AssetPair: u.AssetPair,
		Timestamp: u.Timestamp,
		Asks:      normalizeLevels(u.Asks, false),
		Bids:      normalizeLevels(u.Bids, true),
	}
}

func normalizeLevels(in []VolumePrice, descending bool) []VolumePrice {
	if len(in) == 0 {
		return nil
	}
	levels := make([]VolumePrice, len(in))
	for i, l := range in {
		levels[i] = VolumePrice{Price: l.Price, Volume: math.Abs(l.Volume)}
	}
	sort.SliceStable(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})

	out := levels[:1]
	for _, l := range levels[1:] {
		last := &out[len(out)-1]
		if l.Price == last.Price {
			last.Volume += l.Volume
			continue
		}
		out = append(out, l)
	}
	return out
}
