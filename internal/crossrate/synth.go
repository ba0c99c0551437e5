package crossrate

import (
	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// Leg is one order book of a conversion path, already oriented along the
// path, together with the hop it was read from (which keeps the pair as
// stored).
type Leg struct {
	Hop  domain.Hop
	Book domain.OrderBook
}

// Synthesize chains legs into a cross rate for target. With legs A/B then
// B/C the ask is a1*a2 with volume min(v1, v2/a1), volumes being expressed in
// the target base asset; the bid follows the same rule on best bids. A side
// is nil when any leg lacks it. ok is false when neither side exists.
func Synthesize(target domain.AssetPair, legs ...Leg) (domain.CrossRate, bool) {
	if len(legs) == 0 {
		return domain.CrossRate{}, false
	}
	asks := make([]domain.VolumePrice, 0, len(legs))
	bids := make([]domain.VolumePrice, 0, len(legs))
	path := make(domain.ConversionPath, 0, len(legs))
	ts := legs[0].Book.Timestamp
	askOK, bidOK := true, true

	for _, l := range legs {
		path = append(path, l.Hop)
		if l.Book.Timestamp.Before(ts) {
			ts = l.Book.Timestamp
		}
		if a, ok := l.Book.BestAsk(); ok {
			asks = append(asks, a)
		} else {
			askOK = false
		}
		if b, ok := l.Book.BestBid(); ok {
			bids = append(bids, b)
		} else {
			bidOK = false
		}
	}

	rate := domain.CrossRate{
		Source:         path.Source(),
		AssetPair:      target,
		ConversionPath: path,
		Timestamp:      ts,
	}
	if askOK {
		rate.BestAsk = chain(asks)
	}
	if bidOK {
		rate.BestBid = chain(bids)
	}
	if rate.BestAsk == nil && rate.BestBid == nil {
		return domain.CrossRate{}, false
	}
	return rate, true
}

// chain multiplies prices along the path. Each leg's volume is quoted in
// that leg's base asset, so it is divided by the price accumulated so far to
// express it in the first base asset.
func chain(levels []domain.VolumePrice) *domain.VolumePrice {
	price := 1.0
	var volume float64
	for i, l := range levels {
		if price == 0 {
			return nil
		}
		v := l.Volume / price
		if i == 0 || v < volume {
			volume = v
		}
		price *= l.Price
	}
	if price == 0 {
		return nil
	}
	return &domain.VolumePrice{Price: price, Volume: volume}
}
