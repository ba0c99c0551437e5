package arbitrage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

var btcUSD = domain.NewAssetPair("BTC", "USD")

type staticRates struct {
	mu    sync.Mutex
	rates []domain.CrossRate
}

func (s *staticRates) CrossRates() []domain.CrossRate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CrossRate(nil), s.rates...)
}

func (s *staticRates) set(rates ...domain.CrossRate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = rates
}

// direct builds a single-hop cross rate. Zero prices leave that side empty.
func direct(source string, ask, askVol, bid, bidVol float64) domain.CrossRate {
	r := domain.CrossRate{
		Source:         source,
		AssetPair:      btcUSD,
		ConversionPath: domain.ConversionPath{{Source: source, AssetPair: btcUSD}},
	}
	if ask > 0 {
		r.BestAsk = &domain.VolumePrice{Price: ask, Volume: askVol}
	}
	if bid > 0 {
		r.BestBid = &domain.VolumePrice{Price: bid, Volume: bidVol}
	}
	return r
}

type recordingObserver struct {
	opened, closed []domain.Arbitrage
}

func (o *recordingObserver) ArbitrageOpened(_ context.Context, a domain.Arbitrage) {
	o.opened = append(o.opened, a)
}

func (o *recordingObserver) ArbitrageClosed(_ context.Context, a domain.Arbitrage) {
	o.closed = append(o.closed, a)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }
func (c *stepClock) Tick()          { c.t = c.t.Add(time.Second) }
