package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/metrics"
)

// Observer is told about arbitrages that open or close. Calls happen on the
// scanning goroutine after the scan's results are published, so
// implementations must not block.
type Observer interface {
	ArbitrageOpened(ctx context.Context, a domain.Arbitrage)
	ArbitrageClosed(ctx context.Context, a domain.Arbitrage)
}

// Detector periodically scans the cross-rate set, tracks open arbitrages and
// moves the ones that disappear into History.
type Detector struct {
	rates    RateSource
	history  *History
	settings func() domain.Settings
	observer Observer
	metrics  *metrics.Registry
	logger   *slog.Logger
	now      func() time.Time

	scanMu sync.Mutex // one scan at a time

	mu   sync.RWMutex
	open map[string]domain.Arbitrage
}

// DetectorConfig configures the detector. Observer and Metrics are optional.
type DetectorConfig struct {
	Rates    RateSource
	History  *History
	Settings func() domain.Settings
	Observer Observer
	Metrics  *metrics.Registry
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewDetector(cfg DetectorConfig) *Detector {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Detector{
		rates:    cfg.Rates,
		history:  cfg.History,
		settings: cfg.Settings,
		observer: cfg.Observer,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With(slog.String("component", "arb_detector")),
		now:      now,
		open:     make(map[string]domain.Arbitrage),
	}
}

// ScanStats summarises one scan.
type ScanStats struct {
	CrossRates int
	Open       int
	Opened     int
	Closed     int
}

// Scan runs one detection cycle. On error the open set is left as it was.
func (d *Detector) Scan(ctx context.Context) (ScanStats, error) {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()

	started := time.Now()
	at := d.now()
	st := d.settings()
	rates, found, err := d.collect(st)
	if err != nil {
		d.metrics.ScanFailed()
		return ScanStats{}, err
	}

	next := make(map[string]domain.Arbitrage, len(found))
	var opened, closed []domain.Arbitrage

	d.mu.Lock()
	for _, a := range found {
		k := a.Key()
		if _, dup := next[k]; dup {
			continue
		}
		if prev, ok := d.open[k]; ok {
			a.ID, a.StartedAt = prev.ID, prev.StartedAt
		} else {
			a.ID, a.StartedAt = uuid.NewString(), at
			opened = append(opened, a)
		}
		a.EndedAt = at
		next[k] = a
	}
	for k, prev := range d.open {
		if _, ok := next[k]; !ok {
			closed = append(closed, prev)
		}
	}
	d.open = next
	d.mu.Unlock()

	sortByPnL(closed)
	for _, a := range closed {
		d.history.Add(a)
	}
	d.notify(ctx, opened, closed)

	stats := ScanStats{CrossRates: len(rates), Open: len(next), Opened: len(opened), Closed: len(closed)}
	d.metrics.ScanCompleted(time.Since(started), stats.CrossRates, stats.Open, stats.Opened, stats.Closed)
	return stats, nil
}

// collect reads the cross rates and finds the crossed ones that pass the
// thresholds. A panic from the rate source is returned as domain.ErrInternal.
func (d *Detector) collect(st domain.Settings) (rates []domain.CrossRate, found []domain.Arbitrage, err error) {
	defer func() {
		if r := recover(); r != nil {
			rates, found = nil, nil
			err = fmt.Errorf("%w: reading cross rates: %v", domain.ErrInternal, r)
		}
	}()
	rates = d.rates.CrossRates()
	found, err = findCrossed(rates, func(ask, bid domain.CrossRate) bool {
		a := domain.NewArbitrage(ask, bid, *ask.BestAsk, *bid.BestBid)
		return a.Spread >= st.MinSpread && a.Volume >= st.MinimumVolume && a.PnL >= st.MinimumPnL
	})
	return rates, found, err
}

// Run scans on a fixed delay until ctx is cancelled. The delay is re-read
// from the settings after every cycle.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "arb detector started",
		slog.Duration("delay", d.settings().ExecutionDelay()),
	)
	defer d.logger.Info("arb detector stopped")

	timer := time.NewTimer(d.settings().ExecutionDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if _, err := d.Scan(ctx); err != nil {
				d.logger.ErrorContext(ctx, "scan cycle skipped", slog.String("error", err.Error()))
			}
			timer.Reset(d.settings().ExecutionDelay())
		}
	}
}

// Arbitrages returns the open arbitrages, highest PnL first.
func (d *Detector) Arbitrages() []domain.Arbitrage {
	d.mu.RLock()
	out := make([]domain.Arbitrage, 0, len(d.open))
	for _, a := range d.open {
		out = append(out, a)
	}
	d.mu.RUnlock()
	sortByPnL(out)
	return out
}

// Close moves every open arbitrage into history. It is called on shutdown so
// that nothing is reported as open once the detector has stopped.
func (d *Detector) Close(ctx context.Context) {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()

	d.mu.Lock()
	closed := make([]domain.Arbitrage, 0, len(d.open))
	for _, a := range d.open {
		closed = append(closed, a)
	}
	d.open = make(map[string]domain.Arbitrage)
	d.mu.Unlock()

	sortByPnL(closed)
	for _, a := range closed {
		d.history.Add(a)
	}
	d.notify(ctx, nil, closed)
}

func (d *Detector) notify(ctx context.Context, opened, closed []domain.Arbitrage) {
	for _, a := range opened {
		d.logger.InfoContext(ctx, "arbitrage opened", arbAttrs(a)...)
		if d.observer != nil {
			d.observer.ArbitrageOpened(ctx, a)
		}
	}
	for _, a := range closed {
		d.logger.InfoContext(ctx, "arbitrage closed",
			append(arbAttrs(a), slog.Duration("duration", a.Duration()))...)
		if d.observer != nil {
			d.observer.ArbitrageClosed(ctx, a)
		}
	}
}
