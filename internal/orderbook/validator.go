package orderbook

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// rejectLogInterval bounds rejection log lines per (source, pair).
const rejectLogInterval = 5 * time.Minute

// Validate checks the invariants every stored book must hold. Errors wrap
// domain.ErrInvalidOrderBook.
func Validate(b domain.OrderBook) error {
	switch {
	case b.Source == "":
		return invalid("empty source")
	case !b.AssetPair.Valid():
		return invalid("invalid asset pair %q", b.AssetPair)
	case len(b.Asks) == 0 && len(b.Bids) == 0:
		return invalid("no asks and no bids")
	}
	if err := checkLevels("ask", b.Asks, func(prev, cur float64) bool { return cur > prev }); err != nil {
		return err
	}
	if err := checkLevels("bid", b.Bids, func(prev, cur float64) bool { return cur < prev }); err != nil {
		return err
	}
	ask, hasAsk := b.BestAsk()
	bid, hasBid := b.BestBid()
	if hasAsk && hasBid && bid.Price > ask.Price {
		return invalid("best bid %v above best ask %v", bid.Price, ask.Price)
	}
	return nil
}

func checkLevels(side string, levels []domain.VolumePrice, ordered func(prev, cur float64) bool) error {
	for i, l := range levels {
		if !(l.Price > 0) || math.IsInf(l.Price, 0) {
			return invalid("%s %d: price %v", side, i, l.Price)
		}
		if !(l.Volume > 0) || math.IsInf(l.Volume, 0) {
			return invalid("%s %d: volume %v", side, i, l.Volume)
		}
		if i > 0 && !ordered(levels[i-1].Price, l.Price) {
			return invalid("%s %d: out of order", side, i)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidOrderBook, fmt.Sprintf(format, args...))
}

// Validator runs Validate and logs rejections, at most once per
// rejectLogInterval for each (source, pair).
type Validator struct {
	logger *slog.Logger

	mu     sync.Mutex
	gates  map[bookKey]*rate.Sometimes
	window time.Duration
}

func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		logger: logger.With(slog.String("component", "orderbook_validator")),
		gates:  make(map[bookKey]*rate.Sometimes),
		window: rejectLogInterval,
	}
}

// Check validates b. Rejections are returned to the caller and logged in a
// throttled way; they are never fatal.
func (v *Validator) Check(ctx context.Context, b domain.OrderBook) error {
	err := Validate(b)
	if err == nil {
		return nil
	}
	v.gate(bookKey{source: b.Source, pair: b.AssetPair}).Do(func() {
		v.logger.WarnContext(ctx, "order book rejected",
			slog.String("source", b.Source),
			slog.String("asset_pair", b.AssetPair.String()),
			slog.String("error", err.Error()),
		)
	})
	return err
}

func (v *Validator) gate(k bookKey) *rate.Sometimes {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, ok := v.gates[k]
	if !ok {
		g = &rate.Sometimes{Interval: v.window}
		v.gates[k] = g
	}
	return g
}
