package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// BusFeed subscribes to a SignalBus channel carrying order-book messages.
type BusFeed struct {
	bus     domain.SignalBus
	channel string
	handler Handler
	logger  *slog.Logger
}

// NewBusFeed creates a BusFeed for channel.
func NewBusFeed(bus domain.SignalBus, channel string, handler Handler, logger *slog.Logger) *BusFeed {
	return &BusFeed{
		bus:     bus,
		channel: channel,
		handler: handler,
		logger:  logger.With(slog.String("component", "bus_feed"), slog.String("channel", channel)),
	}
}

// Run handles messages until ctx is cancelled or the subscription closes.
func (f *BusFeed) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, f.channel)
	if err != nil {
		return fmt.Errorf("feed: subscribe %s: %w", f.channel, err)
	}
	f.logger.Info("bus feed started")
	defer f.logger.Info("bus feed stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("feed: subscription %s closed", f.channel)
			}
			if _, err := dispatch(ctx, f.handler, data); err != nil {
				logRejected(ctx, f.logger, err, len(data))
			}
		}
	}
}

// logRejected logs a failed payload. Invalid books are already logged,
// throttled, by the engine's validator, so they only get a debug line here.
func logRejected(ctx context.Context, logger *slog.Logger, err error, size int) {
	level := slog.LevelWarn
	if errors.Is(err, domain.ErrInvalidOrderBook) || errors.Is(err, domain.ErrInvalidArgument) {
		level = slog.LevelDebug
	}
	logger.Log(ctx, level, "order book message rejected",
		slog.String("error", err.Error()),
		slog.Int("payload_len", size),
	)
}
