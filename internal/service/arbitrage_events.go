// Package service fans detector events out to the rest of the system: the
// signal bus, the durable event stream, the arbitrage history table and the
// operator notifications.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/arbitrage"
	"github.com/alanyoungcy/arbdetector/internal/domain"
)

const (
	// ArbitrageChannel is the bus channel arbitrage events are published on.
	ArbitrageChannel = "arbitrages"
	// ArbitrageStream is the durable stream of arbitrage events.
	ArbitrageStream = "arbitrages:log"

	defaultQueueSize = 1024
	drainTimeout     = 5 * time.Second
)

// Notifier sends operator alerts. *notify.Notifier implements it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Formatter renders an event for a Notifier.
type Formatter func(domain.ArbitrageEvent) (title, message string)

// ArbitrageEventsConfig wires ArbitrageEvents. Every sink is optional.
type ArbitrageEventsConfig struct {
	Bus      domain.SignalBus
	Repo     domain.ArbitrageRepository
	Notifier Notifier
	Format   Formatter
	// MinPnL suppresses notifications for smaller opportunities.
	MinPnL    float64
	QueueSize int
	Logger    *slog.Logger
}

type queuedEvent struct {
	event     domain.ArbitrageEvent
	arbitrage domain.Arbitrage
}

// ArbitrageEvents implements arbitrage.Observer. The detector's calls only
// enqueue; Run delivers the events so slow sinks never delay a scan. When
// the queue is full new events are dropped and counted.
type ArbitrageEvents struct {
	bus      domain.SignalBus
	repo     domain.ArbitrageRepository
	notifier Notifier
	format   Formatter
	minPnL   float64
	queue    chan queuedEvent
	dropped  atomic.Int64
	logger   *slog.Logger
}

var _ arbitrage.Observer = (*ArbitrageEvents)(nil)

// NewArbitrageEvents creates the event service.
func NewArbitrageEvents(cfg ArbitrageEventsConfig) *ArbitrageEvents {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &ArbitrageEvents{
		bus:      cfg.Bus,
		repo:     cfg.Repo,
		notifier: cfg.Notifier,
		format:   cfg.Format,
		minPnL:   cfg.MinPnL,
		queue:    make(chan queuedEvent, size),
		logger:   cfg.Logger.With(slog.String("component", "arbitrage_events")),
	}
}

// ArbitrageOpened enqueues an "arbitrage_opened" event.
func (s *ArbitrageEvents) ArbitrageOpened(ctx context.Context, a domain.Arbitrage) {
	s.enqueue(ctx, domain.EventArbitrageOpened, a)
}

// ArbitrageClosed enqueues an "arbitrage_closed" event.
func (s *ArbitrageEvents) ArbitrageClosed(ctx context.Context, a domain.Arbitrage) {
	s.enqueue(ctx, domain.EventArbitrageClosed, a)
}

func (s *ArbitrageEvents) enqueue(ctx context.Context, event string, a domain.Arbitrage) {
	select {
	case s.queue <- queuedEvent{event: domain.NewArbitrageEvent(event, a), arbitrage: a}:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.logger.WarnContext(ctx, "event queue full, dropping events",
				slog.String("event", event),
				slog.Int64("dropped", n),
			)
		}
	}
}

// Dropped returns how many events were lost to a full queue.
func (s *ArbitrageEvents) Dropped() int64 {
	return s.dropped.Load()
}

// Run delivers queued events until ctx is cancelled, then delivers what is
// still queued within a short grace period.
func (s *ArbitrageEvents) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil
		case q := <-s.queue:
			s.deliver(ctx, q)
		}
	}
}

func (s *ArbitrageEvents) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case q := <-s.queue:
			s.deliver(ctx, q)
		default:
			return
		}
	}
}

// deliver sends one event to every sink. Sink failures are logged; they do
// not stop the other sinks.
func (s *ArbitrageEvents) deliver(ctx context.Context, q queuedEvent) {
	log := s.logger.With(
		slog.String("event", q.event.Event),
		slog.String("arbitrage_id", q.event.ID),
	)

	if s.bus != nil {
		payload, err := json.Marshal(q.event)
		if err != nil {
			log.ErrorContext(ctx, "marshal event failed", slog.String("error", err.Error()))
			return
		}
		if err := s.bus.Publish(ctx, ArbitrageChannel, payload); err != nil {
			log.WarnContext(ctx, "publish event failed", slog.String("error", err.Error()))
		}
		if err := s.bus.StreamAppend(ctx, ArbitrageStream, payload); err != nil {
			log.WarnContext(ctx, "append event to stream failed", slog.String("error", err.Error()))
		}
	}

	if q.event.Event == domain.EventArbitrageClosed && s.repo != nil {
		if err := s.repo.Insert(ctx, q.arbitrage); err != nil {
			log.WarnContext(ctx, "persist closed arbitrage failed", slog.String("error", err.Error()))
		}
	}

	if s.notifier != nil && s.format != nil && q.event.PnL >= s.minPnL {
		title, msg := s.format(q.event)
		if err := s.notifier.Notify(ctx, q.event.Event, title, msg); err != nil {
			log.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

// Replay returns up to count events from the durable stream after lastID.
func (s *ArbitrageEvents) Replay(ctx context.Context, lastID string, count int) ([]domain.ArbitrageEvent, string, error) {
	if s.bus == nil {
		return nil, lastID, fmt.Errorf("service: replay: %w", domain.ErrUnavailable)
	}
	msgs, err := s.bus.StreamRead(ctx, ArbitrageStream, lastID, count)
	if err != nil {
		return nil, lastID, fmt.Errorf("service: replay: %w", err)
	}
	out := make([]domain.ArbitrageEvent, 0, len(msgs))
	for _, m := range msgs {
		var ev domain.ArbitrageEvent
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable stream entry",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, ev)
		lastID = m.ID
	}
	return out, lastID, nil
}
