// Package guard wraps repositories in circuit breakers so a failing database
// degrades persistence instead of stalling the callers.
package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// Breaker is a named circuit breaker. It trips after three consecutive
// failures, or when more than 5% of at least 20 calls in an interval fail.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker that logs its state transitions.
func NewBreaker(name string, logger *slog.Logger) *Breaker {
	log := logger.With(slog.String("component", "breaker"), slog.String("breaker", name))
	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		// Lookups that miss are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// State reports the breaker's current state ("closed", "half-open", "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// do runs fn through the breaker. A rejected call surfaces as
// domain.ErrUnavailable.
func do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %s", domain.ErrUnavailable, err)
		}
		return zero, err
	}
	return res.(T), nil
}

// exec is do for calls without a result.
func exec(b *Breaker, fn func() error) error {
	_, err := do(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
