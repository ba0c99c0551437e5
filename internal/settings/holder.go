// Package settings holds the live detection settings as an immutable
// snapshot that readers load without locking.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// Holder publishes Settings snapshots. Readers call Get; writers go through
// Set, which validates and persists before swapping.
type Holder struct {
	current atomic.Pointer[domain.Settings]
	repo    domain.SettingsRepository
	logger  *slog.Logger

	mu        sync.Mutex
	listeners []func(domain.Settings)
}

// NewHolder validates initial and publishes it. repo may be nil, in which
// case changes live only in memory.
func NewHolder(initial domain.Settings, repo domain.SettingsRepository, logger *slog.Logger) (*Holder, error) {
	initial = initial.Normalized()
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("settings: initial: %w", err)
	}
	h := &Holder{
		repo:   repo,
		logger: logger.With(slog.String("component", "settings")),
	}
	h.current.Store(&initial)
	return h, nil
}

// Get returns the active snapshot. Its slices and maps are shared with every
// other reader and must not be modified; use Settings.Clone for a private copy.
func (h *Holder) Get() domain.Settings {
	return *h.current.Load()
}

// OnChange registers fn to run after every successful Set or Load.
func (h *Holder) OnChange(fn func(domain.Settings)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Load replaces the active snapshot with the persisted one. When nothing is
// persisted yet the current snapshot is saved instead.
func (h *Holder) Load(ctx context.Context) error {
	if h.repo == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	stored, err := h.repo.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		if err := h.repo.Save(ctx, h.Get()); err != nil {
			return fmt.Errorf("settings: save defaults: %w", err)
		}
		h.logger.InfoContext(ctx, "no persisted settings, saved defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}

	stored = stored.Normalized()
	if err := stored.Validate(); err != nil {
		// Keep the defaults rather than refuse to start.
		h.logger.WarnContext(ctx, "persisted settings rejected, keeping defaults",
			slog.String("error", err.Error()),
		)
		return nil
	}
	h.publish(stored)
	return nil
}

// Set validates s, persists it and makes it the active snapshot. On any error
// the active snapshot is left unchanged.
func (h *Holder) Set(ctx context.Context, s domain.Settings) error {
	s = s.Normalized()
	if err := s.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.repo != nil {
		if err := h.repo.Save(ctx, s); err != nil {
			return fmt.Errorf("settings: save: %w", err)
		}
	}
	h.publish(s)
	h.logger.InfoContext(ctx, "settings updated",
		slog.String("quote_asset", s.QuoteAsset),
		slog.Int("base_assets", len(s.BaseAssets)),
		slog.Int("intermediate_assets", len(s.IntermediateAssets)),
	)
	return nil
}

// publish must be called with mu held.
func (h *Holder) publish(s domain.Settings) {
	h.current.Store(&s)
	for _, fn := range h.listeners {
		fn(s)
	}
}
