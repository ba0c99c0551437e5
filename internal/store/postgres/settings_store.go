package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// SettingsStore implements domain.SettingsRepository. The settings live in a
// single JSONB row.
type SettingsStore struct {
	pool *pgxpool.Pool
}

var _ domain.SettingsRepository = (*SettingsStore)(nil)

// NewSettingsStore creates a new SettingsStore backed by the given connection pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Get returns the persisted settings, or domain.ErrNotFound before the first Save.
func (s *SettingsStore) Get(ctx context.Context) (domain.Settings, error) {
	const query = `SELECT settings FROM detector_settings WHERE id = 1`

	var raw []byte
	if err := s.pool.QueryRow(ctx, query).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settings{}, domain.ErrNotFound
		}
		return domain.Settings{}, fmt.Errorf("postgres: get settings: %w", err)
	}

	var out domain.Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Settings{}, fmt.Errorf("postgres: unmarshal settings: %w", err)
	}
	return out, nil
}

// Save replaces the persisted settings.
func (s *SettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("postgres: marshal settings: %w", err)
	}

	const query = `
		INSERT INTO detector_settings (id, settings, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET
			settings   = EXCLUDED.settings,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, raw); err != nil {
		return fmt.Errorf("postgres: save settings: %w", err)
	}
	return nil
}
