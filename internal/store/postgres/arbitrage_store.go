package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// ArbitrageStore implements domain.ArbitrageRepository. Searchable fields are
// stored as columns; the full arbitrage, including both cross rates, is kept
// as a JSONB payload.
type ArbitrageStore struct {
	pool *pgxpool.Pool
}

var _ domain.ArbitrageRepository = (*ArbitrageStore)(nil)

// NewArbitrageStore creates a new ArbitrageStore backed by the given connection pool.
func NewArbitrageStore(pool *pgxpool.Pool) *ArbitrageStore {
	return &ArbitrageStore{pool: pool}
}

// Insert stores a closed arbitrage. Re-inserting the same ID updates the row,
// so a retried write is harmless.
func (s *ArbitrageStore) Insert(ctx context.Context, a domain.Arbitrage) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("postgres: marshal arbitrage %s: %w", a.ID, err)
	}

	const query = `
		INSERT INTO arbitrage_history (
			id, asset_pair, conversion_path, ask_source, bid_source,
			spread, volume, pnl, started_at, ended_at, payload
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (id) DO UPDATE SET
			spread   = EXCLUDED.spread,
			volume   = EXCLUDED.volume,
			pnl      = EXCLUDED.pnl,
			ended_at = EXCLUDED.ended_at,
			payload  = EXCLUDED.payload`

	_, err = s.pool.Exec(ctx, query,
		a.ID, a.AssetPair.String(), a.ConversionPath(), a.AskSynth.Source, a.BidSynth.Source,
		a.Spread, a.Volume, a.PnL, a.StartedAt, a.EndedAt, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert arbitrage %s: %w", a.ID, err)
	}
	return nil
}

// FindByConversionPath returns the most recently closed arbitrage with the
// given conversion path.
func (s *ArbitrageStore) FindByConversionPath(ctx context.Context, path string) (domain.Arbitrage, error) {
	const query = `
		SELECT payload FROM arbitrage_history
		WHERE conversion_path = $1
		ORDER BY ended_at DESC
		LIMIT 1`

	var raw []byte
	if err := s.pool.QueryRow(ctx, query, path).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Arbitrage{}, domain.ErrNotFound
		}
		return domain.Arbitrage{}, fmt.Errorf("postgres: find arbitrage by path: %w", err)
	}
	return decodeArbitrage(raw)
}

// ListBefore returns arbitrages that ended strictly before the given time,
// newest first.
func (s *ArbitrageStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Arbitrage, error) {
	query := `SELECT payload FROM arbitrage_history WHERE ended_at < $1 ORDER BY ended_at DESC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arbitrages: %w", err)
	}
	defer rows.Close()

	var out []domain.Arbitrage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan arbitrage: %w", err)
		}
		a, err := decodeArbitrage(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list arbitrages rows: %w", err)
	}
	return out, nil
}

func decodeArbitrage(raw []byte) (domain.Arbitrage, error) {
	var a domain.Arbitrage
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.Arbitrage{}, fmt.Errorf("postgres: unmarshal arbitrage: %w", err)
	}
	return a, nil
}
