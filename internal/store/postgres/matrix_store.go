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

// MatrixStore implements domain.MatrixRepository.
type MatrixStore struct {
	pool *pgxpool.Pool
}

var _ domain.MatrixRepository = (*MatrixStore)(nil)

// NewMatrixStore creates a new MatrixStore backed by the given connection pool.
func NewMatrixStore(pool *pgxpool.Pool) *MatrixStore {
	return &MatrixStore{pool: pool}
}

// Insert stores a snapshot. A second snapshot for the same pair and instant
// is ignored.
func (s *MatrixStore) Insert(ctx context.Context, m domain.Matrix) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("postgres: marshal matrix %s: %w", m.AssetPair, err)
	}

	const query = `
		INSERT INTO matrix_snapshots (asset_pair, taken_at, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset_pair, taken_at) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, m.AssetPair.String(), m.DateTime, payload); err != nil {
		return fmt.Errorf("postgres: insert matrix %s: %w", m.AssetPair, err)
	}
	return nil
}

// Get returns the latest snapshot of pair taken at or before at.
func (s *MatrixStore) Get(ctx context.Context, pair domain.AssetPair, at time.Time) (domain.Matrix, error) {
	const query = `
		SELECT payload FROM matrix_snapshots
		WHERE asset_pair = $1 AND taken_at <= $2
		ORDER BY taken_at DESC
		LIMIT 1`

	var raw []byte
	if err := s.pool.QueryRow(ctx, query, pair.String(), at).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Matrix{}, domain.ErrNotFound
		}
		return domain.Matrix{}, fmt.Errorf("postgres: get matrix %s: %w", pair, err)
	}
	return decodeMatrix(raw)
}

// ListTimestamps returns the snapshot times of pair within [from, to], oldest first.
func (s *MatrixStore) ListTimestamps(ctx context.Context, pair domain.AssetPair, from, to time.Time) ([]time.Time, error) {
	const query = `
		SELECT taken_at FROM matrix_snapshots
		WHERE asset_pair = $1 AND taken_at BETWEEN $2 AND $3
		ORDER BY taken_at`

	rows, err := s.pool.Query(ctx, query, pair.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list matrix timestamps %s: %w", pair, err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("postgres: scan matrix timestamp: %w", err)
		}
		out = append(out, t.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list matrix timestamps rows: %w", err)
	}
	return out, nil
}

// ListAssetPairs returns the pairs with at least one snapshot within [from, to].
func (s *MatrixStore) ListAssetPairs(ctx context.Context, from, to time.Time) ([]domain.AssetPair, error) {
	const query = `
		SELECT DISTINCT asset_pair FROM matrix_snapshots
		WHERE taken_at BETWEEN $1 AND $2
		ORDER BY asset_pair`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list matrix pairs: %w", err)
	}
	defer rows.Close()

	var out []domain.AssetPair
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan matrix pair: %w", err)
		}
		pair, err := domain.ParseAssetPair(raw)
		if err != nil {
			return nil, fmt.Errorf("postgres: stored matrix pair %q: %w", raw, err)
		}
		out = append(out, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list matrix pairs rows: %w", err)
	}
	return out, nil
}

// ListBefore returns snapshots taken strictly before the given time, newest first.
func (s *MatrixStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Matrix, error) {
	query := `SELECT payload FROM matrix_snapshots WHERE taken_at < $1 ORDER BY taken_at DESC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list matrices: %w", err)
	}
	defer rows.Close()

	var out []domain.Matrix
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan matrix: %w", err)
		}
		m, err := decodeMatrix(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list matrices rows: %w", err)
	}
	return out, nil
}

func decodeMatrix(raw []byte) (domain.Matrix, error) {
	var m domain.Matrix
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Matrix{}, fmt.Errorf("postgres: unmarshal matrix: %w", err)
	}
	return m, nil
}
