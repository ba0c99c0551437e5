package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/metrics"
)

// idleRecheck is how often a disabled snapshotter looks at the settings again.
const idleRecheck = 30 * time.Second

// Snapshotter persists a matrix for every configured history pair on a
// fixed interval. With a LockManager, only one replica writes each interval.
type Snapshotter struct {
	builder  *Builder
	repo     domain.MatrixRepository
	locks    domain.LockManager
	settings func() domain.Settings
	metrics  *metrics.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// SnapshotterConfig configures a Snapshotter. Locks and Metrics are optional.
type SnapshotterConfig struct {
	Builder  *Builder
	Repo     domain.MatrixRepository
	Locks    domain.LockManager
	Settings func() domain.Settings
	Metrics  *metrics.Registry
	Logger   *slog.Logger
}

func NewSnapshotter(cfg SnapshotterConfig) *Snapshotter {
	return &Snapshotter{
		builder:  cfg.Builder,
		repo:     cfg.Repo,
		locks:    cfg.Locks,
		settings: cfg.Settings,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With(slog.String("component", "matrix_snapshotter")),
		now:      time.Now,
	}
}

// Run snapshots until ctx is cancelled.
func (s *Snapshotter) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "matrix snapshotter started")
	defer s.logger.Info("matrix snapshotter stopped")

	timer := time.NewTimer(s.delay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if s.settings().MatrixHistoryInterval() > 0 {
				s.SnapshotAll(ctx)
			}
			timer.Reset(s.delay())
		}
	}
}

func (s *Snapshotter) delay() time.Duration {
	if d := s.settings().MatrixHistoryInterval(); d > 0 {
		return d
	}
	return idleRecheck
}

// SnapshotAll takes one snapshot per configured pair. Failures are logged
// and do not stop the remaining pairs.
func (s *Snapshotter) SnapshotAll(ctx context.Context) {
	st := s.settings()
	for _, raw := range st.MatrixHistoryAssetPairs {
		pair, err := domain.ParseAssetPair(raw)
		if err != nil {
			continue
		}
		result := "ok"
		if err := s.snapshot(ctx, pair, st.MatrixHistoryInterval()); err != nil {
			result = "error"
			if errors.Is(err, domain.ErrLockHeld) {
				result = "skipped"
			} else {
				s.logger.WarnContext(ctx, "matrix snapshot failed",
					slog.String("asset_pair", pair.String()),
					slog.String("error", err.Error()),
				)
			}
		}
		s.metrics.MatrixSnapshot(result)
	}
}

func (s *Snapshotter) snapshot(ctx context.Context, pair domain.AssetPair, interval time.Duration) error {
	if s.locks != nil && interval > 0 {
		bucket := s.now().Truncate(interval).Unix()
		// The lock is left to expire so other replicas skip the same bucket.
		if _, err := s.locks.Acquire(ctx, fmt.Sprintf("matrix-snapshot:%s:%d", pair, bucket), interval); err != nil {
			return err
		}
	}
	m, err := s.builder.Build(pair, domain.Fees{})
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, m); err != nil {
		return fmt.Errorf("matrix: insert snapshot %s: %w", pair, err)
	}
	return nil
}
