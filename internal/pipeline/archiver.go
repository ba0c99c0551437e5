// Package pipeline runs the background jobs that move detector output out of
// the database into cold storage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// ArchiveJob exports closed arbitrages and matrix snapshots older than the
// retention period to blob storage. Each run handles the day that just left
// the retention window; the blob archiver skips days already exported.
type ArchiveJob struct {
	archiver      domain.Archiver
	retentionDays int
	interval      time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiveJob creates an ArchiveJob that runs every interval.
func NewArchiveJob(archiver domain.Archiver, retentionDays int, interval time.Duration, logger *slog.Logger) *ArchiveJob {
	return &ArchiveJob{
		archiver:      archiver,
		retentionDays: retentionDays,
		interval:      interval,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archive_job")),
	}
}

// Cutoff returns the end of the next day to archive: UTC midnight,
// retentionDays before now.
func (j *ArchiveJob) Cutoff() time.Time {
	return j.now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -j.retentionDays)
}

// RunOnce executes a single archive run.
func (j *ArchiveJob) RunOnce(ctx context.Context) error {
	cutoff := j.Cutoff()
	j.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", j.retentionDays),
	)

	arbs, err := j.archiver.ArchiveArbitrages(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive arbitrages before %s: %w", cutoff.Format(time.DateOnly), err)
	}
	matrices, err := j.archiver.ArchiveMatrices(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive matrices before %s: %w", cutoff.Format(time.DateOnly), err)
	}

	j.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("arbitrages_archived", arbs),
		slog.Int64("matrices_archived", matrices),
	)
	return nil
}

// Run archives once at start and then every interval until ctx is
// cancelled. A failed run is logged and retried on the next tick.
func (j *ArchiveJob) Run(ctx context.Context) error {
	j.logger.InfoContext(ctx, "archive job started", slog.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			j.logger.Info("archive job stopped")
			return nil
		case <-ticker.C:
		}
	}
}
