package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"
	defaultBatchSize = 5000
	archiveDay       = 24 * time.Hour
)

// ArbitrageLister is the part of domain.ArbitrageRepository the archiver reads.
type ArbitrageLister interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Arbitrage, error)
}

// MatrixLister is the part of domain.MatrixRepository the archiver reads.
type MatrixLister interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Matrix, error)
}

// ArchiverConfig wires an Archiver.
type ArchiverConfig struct {
	Writer     domain.BlobWriter
	Reader     domain.BlobReader
	Arbitrages ArbitrageLister
	Matrices   MatrixLister
	// BatchSize is the page size of repository reads. Defaults to 5000.
	BatchSize int
	Logger    *slog.Logger
}

// Archiver implements domain.Archiver. Each call exports the UTC day that
// ends at before as one JSONL object:
//
//	archive/arbitrages/2025-01-31.jsonl
//	archive/matrices/2025-01-31.jsonl
//
// A day already present in the bucket is skipped, so runs are idempotent.
// Rows are not deleted from the database.
type Archiver struct {
	writer     domain.BlobWriter
	reader     domain.BlobReader
	arbitrages ArbitrageLister
	matrices   MatrixLister
	batchSize  int
	logger     *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver.
func NewArchiver(cfg ArchiverConfig) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Archiver{
		writer:     cfg.Writer,
		reader:     cfg.Reader,
		arbitrages: cfg.Arbitrages,
		matrices:   cfg.Matrices,
		batchSize:  cfg.BatchSize,
		logger:     cfg.Logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveArbitrages exports the arbitrages that ended during the day before
// the cutoff and returns how many were written.
func (a *Archiver) ArchiveArbitrages(ctx context.Context, before time.Time) (int64, error) {
	return archiveDayOf(ctx, a, "arbitrages", before,
		a.arbitrages.ListBefore,
		func(x domain.Arbitrage) time.Time { return x.EndedAt },
		func(x domain.Arbitrage) string { return x.ID },
	)
}

// ArchiveMatrices exports the matrix snapshots taken during the day before
// the cutoff and returns how many were written.
func (a *Archiver) ArchiveMatrices(ctx context.Context, before time.Time) (int64, error) {
	return archiveDayOf(ctx, a, "matrices", before,
		a.matrices.ListBefore,
		func(m domain.Matrix) time.Time { return m.DateTime },
		func(m domain.Matrix) string { return m.AssetPair.String() + "@" + m.DateTime.Format(time.RFC3339Nano) },
	)
}

func archiveDayOf[T any](
	ctx context.Context,
	a *Archiver,
	kind string,
	before time.Time,
	list func(context.Context, time.Time, int) ([]T, error),
	at func(T) time.Time,
	id func(T) string,
) (int64, error) {
	to := before.UTC().Truncate(archiveDay)
	from := to.Add(-archiveDay)
	path := archivePath(kind, from)

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}
	if exists {
		a.logger.DebugContext(ctx, "archive already present", slog.String("path", path))
		return 0, nil
	}

	records, err := collectWindow(ctx, list, at, id, from, to, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s query: %w", kind, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	a.logger.InfoContext(ctx, "archive written",
		slog.String("path", path),
		slog.Int("count", len(records)),
		slog.Int("bytes", len(buf)),
	)
	return int64(len(records)), nil
}

// collectWindow pages backwards from to through list and returns the records
// with from <= at < to, oldest first. The next page starts just after the
// oldest timestamp seen and is widened by the records already seen at that
// timestamp, so ties spanning a page boundary are neither lost nor repeated.
func collectWindow[T any](
	ctx context.Context,
	list func(context.Context, time.Time, int) ([]T, error),
	at func(T) time.Time,
	id func(T) string,
	from, to time.Time,
	batch int,
) ([]T, error) {
	var out []T
	seen := make(map[string]struct{})
	cursor, limit := to, batch

	for {
		page, err := list(ctx, cursor, limit)
		if err != nil {
			return nil, err
		}
		done := len(page) < limit
		for _, rec := range page {
			if at(rec).Before(from) {
				done = true
				break
			}
			if _, dup := seen[id(rec)]; dup {
				continue
			}
			seen[id(rec)] = struct{}{}
			out = append(out, rec)
		}
		if done || len(page) == 0 {
			break
		}

		last := at(page[len(page)-1])
		tied := 0
		for i := len(out) - 1; i >= 0 && at(out[i]).Equal(last); i-- {
			tied++
		}
		cursor, limit = last.Add(time.Nanosecond), batch+tied
	}

	// Pages arrive newest first.
	slices.Reverse(out)
	return out, nil
}

// archivePath builds the object key of one archived day.
func archivePath(kind string, day time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, day.Format("2006-01-02"))
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
