package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"

	// multipartThreshold switches a day file to the multipart uploader.
	multipartThreshold = 64 * 1024 * 1024
)

// ExecutionSource is the slice of domain.ExecutionStore the archiver reads.
type ExecutionSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Execution, error)
}

// Archiver implements domain.Archiver: executions are written as JSONL, one
// object per UTC day, to archive/executions/YYYY-MM-DD.jsonl.
//
// Only whole days are exported and a day already present in the bucket is
// never rewritten, so repeated runs are idempotent. Rows stay in the
// database.
type Archiver struct {
	blobs  domain.BlobStore
	source ExecutionSource
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(blobs domain.BlobStore, source ExecutionSource, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobs:  blobs,
		source: source,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveExecutions exports every whole UTC day that ends at or before
// before and returns the number of executions uploaded.
func (a *Archiver) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	cutoff := dayStart(before)
	execs, err := a.source.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}

	var archived int64
	for _, day := range groupByDay(execs) {
		path := archivePath(day.date)
		exists, err := a.blobs.Exists(ctx, path)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive executions: %w", err)
		}
		if exists {
			continue
		}

		buf, err := marshalJSONL(day.execs)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive executions marshal %s: %w", day.date, err)
		}
		if len(buf) > multipartThreshold {
			err = a.blobs.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.blobs.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
		}
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive executions upload: %w", err)
		}

		archived += int64(len(day.execs))
		a.logger.Info("executions archived",
			slog.String("path", path),
			slog.Int("count", len(day.execs)),
		)
	}
	return archived, nil
}

// --------------------------------------------------------------------------
// helpers
// --------------------------------------------------------------------------

type dayBatch struct {
	date  string
	execs []domain.Execution
}

// groupByDay splits execs by UTC start day, keeping first-seen day order.
func groupByDay(execs []domain.Execution) []dayBatch {
	var days []dayBatch
	index := make(map[string]int)
	for _, e := range execs {
		date := e.StartedAt.UTC().Format(time.DateOnly)
		i, ok := index[date]
		if !ok {
			i = len(days)
			index[date] = i
			days = append(days, dayBatch{date: date})
		}
		days[i].execs = append(days[i].execs, e)
	}
	return days
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// archivePath is the object key of one day, e.g.
// archive/executions/2025-01-31.jsonl.
func archivePath(date string) string {
	return "archive/executions/" + date + ".jsonl"
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

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
