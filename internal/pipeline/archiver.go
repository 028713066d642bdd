// Package pipeline runs the engine's periodic background jobs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

// ArchiveJob exports executions older than the retention period on a fixed
// interval.
type ArchiveJob struct {
	archiver  domain.Archiver
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiveJob creates an ArchiveJob.
func NewArchiveJob(archiver domain.Archiver, retention, interval time.Duration, logger *slog.Logger) *ArchiveJob {
	return &ArchiveJob{
		archiver:  archiver,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archive_job")),
	}
}

// RunOnce archives everything started before now minus the retention.
func (j *ArchiveJob) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	j.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Duration("retention", j.retention),
	)

	n, err := j.archiver.ArchiveExecutions(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("pipeline: archive executions before %v: %w", cutoff, err)
	}
	j.logger.Info("archive run complete", slog.Int64("executions_archived", n))
	return n, nil
}

// Run archives immediately and then every interval until ctx is cancelled.
// A failed run is logged and retried on the next tick.
func (j *ArchiveJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("archive run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
