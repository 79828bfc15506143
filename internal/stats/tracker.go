// Package stats updates per-source health statistics after crawl runs.
package stats

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

// Tracker records run results onto JobSource rows. It runs strictly after
// the run's row writes complete, so a crash between the two under-reports
// stats rather than over-reports.
type Tracker struct {
	sources ingest.JobSourceStore
	logger  *zap.Logger
}

// New constructs a Tracker.
func New(sources ingest.JobSourceStore, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{sources: sources, logger: logger}
}

// Record sets last_scraped to the run end time and increments
// total_jobs_scraped by created+updated. Re-observed postings count
// toward activity: this tracks scrape volume, not unique jobs. A run that
// failed with zero progress still touches last_scraped with a zero delta.
func (t *Tracker) Record(ctx context.Context, source ingest.JobSource, run ingest.Run) error {
	if run.EndedAt == nil {
		return fmt.Errorf("record stats for run %s: run has not ended", run.ID)
	}
	delta := int64(run.Counters.Created + run.Counters.Updated)
	if err := t.sources.RecordSourceRun(ctx, source.ID, *run.EndedAt, delta); err != nil {
		return fmt.Errorf("record source run: %w", err)
	}
	t.logger.Debug("source stats recorded",
		zap.String("source", source.Name),
		zap.Int64("jobs_delta", delta),
	)
	return nil
}
