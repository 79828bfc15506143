// Package worker implements the ingestion run execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/jobtrackerhq/job-ingest/internal/dedup"
	"github.com/jobtrackerhq/job-ingest/internal/ingest"
	"github.com/jobtrackerhq/job-ingest/internal/metrics"
)

// Normalizer turns a raw posting into a canonical one.
type Normalizer interface {
	Normalize(raw ingest.RawPosting) (ingest.NormalizedPosting, error)
}

// Upserter writes a normalized posting and reports whether a row was
// created or updated.
type Upserter interface {
	Upsert(ctx context.Context, source ingest.JobSource, posting ingest.NormalizedPosting) (ingest.UpsertOutcome, error)
}

// StatsTracker folds a finished run into per-source aggregates.
type StatsTracker interface {
	Record(ctx context.Context, source ingest.JobSource, run ingest.Run) error
}

// Config controls Worker behavior.
type Config struct {
	// DefaultMaxRecords bounds a run when the request does not set its
	// own limit. Zero means unbounded.
	DefaultMaxRecords int
	// LeaseTTL is how long a per-source lease is held before it
	// expires on its own.
	LeaseTTL time.Duration
}

// Worker consumes run requests and executes the ingestion pipeline.
type Worker struct {
	queue      ingest.Queue
	sources    ingest.JobSourceStore
	runs       ingest.RunStore
	extractor  ingest.Extractor
	normalizer Normalizer
	upserter   Upserter
	tracker    StatsTracker
	lease      ingest.Lease
	clock      ingest.Clock
	idGen      ingest.IDGenerator
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	queue ingest.Queue,
	sources ingest.JobSourceStore,
	runs ingest.RunStore,
	extractor ingest.Extractor,
	normalizer Normalizer,
	upserter Upserter,
	tracker StatsTracker,
	lease ingest.Lease,
	clock ingest.Clock,
	idGen ingest.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Minute
	}
	return &Worker{
		queue:      queue,
		sources:    sources,
		runs:       runs,
		extractor:  extractor,
		normalizer: normalizer,
		upserter:   upserter,
		tracker:    tracker,
		lease:      lease,
		clock:      clock,
		idGen:      idGen,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming run requests until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	metrics.WorkerStarted()
	defer metrics.WorkerFinished()
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		if _, err := w.ExecuteRun(ctx, req); err != nil {
			w.logger.Error("run failed",
				zap.String("run_id", req.RunID),
				zap.String("source", req.SourceName),
				zap.Error(err),
			)
		}
	}
}

// ExecuteRun performs one full ingestion run for the requested source
// and returns its terminal summary. The returned run is valid even
// when err is non-nil, except for pre-flight failures (unknown or
// inactive source, lease held elsewhere) where the zero Run is
// returned.
func (w *Worker) ExecuteRun(ctx context.Context, req ingest.RunRequest) (ingest.Run, error) {
	source, err := w.sources.FindSourceByName(ctx, req.SourceName)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			return ingest.Run{}, fmt.Errorf("source %q: %w", req.SourceName, ingest.ErrNotFound)
		}
		return ingest.Run{}, fmt.Errorf("find source: %w", err)
	}
	if !source.IsActive {
		return ingest.Run{}, fmt.Errorf("source %q: %w", req.SourceName, ingest.ErrSourceInactive)
	}

	leaseKey := "ingest:run:" + source.Name
	acquired, err := w.lease.Acquire(ctx, leaseKey, w.cfg.LeaseTTL)
	if err != nil {
		return ingest.Run{}, fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		return ingest.Run{}, fmt.Errorf("source %q: %w", req.SourceName, ingest.ErrRunInProgress)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := w.lease.Release(releaseCtx, leaseKey); err != nil {
			w.logger.Warn("lease release failed", zap.String("source", source.Name), zap.Error(err))
		}
	}()

	runID := req.RunID
	if runID == "" {
		runID, err = w.idGen.NewID()
		if err != nil {
			return ingest.Run{}, fmt.Errorf("generate run id: %w", err)
		}
	}
	run := ingest.Run{
		ID:        runID,
		Source:    source.Name,
		Status:    ingest.RunStatusRunning,
		StartedAt: w.clock.Now(),
	}
	if err := w.runs.CreateRun(ctx, run); err != nil {
		return ingest.Run{}, fmt.Errorf("create run: %w", err)
	}
	w.logger.Info("run started",
		zap.String("run_id", run.ID),
		zap.String("source", source.Name),
		zap.Int("attempt", req.Attempt),
	)

	run, termErr := w.executePipeline(ctx, source, run, req)

	endedAt := w.clock.Now()
	run.EndedAt = &endedAt
	if err := w.runs.CompleteRun(ctx, run); err != nil {
		w.logger.Error("complete run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	if err := w.tracker.Record(ctx, source, run); err != nil {
		w.logger.Error("record run stats failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	metrics.ObserveRun(source.Name, string(run.Status), endedAt.Sub(run.StartedAt))
	w.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("source", source.Name),
		zap.String("status", string(run.Status)),
		zap.Int("fetched", run.Counters.Fetched),
		zap.Int("created", run.Counters.Created),
		zap.Int("updated", run.Counters.Updated),
		zap.Int("rejected", run.Counters.Rejected),
		zap.Int("duplicates_skipped", run.Counters.DuplicatesSkipped),
	)

	if run.Status == ingest.RunStatusFailed {
		if termErr != nil {
			return run, fmt.Errorf("run %s: %w", run.ID, termErr)
		}
		return run, fmt.Errorf("run %s failed: %s", run.ID, run.ErrorText)
	}
	return run, nil
}

// executePipeline drains the extractor, normalizing and upserting each
// record, and derives the run's terminal status.
func (w *Worker) executePipeline(ctx context.Context, source ingest.JobSource, run ingest.Run, req ingest.RunRequest) (ingest.Run, error) {
	maxRecords := req.MaxRecords
	if maxRecords <= 0 {
		maxRecords = w.cfg.DefaultMaxRecords
	}

	iter, err := w.extractor.Extract(ctx, source, maxRecords)
	if err != nil {
		var exErr *ingest.ExtractionError
		if !errors.As(err, &exErr) {
			err = &ingest.ExtractionError{Source: source.Name, Err: err}
		}
		run.Status = ingest.RunStatusFailed
		run.ErrorText = err.Error()
		return run, err
	}
	defer iter.Close()

	seen := dedup.NewSeenSet()
	var (
		extractErr *ingest.ExtractionError
		persistErr error
	)

loop:
	for maxRecords <= 0 || run.Counters.Fetched < maxRecords {
		if ctx.Err() != nil {
			break
		}
		raw, err := iter.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				break
			}
			var exErr *ingest.ExtractionError
			if errors.As(err, &exErr) {
				extractErr = exErr
			} else {
				extractErr = &ingest.ExtractionError{Source: source.Name, Err: err}
			}
			break
		}
		run.Counters.Fetched++

		externalID := raw.String("external_id")
		if externalID != "" && seen.Seen(externalID) {
			run.Counters.DuplicatesSkipped++
			continue
		}

		posting, err := w.normalizer.Normalize(raw)
		if err != nil {
			run.Counters.Rejected++
			if ingest.IsReject(err) {
				w.logger.Debug("posting rejected",
					zap.String("run_id", run.ID),
					zap.String("external_id", externalID),
					zap.String("reason", err.Error()),
				)
			} else {
				w.logger.Warn("normalize failed",
					zap.String("run_id", run.ID),
					zap.String("external_id", externalID),
					zap.Error(err),
				)
			}
			metrics.IncPosting(source.Name, "rejected")
			continue
		}

		outcome, err := w.upserter.Upsert(ctx, source, posting)
		if err != nil {
			if ctx.Err() != nil {
				break loop
			}
			persistErr = fmt.Errorf("upsert %s: %w", posting.ExternalID, err)
			break loop
		}
		switch outcome {
		case ingest.OutcomeCreated:
			run.Counters.Created++
		case ingest.OutcomeUpdated:
			run.Counters.Updated++
		}
		metrics.IncPosting(source.Name, string(outcome))
	}

	run.Status, run.ErrorText = deriveStatus(ctx, run.Counters, extractErr, persistErr)
	switch {
	case persistErr != nil:
		return run, persistErr
	case extractErr != nil:
		return run, extractErr
	default:
		return run, nil
	}
}

// deriveStatus maps the pipeline outcome onto a terminal run status.
// Cancellation always yields a partial run so the counters gathered so
// far survive; extraction failures fail the run only when nothing was
// fetched; any persistence failure fails the run.
func deriveStatus(ctx context.Context, counters ingest.RunCounters, extractErr *ingest.ExtractionError, persistErr error) (ingest.RunStatus, string) {
	switch {
	case persistErr != nil:
		return ingest.RunStatusFailed, persistErr.Error()
	case ctx.Err() != nil:
		return ingest.RunStatusPartial, "run canceled before the source was exhausted"
	case extractErr != nil && counters.Fetched == 0:
		return ingest.RunStatusFailed, extractErr.Error()
	case extractErr != nil:
		return ingest.RunStatusPartial, extractErr.Error()
	default:
		return ingest.RunStatusCompleted, ""
	}
}
