// Package scheduler wires up the cron jobs that periodically trigger
// ingestion runs for due sources and deactivate expired postings.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
	"github.com/jobtrackerhq/job-ingest/internal/metrics"
)

// Runner executes one ingestion run synchronously.
type Runner interface {
	ExecuteRun(ctx context.Context, req ingest.RunRequest) (ingest.Run, error)
}

// Config controls scheduling behavior.
type Config struct {
	// SweepSpec is the cron spec for the due-source sweep, e.g. "@every 1m".
	SweepSpec string
	// CleanupSpec is the cron spec for posting cleanup, e.g. "@daily".
	CleanupSpec string
	// DefaultInterval applies to sources without their own scrape interval.
	DefaultInterval time.Duration
	// MaxJobAge is how old a posting without an expiry may get before
	// cleanup deactivates it.
	MaxJobAge time.Duration
}

func (c *Config) applyDefaults() {
	if c.SweepSpec == "" {
		c.SweepSpec = "@every 1m"
	}
	if c.CleanupSpec == "" {
		c.CleanupSpec = "@daily"
	}
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = 6 * time.Hour
	}
	if c.MaxJobAge <= 0 {
		c.MaxJobAge = 30 * 24 * time.Hour
	}
}

// Scheduler wraps robfig/cron and drives the scrape loop.
type Scheduler struct {
	cron    *cron.Cron
	sources ingest.JobSourceStore
	jobs    ingest.JobStore
	runner  Runner
	queue   ingest.Queue
	policy  *ingest.ExponentialRetryPolicy
	clock   ingest.Clock
	cfg     Config
	logger  *zap.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// New creates a Scheduler. The queue may be nil, in which case async
// triggers run in-process.
func New(
	sources ingest.JobSourceStore,
	jobs ingest.JobStore,
	runner Runner,
	queue ingest.Queue,
	policy *ingest.ExponentialRetryPolicy,
	clock ingest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	cfg.applyDefaults()
	if policy == nil {
		policy = ingest.NewExponentialRetryPolicy(0, 0, 0)
	}
	return &Scheduler{
		cron:     cron.New(),
		sources:  sources,
		jobs:     jobs,
		runner:   runner,
		queue:    queue,
		policy:   policy,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

// Start registers the cron entries and starts ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.SweepSpec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.CleanupSpec, func() { s.Cleanup(ctx) }); err != nil {
		return fmt.Errorf("register cleanup: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("sweep_spec", s.cfg.SweepSpec),
		zap.String("cleanup_spec", s.cfg.CleanupSpec),
	)
	return nil
}

// Stop halts the cron loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Sweep finds due sources and runs each one in its own goroutine.
func (s *Scheduler) Sweep(ctx context.Context) {
	sources, err := s.sources.ListActiveSources(ctx)
	if err != nil {
		s.logger.Error("list active sources failed", zap.Error(err))
		return
	}
	now := s.clock.Now()
	for _, src := range sources {
		if !s.due(src, now) {
			continue
		}
		if !s.markInFlight(src.Name) {
			continue
		}
		s.wg.Add(1)
		go func(src ingest.JobSource) {
			defer s.wg.Done()
			defer s.clearInFlight(src.Name)
			s.runWithRetry(ctx, src.Name)
		}(src)
	}
}

// due reports whether the source's interval has elapsed since its last
// scrape. Never-scraped sources are always due.
func (s *Scheduler) due(src ingest.JobSource, now time.Time) bool {
	if src.LastScraped == nil {
		return true
	}
	interval := src.ScrapeInterval
	if interval <= 0 {
		interval = s.cfg.DefaultInterval
	}
	return now.Sub(*src.LastScraped) >= interval
}

func (s *Scheduler) markInFlight(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[name] {
		return false
	}
	s.inFlight[name] = true
	return true
}

func (s *Scheduler) clearInFlight(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, name)
}

// runWithRetry executes a run for the source, retrying extraction
// failures with backoff. A source whose attempts are exhausted is marked
// degraded until a later run succeeds.
func (s *Scheduler) runWithRetry(ctx context.Context, sourceName string) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		_, err := s.runner.ExecuteRun(ctx, ingest.RunRequest{
			SourceName: sourceName,
			Attempt:    attempt,
		})
		if err == nil {
			metrics.SetDegraded(sourceName, false)
			return
		}
		lastErr = err
		if !s.policy.ShouldRetry(err, attempt+1) {
			break
		}
		delay := s.policy.Backoff(attempt)
		s.logger.Warn("run failed, backing off",
			zap.String("source", sourceName),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	if !ingest.IsExtractionFailure(lastErr) {
		s.logger.Warn("run not started", zap.String("source", sourceName), zap.Error(lastErr))
		return
	}
	metrics.SetDegraded(sourceName, true)
	s.logger.Error("source degraded, giving up until next sweep",
		zap.String("source", sourceName),
		zap.Int("max_attempts", s.policy.MaxAttempts()),
		zap.Error(lastErr),
	)
}

// TriggerNow starts a run for one source outside the regular cadence.
// When wait is true the run executes synchronously and its summary is
// returned; otherwise the request is queued and only the accepted
// request comes back.
func (s *Scheduler) TriggerNow(ctx context.Context, req ingest.RunRequest, wait bool) (ingest.Run, error) {
	if wait || s.queue == nil {
		return s.runner.ExecuteRun(ctx, req)
	}
	if err := s.queue.Enqueue(ctx, req); err != nil {
		return ingest.Run{}, fmt.Errorf("enqueue run request: %w", err)
	}
	return ingest.Run{ID: req.RunID, Source: req.SourceName, Status: ingest.RunStatusPending}, nil
}

// Cleanup deactivates expired postings. Rows are never deleted.
func (s *Scheduler) Cleanup(ctx context.Context) {
	n, err := s.jobs.DeactivateExpired(ctx, s.clock.Now(), s.cfg.MaxJobAge)
	if err != nil {
		s.logger.Error("posting cleanup failed", zap.Error(err))
		return
	}
	metrics.AddCleanupRows(n)
	if n > 0 {
		s.logger.Info("postings deactivated", zap.Int64("count", n))
	}
}
