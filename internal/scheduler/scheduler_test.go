package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
	"github.com/jobtrackerhq/job-ingest/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// scriptedRunner fails the first failures calls, then succeeds.
type scriptedRunner struct {
	mu       sync.Mutex
	calls    []ingest.RunRequest
	failures int
	err      error
}

func (r *scriptedRunner) ExecuteRun(_ context.Context, req ingest.RunRequest) (ingest.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	if len(r.calls) <= r.failures {
		return ingest.Run{}, r.err
	}
	return ingest.Run{ID: "run-ok", Source: req.SourceName, Status: ingest.RunStatusCompleted}, nil
}

func (r *scriptedRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newScheduler(store *memory.Store, runner Runner, clock ingest.Clock, policy *ingest.ExponentialRetryPolicy) *Scheduler {
	return New(store, store, runner, nil, policy, clock, Config{
		DefaultInterval: 6 * time.Hour,
	}, zap.NewNop())
}

func ts(t time.Time) *time.Time { return &t }

func TestDue(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newScheduler(memory.NewStore(), &scriptedRunner{}, &fakeClock{now: now}, nil)

	testCases := []struct {
		name   string
		source ingest.JobSource
		want   bool
	}{
		{"never scraped", ingest.JobSource{}, true},
		{"scraped just now", ingest.JobSource{LastScraped: ts(now)}, false},
		{"default interval elapsed", ingest.JobSource{LastScraped: ts(now.Add(-7 * time.Hour))}, true},
		{"default interval not elapsed", ingest.JobSource{LastScraped: ts(now.Add(-5 * time.Hour))}, false},
		{"short override elapsed", ingest.JobSource{ScrapeInterval: time.Hour, LastScraped: ts(now.Add(-90 * time.Minute))}, true},
		{"long override not elapsed", ingest.JobSource{ScrapeInterval: 24 * time.Hour, LastScraped: ts(now.Add(-7 * time.Hour))}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, s.due(tc.source, now))
		})
	}
}

func TestSweepRunsOnlyDueSources(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	store.SeedSource(ingest.JobSource{Name: "never-scraped", IsActive: true})
	store.SeedSource(ingest.JobSource{Name: "fresh", IsActive: true, LastScraped: ts(now.Add(-time.Hour))})
	store.SeedSource(ingest.JobSource{Name: "dormant", IsActive: false})

	runner := &scriptedRunner{}
	s := newScheduler(store, runner, &fakeClock{now: now}, nil)

	s.Sweep(context.Background())
	s.wg.Wait()

	require.Equal(t, 1, runner.callCount())
	require.Equal(t, "never-scraped", runner.calls[0].SourceName)
}

func TestSweepSkipsInFlightSource(t *testing.T) {
	t.Parallel()
	store := memory.NewStore()
	store.SeedSource(ingest.JobSource{Name: "slow", IsActive: true})

	started := make(chan struct{})
	release := make(chan struct{})
	runner := &blockingRunner{started: started, release: release}
	s := newScheduler(store, runner, &fakeClock{now: time.Now()}, nil)

	s.Sweep(context.Background())
	<-started

	// Second sweep while the first run is still going.
	s.Sweep(context.Background())
	close(release)
	s.wg.Wait()

	require.Equal(t, 1, runner.callCount())
}

func TestRunWithRetryBacksOffThenSucceeds(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{
		failures: 2,
		err:      &ingest.ExtractionError{Source: "flaky", Err: errors.New("502 bad gateway")},
	}
	policy := ingest.NewExponentialRetryPolicy(3, time.Millisecond, time.Millisecond)
	s := newScheduler(memory.NewStore(), runner, &fakeClock{now: time.Now()}, policy)

	s.runWithRetry(context.Background(), "flaky")
	require.Equal(t, 3, runner.callCount())
	require.Equal(t, 0, runner.calls[0].Attempt)
	require.Equal(t, 2, runner.calls[2].Attempt)
}

func TestRunWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{
		failures: 100,
		err:      &ingest.ExtractionError{Source: "down", Err: errors.New("connection refused")},
	}
	policy := ingest.NewExponentialRetryPolicy(3, time.Millisecond, time.Millisecond)
	s := newScheduler(memory.NewStore(), runner, &fakeClock{now: time.Now()}, policy)

	s.runWithRetry(context.Background(), "down")
	require.Equal(t, 3, runner.callCount())
}

func TestRunWithRetryDoesNotRetryNonRetryableErrors(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{failures: 100, err: ingest.ErrRunInProgress}
	policy := ingest.NewExponentialRetryPolicy(3, time.Millisecond, time.Millisecond)
	s := newScheduler(memory.NewStore(), runner, &fakeClock{now: time.Now()}, policy)

	s.runWithRetry(context.Background(), "busy")
	require.Equal(t, 1, runner.callCount())
}

func TestTriggerNowSyncReturnsSummary(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{}
	s := newScheduler(memory.NewStore(), runner, &fakeClock{now: time.Now()}, nil)

	run, err := s.TriggerNow(context.Background(), ingest.RunRequest{SourceName: "remoteok"}, true)
	require.NoError(t, err)
	require.Equal(t, ingest.RunStatusCompleted, run.Status)
	require.Equal(t, 1, runner.callCount())
}

func TestTriggerNowAsyncEnqueues(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{}
	queue := &captureQueue{}
	s := New(memory.NewStore(), memory.NewStore(), runner, queue, nil, &fakeClock{now: time.Now()}, Config{}, zap.NewNop())

	run, err := s.TriggerNow(context.Background(), ingest.RunRequest{RunID: "r1", SourceName: "remoteok"}, false)
	require.NoError(t, err)
	require.Equal(t, ingest.RunStatusPending, run.Status)
	require.Equal(t, "r1", run.ID)
	require.Equal(t, 0, runner.callCount())
	require.Len(t, queue.reqs, 1)
	require.Equal(t, "remoteok", queue.reqs[0].SourceName)
}

func TestCleanupDeactivatesExpired(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	src := store.SeedSource(ingest.JobSource{Name: "remoteok", IsActive: true})

	expired := now.Add(-time.Hour)
	_, err := store.CreateJob(context.Background(), ingest.Job{
		SourceID:    src.ID,
		ExternalID:  "old-1",
		Title:       "Stale Role",
		URL:         "https://example.com/old-1",
		PostedDate:  now.Add(-48 * time.Hour),
		ExpiresDate: &expired,
		IsActive:    true,
	})
	require.NoError(t, err)

	runner := &scriptedRunner{}
	s := newScheduler(store, runner, &fakeClock{now: now}, nil)
	s.Cleanup(context.Background())

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	require.False(t, jobs[0].IsActive)
}

type blockingRunner struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) ExecuteRun(_ context.Context, _ ingest.RunRequest) (ingest.Run, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	close(r.started)
	<-r.release
	return ingest.Run{Status: ingest.RunStatusCompleted}, nil
}

func (r *blockingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type captureQueue struct {
	mu   sync.Mutex
	reqs []ingest.RunRequest
}

func (q *captureQueue) Enqueue(_ context.Context, req ingest.RunRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	return nil
}

func (q *captureQueue) Dequeue(ctx context.Context) (ingest.RunRequest, error) {
	<-ctx.Done()
	return ingest.RunRequest{}, ctx.Err()
}
