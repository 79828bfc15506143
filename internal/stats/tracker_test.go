package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
	"github.com/jobtrackerhq/job-ingest/internal/storage/memory"
)

func TestRecordIncrementsByCreatedPlusUpdated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	source := store.SeedSource(ingest.JobSource{Name: "WeWorkRemotely", IsActive: true})
	tracker := New(store, nil)

	ended := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)
	run := ingest.Run{
		ID:       "run-1",
		Source:   source.Name,
		Status:   ingest.RunStatusCompleted,
		Counters: ingest.RunCounters{Fetched: 5, Created: 3, Updated: 1, Rejected: 1},
		EndedAt:  &ended,
	}
	require.NoError(t, tracker.Record(ctx, source, run))

	updated, ok := store.Source(source.ID)
	require.True(t, ok)
	require.Equal(t, int64(4), updated.TotalJobsScraped)
	require.Equal(t, ended, *updated.LastScraped)
}

func TestRecordFailedRunTouchesTimestampOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	source := store.SeedSource(ingest.JobSource{Name: "WeWorkRemotely", IsActive: true, TotalJobsScraped: 7})
	tracker := New(store, nil)

	ended := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)
	run := ingest.Run{ID: "run-2", Source: source.Name, Status: ingest.RunStatusFailed, EndedAt: &ended}
	require.NoError(t, tracker.Record(ctx, source, run))

	updated, ok := store.Source(source.ID)
	require.True(t, ok)
	require.Equal(t, int64(7), updated.TotalJobsScraped)
	require.Equal(t, ended, *updated.LastScraped)
}

func TestRecordRequiresEndedRun(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	source := store.SeedSource(ingest.JobSource{Name: "WeWorkRemotely", IsActive: true})
	tracker := New(store, nil)

	err := tracker.Record(context.Background(), source, ingest.Run{ID: "run-3", Status: ingest.RunStatusRunning})
	require.Error(t, err)
}
