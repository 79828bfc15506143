package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAcquireExcludesSecondHolder(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(clock)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "ingest:run:remoteok", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire(ctx, "ingest:run:remoteok", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// A different key is independent.
	ok, err = l.Acquire(ctx, "ingest:run:weworkremotely", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireAfterRelease(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(clock)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "k"))

	ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireAfterExpiry(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(clock)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(30 * time.Second)
	ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	clock.Advance(31 * time.Second)
	ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReleaseUnheldKeyIsNoop(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(clock)
	require.NoError(t, l.Release(context.Background(), "never-held"))
}
