package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitUnregisteredHostPassesThrough(t *testing.T) {
	t.Parallel()

	l := New()
	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://example.com/jobs"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitPacesRegisteredHost(t *testing.T) {
	t.Parallel()

	l := New()
	l.SetHostEvery("example.com", 30*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://example.com/jobs"))
	}
	// First token is free, the next two each wait one interval.
	require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestWaitRespectsContext(t *testing.T) {
	t.Parallel()

	l := New()
	l.SetHostEvery("example.com", time.Hour)
	require.NoError(t, l.Wait(context.Background(), "https://example.com/jobs"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://example.com/jobs")
	require.Error(t, err)
}

func TestSetHostEveryNonPositiveClearsLimit(t *testing.T) {
	t.Parallel()

	l := New()
	l.SetHostEvery("example.com", time.Hour)
	l.SetHostEvery("example.com", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Wait(ctx, "https://example.com/jobs"))
}
