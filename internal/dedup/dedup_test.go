package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeenSetFirstOccurrencePasses(t *testing.T) {
	t.Parallel()

	s := NewSeenSet()
	require.False(t, s.Seen("A"))
	require.False(t, s.Seen("B"))
	require.Zero(t, s.Skipped())
}

func TestSeenSetCountsRepeats(t *testing.T) {
	t.Parallel()

	s := NewSeenSet()
	require.False(t, s.Seen("A"))
	require.True(t, s.Seen("A"))
	require.True(t, s.Seen("A"))
	require.Equal(t, 2, s.Skipped())
}

func TestSeenSetScopesPerRun(t *testing.T) {
	t.Parallel()

	first := NewSeenSet()
	require.False(t, first.Seen("A"))

	// A fresh set models the next run: state is discarded between runs.
	second := NewSeenSet()
	require.False(t, second.Seen("A"))
}
