package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDateRelativeForms(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		text string
		want time.Time
	}{
		{"3 days ago", now.AddDate(0, 0, -3)},
		{"1 day ago", now.AddDate(0, 0, -1)},
		{"a day ago", now.AddDate(0, 0, -1)},
		{"an hour ago", now.Add(-time.Hour)},
		{"2 weeks ago", now.AddDate(0, 0, -14)},
		{"about 4 hours ago", now.Add(-4 * time.Hour)},
		{"1 month ago", now.AddDate(0, -1, 0)},
		{"yesterday", now.AddDate(0, 0, -1)},
		{"Today", now},
		{"just now", now},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()

			got, ok := parseDate(tc.text, now)
			require.True(t, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseDateAbsoluteForms(t *testing.T) {
	t.Parallel()

	now := time.Now()

	cases := []struct {
		text string
		want time.Time
	}{
		{"2025-06-01", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"2025-06-01T09:30:00Z", time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)},
		{"Jun 1, 2025", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"June 1, 2025", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"1 Jun 2025", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()

			got, ok := parseDate(tc.text, now)
			require.True(t, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "soon", "posted recently", "13/45/9999"} {
		_, ok := parseDate(text, time.Now())
		require.False(t, ok, "expected %q to be unparseable", text)
	}
}
