package upsert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
	"github.com/jobtrackerhq/job-ingest/internal/storage/memory"
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

func strPtr(s string) *string {
	return &s
}

func testPosting() ingest.NormalizedPosting {
	return ingest.NormalizedPosting{
		ExternalID:  "123",
		Title:       "Backend Engineer",
		CompanyName: "Acme Corp",
		URL:         "https://example.com/jobs/123",
		Description: strPtr("Build services"),
		PostedDate:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		JobType:     ingest.JobTypeFullTime,
		RemoteType:  ingest.RemoteTypeRemote,
		IsRemote:    true,
	}
}

func newTestUpserter(store *memory.Store, clock *fakeClock) *Upserter {
	return New(store, store, clock, nil)
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	u := newTestUpserter(store, clock)
	source := store.SeedSource(ingest.JobSource{Name: "WeWorkRemotely", IsActive: true})

	outcome, err := u.Upsert(ctx, source, testPosting())
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeCreated, outcome)

	outcome, err = u.Upsert(ctx, source, testPosting())
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeUpdated, outcome)

	// Exactly one row for the key, no duplicate creation.
	require.Equal(t, 1, store.JobCount())
}

func TestUpsertIdempotentExceptScrapedDate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	u := newTestUpserter(store, clock)
	source := store.SeedSource(ingest.JobSource{Name: "WeWorkRemotely", IsActive: true})

	_, err := u.Upsert(ctx, source, testPosting())
	require.NoError(t, err)
	first, err := store.FindJob(ctx, source.ID, "123")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = u.Upsert(ctx, source, testPosting())
	require.NoError(t, err)
	second, err := store.FindJob(ctx, source.ID, "123")
	require.NoError(t, err)

	require.Equal(t, first.ScrapedDate.Add(time.Hour), second.ScrapedDate)
	second.ScrapedDate = first.ScrapedDate
	require.Equal(t, first, second)
}

func TestUpsertNonDestructiveMerge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	u := newTestUpserter(store, clock)
	source := store.SeedSource(ingest.JobSource{Name: "WeWorkRemotely", IsActive: true})

	_, err := u.Upsert(ctx, source, testPosting())
	require.NoError(t, err)

	// The second run observes the same posting with the description gone.
	blanked := testPosting()
	blanked.Description = nil
	outcome, err := u.Upsert(ctx, source, blanked)
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeUpdated, outcome)

	row, err := store.FindJob(ctx, source.ID, "123")
	require.NoError(t, err)
	require.NotNil(t, row.Description)
	require.Equal(t, "Build services", *row.Description)
}

func TestUpsertEstimatedDateDoesNotOverwrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	u := newTestUpserter(store, clock)
	source := store.SeedSource(ingest.JobSource{Name: "WeWorkRemotely", IsActive: true})

	_, err := u.Upsert(ctx, source, testPosting())
	require.NoError(t, err)

	estimated := testPosting()
	estimated.PostedDate = clock.Now()
	estimated.DateEstimated = true
	_, err = u.Upsert(ctx, source, estimated)
	require.NoError(t, err)

	row, err := store.FindJob(ctx, source.ID, "123")
	require.NoError(t, err)
	require.Equal(t, testPosting().PostedDate, row.PostedDate)
}

func TestUpsertReusesCompanyAcrossPostings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	u := newTestUpserter(store, clock)
	source := store.SeedSource(ingest.JobSource{Name: "WeWorkRemotely", IsActive: true})

	first := testPosting()
	second := testPosting()
	second.ExternalID = "456"
	second.CompanyName = "ACME CORP" // case-insensitive match

	_, err := u.Upsert(ctx, source, first)
	require.NoError(t, err)
	_, err = u.Upsert(ctx, source, second)
	require.NoError(t, err)

	require.Len(t, store.Companies(), 1)
}

func TestUpsertMergesCompanyAttributesNonDestructively(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	u := newTestUpserter(store, clock)
	source := store.SeedSource(ingest.JobSource{Name: "WeWorkRemotely", IsActive: true})

	first := testPosting()
	first.CompanyWebsite = strPtr("https://acme.example")
	_, err := u.Upsert(ctx, source, first)
	require.NoError(t, err)

	second := testPosting()
	second.ExternalID = "456"
	second.CompanyWebsite = nil
	second.CompanyIndustry = strPtr("Software")
	_, err = u.Upsert(ctx, source, second)
	require.NoError(t, err)

	companies := store.Companies()
	require.Len(t, companies, 1)
	require.Equal(t, "https://acme.example", *companies[0].Website)
	require.Equal(t, "Software", *companies[0].Industry)
}

func TestUpsertConcurrentSameKeyCreatesOneRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	u := newTestUpserter(store, clock)
	source := store.SeedSource(ingest.JobSource{Name: "WeWorkRemotely", IsActive: true})

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := u.Upsert(ctx, source, testPosting())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, store.JobCount())
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Acme Corp", "acme-corp"},
		{"Acme, Inc.", "acme-inc"},
		{"  Über & Co  ", "ber-co"},
		{"---", "company"},
		{"Go/Rust Shop", "go-rust-shop"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Slugify(tc.in), "input %q", tc.in)
	}
}

func TestResolveCompanySlugCollisionAppendsSuffix(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	u := newTestUpserter(store, clock)
	source := store.SeedSource(ingest.JobSource{Name: "WeWorkRemotely", IsActive: true})

	// A different company already owns the slug "acme-corp".
	_, err := store.CreateCompany(ctx, ingest.Company{Name: "Acme-Corp", Slug: "acme-corp"})
	require.NoError(t, err)

	_, err = u.Upsert(ctx, source, testPosting())
	require.NoError(t, err)

	var slugs []string
	for _, c := range store.Companies() {
		slugs = append(slugs, c.Slug)
	}
	require.ElementsMatch(t, []string{"acme-corp", "acme-corp-2"}, slugs)
}
