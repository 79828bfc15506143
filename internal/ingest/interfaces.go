package ingest

import (
	"context"
	"time"
)

// RecordIterator yields raw postings one at a time. Next returns io.EOF
// once the sequence is exhausted normally; a fetch failure surfaces as an
// *ExtractionError so callers can tell the two apart.
type RecordIterator interface {
	Next(ctx context.Context) (RawPosting, error)
	Close() error
}

// Extractor produces a lazy, finite sequence of raw candidate records for
// one source, bounded by maxRecords. Site-specific extraction logic lives
// behind this interface and outside the ingestion core.
type Extractor interface {
	Extract(ctx context.Context, source JobSource, maxRecords int) (RecordIterator, error)
}

// CompanyStore persists employer rows.
type CompanyStore interface {
	// FindCompanyByName resolves a company case-insensitively, returning
	// ErrNotFound when absent.
	FindCompanyByName(ctx context.Context, name string) (Company, error)
	// CreateCompany inserts a new row, returning ErrConflict when the name
	// or slug already exists.
	CreateCompany(ctx context.Context, company Company) (Company, error)
	UpdateCompany(ctx context.Context, company Company) error
}

// JobSourceStore reads source configuration and records run results.
type JobSourceStore interface {
	FindSourceByName(ctx context.Context, name string) (JobSource, error)
	ListActiveSources(ctx context.Context) ([]JobSource, error)
	// RecordSourceRun sets last_scraped and increments total_jobs_scraped
	// by jobsDelta. The counter is monotonically non-decreasing.
	RecordSourceRun(ctx context.Context, sourceID int64, lastScraped time.Time, jobsDelta int64) error
}

// JobStore persists posting rows keyed by (source, external_id).
type JobStore interface {
	// FindJob resolves a job by its deduplication key, returning
	// ErrNotFound when absent.
	FindJob(ctx context.Context, sourceID int64, externalID string) (Job, error)
	// CreateJob inserts a new row, returning ErrConflict when the
	// (source, external_id) key already exists.
	CreateJob(ctx context.Context, job Job) (Job, error)
	UpdateJob(ctx context.Context, job Job) error
	// DeactivateExpired flips is_active to false for jobs whose expiry has
	// passed, or whose posted date is older than maxAge with no expiry
	// set. Rows are never deleted. Returns the number of rows changed.
	DeactivateExpired(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error)
}

// RunStore persists run-audit records sufficient to reconstruct run
// summaries after the fact.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	CompleteRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
}

// Queue provides enqueue/dequeue semantics for run requests.
type Queue interface {
	Enqueue(ctx context.Context, req RunRequest) error
	Dequeue(ctx context.Context) (RunRequest, error)
}

// Lease guards against concurrent runs for the same source. Acquire
// returns false without error when the key is already held. Leases expire
// after ttl so a crashed holder cannot wedge a source forever.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
