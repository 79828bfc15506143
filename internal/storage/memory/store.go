// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

// Store implements every ingest store interface over mutex-guarded maps.
type Store struct {
	mu        sync.RWMutex
	companies map[int64]ingest.Company
	sources   map[int64]ingest.JobSource
	jobs      map[int64]ingest.Job
	runs      map[string]ingest.Run

	nextCompanyID int64
	nextSourceID  int64
	nextJobID     int64
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		companies: make(map[int64]ingest.Company),
		sources:   make(map[int64]ingest.JobSource),
		jobs:      make(map[int64]ingest.Job),
		runs:      make(map[string]ingest.Run),
	}
}

// FindCompanyByName resolves a company case-insensitively.
func (s *Store) FindCompanyByName(_ context.Context, name string) (ingest.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.companies {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return ingest.Company{}, ingest.ErrNotFound
}

// CreateCompany inserts a company, enforcing name and slug uniqueness.
func (s *Store) CreateCompany(_ context.Context, company ingest.Company) (ingest.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if strings.EqualFold(c.Name, company.Name) || c.Slug == company.Slug {
			return ingest.Company{}, ingest.ErrConflict
		}
	}
	s.nextCompanyID++
	company.ID = s.nextCompanyID
	now := time.Now().UTC()
	company.CreatedAt = now
	company.UpdatedAt = now
	s.companies[company.ID] = company
	return company, nil
}

// UpdateCompany replaces a company row.
func (s *Store) UpdateCompany(_ context.Context, company ingest.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[company.ID]; !ok {
		return ingest.ErrNotFound
	}
	company.UpdatedAt = time.Now().UTC()
	s.companies[company.ID] = company
	return nil
}

// SeedSource inserts a source row, mimicking out-of-band seed data.
func (s *Store) SeedSource(source ingest.JobSource) ingest.JobSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if source.ID == 0 {
		s.nextSourceID++
		source.ID = s.nextSourceID
	}
	s.sources[source.ID] = source
	return source
}

// FindSourceByName resolves a source by its unique name.
func (s *Store) FindSourceByName(_ context.Context, name string) (ingest.JobSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, src := range s.sources {
		if src.Name == name {
			return src, nil
		}
	}
	return ingest.JobSource{}, ingest.ErrNotFound
}

// ListActiveSources returns all sources with is_active set.
func (s *Store) ListActiveSources(_ context.Context) ([]ingest.JobSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ingest.JobSource
	for _, src := range s.sources {
		if src.IsActive {
			out = append(out, src)
		}
	}
	return out, nil
}

// RecordSourceRun updates a source's run-result fields.
func (s *Store) RecordSourceRun(_ context.Context, sourceID int64, lastScraped time.Time, jobsDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return ingest.ErrNotFound
	}
	ts := lastScraped
	src.LastScraped = &ts
	src.TotalJobsScraped += jobsDelta
	s.sources[sourceID] = src
	return nil
}

// FindJob resolves a job by its (source, external_id) key.
func (s *Store) FindJob(_ context.Context, sourceID int64, externalID string) (ingest.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.SourceID == sourceID && j.ExternalID == externalID {
			return j, nil
		}
	}
	return ingest.Job{}, ingest.ErrNotFound
}

// CreateJob inserts a job, enforcing (source, external_id) uniqueness.
func (s *Store) CreateJob(_ context.Context, job ingest.Job) (ingest.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.SourceID == job.SourceID && j.ExternalID == job.ExternalID {
			return ingest.Job{}, ingest.ErrConflict
		}
	}
	s.nextJobID++
	job.ID = s.nextJobID
	s.jobs[job.ID] = job
	return job, nil
}

// UpdateJob replaces a job row.
func (s *Store) UpdateJob(_ context.Context, job ingest.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ingest.ErrNotFound
	}
	s.jobs[job.ID] = job
	return nil
}

// DeactivateExpired flips is_active off for expired rows; rows are kept.
func (s *Store) DeactivateExpired(_ context.Context, now time.Time, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-maxAge)
	var changed int64
	for id, j := range s.jobs {
		if !j.IsActive {
			continue
		}
		expired := (j.ExpiresDate != nil && j.ExpiresDate.Before(now)) ||
			(j.ExpiresDate == nil && j.PostedDate.Before(cutoff))
		if expired {
			j.IsActive = false
			s.jobs[id] = j
			changed++
		}
	}
	return changed, nil
}

// CreateRun stores a run-audit record.
func (s *Store) CreateRun(_ context.Context, run ingest.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return ingest.ErrConflict
	}
	s.runs[run.ID] = run
	return nil
}

// CompleteRun replaces the stored run with its terminal form.
func (s *Store) CompleteRun(_ context.Context, run ingest.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ingest.ErrNotFound
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(_ context.Context, runID string) (ingest.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return ingest.Run{}, ingest.ErrNotFound
	}
	return run, nil
}

// JobCount reports how many job rows exist (test helper).
func (s *Store) JobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Jobs returns a snapshot of all job rows (test helper).
func (s *Store) Jobs() []ingest.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Companies returns a snapshot of all company rows (test helper).
func (s *Store) Companies() []ingest.Company {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, c)
	}
	return out
}

// Source returns a source row by ID (test helper).
func (s *Store) Source(id int64) (ingest.JobSource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	return src, ok
}
