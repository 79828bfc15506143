// Package upsert idempotently persists normalized postings, maintaining
// the (source, external_id) uniqueness invariant and the non-destructive
// field merge rules.
package upsert

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

const (
	// conflictRetries bounds the find-then-write retry loop when racing
	// writers target the same key.
	conflictRetries = 3
	// slugAttempts bounds the disambiguator suffix search on slug
	// collisions between distinct companies.
	slugAttempts = 10
)

// Upserter creates or updates Job rows (and their Company) from
// normalized postings. It has no side effects beyond the row writes;
// stats aggregation belongs to the caller.
type Upserter struct {
	companies ingest.CompanyStore
	jobs      ingest.JobStore
	clock     ingest.Clock
	logger    *zap.Logger
}

// New constructs an Upserter.
func New(companies ingest.CompanyStore, jobs ingest.JobStore, clock ingest.Clock, logger *zap.Logger) *Upserter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upserter{
		companies: companies,
		jobs:      jobs,
		clock:     clock,
		logger:    logger,
	}
}

// Upsert resolves or creates the posting's Company, then creates or
// updates the Job row keyed by (source, external_id). It is safe under
// concurrent invocation for the same key: a racing duplicate create
// resolves to an update instead of surfacing a uniqueness violation.
func (u *Upserter) Upsert(ctx context.Context, source ingest.JobSource, posting ingest.NormalizedPosting) (ingest.UpsertOutcome, error) {
	company, err := u.resolveCompany(ctx, posting)
	if err != nil {
		return "", fmt.Errorf("resolve company %q: %w", posting.CompanyName, err)
	}

	for attempt := 0; attempt < conflictRetries; attempt++ {
		existing, err := u.jobs.FindJob(ctx, source.ID, posting.ExternalID)
		switch {
		case err == nil:
			merged := mergeJob(existing, posting, company.ID, u.clock.Now())
			if err := u.jobs.UpdateJob(ctx, merged); err != nil {
				return "", fmt.Errorf("update job: %w", err)
			}
			return ingest.OutcomeUpdated, nil
		case errors.Is(err, ingest.ErrNotFound):
			job := newJob(source.ID, company.ID, posting, u.clock.Now())
			if _, err := u.jobs.CreateJob(ctx, job); err != nil {
				if errors.Is(err, ingest.ErrConflict) {
					// Lost the create race; re-resolve to an update.
					continue
				}
				return "", fmt.Errorf("create job: %w", err)
			}
			return ingest.OutcomeCreated, nil
		default:
			return "", fmt.Errorf("find job: %w", err)
		}
	}
	return "", fmt.Errorf("upsert job %s/%s: %w", source.Name, posting.ExternalID, ingest.ErrConflict)
}

// resolveCompany finds the employer case-insensitively or creates it with
// a deterministic slug, disambiguating slug collisions with a numeric
// suffix. Newly observed attributes merge into existing rows without ever
// blanking a populated field.
func (u *Upserter) resolveCompany(ctx context.Context, posting ingest.NormalizedPosting) (ingest.Company, error) {
	company, err := u.companies.FindCompanyByName(ctx, posting.CompanyName)
	if err == nil {
		return u.mergeCompany(ctx, company, posting)
	}
	if !errors.Is(err, ingest.ErrNotFound) {
		return ingest.Company{}, err
	}

	base := Slugify(posting.CompanyName)
	slug := base
	for attempt := 2; attempt <= slugAttempts+1; attempt++ {
		created, err := u.companies.CreateCompany(ctx, ingest.Company{
			Name:     posting.CompanyName,
			Slug:     slug,
			Website:  posting.CompanyWebsite,
			Industry: posting.CompanyIndustry,
			Size:     companySizeOrUnknown(posting.CompanySize),
		})
		if err == nil {
			u.logger.Info("created company", zap.String("name", created.Name), zap.String("slug", created.Slug))
			return created, nil
		}
		if !errors.Is(err, ingest.ErrConflict) {
			return ingest.Company{}, err
		}
		// Either another writer created the same company, or the slug
		// belongs to a different one. Re-check the name before bumping
		// the suffix.
		if existing, findErr := u.companies.FindCompanyByName(ctx, posting.CompanyName); findErr == nil {
			return u.mergeCompany(ctx, existing, posting)
		}
		slug = fmt.Sprintf("%s-%d", base, attempt)
	}
	return ingest.Company{}, fmt.Errorf("derive slug for %q: %w", posting.CompanyName, ingest.ErrConflict)
}

func (u *Upserter) mergeCompany(ctx context.Context, company ingest.Company, posting ingest.NormalizedPosting) (ingest.Company, error) {
	merged := company
	merged.Website = mergeText(company.Website, posting.CompanyWebsite)
	merged.Industry = mergeText(company.Industry, posting.CompanyIndustry)
	if merged.Size == ingest.SizeUnknown && posting.CompanySize != ingest.SizeUnknown && posting.CompanySize != "" {
		merged.Size = posting.CompanySize
	}
	if merged == company {
		return company, nil
	}
	if err := u.companies.UpdateCompany(ctx, merged); err != nil {
		return ingest.Company{}, err
	}
	return merged, nil
}
