// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

const uniqueViolationCode = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements the company, source, job, and run stores on Postgres.
type Store struct {
	pool db
}

// NewStore connects a pool using cfg.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool db) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

const companyColumns = `id, name, slug, website, industry, size, linkedin_url, twitter_url, github_url, created_at, updated_at`

func scanCompany(row pgx.Row) (ingest.Company, error) {
	var c ingest.Company
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Slug,
		&c.Website,
		&c.Industry,
		&c.Size,
		&c.LinkedInURL,
		&c.TwitterURL,
		&c.GitHubURL,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

// FindCompanyByName resolves a company case-insensitively.
func (s *Store) FindCompanyByName(ctx context.Context, name string) (ingest.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE lower(name) = lower($1);`
	c, err := scanCompany(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.Company{}, ingest.ErrNotFound
		}
		return ingest.Company{}, fmt.Errorf("find company: %w", err)
	}
	return c, nil
}

// CreateCompany inserts a company row, mapping unique violations on name
// or slug to ErrConflict.
func (s *Store) CreateCompany(ctx context.Context, company ingest.Company) (ingest.Company, error) {
	query := `
		INSERT INTO companies (name, slug, website, industry, size, linkedin_url, twitter_url, github_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id;
	`
	err := s.pool.QueryRow(ctx, query,
		company.Name,
		company.Slug,
		company.Website,
		company.Industry,
		company.Size,
		company.LinkedInURL,
		company.TwitterURL,
		company.GitHubURL,
		company.CreatedAt,
		company.UpdatedAt,
	).Scan(&company.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ingest.Company{}, ingest.ErrConflict
		}
		return ingest.Company{}, fmt.Errorf("insert company: %w", err)
	}
	return company, nil
}

// UpdateCompany saves merged company attributes.
func (s *Store) UpdateCompany(ctx context.Context, company ingest.Company) error {
	query := `
		UPDATE companies
		SET website = $1, industry = $2, size = $3, linkedin_url = $4, twitter_url = $5, github_url = $6, updated_at = $7
		WHERE id = $8;
	`
	_, err := s.pool.Exec(ctx, query,
		company.Website,
		company.Industry,
		company.Size,
		company.LinkedInURL,
		company.TwitterURL,
		company.GitHubURL,
		company.UpdatedAt,
		company.ID,
	)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	return nil
}

const sourceColumns = `id, name, base_url, is_active, scrape_interval_seconds, rate_limit_ms, user_agent, last_scraped, total_jobs_scraped`

func scanSource(row pgx.Row) (ingest.JobSource, error) {
	var (
		src             ingest.JobSource
		intervalSeconds int64
		rateLimitMs     int64
	)
	err := row.Scan(
		&src.ID,
		&src.Name,
		&src.BaseURL,
		&src.IsActive,
		&intervalSeconds,
		&rateLimitMs,
		&src.UserAgent,
		&src.LastScraped,
		&src.TotalJobsScraped,
	)
	if err != nil {
		return ingest.JobSource{}, err
	}
	src.ScrapeInterval = time.Duration(intervalSeconds) * time.Second
	src.RateLimit = time.Duration(rateLimitMs) * time.Millisecond
	return src, nil
}

// FindSourceByName resolves a source by its unique name.
func (s *Store) FindSourceByName(ctx context.Context, name string) (ingest.JobSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM job_sources WHERE name = $1;`
	src, err := scanSource(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.JobSource{}, ingest.ErrNotFound
		}
		return ingest.JobSource{}, fmt.Errorf("find source: %w", err)
	}
	return src, nil
}

// ListActiveSources returns all sources eligible for scheduling.
func (s *Store) ListActiveSources(ctx context.Context) ([]ingest.JobSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM job_sources WHERE is_active ORDER BY name;`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []ingest.JobSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// RecordSourceRun sets last_scraped and bumps the monotone scrape counter.
func (s *Store) RecordSourceRun(ctx context.Context, sourceID int64, lastScraped time.Time, jobsDelta int64) error {
	query := `
		UPDATE job_sources
		SET last_scraped = $1, total_jobs_scraped = total_jobs_scraped + $2
		WHERE id = $3;
	`
	tag, err := s.pool.Exec(ctx, query, lastScraped, jobsDelta, sourceID)
	if err != nil {
		return fmt.Errorf("record source run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

const jobColumns = `id, company_id, source_id, external_id, title, url, description, requirements, benefits, location,
	is_remote, remote_type, job_type, experience_level, salary_min, salary_max, salary_currency, salary_period,
	posted_date, scraped_date, expires_date, is_active, tags, skills`

func scanJob(row pgx.Row) (ingest.Job, error) {
	var j ingest.Job
	err := row.Scan(
		&j.ID,
		&j.CompanyID,
		&j.SourceID,
		&j.ExternalID,
		&j.Title,
		&j.URL,
		&j.Description,
		&j.Requirements,
		&j.Benefits,
		&j.Location,
		&j.IsRemote,
		&j.RemoteType,
		&j.JobType,
		&j.ExperienceLevel,
		&j.SalaryMin,
		&j.SalaryMax,
		&j.SalaryCurrency,
		&j.SalaryPeriod,
		&j.PostedDate,
		&j.ScrapedDate,
		&j.ExpiresDate,
		&j.IsActive,
		&j.Tags,
		&j.Skills,
	)
	return j, err
}

// FindJob resolves a job by its deduplication key.
func (s *Store) FindJob(ctx context.Context, sourceID int64, externalID string) (ingest.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE source_id = $1 AND external_id = $2;`
	j, err := scanJob(s.pool.QueryRow(ctx, query, sourceID, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.Job{}, ingest.ErrNotFound
		}
		return ingest.Job{}, fmt.Errorf("find job: %w", err)
	}
	return j, nil
}

// CreateJob inserts a posting row, mapping unique violations on the
// (source_id, external_id) key to ErrConflict.
func (s *Store) CreateJob(ctx context.Context, job ingest.Job) (ingest.Job, error) {
	query := `
		INSERT INTO jobs (company_id, source_id, external_id, title, url, description, requirements, benefits, location,
			is_remote, remote_type, job_type, experience_level, salary_min, salary_max, salary_currency, salary_period,
			posted_date, scraped_date, expires_date, is_active, tags, skills)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING id;
	`
	err := s.pool.QueryRow(ctx, query,
		job.CompanyID,
		job.SourceID,
		job.ExternalID,
		job.Title,
		job.URL,
		job.Description,
		job.Requirements,
		job.Benefits,
		job.Location,
		job.IsRemote,
		job.RemoteType,
		job.JobType,
		job.ExperienceLevel,
		job.SalaryMin,
		job.SalaryMax,
		job.SalaryCurrency,
		job.SalaryPeriod,
		job.PostedDate,
		job.ScrapedDate,
		job.ExpiresDate,
		job.IsActive,
		job.Tags,
		job.Skills,
	).Scan(&job.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ingest.Job{}, ingest.ErrConflict
		}
		return ingest.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// UpdateJob saves a merged posting row.
func (s *Store) UpdateJob(ctx context.Context, job ingest.Job) error {
	query := `
		UPDATE jobs
		SET company_id = $1, title = $2, url = $3, description = $4, requirements = $5, benefits = $6, location = $7,
			is_remote = $8, remote_type = $9, job_type = $10, experience_level = $11, salary_min = $12, salary_max = $13,
			salary_currency = $14, salary_period = $15, posted_date = $16, scraped_date = $17, expires_date = $18,
			is_active = $19, tags = $20, skills = $21
		WHERE id = $22;
	`
	tag, err := s.pool.Exec(ctx, query,
		job.CompanyID,
		job.Title,
		job.URL,
		job.Description,
		job.Requirements,
		job.Benefits,
		job.Location,
		job.IsRemote,
		job.RemoteType,
		job.JobType,
		job.ExperienceLevel,
		job.SalaryMin,
		job.SalaryMax,
		job.SalaryCurrency,
		job.SalaryPeriod,
		job.PostedDate,
		job.ScrapedDate,
		job.ExpiresDate,
		job.IsActive,
		job.Tags,
		job.Skills,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

// DeactivateExpired flips is_active off for postings past their expiry,
// or past maxAge with no expiry set. Rows are never deleted.
func (s *Store) DeactivateExpired(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error) {
	query := `
		UPDATE jobs
		SET is_active = FALSE
		WHERE is_active
		  AND (expires_date <= $1 OR (expires_date IS NULL AND posted_date <= $2));
	`
	tag, err := s.pool.Exec(ctx, query, now, now.Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("deactivate expired jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateRun inserts the audit row for a starting run.
func (s *Store) CreateRun(ctx context.Context, run ingest.Run) error {
	query := `
		INSERT INTO ingestion_runs (id, source, status, fetched, duplicates_skipped, rejected, created, updated, started_at, ended_at, error_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err := s.pool.Exec(ctx, query,
		run.ID,
		run.Source,
		run.Status,
		run.Counters.Fetched,
		run.Counters.DuplicatesSkipped,
		run.Counters.Rejected,
		run.Counters.Created,
		run.Counters.Updated,
		run.StartedAt,
		run.EndedAt,
		run.ErrorText,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ingest.ErrConflict
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CompleteRun saves the terminal state of a run.
func (s *Store) CompleteRun(ctx context.Context, run ingest.Run) error {
	query := `
		UPDATE ingestion_runs
		SET status = $1, fetched = $2, duplicates_skipped = $3, rejected = $4, created = $5, updated = $6, ended_at = $7, error_text = $8
		WHERE id = $9;
	`
	tag, err := s.pool.Exec(ctx, query,
		run.Status,
		run.Counters.Fetched,
		run.Counters.DuplicatesSkipped,
		run.Counters.Rejected,
		run.Counters.Created,
		run.Counters.Updated,
		run.EndedAt,
		run.ErrorText,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

// GetRun retrieves one run summary by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (ingest.Run, error) {
	query := `
		SELECT id, source, status, fetched, duplicates_skipped, rejected, created, updated, started_at, ended_at, error_text
		FROM ingestion_runs
		WHERE id = $1;
	`
	var run ingest.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.Source,
		&run.Status,
		&run.Counters.Fetched,
		&run.Counters.DuplicatesSkipped,
		&run.Counters.Rejected,
		&run.Counters.Created,
		&run.Counters.Updated,
		&run.StartedAt,
		&run.EndedAt,
		&run.ErrorText,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.Run{}, ingest.ErrNotFound
		}
		return ingest.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}
