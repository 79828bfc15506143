// Package ingest defines core types shared across the ingestion subsystems.
package ingest

import (
	"time"
)

// RemoteType classifies how location-flexible a posting is.
type RemoteType string

// Remote type values persisted on jobs.
const (
	RemoteTypeOnSite  RemoteType = "on_site"
	RemoteTypeHybrid  RemoteType = "hybrid"
	RemoteTypeRemote  RemoteType = "fully_remote"
	RemoteTypeUnknown RemoteType = "unknown"
)

// JobType classifies the employment arrangement of a posting.
type JobType string

// Job type values persisted on jobs.
const (
	JobTypeFullTime   JobType = "full_time"
	JobTypePartTime   JobType = "part_time"
	JobTypeContract   JobType = "contract"
	JobTypeFreelance  JobType = "freelance"
	JobTypeInternship JobType = "internship"
	JobTypeTemporary  JobType = "temporary"
)

// ExperienceLevel classifies seniority. Empty means undetectable.
type ExperienceLevel string

// Experience level values persisted on jobs.
const (
	ExperienceEntry     ExperienceLevel = "entry"
	ExperienceJunior    ExperienceLevel = "junior"
	ExperienceMid       ExperienceLevel = "mid"
	ExperienceSenior    ExperienceLevel = "senior"
	ExperienceLead      ExperienceLevel = "lead"
	ExperiencePrincipal ExperienceLevel = "principal"
	ExperienceDirector  ExperienceLevel = "director"
)

// SalaryPeriod is the unit a salary range is quoted in.
type SalaryPeriod string

// Salary period values persisted on jobs.
const (
	SalaryHourly  SalaryPeriod = "hourly"
	SalaryDaily   SalaryPeriod = "daily"
	SalaryMonthly SalaryPeriod = "monthly"
	SalaryYearly  SalaryPeriod = "yearly"
)

// CompanySize buckets company headcount.
type CompanySize string

// Company size values persisted on companies.
const (
	SizeStartup    CompanySize = "startup"
	SizeSmall      CompanySize = "small"
	SizeMedium     CompanySize = "medium"
	SizeLarge      CompanySize = "large"
	SizeEnterprise CompanySize = "enterprise"
	SizeUnknown    CompanySize = "unknown"
)

// RawPosting is the untyped field bag an Extractor yields for a single
// candidate record. Keys are extractor-defined; the normalizer reads the
// conventional keys (external_id, title, url, ...) and tolerates anything
// missing or malformed.
type RawPosting map[string]any

// String returns the trimmed string value under key, or "" when the key is
// absent or not a string.
func (r RawPosting) String(key string) string {
	v, ok := r[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Time returns the time value under key and whether one was present.
func (r RawPosting) Time(key string) (time.Time, bool) {
	v, ok := r[key]
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	if !ok || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// Strings returns the string-slice value under key. Individual non-string
// elements of an []any value are skipped.
func (r RawPosting) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// NormalizedPosting is the canonical intermediate form produced by the
// normalizer and consumed immediately by the upserter. It is never
// persisted itself.
type NormalizedPosting struct {
	ExternalID      string
	Title           string
	CompanyName     string
	URL             string
	Description     *string
	Requirements    *string
	Benefits        *string
	Location        *string
	IsRemote        bool
	RemoteType      RemoteType
	JobType         JobType
	ExperienceLevel ExperienceLevel
	SalaryMin       *int
	SalaryMax       *int
	SalaryCurrency  *string
	SalaryPeriod    SalaryPeriod
	PostedDate      time.Time
	DateEstimated   bool
	Tags            []string
	Skills          []string

	// Company attributes observed alongside the posting, merged
	// non-destructively into the Company row.
	CompanyWebsite  *string
	CompanyIndustry *string
	CompanySize     CompanySize
}

// Company is an employer row. Created on first sighting of a posting whose
// employer has no matching row; never deleted by the ingestion core.
type Company struct {
	ID          int64
	Name        string
	Slug        string
	Website     *string
	Industry    *string
	Size        CompanySize
	LinkedInURL *string
	TwitterURL  *string
	GitHubURL   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobSource is an external site postings are ingested from. Rows are
// seeded out-of-band; the core reads configuration and writes run-result
// fields only.
type JobSource struct {
	ID               int64
	Name             string
	BaseURL          string
	IsActive         bool
	ScrapeInterval   time.Duration // 0 means use the scheduler default
	RateLimit        time.Duration // min delay between requests
	UserAgent        string
	LastScraped      *time.Time
	TotalJobsScraped int64
}

// Job is the persisted posting record. The pair (SourceID, ExternalID) is
// globally unique and is the sole deduplication key across time.
type Job struct {
	ID              int64
	CompanyID       int64
	SourceID        int64
	ExternalID      string
	Title           string
	URL             string
	Description     *string
	Requirements    *string
	Benefits        *string
	Location        *string
	IsRemote        bool
	RemoteType      RemoteType
	JobType         JobType
	ExperienceLevel ExperienceLevel
	SalaryMin       *int
	SalaryMax       *int
	SalaryCurrency  *string
	SalaryPeriod    SalaryPeriod
	PostedDate      time.Time
	ScrapedDate     time.Time
	ExpiresDate     *time.Time
	IsActive        bool
	Tags            []string
	Skills          []string
}

// UpsertOutcome reports what an upsert did to the store.
type UpsertOutcome string

// Upsert outcomes.
const (
	OutcomeCreated UpsertOutcome = "created"
	OutcomeUpdated UpsertOutcome = "updated"
)

// RunStatus represents the lifecycle state of one crawl run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partially_completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusPartial, RunStatusFailed:
		return true
	default:
		return false
	}
}

// RunCounters aggregates per-record outcomes over one run.
type RunCounters struct {
	Fetched           int `json:"fetched"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	Rejected          int `json:"rejected"`
	Created           int `json:"created"`
	Updated           int `json:"updated"`
}

// Progressed reports whether any row writes happened during the run.
func (c RunCounters) Progressed() bool {
	return c.Created+c.Updated > 0
}

// Run is the audit record for one execution of the pipeline for one
// source. It doubles as the run summary returned to callers.
type Run struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	Status    RunStatus   `json:"status"`
	Counters  RunCounters `json:"counters"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
}

// RunRequest asks for one crawl run to be executed.
type RunRequest struct {
	RunID      string `json:"run_id"`
	SourceName string `json:"source_name"`
	MaxRecords int    `json:"max_records"`
	Attempt    int    `json:"attempt"`
}
