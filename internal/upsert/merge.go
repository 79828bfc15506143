package upsert

import (
	"time"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

// newJob builds a fresh Job row from a normalized posting.
func newJob(sourceID, companyID int64, p ingest.NormalizedPosting, now time.Time) ingest.Job {
	return ingest.Job{
		CompanyID:       companyID,
		SourceID:        sourceID,
		ExternalID:      p.ExternalID,
		Title:           p.Title,
		URL:             p.URL,
		Description:     p.Description,
		Requirements:    p.Requirements,
		Benefits:        p.Benefits,
		Location:        p.Location,
		IsRemote:        p.IsRemote,
		RemoteType:      p.RemoteType,
		JobType:         p.JobType,
		ExperienceLevel: p.ExperienceLevel,
		SalaryMin:       p.SalaryMin,
		SalaryMax:       p.SalaryMax,
		SalaryCurrency:  p.SalaryCurrency,
		SalaryPeriod:    p.SalaryPeriod,
		PostedDate:      p.PostedDate,
		ScrapedDate:     now,
		IsActive:        true,
		Tags:            p.Tags,
		Skills:          p.Skills,
	}
}

// mergeJob applies a re-observed posting onto an existing row. The merge
// is non-destructive per field: an incoming empty value never blanks a
// previously populated one. Identity and creation metadata are untouched;
// scraped_date always refreshes.
func mergeJob(existing ingest.Job, p ingest.NormalizedPosting, companyID int64, now time.Time) ingest.Job {
	merged := existing
	merged.CompanyID = companyID
	merged.ScrapedDate = now
	merged.IsActive = true

	if p.Title != "" {
		merged.Title = p.Title
	}
	if p.URL != "" {
		merged.URL = p.URL
	}
	merged.Description = mergeText(existing.Description, p.Description)
	merged.Requirements = mergeText(existing.Requirements, p.Requirements)
	merged.Benefits = mergeText(existing.Benefits, p.Benefits)
	merged.Location = mergeText(existing.Location, p.Location)

	if p.RemoteType != ingest.RemoteTypeUnknown {
		merged.IsRemote = p.IsRemote
		merged.RemoteType = p.RemoteType
	}
	if p.JobType != "" {
		merged.JobType = p.JobType
	}
	if p.ExperienceLevel != "" {
		merged.ExperienceLevel = p.ExperienceLevel
	}

	if p.SalaryMin != nil {
		merged.SalaryMin = p.SalaryMin
	}
	if p.SalaryMax != nil {
		merged.SalaryMax = p.SalaryMax
	}
	if p.SalaryCurrency != nil {
		merged.SalaryCurrency = p.SalaryCurrency
	}
	if p.SalaryPeriod != "" {
		merged.SalaryPeriod = p.SalaryPeriod
	}

	// An estimated date is weaker information than whatever the row
	// already has.
	if !p.DateEstimated {
		merged.PostedDate = p.PostedDate
	}
	if len(p.Tags) > 0 {
		merged.Tags = p.Tags
	}
	if len(p.Skills) > 0 {
		merged.Skills = p.Skills
	}
	return merged
}

// mergeText keeps the populated side: incoming wins only when non-nil.
func mergeText(existing, incoming *string) *string {
	if incoming != nil {
		return incoming
	}
	return existing
}

func companySizeOrUnknown(size ingest.CompanySize) ingest.CompanySize {
	if size == "" {
		return ingest.SizeUnknown
	}
	return size
}
