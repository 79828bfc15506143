// Package normalize validates and coerces raw candidate records into
// canonical postings. Only the absence of a required field is a hard
// reject; every optional field degrades gracefully when malformed.
package normalize

import (
	"html"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

// UnknownCompany is the placeholder employer name used when a combined
// title string carries no recognizable company part.
const UnknownCompany = "Unknown Company"

const (
	maxTitleLen    = 255
	minTitleLen    = 5
	maxLocationLen = 255
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Matched in order; the first separator found in a combined
	// "Company – Title" string wins.
	titleSeparators = []string{" – ", " — ", " | ", " - "}
)

// Normalizer turns RawPosting field bags into NormalizedPostings.
type Normalizer struct {
	clock  ingest.Clock
	logger *zap.Logger
}

// New constructs a Normalizer. The clock supplies the fallback posted
// date for records with no extractable date.
func New(clock ingest.Clock, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{clock: clock, logger: logger}
}

// Normalize validates raw and coerces it into a canonical posting, or
// returns a *ingest.RejectError describing why the record was refused.
func (n *Normalizer) Normalize(raw ingest.RawPosting) (ingest.NormalizedPosting, error) {
	externalID := cleanString(raw.String("external_id"))
	title := cleanString(raw.String("title"))
	url := cleanString(raw.String("url"))

	if externalID == "" {
		return ingest.NormalizedPosting{}, &ingest.RejectError{Reason: ingest.RejectMissingRequiredField, Field: "external_id"}
	}
	if title == "" {
		return ingest.NormalizedPosting{}, &ingest.RejectError{Reason: ingest.RejectMissingRequiredField, Field: "title"}
	}
	if url == "" {
		return ingest.NormalizedPosting{}, &ingest.RejectError{Reason: ingest.RejectMissingRequiredField, Field: "url"}
	}

	company := cleanString(raw.String("company_name"))
	if company == "" {
		company, title = splitCompanyTitle(title)
	}
	if len(title) < minTitleLen {
		return ingest.NormalizedPosting{}, &ingest.RejectError{Reason: ingest.RejectTitleTooShort, Field: "title"}
	}
	title = truncate(title, maxTitleLen)

	posting := ingest.NormalizedPosting{
		ExternalID:   externalID,
		Title:        title,
		CompanyName:  company,
		URL:          url,
		Description:  cleanText(raw.String("description")),
		Requirements: cleanText(raw.String("requirements")),
		Benefits:     cleanText(raw.String("benefits")),
	}

	location := truncate(cleanString(raw.String("location")), maxLocationLen)
	posting.Location = nilIfEmpty(location)
	posting.IsRemote, posting.RemoteType = inferRemote(raw.String("remote_type"), title, location)

	posting.JobType = parseJobType(raw.String("job_type"))
	posting.ExperienceLevel = parseExperience(raw.String("experience_level"))

	n.normalizeDate(&posting, raw)
	n.normalizeSalary(&posting, raw)

	posting.Tags = dedupeStrings(raw.Strings("tags"))
	posting.Skills = dedupeStrings(raw.Strings("skills"))

	posting.CompanyWebsite = cleanText(raw.String("company_website"))
	posting.CompanyIndustry = cleanText(raw.String("company_industry"))
	posting.CompanySize = parseCompanySize(raw.String("company_size"))

	return posting, nil
}

// normalizeDate prefers a structured timestamp over free-text parsing and
// falls back to the current run time with the estimated flag set.
func (n *Normalizer) normalizeDate(p *ingest.NormalizedPosting, raw ingest.RawPosting) {
	if t, ok := raw.Time("posted_date"); ok {
		p.PostedDate = t.UTC()
		return
	}
	now := n.clock.Now()
	if text := cleanString(raw.String("posted_date")); text != "" {
		if t, ok := parseDate(text, now); ok {
			p.PostedDate = t
			return
		}
		n.logger.Debug("unparseable posted date", zap.String("raw", text))
	}
	p.PostedDate = now
	p.DateEstimated = true
}

func (n *Normalizer) normalizeSalary(p *ingest.NormalizedPosting, raw ingest.RawPosting) {
	text := cleanString(raw.String("salary"))
	if text == "" {
		return
	}
	sal, ok := parseSalary(text)
	if !ok {
		// Unparseable salary text yields nulled fields, not a reject.
		n.logger.Debug("unparseable salary", zap.String("raw", text))
		return
	}
	p.SalaryMin = sal.Min
	p.SalaryMax = sal.Max
	p.SalaryCurrency = sal.Currency
	p.SalaryPeriod = sal.Period
}

// splitCompanyTitle splits a combined "Company – Title" string on the
// first recognized separator. With no separator the whole string is the
// title and the company falls back to the unknown placeholder. This is a
// best-effort heuristic, never a validation failure.
func splitCompanyTitle(combined string) (company, title string) {
	for _, sep := range titleSeparators {
		if idx := strings.Index(combined, sep); idx > 0 {
			company = strings.TrimSpace(combined[:idx])
			title = strings.TrimSpace(combined[idx+len(sep):])
			if company != "" && title != "" {
				return company, title
			}
		}
	}
	return UnknownCompany, combined
}

func parseJobType(raw string) ingest.JobType {
	switch canonicalToken(raw) {
	case "full_time", "fulltime", "full":
		return ingest.JobTypeFullTime
	case "part_time", "parttime", "part":
		return ingest.JobTypePartTime
	case "contract", "contractor":
		return ingest.JobTypeContract
	case "freelance":
		return ingest.JobTypeFreelance
	case "internship", "intern":
		return ingest.JobTypeInternship
	case "temporary", "temp":
		return ingest.JobTypeTemporary
	default:
		return ingest.JobTypeFullTime
	}
}

func parseExperience(raw string) ingest.ExperienceLevel {
	switch canonicalToken(raw) {
	case "entry", "entry_level", "graduate":
		return ingest.ExperienceEntry
	case "junior":
		return ingest.ExperienceJunior
	case "mid", "mid_level", "intermediate":
		return ingest.ExperienceMid
	case "senior":
		return ingest.ExperienceSenior
	case "lead":
		return ingest.ExperienceLead
	case "principal", "staff":
		return ingest.ExperiencePrincipal
	case "director":
		return ingest.ExperienceDirector
	default:
		return ""
	}
}

func parseCompanySize(raw string) ingest.CompanySize {
	switch canonicalToken(raw) {
	case "startup":
		return ingest.SizeStartup
	case "small":
		return ingest.SizeSmall
	case "medium":
		return ingest.SizeMedium
	case "large":
		return ingest.SizeLarge
	case "enterprise":
		return ingest.SizeEnterprise
	default:
		return ingest.SizeUnknown
	}
}

// canonicalToken lowercases and squashes separators so "Full-Time",
// "full time" and "FULL_TIME" all compare equal.
func canonicalToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// cleanString trims and HTML-unescapes a single-line value.
func cleanString(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}

// cleanText strips markup, collapses whitespace, and returns nil for
// empty-after-trim values so downstream can tell absent from empty.
func cleanText(s string) *string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return nilIfEmpty(s)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max])
}

// dedupeStrings trims entries and drops case-insensitive repeats,
// preserving first-seen order.
func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = cleanString(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
