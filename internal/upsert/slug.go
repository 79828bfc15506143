package upsert

import (
	"regexp"
	"strings"
)

var (
	nonSlugRe      = regexp.MustCompile(`[^a-z0-9]+`)
	slugSqueezeRe  = regexp.MustCompile(`-{2,}`)
	maxSlugLength  = 255
	fallbackSlug   = "company"
)

// Slugify derives a deterministic URL-safe slug from a company name.
// Collisions between distinct companies are disambiguated by the caller
// with a numeric suffix.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonSlugRe.ReplaceAllString(s, "-")
	s = slugSqueezeRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return fallbackSlug
	}
	if len(s) > maxSlugLength {
		s = strings.Trim(s[:maxSlugLength], "-")
	}
	return s
}
