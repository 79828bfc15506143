package normalize

import (
	"strings"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

var remoteKeywords = []string{"remote", "anywhere", "work from home", "wfh", "distributed"}

var hybridKeywords = []string{"hybrid"}

var onSiteKeywords = []string{"on-site", "onsite", "on site", "in office", "in-office"}

// inferRemote applies the fixed precedence: explicit structured field,
// then title keywords, then location keywords, then unknown. The keyword
// match is heuristic; misclassification is accepted noise.
func inferRemote(structured, title, location string) (bool, ingest.RemoteType) {
	if rt, ok := parseRemoteType(structured); ok {
		return rt == ingest.RemoteTypeRemote, rt
	}
	if rt, ok := keywordRemoteType(title); ok {
		return rt == ingest.RemoteTypeRemote, rt
	}
	if rt, ok := keywordRemoteType(location); ok {
		return rt == ingest.RemoteTypeRemote, rt
	}
	return false, ingest.RemoteTypeUnknown
}

func parseRemoteType(raw string) (ingest.RemoteType, bool) {
	switch canonicalToken(raw) {
	case "fully_remote", "remote":
		return ingest.RemoteTypeRemote, true
	case "hybrid":
		return ingest.RemoteTypeHybrid, true
	case "on_site", "onsite":
		return ingest.RemoteTypeOnSite, true
	default:
		return ingest.RemoteTypeUnknown, false
	}
}

func keywordRemoteType(text string) (ingest.RemoteType, bool) {
	lower := strings.ToLower(text)
	if lower == "" {
		return ingest.RemoteTypeUnknown, false
	}
	// Hybrid first: "hybrid remote" postings should land on hybrid.
	for _, kw := range hybridKeywords {
		if strings.Contains(lower, kw) {
			return ingest.RemoteTypeHybrid, true
		}
	}
	for _, kw := range remoteKeywords {
		if strings.Contains(lower, kw) {
			return ingest.RemoteTypeRemote, true
		}
	}
	for _, kw := range onSiteKeywords {
		if strings.Contains(lower, kw) {
			return ingest.RemoteTypeOnSite, true
		}
	}
	return ingest.RemoteTypeUnknown, false
}
