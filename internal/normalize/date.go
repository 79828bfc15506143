package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeDateRe = regexp.MustCompile(`(?i)^(?:about\s+|over\s+)?(\d+|a|an)\s+(minute|hour|day|week|month|year)s?\s+ago$`)

// absoluteDateLayouts are tried in order against free-text dates.
var absoluteDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2 2006",
}

// parseDate parses free-text posted dates, handling relative forms
// ("3 days ago") and common absolute forms. Results are always UTC.
func parseDate(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	switch lower {
	case "today", "just now", "now":
		return now.UTC(), true
	case "yesterday":
		return now.AddDate(0, 0, -1).UTC(), true
	}

	if m := relativeDateRe.FindStringSubmatch(lower); m != nil {
		n := 1
		if m[1] != "a" && m[1] != "an" {
			parsed, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, false
			}
			n = parsed
		}
		switch m[2] {
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute).UTC(), true
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour).UTC(), true
		case "day":
			return now.AddDate(0, 0, -n).UTC(), true
		case "week":
			return now.AddDate(0, 0, -7*n).UTC(), true
		case "month":
			return now.AddDate(0, -n, 0).UTC(), true
		case "year":
			return now.AddDate(-n, 0, 0).UTC(), true
		}
	}

	for _, layout := range absoluteDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
