package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

// salary is the parsed form of a free-text compensation string.
type salary struct {
	Min      *int
	Max      *int
	Currency *string
	Period   ingest.SalaryPeriod
}

var salaryRangeRe = regexp.MustCompile(`(?i)([\d][\d,.]*)\s*(k)?\s*(?:-|–|—|\bto\b)\s*[$£€]?\s*([\d][\d,.]*)\s*(k)?`)

var salarySingleRe = regexp.MustCompile(`(?i)([\d][\d,.]*)\s*(k)?`)

// parseSalary extracts a numeric range with currency and period detection.
// Text with no extractable number reports ok=false; the caller nulls the
// salary fields instead of rejecting the record.
func parseSalary(text string) (salary, bool) {
	var out salary

	out.Currency = detectCurrency(text)
	out.Period = detectPeriod(text)

	if m := salaryRangeRe.FindStringSubmatch(text); m != nil {
		lo, okLo := parseAmount(m[1], m[2] != "")
		hi, okHi := parseAmount(m[3], m[4] != "")
		if okLo && okHi && lo <= hi {
			out.Min = &lo
			out.Max = &hi
			return out, true
		}
	}
	if m := salarySingleRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[1], m[2] != ""); ok {
			out.Min = &v
			return out, true
		}
	}
	return salary{}, false
}

func parseAmount(digits string, thousands bool) (int, bool) {
	digits = strings.ReplaceAll(digits, ",", "")
	// "120.5k" style decimals only make sense with the k suffix.
	if dot := strings.Index(digits, "."); dot >= 0 && !thousands {
		digits = digits[:dot]
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	if thousands {
		v *= 1000
	}
	return int(v), true
}

func detectCurrency(text string) *string {
	upper := strings.ToUpper(text)
	var code string
	switch {
	case strings.Contains(text, "$") || strings.Contains(upper, "USD"):
		code = "USD"
	case strings.Contains(text, "£") || strings.Contains(upper, "GBP"):
		code = "GBP"
	case strings.Contains(text, "€") || strings.Contains(upper, "EUR"):
		code = "EUR"
	default:
		return nil
	}
	return &code
}

func detectPeriod(text string) ingest.SalaryPeriod {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "/hr") || strings.Contains(lower, "hour"):
		return ingest.SalaryHourly
	case strings.Contains(lower, "/day") || strings.Contains(lower, "per day") || strings.Contains(lower, "daily"):
		return ingest.SalaryDaily
	case strings.Contains(lower, "/mo") || strings.Contains(lower, "month"):
		return ingest.SalaryMonthly
	default:
		return ingest.SalaryYearly
	}
}
