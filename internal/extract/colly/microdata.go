package collyextract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

// microdataToRawPosting flattens a schema.org microdata JobPosting scope
// into the conventional raw-record keys. A page publishing both JSON-LD
// and microdata yields duplicate external IDs, which the run-level dedup
// suppresses. Returns nil for scopes carrying no usable content.
func microdataToRawPosting(scope *goquery.Selection, pageURL string) ingest.RawPosting {
	title := itemprop(scope, "title")
	if title == "" {
		title = postingName(scope)
	}
	description := itemprop(scope, "description")
	if title == "" && description == "" {
		return nil
	}

	rec := ingest.RawPosting{}

	url := itemprop(scope, "url")
	if url == "" {
		url = pageURL
	}
	rec["url"] = url

	externalID := itemprop(scope, "identifier")
	if externalID == "" {
		externalID = url
	}
	rec["external_id"] = externalID

	setIfPresent(rec, "title", title)
	setIfPresent(rec, "description", description)
	setIfPresent(rec, "posted_date", itemprop(scope, "datePosted"))
	setIfPresent(rec, "job_type", itemprop(scope, "employmentType"))
	setIfPresent(rec, "location", microdataLocation(scope))
	setIfPresent(rec, "company_name", nestedItemprop(scope, "hiringOrganization", "name"))
	setIfPresent(rec, "company_website", nestedItemprop(scope, "hiringOrganization", "url"))
	if skills := itemprop(scope, "skills"); skills != "" {
		rec["skills"] = splitList(skills)
	}
	return rec
}

// postingName finds the posting's own name prop, skipping names that
// belong to nested scopes like the hiring organization.
func postingName(scope *goquery.Selection) string {
	var name string
	scope.Find("[itemprop='name']").EachWithBreak(func(_ int, n *goquery.Selection) bool {
		if n.ParentsFiltered("[itemprop='hiringOrganization'], [itemprop='jobLocation']").Length() > 0 {
			return true
		}
		name = propValue(n)
		return false
	})
	return name
}

func microdataLocation(scope *goquery.Selection) string {
	parts := make([]string, 0, 3)
	for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
		node := scope.Find("[itemprop='jobLocation'] [itemprop='" + key + "']").First()
		if node.Length() == 0 {
			continue
		}
		if v := propValue(node); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

func itemprop(scope *goquery.Selection, name string) string {
	node := scope.Find("[itemprop='" + name + "']").First()
	if node.Length() == 0 {
		return ""
	}
	return propValue(node)
}

func nestedItemprop(scope *goquery.Selection, outer, inner string) string {
	node := scope.Find("[itemprop='" + outer + "'] [itemprop='" + inner + "']").First()
	if node.Length() == 0 {
		return ""
	}
	return propValue(node)
}

// propValue reads a microdata value the way browsers do: content attr
// first, then link targets, then datetime, then visible text.
func propValue(node *goquery.Selection) string {
	if v, ok := node.Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	if node.Is("a, link") {
		if v, ok := node.Attr("href"); ok {
			return strings.TrimSpace(v)
		}
	}
	if v, ok := node.Attr("datetime"); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(node.Text())
}
