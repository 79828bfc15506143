// Package collyextract implements the record extractor using gocolly.
// It reads schema.org JobPosting structured data (JSON-LD) from a
// source's listing pages, following rel=next pagination.
package collyextract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/jobtrackerhq/job-ingest/internal/extract/ratelimit"
	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxPages bounds pagination per run. Zero means the default of 50.
	MaxPages int
}

// Extractor crawls a source's listing pages and yields raw postings.
type Extractor struct {
	cfg     Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	return &Extractor{cfg: cfg, limiter: ratelimit.New(), logger: logger}
}

// Extract starts the crawl in the background and returns an iterator
// over its records.
func (e *Extractor) Extract(ctx context.Context, source ingest.JobSource, maxRecords int) (ingest.RecordIterator, error) {
	if source.BaseURL == "" {
		return nil, &ingest.ExtractionError{Source: source.Name, Err: fmt.Errorf("source has no base url")}
	}
	it := &iterator{
		records: make(chan ingest.RawPosting, 16),
		errc:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go e.crawl(ctx, source, maxRecords, it)
	return it, nil
}

func (e *Extractor) crawl(ctx context.Context, source ingest.JobSource, maxRecords int, it *iterator) {
	defer close(it.records)

	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = !e.cfg.RespectRobots
	collector.SetRequestTimeout(e.cfg.Timeout)
	if source.UserAgent != "" {
		collector.UserAgent = source.UserAgent
	} else if e.cfg.UserAgent != "" {
		collector.UserAgent = e.cfg.UserAgent
	}

	if u, err := url.Parse(source.BaseURL); err == nil && u.Hostname() != "" {
		e.limiter.SetHostEvery(u.Hostname(), source.RateLimit)
	}

	var (
		emitted  int
		pages    int
		fetchErr error
		stopped  bool
	)

	emit := func(rec ingest.RawPosting) bool {
		if stopped || (maxRecords > 0 && emitted >= maxRecords) {
			return false
		}
		select {
		case it.records <- rec:
			emitted++
			return true
		case <-it.done:
			stopped = true
		case <-ctx.Done():
			stopped = true
		}
		return false
	}

	collector.OnRequest(func(r *colly.Request) {
		if stopped || ctx.Err() != nil {
			r.Abort()
			return
		}
		if err := e.limiter.Wait(ctx, r.URL.String()); err != nil {
			r.Abort()
		}
	})

	collector.OnHTML(`script[type="application/ld+json"]`, func(h *colly.HTMLElement) {
		for _, posting := range decodeJobPostings([]byte(h.Text)) {
			rec := toRawPosting(posting, h.Request.URL.String())
			if !emit(rec) {
				return
			}
		}
	})

	collector.OnHTML(`[itemscope][itemtype*="JobPosting"]`, func(h *colly.HTMLElement) {
		rec := microdataToRawPosting(h.DOM, h.Request.URL.String())
		if rec == nil {
			return
		}
		emit(rec)
	})

	collector.OnHTML(`a[rel="next"]`, func(h *colly.HTMLElement) {
		if stopped || pages >= e.cfg.MaxPages {
			return
		}
		if maxRecords > 0 && emitted >= maxRecords {
			return
		}
		pages++
		if err := h.Request.Visit(h.Attr("href")); err != nil {
			e.logger.Debug("pagination visit failed",
				zap.String("source", source.Name),
				zap.String("href", h.Attr("href")),
				zap.Error(err),
			)
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetch %s: %w", r.Request.URL, err)
	})

	if err := collector.Visit(source.BaseURL); err != nil {
		fetchErr = fmt.Errorf("visit %s: %w", source.BaseURL, err)
	}
	collector.Wait()

	if fetchErr != nil && ctx.Err() == nil {
		it.errc <- &ingest.ExtractionError{Source: source.Name, Err: fetchErr}
	}
}

type iterator struct {
	records chan ingest.RawPosting
	errc    chan error
	done    chan struct{}
	once    sync.Once
}

func (it *iterator) Next(ctx context.Context) (ingest.RawPosting, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case rec, ok := <-it.records:
		if !ok {
			select {
			case err := <-it.errc:
				return nil, err
			default:
				return nil, io.EOF
			}
		}
		return rec, nil
	}
}

func (it *iterator) Close() error {
	it.once.Do(func() { close(it.done) })
	return nil
}

// decodeJobPostings tolerates single objects, arrays, and @graph wrappers.
func decodeJobPostings(data []byte) []map[string]any {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil
	}
	var out []map[string]any
	collectJobPostings(root, &out)
	return out
}

func collectJobPostings(node any, out *[]map[string]any) {
	switch v := node.(type) {
	case []any:
		for _, e := range v {
			collectJobPostings(e, out)
		}
	case map[string]any:
		if t, _ := v["@type"].(string); strings.EqualFold(t, "JobPosting") {
			*out = append(*out, v)
			return
		}
		if graph, ok := v["@graph"]; ok {
			collectJobPostings(graph, out)
		}
	}
}

// toRawPosting flattens one JSON-LD JobPosting into the conventional
// raw-record keys.
func toRawPosting(p map[string]any, pageURL string) ingest.RawPosting {
	rec := ingest.RawPosting{}

	url := stringField(p["url"])
	if url == "" {
		url = pageURL
	}
	rec["url"] = url

	externalID := identifier(p["identifier"])
	if externalID == "" {
		externalID = url
	}
	rec["external_id"] = externalID

	setIfPresent(rec, "title", stringField(p["title"]))
	setIfPresent(rec, "description", stringField(p["description"]))
	setIfPresent(rec, "posted_date", stringField(p["datePosted"]))
	setIfPresent(rec, "job_type", employmentType(p["employmentType"]))
	setIfPresent(rec, "location", jobLocation(p["jobLocation"]))
	setIfPresent(rec, "salary", baseSalary(p["baseSalary"]))

	if org, ok := p["hiringOrganization"].(map[string]any); ok {
		setIfPresent(rec, "company_name", stringField(org["name"]))
		setIfPresent(rec, "company_website", stringField(org["sameAs"]))
	}
	if skills := stringField(p["skills"]); skills != "" {
		rec["skills"] = splitList(skills)
	}
	return rec
}

func setIfPresent(rec ingest.RawPosting, key, value string) {
	if value != "" {
		rec[key] = value
	}
}

func stringField(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// identifier handles both plain strings and PropertyValue objects.
func identifier(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case map[string]any:
		return stringField(id["value"])
	default:
		return ""
	}
}

func employmentType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			return stringField(t[0])
		}
	}
	return ""
}

func jobLocation(v any) string {
	locs, ok := v.([]any)
	if !ok {
		locs = []any{v}
	}
	for _, l := range locs {
		place, ok := l.(map[string]any)
		if !ok {
			continue
		}
		addr, ok := place["address"].(map[string]any)
		if !ok {
			continue
		}
		parts := make([]string, 0, 3)
		for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
			if s := stringField(addr[key]); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}
	return ""
}

// baseSalary renders the structured MonetaryAmount as salary text the
// normalizer's parser understands.
func baseSalary(v any) string {
	amount, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	currency := stringField(amount["currency"])
	value, ok := amount["value"].(map[string]any)
	if !ok {
		return ""
	}
	minV, hasMin := numberField(value["minValue"])
	maxV, hasMax := numberField(value["maxValue"])
	if single, ok := numberField(value["value"]); ok && !hasMin {
		minV, hasMin = single, true
	}
	if !hasMin {
		return ""
	}
	unit := strings.ToLower(stringField(value["unitText"]))
	if unit == "" {
		unit = "year"
	}
	var b strings.Builder
	if currency != "" {
		b.WriteString(currency)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "%d", int64(minV))
	if hasMax {
		fmt.Fprintf(&b, " - %d", int64(maxV))
	}
	b.WriteString(" per ")
	b.WriteString(unit)
	return b.String()
}

func numberField(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
