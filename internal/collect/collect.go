// Package collect turns one candidate URL into one hotel record. It never
// drops an item: structured extraction degrades to a direct page fetch, and
// that degrades to a record built from the URL string alone.
package collect

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/roost/internal/discover"
	"github.com/FranksOps/roost/internal/extract"
	"github.com/FranksOps/roost/internal/metrics"
	"github.com/FranksOps/roost/internal/record"
	"github.com/FranksOps/roost/internal/scraper"
	"github.com/FranksOps/roost/pkg/firecrawl"
	"github.com/FranksOps/roost/pkg/retry"
)

// ScrapeService is the narrow contract to the scrape/extraction API.
type ScrapeService interface {
	Scrape(ctx context.Context, url string, opts firecrawl.ScrapeOptions) (*firecrawl.ScrapeResponse, error)
}

// PageFetcher is the optional direct-fetch fallback HTML source.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scraper.Result, error)
}

// RobotsGate decides whether a fallback fetch may touch a URL.
type RobotsGate interface {
	IsAllowed(ctx context.Context, url, userAgent string) (bool, error)
}

// extractionSchema is the field schema sent to the scrape service.
var extractionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":        map[string]any{"type": "string", "description": "Name of the hotel"},
		"address":     map[string]any{"type": "string", "description": "Address of the hotel"},
		"price":       map[string]any{"type": "string", "description": "Price per night"},
		"description": map[string]any{"type": "string", "description": "Brief description of the hotel"},
	},
}

const extractionPrompt = "Extract the following details from the page: hotel name, address, " +
	"price per night, and a brief description. Format the output as a JSON object with keys: " +
	"name, address, price, description."

// Config tunes a Collector.
type Config struct {
	// AppendStayDates adds checkin/checkout query params (30 days out, one
	// night) to scraped URLs that carry no query, which coaxes booking pages
	// into rendering a price.
	AppendStayDates bool
	// UserAgent is presented to the robots gate for fallback fetches.
	UserAgent string
}

// Collector builds one record per candidate. Only retry exhaustion is ever
// returned as an error; every other failure becomes a degraded record.
type Collector struct {
	service   ScrapeService
	validator *extract.Validator
	retry     *retry.Policy
	fallback  PageFetcher // optional
	robots    RobotsGate  // optional
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Collector. fallback and robots may be nil; without a
// fallback fetcher a failed scrape degrades straight to a URL-derived record.
func New(service ScrapeService, validator *extract.Validator, policy *retry.Policy, fallback PageFetcher, robots RobotsGate, cfg Config, logger *slog.Logger) *Collector {
	if policy == nil {
		policy = retry.New(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "roost"
	}
	return &Collector{
		service:   service,
		validator: validator,
		retry:     policy,
		fallback:  fallback,
		robots:    robots,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetNow overrides the clock. Tests only.
func (c *Collector) SetNow(now func() time.Time) { c.now = now }

// Collect produces a record for the candidate. The returned error is non-nil
// only when the scrape service kept rate limiting past the retry ceiling;
// callers may skip the item and continue. Every other path yields a record:
// the URL invariant always holds and every field is a value or a sentinel.
func (c *Collector) Collect(ctx context.Context, cand discover.Candidate) (record.HotelRecord, error) {
	seedName := strings.TrimSpace(cand.Name)
	if seedName == "" {
		seedName = NameFromURL(cand.URL)
	}

	start := time.Now()
	resp, err := retry.DoValue(ctx, c.retry, func() (*firecrawl.ScrapeResponse, error) {
		return c.service.Scrape(ctx, c.scrapeURL(cand.URL), firecrawl.ScrapeOptions{
			Formats: []string{"extract", "html"},
			Schema:  extractionSchema,
			Prompt:  extractionPrompt,
		})
	})
	metrics.RecordServiceCall("firecrawl", time.Since(start), err)

	if err == nil {
		if rec, ok := c.fromScrape(cand, seedName, resp); ok {
			return rec, nil
		}
		// Missing extraction payload counts as a service failure.
		err = errors.New("scrape response carried no extraction payload")
	}

	if errors.Is(err, retry.ErrExhausted) {
		return record.HotelRecord{}, err
	}

	c.logger.Warn("scrape failed, degrading", "url", cand.URL, "err", err)

	if rec, ok := c.fromFallbackFetch(ctx, cand, seedName); ok {
		return rec, nil
	}

	return c.degraded(cand, seedName), nil
}

// fromScrape assembles a record from a structured scrape response.
func (c *Collector) fromScrape(cand discover.Candidate, seedName string, resp *firecrawl.ScrapeResponse) (record.HotelRecord, bool) {
	if _, ok := resp.Extract(); !ok {
		return record.HotelRecord{}, false
	}

	draft := extract.Draft{
		Name:        resp.ExtractString("name"),
		Address:     resp.ExtractString("address"),
		Price:       resp.ExtractString("price"),
		Description: resp.ExtractString("description"),
	}
	if draft.Name == "" {
		draft.Name = resp.Title()
	}
	if draft.Description == "" {
		draft.Description = resp.Description()
	}

	rec := c.validator.Repair(draft, seedName, resp.HTML())
	c.finish(&rec, cand.URL, record.SourceExtract)
	return rec, true
}

// fromFallbackFetch fetches the page directly and runs the heuristics over
// the raw HTML. Returns false when no fallback is configured, robots forbids
// the URL, or the fetch yields no usable content.
func (c *Collector) fromFallbackFetch(ctx context.Context, cand discover.Candidate, seedName string) (record.HotelRecord, bool) {
	if c.fallback == nil {
		return record.HotelRecord{}, false
	}

	if c.robots != nil {
		allowed, err := c.robots.IsAllowed(ctx, cand.URL, c.cfg.UserAgent)
		if err != nil || !allowed {
			c.logger.Debug("fallback fetch not permitted", "url", cand.URL, "err", err)
			return record.HotelRecord{}, false
		}
	}

	res, err := c.fallback.Fetch(ctx, cand.URL)
	if err != nil || !res.OK() || len(res.Body) == 0 {
		if res != nil && res.Blocked {
			c.logger.Warn("fallback fetch blocked", "url", cand.URL, "src", res.BlockSrc)
		}
		return record.HotelRecord{}, false
	}

	rec := c.validator.Repair(extract.Draft{}, seedName, string(res.Body))
	c.finish(&rec, cand.URL, record.SourceFallback)
	return rec, true
}

// degraded builds the minimal record promised by the contract: name derived
// from the URL, every other field the fetch-error sentinel.
func (c *Collector) degraded(cand discover.Candidate, seedName string) record.HotelRecord {
	rec := record.HotelRecord{
		Name:        seedName,
		Address:     record.FetchError(),
		Price:       record.FetchError(),
		Description: record.FetchError(),
	}
	c.finish(&rec, cand.URL, record.SourceDegraded)
	return rec
}

func (c *Collector) finish(rec *record.HotelRecord, url, source string) {
	rec.ID = uuid.New().String()
	rec.URL = url
	rec.Source = source
	rec.CollectedAt = c.now().UTC()
	metrics.RecordsTotal.WithLabelValues(source).Inc()
}

// scrapeURL decorates the target with stay dates when configured and the URL
// has no query string already.
func (c *Collector) scrapeURL(raw string) string {
	if !c.cfg.AppendStayDates || strings.Contains(raw, "?") {
		return raw
	}
	checkin := c.now().AddDate(0, 0, 30).Format("2006-01-02")
	checkout := c.now().AddDate(0, 0, 31).Format("2006-01-02")
	return raw + "?checkin=" + checkin + "&checkout=" + checkout + "&group_adults=2&no_rooms=1&group_children=0"
}

var wordSeparators = regexp.MustCompile(`[-_]+`)

// NameFromURL derives a best-effort hotel name from a URL's trailing path
// segment: strip the extension, turn separators into spaces, title-case.
// Example: .../the-plaza.html becomes "The Plaza".
func NameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err == nil && u.Path != "" {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		last := segments[len(segments)-1]
		last = strings.SplitN(last, ".", 2)[0]
		last = wordSeparators.ReplaceAllString(last, " ")

		words := strings.Fields(last)
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
		if len(words) > 0 {
			return strings.Join(words, " ")
		}
	}

	if err == nil && u.Host != "" {
		return "Hotel from " + strings.TrimPrefix(u.Host, "www.")
	}
	return "Unknown Hotel"
}
