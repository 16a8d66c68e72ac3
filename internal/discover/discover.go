// Package discover obtains candidate hotel URLs through a chain of degrading
// fallbacks: crawl the seed page, read the seed site's sitemap, scan the raw
// crawl response for URL-shaped text, ask a language model to propose
// listings, and finally fall back to a fixed list of well-known hotels. Each
// stage runs only when every stage before it produced zero candidates.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/FranksOps/roost/internal/metrics"
	"github.com/FranksOps/roost/pkg/firecrawl"
	"github.com/FranksOps/roost/pkg/retry"
)

// Candidate is one discovered hotel URL, with the name and location when the
// source supplied them. Candidates are not deduplicated.
type Candidate struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"url"`
	Location string `json:"location,omitempty"`
}

// CrawlService is the narrow contract to the crawl API.
type CrawlService interface {
	Crawl(ctx context.Context, url string, opts firecrawl.CrawlOptions) (*firecrawl.CrawlResponse, error)
}

// Completer is the narrow contract to the LLM completion endpoint.
type Completer interface {
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// SitemapSource lists page URLs from a site's sitemap.
type SitemapSource interface {
	Fetch(ctx context.Context, url string) ([]string, error)
}

// Config tunes discovery.
type Config struct {
	// Keyword marks a URL as a hotel page via case-insensitive substring
	// match. Default "hotel".
	Keyword string
	// DisableFixed turns off the final hard-coded stage, allowing discovery
	// to return an empty set.
	DisableFixed bool
}

// Discoverer runs the stage chain. It keeps no state between calls.
type Discoverer struct {
	crawler   CrawlService
	completer Completer
	sitemaps  SitemapSource // optional; stage skipped when nil
	retry     *retry.Policy
	cfg       Config
	logger    *slog.Logger
}

// New creates a Discoverer. crawler and completer may be nil, in which case
// their stages always yield zero results.
func New(crawler CrawlService, completer Completer, sitemaps SitemapSource, policy *retry.Policy, cfg Config, logger *slog.Logger) *Discoverer {
	if cfg.Keyword == "" {
		cfg.Keyword = "hotel"
	}
	if policy == nil {
		policy = retry.New(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{
		crawler:   crawler,
		completer: completer,
		sitemaps:  sitemaps,
		retry:     policy,
		cfg:       cfg,
		logger:    logger,
	}
}

// stage is one fallback attempt; zero results (or an error, which counts as
// zero) advances the chain.
type stage struct {
	name string
	run  func(ctx context.Context) ([]Candidate, error)
}

// Discover returns candidate hotel URLs for the location. It never fails: a
// stage error is logged and treated as zero results, and with the fixed stage
// disabled the worst case is an empty slice.
func (d *Discoverer) Discover(ctx context.Context, seedURL, location string, count int) []Candidate {
	// The raw crawl body is shared between the crawl stage and the raw-scan
	// stage, so a crawl whose structure we fail to parse can still be mined
	// for URL-shaped text.
	var crawlRaw []byte

	stages := []stage{
		{"crawl", func(ctx context.Context) ([]Candidate, error) {
			res, raw, err := d.crawlStage(ctx, seedURL)
			crawlRaw = raw
			return res, err
		}},
		{"sitemap", func(ctx context.Context) ([]Candidate, error) {
			return d.sitemapStage(ctx, seedURL)
		}},
		{"raw-scan", func(ctx context.Context) ([]Candidate, error) {
			return d.rawScanStage(crawlRaw), nil
		}},
		{"generate", func(ctx context.Context) ([]Candidate, error) {
			return d.generateStage(ctx, location, count)
		}},
		{"fixed", func(ctx context.Context) ([]Candidate, error) {
			if d.cfg.DisableFixed {
				return nil, nil
			}
			return fixedCandidates(), nil
		}},
	}

	for _, st := range stages {
		cands, err := st.run(ctx)
		if err != nil {
			d.logger.Warn("discovery stage failed", "stage", st.name, "err", err)
			continue
		}
		if len(cands) > 0 {
			d.logger.Info("discovery stage produced candidates", "stage", st.name, "count", len(cands))
			metrics.DiscoveryStageHits.WithLabelValues(st.name).Inc()
			return cands
		}
		d.logger.Debug("discovery stage empty", "stage", st.name)
	}

	d.logger.Warn("all discovery stages empty", "seed", seedURL, "location", location)
	return nil
}

// matchesKeyword applies the hotel-path predicate.
func (d *Discoverer) matchesKeyword(url string) bool {
	return strings.Contains(strings.ToLower(url), strings.ToLower(d.cfg.Keyword))
}

// crawlStage crawls the seed page and probes the structured response for
// page URLs. The raw body is returned for the raw-scan stage regardless of
// parse success.
func (d *Discoverer) crawlStage(ctx context.Context, seedURL string) ([]Candidate, []byte, error) {
	if d.crawler == nil {
		return nil, nil, nil
	}

	start := time.Now()
	resp, err := retry.DoValue(ctx, d.retry, func() (*firecrawl.CrawlResponse, error) {
		return d.crawler.Crawl(ctx, seedURL, firecrawl.CrawlOptions{})
	})
	metrics.RecordServiceCall("firecrawl", time.Since(start), err)
	if err != nil {
		return nil, nil, fmt.Errorf("crawl of %s: %w", seedURL, err)
	}

	var cands []Candidate

	// Standard shape: pages[].url
	for _, p := range resp.Pages {
		if p.URL != "" && d.matchesKeyword(p.URL) {
			cands = append(cands, Candidate{URL: p.URL})
		}
	}

	// Alternative shapes under "data": a page list, or {urls: [...]}
	if len(cands) == 0 && len(resp.Data) > 0 {
		var dataPages []firecrawl.Page
		if err := json.Unmarshal(resp.Data, &dataPages); err == nil {
			for _, p := range dataPages {
				if p.URL != "" && d.matchesKeyword(p.URL) {
					cands = append(cands, Candidate{URL: p.URL})
				}
			}
		}

		if len(cands) == 0 {
			var dataURLs struct {
				URLs []string `json:"urls"`
			}
			if err := json.Unmarshal(resp.Data, &dataURLs); err == nil {
				for _, u := range dataURLs.URLs {
					if d.matchesKeyword(u) {
						cands = append(cands, Candidate{URL: u})
					}
				}
			}
		}
	}

	return cands, resp.Raw, nil
}

// sitemapStage reads <seed>/sitemap.xml and filters by the keyword predicate.
func (d *Discoverer) sitemapStage(ctx context.Context, seedURL string) ([]Candidate, error) {
	if d.sitemaps == nil {
		return nil, nil
	}

	urls, err := d.sitemaps.Fetch(ctx, strings.TrimRight(seedURL, "/")+"/sitemap.xml")
	if err != nil {
		return nil, err
	}

	var cands []Candidate
	for _, u := range urls {
		if d.matchesKeyword(u) {
			cands = append(cands, Candidate{URL: u})
		}
	}
	return cands, nil
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'\\]+`)

// rawScanStage mines the serialized crawl response for URL-shaped substrings.
func (d *Discoverer) rawScanStage(raw []byte) []Candidate {
	if len(raw) == 0 {
		return nil
	}

	var cands []Candidate
	for _, u := range urlPattern.FindAllString(string(raw), -1) {
		if d.matchesKeyword(u) {
			cands = append(cands, Candidate{URL: u})
		}
	}
	return cands
}

const generateSystemPrompt = "You are a travel assistant that returns hotel data in JSON format."

// generateStage asks the completion service to propose hotel listings.
// A generated URL failing structural validation is rebuilt from the hotel
// name and country; unparseable responses fail the stage.
func (d *Discoverer) generateStage(ctx context.Context, location string, count int) ([]Candidate, error) {
	if d.completer == nil {
		return nil, nil
	}
	if location == "" {
		location = "worldwide"
	}
	if count <= 0 {
		count = 10
	}

	userPrompt := fmt.Sprintf(`List %d well-known hotels in %s.
For each hotel, provide the hotel name, its booking URL, and its location (city and country).
Return a JSON object of the form {"hotels": [{"name": "...", "url": "...", "location": "..."}, ...]}.
Make sure all URLs follow the pattern: %s<country_code>/<hotel-name>.html`, count, location, listingPrefix)

	start := time.Now()
	content, err := retry.DoValue(ctx, d.retry, func() (string, error) {
		return d.completer.Complete(ctx, generateSystemPrompt, userPrompt, true)
	})
	metrics.RecordServiceCall("openai", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("hotel generation: %w", err)
	}

	generated, err := parseGenerated(content)
	if err != nil {
		return nil, err
	}

	var cands []Candidate
	for _, c := range generated {
		if !ValidListingURL(c.URL) {
			rebuilt := BuildListingURL(c.Name, c.Location)
			if rebuilt == "" {
				d.logger.Debug("dropping generated entry with no usable URL", "name", c.Name)
				continue
			}
			d.logger.Debug("rebuilt generated URL", "name", c.Name, "url", rebuilt)
			c.URL = rebuilt
		}
		cands = append(cands, c)
		if len(cands) >= count {
			break
		}
	}
	return cands, nil
}

// parseGenerated accepts the JSON shapes models actually return: an object
// with a "hotels" array, a bare array, or a name-to-URL map.
func parseGenerated(content string) ([]Candidate, error) {
	content = strings.TrimSpace(content)

	var wrapped struct {
		Hotels []Candidate `json:"hotels"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && len(wrapped.Hotels) > 0 {
		return wrapped.Hotels, nil
	}

	var list []Candidate
	if err := json.Unmarshal([]byte(content), &list); err == nil && len(list) > 0 {
		return list, nil
	}

	var byName map[string]string
	if err := json.Unmarshal([]byte(content), &byName); err == nil && len(byName) > 0 {
		cands := make([]Candidate, 0, len(byName))
		for name, url := range byName {
			cands = append(cands, Candidate{Name: name, URL: url})
		}
		return cands, nil
	}

	return nil, fmt.Errorf("generation response is not a recognized JSON shape")
}

// fixedCandidates is the last-resort list of well-known hotels.
func fixedCandidates() []Candidate {
	return []Candidate{
		{Name: "The Plaza", URL: listingPrefix + "us/the-plaza.html", Location: "New York, USA"},
		{Name: "Waldorf Astoria", URL: listingPrefix + "us/waldorf-astoria-new-york.html", Location: "New York, USA"},
		{Name: "The Ritz London", URL: listingPrefix + "gb/the-ritz-london.html", Location: "London, UK"},
		{Name: "Marina Bay Sands", URL: listingPrefix + "sg/marina-bay-sands.html", Location: "Singapore"},
		{Name: "Burj Al Arab Jumeirah", URL: listingPrefix + "ae/burj-al-arab.html", Location: "Dubai, UAE"},
	}
}
