package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"
)

// Sitemap discovers page URLs from a site's sitemap.xml. The discovery chain
// tries it after the crawl service comes back empty, before resorting to
// raw-text scanning.
type Sitemap struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewSitemap initializes a Sitemap source sharing the given fetcher.
func NewSitemap(fetcher *Fetcher, logger *slog.Logger) *Sitemap {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sitemap{fetcher: fetcher, logger: logger}
}

// Fetch retrieves a sitemap XML or sitemap index and extracts all URLs.
// For an index, one level of nested sitemaps is followed.
func (s *Sitemap) Fetch(ctx context.Context, sitemapURL string) ([]string, error) {
	s.logger.Debug("fetching sitemap", "url", sitemapURL)

	result, err := s.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("fetch error: %s", result.Error)
	}
	if result.StatusCode >= 400 {
		return nil, fmt.Errorf("bad status code: %d", result.StatusCode)
	}

	var urls []string
	err = sitemap.Parse(bytes.NewReader(result.Body), func(e sitemap.Entry) error {
		urls = append(urls, e.GetLocation())
		return nil
	})

	if err != nil || len(urls) == 0 {
		// Possibly a sitemap index rather than a flat sitemap
		var nested []string
		indexErr := sitemap.ParseIndex(bytes.NewReader(result.Body), func(e sitemap.IndexEntry) error {
			nested = append(nested, e.GetLocation())
			return nil
		})
		if indexErr != nil {
			return nil, fmt.Errorf("sitemap parse failed: %w", indexErr)
		}

		for _, nestedURL := range nested {
			nestedResult, err := s.fetcher.Fetch(ctx, nestedURL)
			if err != nil || nestedResult.Error != "" || nestedResult.StatusCode >= 400 {
				s.logger.Debug("nested sitemap fetch failed", "url", nestedURL)
				continue
			}
			_ = sitemap.Parse(bytes.NewReader(nestedResult.Body), func(e sitemap.Entry) error {
				urls = append(urls, e.GetLocation())
				return nil
			})
		}
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("sitemap at %s yielded no URLs", sitemapURL)
	}

	s.logger.Debug("sitemap parsed", "url", sitemapURL, "count", len(urls))
	return urls, nil
}
