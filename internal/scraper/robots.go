package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// Robots gates fallback fetches on the target host's robots.txt. The scrape
// service handles its own compliance; this only guards pages we fetch
// ourselves.
type Robots struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.RWMutex
	cache   map[string]*robotstxt.RobotsData
}

// NewRobots creates a Robots gate sharing the given fetcher.
func NewRobots(fetcher *Fetcher, logger *slog.Logger) *Robots {
	if logger == nil {
		logger = slog.Default()
	}
	return &Robots{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed determines if the given URL is allowed by the host's robots.txt
// for the provided User-Agent. An unreachable robots.txt defaults to allow.
func (r *Robots) IsAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	host := u.Scheme + "://" + u.Host

	data, err := r.getOrFetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "err", err)
		return true, nil
	}
	if data == nil {
		return true, nil
	}

	group := data.FindGroup(userAgent)
	return group.Test(u.Path), nil
}

func (r *Robots) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, exists := r.cache[host]
	r.mu.RUnlock()
	if exists {
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check after acquiring the write lock
	if data, exists = r.cache[host]; exists {
		return data, nil
	}

	res, err := r.fetcher.Fetch(ctx, host+"/robots.txt")
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, fmt.Errorf("robots.txt fetch: %s", res.Error)
	}

	parsed, err := robotstxt.FromStatusAndBytes(res.StatusCode, res.Body)
	if err != nil {
		return nil, fmt.Errorf("robots.txt parse: %w", err)
	}

	r.cache[host] = parsed
	return parsed, nil
}
