// Package scraper fetches hotel pages directly when the scrape service has
// failed. It is the last HTML source before a record degrades to URL-derived
// data, so it borrows the evasion toolkit: TLS fingerprinting, User-Agent
// rotation, rate limiting, and block-page detection.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/FranksOps/roost/internal/bypass"
	"github.com/FranksOps/roost/internal/fingerprint"
	"github.com/FranksOps/roost/internal/metrics"
	"github.com/FranksOps/roost/pkg/httpclient"
	"github.com/FranksOps/roost/pkg/ratelimit"
	"github.com/FranksOps/roost/pkg/useragent"
	"github.com/google/uuid"
)

// Result captures one direct page fetch. Failures before an HTTP response are
// recorded in Error rather than returned, so a fetch always yields a Result.
type Result struct {
	ID         string
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Blocked    bool
	BlockSrc   string // e.g. "Cloudflare", "Akamai", "DataDome", "PerimeterX"
	FetchedAt  time.Time
	Error      string
}

// OK reports whether the fetch yielded usable page content.
func (r *Result) OK() bool {
	return r.Error == "" && !r.Blocked && r.StatusCode > 0 && r.StatusCode < 400
}

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
}

// Fetcher performs single URL fetches using the configured evasion strategies.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
}

// NewFetcher initializes a new Fetcher. Holding a single client across
// requests lets cookie jars (if configured) persist for the Fetcher lifetime.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, http.ProxyFromEnvironment)
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Close releases the fetcher's rate limiter resources.
func (f *Fetcher) Close() {
	if f.config.Limiter != nil {
		f.config.Limiter.Stop()
	}
}

// Fetch executes a GET request to the target URL, tracking the duration and
// running the response through block detection.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Result, error) {
	start := time.Now()

	result := &Result{
		ID:        uuid.New().String(),
		URL:       targetURL,
		FetchedAt: start.UTC(),
	}

	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx); err != nil {
			result.Error = fmt.Sprintf("rate limiter failed: %v", err)
			return result, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		result.Duration = time.Since(start)
		return result, nil
	}

	req.Header.Set("User-Agent", f.config.UAPool.GetSequential())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Duration = time.Since(start)
		metrics.RecordFallbackFetch(0, false, true)
		return result, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read body: %v", err)
	}

	result.StatusCode = resp.StatusCode
	result.Headers = resp.Header
	result.Body = body
	result.Duration = time.Since(start)

	result.Blocked, result.BlockSrc = bypass.Analyze(result.StatusCode, result.Headers, result.Body, bypass.DefaultDetectors())

	metrics.RecordFallbackFetch(result.StatusCode, result.Blocked, false)
	return result, nil
}
