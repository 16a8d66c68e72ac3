// Package firecrawl is a minimal client for the crawl/scrape API. The service
// response shapes are loosely typed, so the client keeps the raw body around
// and exposes probing helpers instead of a rigid schema.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/roost/pkg/httpclient"
)

const serviceName = "firecrawl"

// Config sets up a Client.
type Config struct {
	APIKey  string
	BaseURL string // default https://api.firecrawl.dev/v0
	Timeout time.Duration

	// Crawl job polling knobs.
	PollMax          int           // default 20
	PollInitialDelay time.Duration // default 2s, grows 1.5x capped at 10s
}

// Client talks to the crawl/scrape endpoints.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	logger *slog.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client. A missing API key is not an error here; the service
// will reject unauthenticated calls and that surfaces as a StatusError.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.firecrawl.dev/v0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PollMax <= 0 {
		cfg.PollMax = 20
	}
	if cfg.PollInitialDelay <= 0 {
		cfg.PollInitialDelay = 2 * time.Second
	}

	hc, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout, MaxRedirects: 5})
	if err != nil {
		return nil, fmt.Errorf("firecrawl client setup: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		http:   hc,
		logger: logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}, nil
}

// Page is one crawled page reference in a crawl response.
type Page struct {
	URL string `json:"url"`
}

// CrawlResponse is the loosely typed result of a finished crawl. Raw holds
// the exact response body so callers can fall back to raw-text scanning when
// none of the structured shapes match.
type CrawlResponse struct {
	Raw    []byte          `json:"-"`
	Status string          `json:"status"`
	JobID  string          `json:"jobId"`
	Err    string          `json:"error"`
	Pages  []Page          `json:"pages"`
	Data   json.RawMessage `json:"data"`
}

// CrawlOptions tunes a crawl request.
type CrawlOptions struct {
	Limit int `json:"limit,omitempty"`
}

// Crawl starts a crawl of the given URL and waits for it to finish. Some
// deployments answer synchronously, others return a job ID to poll; both are
// handled.
func (c *Client) Crawl(ctx context.Context, url string, opts CrawlOptions) (*CrawlResponse, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	payload := map[string]any{"url": url, "options": opts}
	body, err := c.post(ctx, "/crawl", payload)
	if err != nil {
		return nil, err
	}

	resp, err := parseCrawlBody(body)
	if err != nil {
		return nil, err
	}

	if resp.JobID == "" {
		// Synchronous response, done.
		return resp, nil
	}

	c.logger.Debug("crawl job started", "job_id", resp.JobID, "url", url)
	return c.waitForJob(ctx, resp.JobID)
}

// waitForJob polls the crawl job until it completes, fails, or the poll
// budget runs out.
func (c *Client) waitForJob(ctx context.Context, jobID string) (*CrawlResponse, error) {
	delay := c.cfg.PollInitialDelay

	for i := 0; i < c.cfg.PollMax; i++ {
		body, err := c.get(ctx, "/crawl/"+jobID)
		if err != nil {
			return nil, err
		}

		resp, err := parseCrawlBody(body)
		if err != nil {
			return nil, err
		}

		switch resp.Status {
		case "completed":
			return resp, nil
		case "failed":
			return nil, fmt.Errorf("crawl job %s failed: %s", jobID, resp.Err)
		case "processing", "queued", "":
			c.logger.Debug("crawl job pending", "job_id", jobID, "status", resp.Status, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay = min(delay+delay/2, 10*time.Second)
		default:
			return nil, fmt.Errorf("crawl job %s: unknown status %q", jobID, resp.Status)
		}
	}

	return nil, fmt.Errorf("timed out waiting for crawl job %s", jobID)
}

// ScrapeOptions tunes a scrape request. Schema and Prompt drive the service's
// structured extraction.
type ScrapeOptions struct {
	Formats []string
	Schema  map[string]any
	Prompt  string
}

// ScrapeResponse is the loosely typed result of a scrape. The extraction
// payload and HTML may sit at the top level or under "data" depending on the
// API version, so access goes through the probing methods.
type ScrapeResponse struct {
	Raw []byte

	top scrapeBody
}

type scrapeBody struct {
	Data        json.RawMessage `json:"data"`
	Extract     map[string]any  `json:"extract"`
	HTML        string          `json:"html"`
	Content     string          `json:"content"`
	Markdown    string          `json:"markdown"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
}

// Scrape fetches one page through the service and returns its loosely typed
// response.
func (c *Client) Scrape(ctx context.Context, url string, opts ScrapeOptions) (*ScrapeResponse, error) {
	payload := map[string]any{"url": url}
	if len(opts.Formats) > 0 {
		payload["formats"] = opts.Formats
	}
	if opts.Schema != nil || opts.Prompt != "" {
		payload["extract"] = map[string]any{
			"schema": opts.Schema,
			"prompt": opts.Prompt,
		}
	}

	body, err := c.post(ctx, "/scrape", payload)
	if err != nil {
		return nil, err
	}
	return ParseScrapeResponse(body)
}

// ParseScrapeResponse decodes a raw scrape response body, collapsing the
// nested "data" form into the top level.
func ParseScrapeResponse(body []byte) (*ScrapeResponse, error) {
	resp := &ScrapeResponse{Raw: body}
	if err := json.Unmarshal(body, &resp.top); err != nil {
		return nil, fmt.Errorf("unparseable scrape response: %w", err)
	}
	if resp.top.Extract == nil && resp.top.HTML == "" && len(resp.top.Data) > 0 {
		var nested scrapeBody
		if err := json.Unmarshal(resp.top.Data, &nested); err == nil {
			nested.Data = nil
			resp.top = nested
		}
	}
	return resp, nil
}

// Extract returns the structured extraction payload, if any.
func (r *ScrapeResponse) Extract() (map[string]any, bool) {
	if r.top.Extract == nil {
		return nil, false
	}
	return r.top.Extract, true
}

// ExtractString returns the named extraction field rendered as a string.
func (r *ScrapeResponse) ExtractString(key string) string {
	v, ok := r.top.Extract[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// HTML returns the best available raw page content: html, then content, then
// markdown.
func (r *ScrapeResponse) HTML() string {
	if r.top.HTML != "" {
		return r.top.HTML
	}
	if r.top.Content != "" {
		return r.top.Content
	}
	return r.top.Markdown
}

// Title returns the page title reported by the service, if any.
func (r *ScrapeResponse) Title() string { return r.top.Title }

// Description returns the page description reported by the service, if any.
func (r *ScrapeResponse) Description() string { return r.top.Description }

func parseCrawlBody(body []byte) (*CrawlResponse, error) {
	resp := &CrawlResponse{Raw: body}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, fmt.Errorf("unparseable crawl response: %w", err)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.send(ctx, req)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, req *http.Request) ([]byte, error) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &httpclient.StatusError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}
