package firecrawl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FranksOps/roost/pkg/httpclient"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{APIKey: "test-key", BaseURL: server.URL, PollInitialDelay: time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c, server
}

func TestCrawl_Synchronous(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crawl" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		_, _ = w.Write([]byte(`{"pages": [{"url": "https://x.test/hotel/a"}]}`))
	}))

	resp, err := c.Crawl(context.Background(), "https://x.test", CrawlOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Pages) != 1 || resp.Pages[0].URL != "https://x.test/hotel/a" {
		t.Errorf("unexpected pages %+v", resp.Pages)
	}
	if len(resp.Raw) == 0 {
		t.Errorf("raw body must be preserved")
	}
}

func TestCrawl_JobPolling(t *testing.T) {
	polls := 0
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"jobId": "job-1", "status": "queued"}`))
		case r.URL.Path == "/crawl/job-1":
			polls++
			if polls < 3 {
				_, _ = w.Write([]byte(`{"status": "processing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status": "completed", "pages": [{"url": "https://x.test/hotel/b"}]}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	resp, err := c.Crawl(context.Background(), "https://x.test", CrawlOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if polls != 3 {
		t.Errorf("expected 3 polls, got %d", polls)
	}
	if len(resp.Pages) != 1 {
		t.Errorf("unexpected pages %+v", resp.Pages)
	}
}

func TestCrawl_JobFailed(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"jobId": "job-2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status": "failed", "error": "blocked"}`))
	}))

	if _, err := c.Crawl(context.Background(), "https://x.test", CrawlOptions{}); err == nil {
		t.Fatalf("expected failure from failed job")
	}
}

func TestCrawl_RateLimitedStatus(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limit exceeded"}`))
	}))

	_, err := c.Crawl(context.Background(), "https://x.test", CrawlOptions{})
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected a StatusError, got %v", err)
	}
	if !se.RateLimited() {
		t.Errorf("429 must be reported as rate limited")
	}
}

func TestScrape_TopLevelShape(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["url"] != "https://x.test/hotel" {
			t.Errorf("unexpected scrape url %v", payload["url"])
		}
		if _, ok := payload["extract"]; !ok {
			t.Errorf("extract options missing from payload")
		}
		_, _ = w.Write([]byte(`{"extract": {"name": "The Plaza"}, "html": "<html></html>"}`))
	}))

	resp, err := c.Scrape(context.Background(), "https://x.test/hotel", ScrapeOptions{
		Formats: []string{"extract", "html"},
		Schema:  map[string]any{"type": "object"},
		Prompt:  "extract hotel fields",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := resp.ExtractString("name"); got != "The Plaza" {
		t.Errorf("name = %q", got)
	}
	if resp.HTML() != "<html></html>" {
		t.Errorf("html = %q", resp.HTML())
	}
}

func TestParseScrapeResponse_NestedData(t *testing.T) {
	resp, err := ParseScrapeResponse([]byte(`{"data": {"extract": {"price": "$250"}, "markdown": "# Hotel"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := resp.ExtractString("price"); got != "$250" {
		t.Errorf("price = %q", got)
	}
	// No html or content: markdown is the best available page text.
	if resp.HTML() != "# Hotel" {
		t.Errorf("content fallback = %q", resp.HTML())
	}
}

func TestExtractString_NonStringValues(t *testing.T) {
	resp, err := ParseScrapeResponse([]byte(`{"extract": {"price": 250, "name": null}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.ExtractString("price"); got != "250" {
		t.Errorf("numeric values must render as strings, got %q", got)
	}
	if got := resp.ExtractString("name"); got != "" {
		t.Errorf("null must render empty, got %q", got)
	}
	if got := resp.ExtractString("missing"); got != "" {
		t.Errorf("missing key must render empty, got %q", got)
	}
}
