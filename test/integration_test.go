//go:build integration

package test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/roost/internal/collect"
	"github.com/FranksOps/roost/internal/discover"
	"github.com/FranksOps/roost/internal/extract"
	"github.com/FranksOps/roost/internal/pipeline"
	"github.com/FranksOps/roost/internal/record"
	"github.com/FranksOps/roost/internal/storage"
	"github.com/FranksOps/roost/internal/storage/jsonbackend"
	"github.com/FranksOps/roost/pkg/firecrawl"
	"github.com/FranksOps/roost/pkg/retry"
)

// fakeScrapeAPI emulates the crawl/scrape service: the crawl returns two
// hotel pages, the first scrape succeeds with a structured payload, and the
// second keeps rate limiting until the retry budget is gone.
func fakeScrapeAPI(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	wrapped := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		mux.ServeHTTP(w, r)
	})
	mux.HandleFunc("/crawl", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pages": []map[string]string{
				{"url": "https://www.booking.com/hotel/us/the-plaza.html"},
				{"url": "https://www.booking.com/hotel/us/throttled-inn.html"},
				{"url": "https://www.booking.com/flights/deal"},
			},
		})
	})
	mux.HandleFunc("/scrape", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			URL string `json:"url"`
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)

		if payload.URL == "" {
			http.Error(w, "missing url", http.StatusBadRequest)
			return
		}
		if strings.Contains(payload.URL, "throttled-inn") {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": "rate limit exceeded"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"extract": map[string]string{
				"name":        "The Plaza Hotel",
				"address":     "768 5th Ave, New York",
				"price":       "$795",
				"description": "A landmark on Fifth Avenue.",
			},
			"html": "<html></html>",
		})
	})

	server := httptest.NewServer(wrapped)
	t.Cleanup(server.Close)
	return server
}

func TestIntegration_FullRun(t *testing.T) {
	api := fakeScrapeAPI(t, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fc, err := firecrawl.New(firecrawl.Config{APIKey: "test", BaseURL: api.URL}, logger)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	policy := retry.New(2, time.Millisecond)
	policy.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })

	validator := extract.NewValidator(extract.NewExtractor(logger), logger)
	collector := collect.New(fc, validator, policy, nil, nil, collect.Config{}, logger)
	discoverer := discover.New(fc, nil, nil, policy, discover.Config{}, logger)

	archive, err := jsonbackend.New(filepath.Join(t.TempDir(), "run.jsonl"))
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer archive.Close()

	p := pipeline.New(discoverer, collector, archive, pipeline.Config{
		MaxURLs:  3,
		DelayMin: time.Millisecond,
		DelayMax: 2 * time.Millisecond,
	}, logger)

	records, err := p.Run(context.Background(), "https://www.booking.com", "New York", 3, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// The non-hotel URL is filtered at discovery; the throttled one is
	// skipped after retry exhaustion.
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %+v", len(records), records)
	}

	rec := records[0]
	if rec.Name != "The Plaza Hotel" {
		t.Errorf("Name = %q", rec.Name)
	}
	if rec.URL != "https://www.booking.com/hotel/us/the-plaza.html" {
		t.Errorf("URL = %q", rec.URL)
	}
	if !rec.Address.OK() || !rec.Price.OK() || !rec.Description.OK() {
		t.Errorf("expected all fields populated: %+v", rec)
	}
	if rec.Source != record.SourceExtract {
		t.Errorf("Source = %q", rec.Source)
	}

	// The archive saw the same record.
	archived, err := archive.Query(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("archive query failed: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != rec.ID {
		t.Fatalf("archive mismatch: %+v", archived)
	}
}

func TestIntegration_PreloadedBypassesServices(t *testing.T) {
	var hits atomic.Int64
	api := fakeScrapeAPI(t, &hits)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fc, err := firecrawl.New(firecrawl.Config{APIKey: "test", BaseURL: api.URL}, logger)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	policy := retry.New(2, time.Millisecond)
	policy.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })

	validator := extract.NewValidator(extract.NewExtractor(logger), logger)
	collector := collect.New(fc, validator, policy, nil, nil, collect.Config{}, logger)
	discoverer := discover.New(fc, nil, nil, policy, discover.Config{}, logger)

	archive, err := jsonbackend.New(filepath.Join(t.TempDir(), "run.jsonl"))
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer archive.Close()

	p := pipeline.New(discoverer, collector, archive, pipeline.Config{}, logger)

	preloaded := []record.HotelRecord{
		{
			ID:     "pre-1",
			Name:   "Hotel de Crillon",
			URL:    "https://www.booking.com/hotel/fr/de-crillon.html",
			Source: record.SourcePreloaded,
		},
	}

	records, err := p.Run(context.Background(), "https://www.booking.com", "Paris", 3, preloaded)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != "pre-1" {
		t.Fatalf("expected the preloaded record back, got %+v", records)
	}

	if n := hits.Load(); n != 0 {
		t.Errorf("expected no service calls for a preloaded run, got %d", n)
	}

	archived, err := archive.Query(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("archive query failed: %v", err)
	}
	if len(archived) != 0 {
		t.Errorf("preloaded records should not be archived, got %d", len(archived))
	}
}
