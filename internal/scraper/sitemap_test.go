package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/FranksOps/roost/internal/fingerprint"
)

const flatSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://www.booking.com/hotel/us/the-plaza.html</loc></url>
  <url><loc>https://www.booking.com/about</loc></url>
</urlset>`

func TestSitemap_Flat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(flatSitemap))
	}))
	defer server.Close()

	f, err := NewFetcher(FetchConfig{Fingerprint: fingerprint.ProfileGo})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	defer f.Close()

	s := NewSitemap(f, nil)
	urls, err := s.Fetch(context.Background(), server.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 URLs, got %d", len(urls))
	}
	if urls[0] != "https://www.booking.com/hotel/us/the-plaza.html" {
		t.Errorf("unexpected first URL %s", urls[0])
	}
}

func TestSitemap_Index(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/hotels.xml</loc></sitemap>
</sitemapindex>`, server.URL)
		case "/hotels.xml":
			_, _ = w.Write([]byte(flatSitemap))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f, err := NewFetcher(FetchConfig{Fingerprint: fingerprint.ProfileGo})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	defer f.Close()

	s := NewSitemap(f, nil)
	urls, err := s.Fetch(context.Background(), server.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 URLs from the nested sitemap, got %d", len(urls))
	}
}

func TestSitemap_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`))
	}))
	defer server.Close()

	f, err := NewFetcher(FetchConfig{Fingerprint: fingerprint.ProfileGo})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	defer f.Close()

	s := NewSitemap(f, nil)
	if _, err := s.Fetch(context.Background(), server.URL+"/sitemap.xml"); err == nil {
		t.Fatalf("expected an error for an empty sitemap")
	}
}

func TestSitemap_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f, err := NewFetcher(FetchConfig{Fingerprint: fingerprint.ProfileGo})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	defer f.Close()

	s := NewSitemap(f, nil)
	if _, err := s.Fetch(context.Background(), server.URL+"/sitemap.xml"); err == nil {
		t.Fatalf("expected an error for a 404 sitemap")
	}
}
