package jsonbackend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/roost/internal/record"
	"github.com/FranksOps/roost/internal/storage"
)

func TestJSONBackend(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "roost.jsonl")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond).UTC()

	rec1 := &record.HotelRecord{
		ID:          "json1",
		Name:        "The Plaza",
		Address:     record.Found("768 5th Ave"),
		Price:       record.Found("$795"),
		Description: record.Found("Landmark hotel."),
		URL:         "https://www.booking.com/hotel/us/the-plaza.html",
		Source:      record.SourceExtract,
		CollectedAt: now.Add(-2 * time.Hour),
	}
	rec2 := &record.HotelRecord{
		ID:          "json2",
		Name:        "Mystery Inn",
		Address:     record.FetchError(),
		Price:       record.FetchError(),
		Description: record.FetchError(),
		URL:         "https://www.booking.com/hotel/us/mystery-inn.html",
		Source:      record.SourceDegraded,
		CollectedAt: now.Add(-1 * time.Hour),
	}

	if err := b.Save(ctx, rec1); err != nil {
		t.Fatalf("Failed to save record 1: %v", err)
	}
	if err := b.Save(ctx, rec2); err != nil {
		t.Fatalf("Failed to save record 2: %v", err)
	}

	// URL filter
	results, err := b.Query(ctx, storage.Filter{URL: rec2.URL})
	if err != nil {
		t.Fatalf("Failed to query by URL: %v", err)
	}
	if len(results) != 1 || results[0].ID != "json2" {
		t.Fatalf("Expected only json2, got %+v", results)
	}
	// The fetch-error sentinel survives the round trip.
	if results[0].Address.Status != record.StatusFetchError {
		t.Errorf("Expected fetch-error address, got %+v", results[0].Address)
	}

	// Source filter
	results, err = b.Query(ctx, storage.Filter{Source: record.SourceExtract})
	if err != nil {
		t.Fatalf("Failed to query by source: %v", err)
	}
	if len(results) != 1 || results[0].ID != "json1" {
		t.Fatalf("Expected only json1, got %+v", results)
	}
	if results[0].Address.Value != "768 5th Ave" {
		t.Errorf("Address did not round-trip: %+v", results[0].Address)
	}

	// No filter: newest first
	results, err = b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(results) != 2 || results[0].ID != "json2" {
		t.Fatalf("Expected newest-first ordering, got %+v", results)
	}

	// Save still works after a query rewound the file.
	rec3 := &record.HotelRecord{ID: "json3", Name: "C", URL: "https://x.test/c", CollectedAt: now}
	if err := b.Save(ctx, rec3); err != nil {
		t.Fatalf("Failed to save after query: %v", err)
	}
	results, _ = b.Query(ctx, storage.Filter{})
	if len(results) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(results))
	}
}
