package csvbackend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/roost/internal/record"
	"github.com/FranksOps/roost/internal/storage"
)

func TestCSVBackend(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "roost.csv")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond).UTC()

	rec1 := &record.HotelRecord{
		ID:          "csv1",
		Name:        "The Ritz London",
		Address:     record.Found("150 Piccadilly, London"),
		Price:       record.NotFound(),
		Description: record.Found("Historic, luxurious."),
		URL:         "https://www.booking.com/hotel/gb/the-ritz-london.html",
		Source:      record.SourceExtract,
		CollectedAt: now.Add(-time.Hour),
	}
	rec2 := &record.HotelRecord{
		ID:          "csv2",
		Name:        "Fallback Hotel",
		Address:     record.FetchError(),
		Price:       record.FetchError(),
		Description: record.FetchError(),
		URL:         "https://www.booking.com/hotel/us/fallback.html",
		Source:      record.SourceDegraded,
		CollectedAt: now,
	}

	if err := b.Save(ctx, rec1); err != nil {
		t.Fatalf("Failed to save record 1: %v", err)
	}
	if err := b.Save(ctx, rec2); err != nil {
		t.Fatalf("Failed to save record 2: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(results))
	}
	if results[0].ID != "csv2" {
		t.Errorf("Expected newest first, got %s", results[0].ID)
	}

	// Sentinels round-trip through their display strings.
	got := results[1]
	if got.Price.Status != record.StatusNotFound {
		t.Errorf("Price sentinel lost: %+v", got.Price)
	}
	if results[0].Address.Status != record.StatusFetchError {
		t.Errorf("Address sentinel lost: %+v", results[0].Address)
	}
	if got.Address.Value != "150 Piccadilly, London" {
		t.Errorf("Address value lost: %+v", got.Address)
	}

	// Reopening the file must not duplicate the header and must read back
	// the same rows.
	if err := b.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	b2, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to reopen CSV backend: %v", err)
	}
	defer b2.Close()

	results, err = b2.Query(ctx, storage.Filter{Source: record.SourceExtract})
	if err != nil {
		t.Fatalf("Failed to query reopened backend: %v", err)
	}
	if len(results) != 1 || results[0].ID != "csv1" {
		t.Fatalf("Expected csv1 only, got %+v", results)
	}
}
