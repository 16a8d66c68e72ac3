package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/roost/internal/record"
)

func sampleRun(now time.Time) []record.HotelRecord {
	return []record.HotelRecord{
		{
			Name:        "The Plaza",
			Address:     record.Found("768 5th Ave"),
			Price:       record.Found("$795"),
			Description: record.Found("Landmark."),
			Source:      record.SourceExtract,
			CollectedAt: now.Add(-time.Hour),
		},
		{
			Name:        "Seaview Inn",
			Address:     record.Found("2 Cliff Rd"),
			Price:       record.NotFound(),
			Description: record.NotFound(),
			Source:      record.SourceFallback,
			CollectedAt: now.Add(-30 * time.Minute),
		},
		{
			Name:        "Mystery Hotel",
			Address:     record.FetchError(),
			Price:       record.FetchError(),
			Description: record.FetchError(),
			Source:      record.SourceDegraded,
			CollectedAt: now,
		},
	}
}

func TestGenerateSummary(t *testing.T) {
	now := time.Now().UTC()
	s := GenerateSummary(sampleRun(now))

	if s.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d", s.TotalRecords)
	}
	if s.Degraded != 1 {
		t.Errorf("Degraded = %d", s.Degraded)
	}
	if s.BySource[record.SourceExtract] != 1 || s.BySource[record.SourceFallback] != 1 {
		t.Errorf("BySource = %+v", s.BySource)
	}
	if s.MissingFields["price"] != 1 || s.MissingFields["description"] != 1 {
		t.Errorf("MissingFields = %+v", s.MissingFields)
	}
	if s.ErrorFields["address"] != 1 || s.ErrorFields["price"] != 1 {
		t.Errorf("ErrorFields = %+v", s.ErrorFields)
	}
	if !s.StartTime.Equal(now.Add(-time.Hour)) || !s.EndTime.Equal(now) {
		t.Errorf("time range wrong: %v - %v", s.StartTime, s.EndTime)
	}
	if s.Duration != time.Hour {
		t.Errorf("Duration = %v", s.Duration)
	}
}

func TestGenerateSummary_Empty(t *testing.T) {
	s := GenerateSummary(nil)
	if s.TotalRecords != 0 || s.Degraded != 0 {
		t.Errorf("empty run summary not zeroed: %+v", s)
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, GenerateSummary(sampleRun(time.Now()))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Total Records:  3") {
		t.Errorf("missing totals:\n%s", out)
	}
	if !strings.Contains(out, "degraded: 1") {
		t.Errorf("missing source counts:\n%s", out)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, GenerateSummary(sampleRun(time.Now()))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if parsed["TotalRecords"].(float64) != 3 {
		t.Errorf("TotalRecords = %v", parsed["TotalRecords"])
	}
}
