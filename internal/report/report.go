// Package report summarizes a collection run: how many records landed, how
// complete their fields are, and which sources produced them.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/roost/internal/record"
)

// Summary aggregates the outcome of a collection run.
type Summary struct {
	TotalRecords  int
	Degraded      int
	BySource      map[string]int
	MissingFields map[string]int
	ErrorFields   map[string]int
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}

// GenerateSummary aggregates a slice of collected records.
func GenerateSummary(records []record.HotelRecord) Summary {
	s := Summary{
		BySource:      make(map[string]int),
		MissingFields: make(map[string]int),
		ErrorFields:   make(map[string]int),
	}

	if len(records) == 0 {
		return s
	}

	s.StartTime = records[0].CollectedAt
	s.EndTime = records[0].CollectedAt

	fields := func(r record.HotelRecord) map[string]record.Field {
		return map[string]record.Field{
			"address":     r.Address,
			"price":       r.Price,
			"description": r.Description,
		}
	}

	for _, r := range records {
		s.TotalRecords++
		s.BySource[r.Source]++
		if r.Source == record.SourceDegraded {
			s.Degraded++
		}

		for name, f := range fields(r) {
			switch f.Status {
			case record.StatusNotFound:
				s.MissingFields[name]++
			case record.StatusFetchError:
				s.ErrorFields[name]++
			}
		}

		if r.CollectedAt.Before(s.StartTime) {
			s.StartTime = r.CollectedAt
		}
		if r.CollectedAt.After(s.EndTime) {
			s.EndTime = r.CollectedAt
		}
	}

	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Roost Collection Summary
------------------------
Time:           {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:       {{.Duration}}
Total Records:  {{.TotalRecords}}
Degraded:       {{.Degraded}}

By Source:
{{- range $src, $count := .BySource}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}

Missing Fields:
{{- range $field, $count := .MissingFields}}
  {{$field}}: {{$count}}
{{- else}}
  None
{{- end}}

Fields Lost To Errors:
{{- range $field, $count := .ErrorFields}}
  {{$field}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text summary: %w", err)
	}
	return nil
}
