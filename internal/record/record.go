package record

import (
	"encoding/json"
	"strings"
	"time"
)

// Status tags a field value so that "no value could be recovered" and
// "the fetch itself failed" stay distinguishable all the way to the output.
type Status int

const (
	// StatusFound marks a field carrying a real extracted value.
	StatusFound Status = iota
	// StatusNotFound marks a field no heuristic could recover.
	StatusNotFound
	// StatusFetchError marks a field lost to a failed page fetch.
	StatusFetchError
)

// Display strings for the two sentinel states. These are what end up in the
// output artifact, so changing them changes the on-disk format.
const (
	NotFoundDisplay   = "Not found"
	FetchErrorDisplay = "Error retrieving field"
)

// Keyword returns a stable storage token for the status, used by the SQL
// archive backends.
func (s Status) Keyword() string {
	switch s {
	case StatusNotFound:
		return "not_found"
	case StatusFetchError:
		return "fetch_error"
	default:
		return "found"
	}
}

// StatusFromKeyword is the inverse of Keyword. Unknown tokens map to
// StatusFound.
func StatusFromKeyword(s string) Status {
	switch s {
	case "not_found":
		return StatusNotFound
	case "fetch_error":
		return StatusFetchError
	default:
		return StatusFound
	}
}

// Field is a tagged field value: either a real value or one of the two
// sentinels. The zero value is an empty found value, which callers should
// never emit; use Found, NotFound or FetchError.
type Field struct {
	Value  string
	Status Status
}

// Found wraps a real value, trimming surrounding whitespace.
func Found(v string) Field {
	return Field{Value: strings.TrimSpace(v), Status: StatusFound}
}

// NotFound returns the not-found sentinel.
func NotFound() Field {
	return Field{Status: StatusNotFound}
}

// FetchError returns the fetch-failure sentinel.
func FetchError() Field {
	return Field{Status: StatusFetchError}
}

// OK reports whether the field holds a real, non-empty value.
func (f Field) OK() bool {
	return f.Status == StatusFound && strings.TrimSpace(f.Value) != ""
}

// String returns the display form: the value itself, or the sentinel text.
func (f Field) String() string {
	switch f.Status {
	case StatusNotFound:
		return NotFoundDisplay
	case StatusFetchError:
		return FetchErrorDisplay
	default:
		return f.Value
	}
}

// MarshalJSON emits the display string so the output stays a flat
// string-field object.
func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON parses a display string back into a tagged field. Sentinel
// text round-trips to the matching status; anything else is a found value.
func (f *Field) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = ParseDisplay(s)
	return nil
}

// ParseDisplay maps a display string to a Field, recovering sentinel states.
func ParseDisplay(s string) Field {
	switch s {
	case NotFoundDisplay:
		return NotFound()
	case FetchErrorDisplay:
		return FetchError()
	default:
		return Field{Value: s, Status: StatusFound}
	}
}

// Source values describe which path produced a record.
const (
	SourceExtract   = "extract"   // structured extraction via the scrape service
	SourceFallback  = "fallback"  // direct page fetch + heuristic extraction
	SourceDegraded  = "degraded"  // built from the URL alone after total failure
	SourcePreloaded = "preloaded" // supplied by the caller, passed through
)

// HotelRecord is the unit of output. URL is always present and non-empty once
// a record is emitted; Name is never empty; the remaining fields are either a
// real value or an explicit sentinel, never absent.
type HotelRecord struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	Address     Field     `json:"address"`
	Price       Field     `json:"price"`
	Description Field     `json:"description"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"`
	CollectedAt time.Time `json:"collected_at,omitzero"`
}
