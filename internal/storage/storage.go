// Package storage archives collected hotel records. Backends share a small
// interface so runs can land in a flat file during development and a real
// database in production.
package storage

import (
	"context"
	"time"

	"github.com/FranksOps/roost/internal/record"
)

// Filter selects archived records on Query.
type Filter struct {
	URL    string
	Source string
	Since  *time.Time
	Limit  int
	Offset int
}

// Backend stores and queries hotel records. Query returns records ordered by
// collection time, newest first.
type Backend interface {
	Save(ctx context.Context, rec *record.HotelRecord) error
	Query(ctx context.Context, filter Filter) ([]*record.HotelRecord, error)
	Close() error
}

// Match reports whether rec passes the filter's predicates. Backends that
// filter in memory share it; SQL backends push the same conditions into the
// query instead.
func Match(rec *record.HotelRecord, filter Filter) bool {
	if filter.URL != "" && rec.URL != filter.URL {
		return false
	}
	if filter.Source != "" && rec.Source != filter.Source {
		return false
	}
	if filter.Since != nil && rec.CollectedAt.Before(*filter.Since) {
		return false
	}
	return true
}

// Window applies ordering (newest first), offset, and limit to records that
// are currently in insertion order.
func Window(recs []*record.HotelRecord, filter Filter) []*record.HotelRecord {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(recs) {
			return []*record.HotelRecord{}
		}
		recs = recs[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(recs) {
		recs = recs[:filter.Limit]
	}
	return recs
}
