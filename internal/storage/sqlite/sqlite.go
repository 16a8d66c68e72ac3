// Package sqlite archives records in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FranksOps/roost/internal/record"
	"github.com/FranksOps/roost/internal/storage"
	_ "modernc.org/sqlite"
)

var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS hotel_records (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	url TEXT NOT NULL,
	address TEXT NOT NULL,
	address_status TEXT NOT NULL,
	price TEXT NOT NULL,
	price_status TEXT NOT NULL,
	description TEXT NOT NULL,
	description_status TEXT NOT NULL,
	source TEXT NOT NULL,
	collected_at DATETIME NOT NULL
);
`

// New opens (or creates) a SQLite archive at dsn.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite archive: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create hotel_records table: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, rec *record.HotelRecord) error {
	query := `
	INSERT INTO hotel_records (
		id, name, url, address, address_status, price, price_status, description, description_status, source, collected_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.URL,
		rec.Address.Value,
		rec.Address.Status.Keyword(),
		rec.Price.Value,
		rec.Price.Status.Keyword(),
		rec.Description.Value,
		rec.Description.Status.Keyword(),
		rec.Source,
		rec.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert hotel record: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*record.HotelRecord, error) {
	query := `SELECT id, name, url, address, address_status, price, price_status, description, description_status, source, collected_at FROM hotel_records WHERE 1=1`
	args := []any{}

	if filter.URL != "" {
		query += ` AND url = ?`
		args = append(args, filter.URL)
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Since != nil {
		query += ` AND collected_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY collected_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query hotel records: %w", err)
	}
	defer rows.Close()

	var results []*record.HotelRecord
	for rows.Next() {
		var r record.HotelRecord
		var addrStatus, priceStatus, descStatus string

		err := rows.Scan(
			&r.ID, &r.Name, &r.URL,
			&r.Address.Value, &addrStatus,
			&r.Price.Value, &priceStatus,
			&r.Description.Value, &descStatus,
			&r.Source, &r.CollectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan hotel record: %w", err)
		}

		r.Address.Status = record.StatusFromKeyword(addrStatus)
		r.Price.Status = record.StatusFromKeyword(priceStatus)
		r.Description.Status = record.StatusFromKeyword(descStatus)

		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hotel records: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
