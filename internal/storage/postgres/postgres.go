// Package postgres archives records in a Postgres database via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/roost/internal/record"
	"github.com/FranksOps/roost/internal/storage"
)

var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
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
	collected_at TIMESTAMPTZ NOT NULL
);
`

// New connects to Postgres at dsn and ensures the archive table exists.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres archive: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres archive: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create hotel_records table: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, rec *record.HotelRecord) error {
	query := `
	INSERT INTO hotel_records (
		id, name, url, address, address_status, price, price_status, description, description_status, source, collected_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := b.pool.Exec(ctx, query,
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

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*record.HotelRecord, error) {
	query := `SELECT id, name, url, address, address_status, price, price_status, description, description_status, source, collected_at FROM hotel_records WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.URL != "" {
		query += fmt.Sprintf(` AND url = $%d`, paramCount)
		args = append(args, filter.URL)
		paramCount++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, paramCount)
		args = append(args, filter.Source)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND collected_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY collected_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
		paramCount++
	}

	rows, err := b.pool.Query(ctx, query, args...)
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

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
