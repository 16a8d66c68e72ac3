// Package csvbackend archives records as CSV rows. Field sentinels are
// written in their display form ("Not found", "Error retrieving field") and
// recovered on read.
package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/FranksOps/roost/internal/record"
	"github.com/FranksOps/roost/internal/storage"
)

var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// columns defines the CSV column order.
var columns = []string{
	"id",
	"name",
	"url",
	"address",
	"price",
	"description",
	"source",
	"collected_at",
}

// New opens (or creates) a CSV archive at filePath, writing the header row
// when the file is empty.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv archive: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv archive: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(columns); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return &csvBackend{file: f}, nil
}

func (b *csvBackend) Save(ctx context.Context, rec *record.HotelRecord) error {
	row := []string{
		rec.ID,
		rec.Name,
		rec.URL,
		rec.Address.String(),
		rec.Price.String(),
		rec.Description.String(),
		rec.Source,
		rec.CollectedAt.Format(time.RFC3339Nano),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek csv archive: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv row: %w", err)
	}
	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*record.HotelRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind csv archive: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	// Header row.
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*record.HotelRecord{}, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var matched []*record.HotelRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if len(row) != len(columns) {
			continue // skip malformed rows
		}

		collectedAt, _ := time.Parse(time.RFC3339Nano, row[7])

		rec := &record.HotelRecord{
			ID:          row[0],
			Name:        row[1],
			URL:         row[2],
			Address:     record.ParseDisplay(row[3]),
			Price:       record.ParseDisplay(row[4]),
			Description: record.ParseDisplay(row[5]),
			Source:      row[6],
			CollectedAt: collectedAt,
		}

		if storage.Match(rec, filter) {
			matched = append(matched, rec)
		}
	}

	return storage.Window(matched, filter), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
