// Package pipeline orchestrates a collection run: discover candidate URLs,
// collect a record per URL with a polite pause between requests, and
// optionally archive the results.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/FranksOps/roost/internal/discover"
	"github.com/FranksOps/roost/internal/record"
	"github.com/FranksOps/roost/internal/storage"
	"github.com/FranksOps/roost/pkg/retry"
)

// Discoverer yields candidate listing URLs for a location.
type Discoverer interface {
	Discover(ctx context.Context, seedURL, location string, count int) []discover.Candidate
}

// Collector turns one candidate into one record. An error is terminal for
// that candidate only.
type Collector interface {
	Collect(ctx context.Context, cand discover.Candidate) (record.HotelRecord, error)
}

// Config tunes a run.
type Config struct {
	// MaxURLs caps how many candidates are collected per run.
	MaxURLs int
	// DelayMin and DelayMax bound the random pause between consecutive
	// collections. No pause happens before the first.
	DelayMin time.Duration
	DelayMax time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxURLs <= 0 {
		c.MaxURLs = 3
	}
	if c.DelayMin <= 0 {
		c.DelayMin = 3 * time.Second
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = c.DelayMin + 4*time.Second
	}
}

// Pipeline runs discovery and collection sequentially. Items are processed
// one at a time in discovery order; a candidate that exhausts its retries is
// skipped, never fatal.
type Pipeline struct {
	discoverer Discoverer
	collector  Collector
	archive    storage.Backend // optional
	cfg        Config
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	rng        *rand.Rand
}

// New creates a Pipeline. archive may be nil to skip persistence.
func New(discoverer Discoverer, collector Collector, archive storage.Backend, cfg Config, logger *slog.Logger) *Pipeline {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		discoverer: discoverer,
		collector:  collector,
		archive:    archive,
		cfg:        cfg,
		logger:     logger,
		sleep:      sleepCtx,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetSleep overrides the inter-request pause. Tests only.
func (p *Pipeline) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	p.sleep = fn
}

// Run executes one collection run. When preloaded records are supplied they
// are returned as-is: no discovery, no collection, no archiving, and no
// network traffic of any kind. Otherwise records come back in discovery
// order; candidates skipped after retry exhaustion simply leave a gap.
func (p *Pipeline) Run(ctx context.Context, seedURL, location string, count int, preloaded []record.HotelRecord) ([]record.HotelRecord, error) {
	if len(preloaded) > 0 {
		p.logger.Info("using preloaded records", "count", len(preloaded))
		return preloaded, nil
	}
	if count <= 0 || count > p.cfg.MaxURLs {
		count = p.cfg.MaxURLs
	}

	candidates := p.discoverer.Discover(ctx, seedURL, location, count)
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	p.logger.Info("starting collection", "candidates", len(candidates), "location", location)

	records := make([]record.HotelRecord, 0, len(candidates))
	for i, cand := range candidates {
		if i > 0 {
			if err := p.pause(ctx); err != nil {
				return records, err
			}
		}
		if err := ctx.Err(); err != nil {
			return records, err
		}

		rec, err := p.collector.Collect(ctx, cand)
		if err != nil {
			if errors.Is(err, retry.ErrExhausted) {
				p.logger.Warn("skipping candidate after repeated rate limiting", "url", cand.URL, "err", err)
				continue
			}
			return records, err
		}

		p.logger.Info("collected", "name", rec.Name, "url", rec.URL, "source", rec.Source)
		records = append(records, rec)

		if p.archive != nil {
			if err := p.archive.Save(ctx, &rec); err != nil {
				p.logger.Error("archiving record failed", "id", rec.ID, "err", err)
			}
		}
	}

	return records, nil
}

// pause sleeps a random duration within the configured bounds.
func (p *Pipeline) pause(ctx context.Context) error {
	d := p.cfg.DelayMin
	if spread := p.cfg.DelayMax - p.cfg.DelayMin; spread > 0 {
		d += time.Duration(p.rng.Int63n(int64(spread)))
	}
	p.logger.Debug("pausing between requests", "delay", d)
	return p.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
