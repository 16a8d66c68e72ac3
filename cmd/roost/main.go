// Command roost collects hotel listings for a location: it discovers
// candidate URLs, extracts structured fields from each page, and writes the
// resulting records to a file, optionally archiving them as it goes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/roost/internal/collect"
	"github.com/FranksOps/roost/internal/config"
	"github.com/FranksOps/roost/internal/discover"
	"github.com/FranksOps/roost/internal/extract"
	"github.com/FranksOps/roost/internal/fingerprint"
	"github.com/FranksOps/roost/internal/metrics"
	"github.com/FranksOps/roost/internal/pipeline"
	"github.com/FranksOps/roost/internal/record"
	"github.com/FranksOps/roost/internal/report"
	"github.com/FranksOps/roost/internal/scraper"
	"github.com/FranksOps/roost/internal/storage"
	"github.com/FranksOps/roost/internal/storage/csvbackend"
	"github.com/FranksOps/roost/internal/storage/jsonbackend"
	"github.com/FranksOps/roost/internal/storage/postgres"
	"github.com/FranksOps/roost/internal/storage/sqlite"
	"github.com/FranksOps/roost/pkg/firecrawl"
	"github.com/FranksOps/roost/pkg/openai"
	"github.com/FranksOps/roost/pkg/ratelimit"
	"github.com/FranksOps/roost/pkg/retry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "roost:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		location    = flag.String("location", "", "location to collect hotels for (overrides config)")
		seedURL     = flag.String("seed", "", "seed URL for discovery (overrides config)")
		count       = flag.Int("count", 0, "number of hotels to collect (overrides config)")
		output      = flag.String("output", "", "output file path (overrides config)")
		preloaded   = flag.String("preloaded", "", "path to a JSON file of records to pass through unchanged")
		store       = flag.String("store", "", "archive backend as kind:dsn, e.g. sqlite:roost.db (overrides config)")
		metricsPort = flag.Int("metrics-port", 0, "serve Prometheus metrics on this port (overrides config)")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, *location, *seedURL, *count, *output, *store, *metricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pre []record.HotelRecord
	if *preloaded != "" {
		pre, err = loadPreloaded(*preloaded)
		if err != nil {
			return err
		}
	}

	p, cleanup, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	g, gctx := errgroup.WithContext(ctx)

	var srv *metrics.Server
	if cfg.MetricsPort > 0 {
		srv = metrics.Start(cfg.MetricsPort)
		logger.Info("metrics listening", "port", cfg.MetricsPort)
	}

	var records []record.HotelRecord
	g.Go(func() error {
		defer stop()
		var runErr error
		records, runErr = p.Run(gctx, cfg.SeedURL, cfg.Location, cfg.Count, pre)
		return runErr
	})

	runErr := g.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "err", err)
		}
	}

	// Write whatever was collected even on a partial run.
	if len(records) > 0 {
		if err := writeOutput(cfg.Output, records); err != nil {
			return err
		}
		logger.Info("wrote records", "count", len(records), "path", cfg.Output.Path)
	}
	if err := report.WriteText(os.Stdout, report.GenerateSummary(records)); err != nil {
		return err
	}

	return runErr
}

func applyOverrides(cfg *config.AppConfig, location, seedURL string, count int, output, store string, metricsPort int) {
	if location != "" {
		cfg.Location = location
	}
	if seedURL != "" {
		cfg.SeedURL = seedURL
	}
	if count > 0 {
		cfg.Count = count
	}
	if output != "" {
		cfg.Output.Path = output
	}
	if store != "" {
		kind, dsn := store, ""
		for i := 0; i < len(store); i++ {
			if store[i] == ':' {
				kind, dsn = store[:i], store[i+1:]
				break
			}
		}
		cfg.Storage.Kind = kind
		cfg.Storage.DSN = dsn
	}
	if metricsPort > 0 {
		cfg.MetricsPort = metricsPort
	}
}

// build wires the pipeline from configuration. The returned cleanup closes
// the archive backend and the fallback fetcher.
func build(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	fc, err := firecrawl.New(firecrawl.Config{
		APIKey:  os.Getenv(cfg.Services.Firecrawl.APIKeyEnv),
		BaseURL: cfg.Services.Firecrawl.BaseURL,
		Timeout: cfg.Services.Firecrawl.Timeout,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("firecrawl client: %w", err)
	}

	oa, err := openai.New(openai.Config{
		APIKey:  os.Getenv(cfg.Services.OpenAI.APIKeyEnv),
		BaseURL: cfg.Services.OpenAI.BaseURL,
		Model:   cfg.Services.OpenAI.Model,
		Timeout: cfg.Services.OpenAI.Timeout,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("openai client: %w", err)
	}

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:     cfg.Fallback.Timeout,
		Fingerprint: fingerprint.Profile(cfg.Fallback.Fingerprint),
		Limiter:     ratelimit.NewLimiter(1, 0.3),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fallback fetcher: %w", err)
	}

	validator := extract.NewValidator(extract.NewExtractor(logger), logger)

	var fallback collect.PageFetcher
	var robots collect.RobotsGate
	if cfg.Fallback.Enabled {
		fallback = fetcher
		if cfg.Fallback.RespectRobots {
			robots = scraper.NewRobots(fetcher, logger)
		}
	}

	collector := collect.New(fc, validator, newPolicy(cfg, "firecrawl"), fallback, robots, collect.Config{
		AppendStayDates: true,
		UserAgent:       cfg.Fallback.UserAgent,
	}, logger)

	discoverer := discover.New(fc, oa, scraper.NewSitemap(fetcher, logger), newPolicy(cfg, "discovery"), discover.Config{
		Keyword:      cfg.Discovery.Keyword,
		DisableFixed: cfg.Discovery.DisableFixed,
	}, logger)

	archive, err := openArchive(ctx, cfg.Storage)
	if err != nil {
		fetcher.Close()
		return nil, nil, err
	}

	p := pipeline.New(discoverer, collector, archive, pipeline.Config{
		MaxURLs:  cfg.Count,
		DelayMin: cfg.Pause.Min,
		DelayMax: cfg.Pause.Max,
	}, logger)

	cleanup := func() {
		fetcher.Close()
		if archive != nil {
			if err := archive.Close(); err != nil {
				logger.Warn("closing archive", "err", err)
			}
		}
	}
	return p, cleanup, nil
}

func newPolicy(cfg config.AppConfig, service string) *retry.Policy {
	p := retry.New(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay)
	p.OnRetry = func(attempt int, wait time.Duration) {
		metrics.RateLimitRetriesTotal.WithLabelValues(service).Inc()
	}
	return p
}

func openArchive(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "json":
		return jsonbackend.New(cfg.DSN)
	case "csv":
		return csvbackend.New(cfg.DSN)
	case "sqlite":
		return sqlite.New(cfg.DSN)
	case "postgres":
		return postgres.New(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
}

func loadPreloaded(path string) ([]record.HotelRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preloaded records: %w", err)
	}
	var records []record.HotelRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse preloaded records: %w", err)
	}
	for i := range records {
		if records[i].Source == "" {
			records[i].Source = record.SourcePreloaded
		}
	}
	return records, nil
}

func writeOutput(cfg config.OutputConfig, records []record.HotelRecord) error {
	f, err := os.Create(cfg.Path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	switch cfg.Format {
	case "text":
		return report.WriteText(f, report.GenerateSummary(records))
	default:
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("encode records: %w", err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write records: %w", err)
		}
	}
	return nil
}
