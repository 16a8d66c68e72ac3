package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ServiceCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_service_calls_total",
			Help: "Total external service calls by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	ServiceCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roost_service_call_duration_seconds",
			Help:    "Duration of external service calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	RateLimitRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_rate_limit_retries_total",
			Help: "Backoff retries triggered by rate-limit signals",
		},
		[]string{"service"},
	)

	DiscoveryStageHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_discovery_stage_hits_total",
			Help: "Discovery stages that produced the candidate URL set",
		},
		[]string{"stage"},
	)

	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_records_total",
			Help: "Hotel records emitted by source path",
		},
		[]string{"source"},
	)

	FieldsRepairedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_fields_repaired_total",
			Help: "Fields recovered by HTML heuristics during validation",
		},
		[]string{"field"},
	)

	FieldsMissingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_fields_missing_total",
			Help: "Fields resolved to a sentinel after all heuristics failed",
		},
		[]string{"field"},
	)

	FallbackFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_fallback_fetches_total",
			Help: "Direct page fetches by status and block detection",
		},
		[]string{"status", "blocked"},
	)
)

// RecordServiceCall updates the call counters for one external request.
func RecordServiceCall(service string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ServiceCallsTotal.WithLabelValues(service, outcome).Inc()
	ServiceCallDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordFallbackFetch updates the fallback fetch counters.
func RecordFallbackFetch(statusCode int, blocked bool, errored bool) {
	status := strconv.Itoa(statusCode)
	if errored {
		status = "error"
	}
	FallbackFetchesTotal.WithLabelValues(status, strconv.FormatBool(blocked)).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
