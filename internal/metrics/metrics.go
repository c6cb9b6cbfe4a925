package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carsift/carsift/internal/archive"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carsift_fetch_requests_total",
			Help: "Total number of upstream page fetches executed",
		},
		[]string{"domain", "status", "blocked", "block_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carsift_fetch_duration_seconds",
			Help:    "Duration of upstream page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	AdapterSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carsift_adapter_searches_total",
			Help: "Total number of adapter searches by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	AdapterListingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carsift_adapter_listings_total",
			Help: "Total number of raw listings extracted per source",
		},
		[]string{"source"},
	)

	EnrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carsift_enrichments_total",
			Help: "Total number of listing enrichments by outcome",
		},
		[]string{"outcome"},
	)

	StreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carsift_stream_events_total",
			Help: "Total number of pipeline events written to response streams",
		},
		[]string{"type"},
	)
)

// RecordFetch updates the fetch metrics given a record and its domain.
func RecordFetch(domain string, rec *archive.FetchRecord) {
	if rec == nil {
		return
	}

	blockedStr := "false"
	if rec.Blocked {
		blockedStr = "true"
	}

	statusStr := strconv.Itoa(rec.StatusCode)
	if rec.Error != "" {
		statusStr = "error"
	}

	FetchRequestsTotal.WithLabelValues(domain, statusStr, blockedStr, rec.BlockSrc).Inc()
	FetchDuration.WithLabelValues(domain).Observe(rec.Duration.Seconds())
}

// RecordSearch updates the adapter metrics for one completed search.
func RecordSearch(source string, listings int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	AdapterSearchesTotal.WithLabelValues(source, outcome).Inc()
	if listings > 0 {
		AdapterListingsTotal.WithLabelValues(source).Add(float64(listings))
	}
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
