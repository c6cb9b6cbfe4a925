// Command carsift serves the vehicle-listing search API: it fans searches
// out to marketplace adapters, merges the results, and streams progressive
// enrichment back to the caller.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carsift/carsift/internal/aggregate"
	"github.com/carsift/carsift/internal/api"
	"github.com/carsift/carsift/internal/archive"
	"github.com/carsift/carsift/internal/archive/postgres"
	"github.com/carsift/carsift/internal/archive/sqlite"
	"github.com/carsift/carsift/internal/config"
	"github.com/carsift/carsift/internal/enrich"
	"github.com/carsift/carsift/internal/fetch"
	"github.com/carsift/carsift/internal/fingerprint"
	"github.com/carsift/carsift/internal/metrics"
	"github.com/carsift/carsift/internal/pipeline"
	"github.com/carsift/carsift/internal/render"
	"github.com/carsift/carsift/internal/source/autotrader"
	"github.com/carsift/carsift/internal/source/ebay"
	"github.com/carsift/carsift/internal/source/gumtree"
	"github.com/carsift/carsift/pkg/proxy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.GinMode)

	store := openArchive(ctx, cfg, logger)
	if store != nil {
		defer store.Close()
	}

	var proxyPool *proxy.Pool
	if cfg.ProxyFile != "" {
		proxyPool = proxy.NewPool(proxy.Config{})
		if err := proxyPool.LoadFile(cfg.ProxyFile); err != nil {
			logger.Error("proxy list load failed", "file", cfg.ProxyFile, "error", err)
			os.Exit(1)
		}
	}

	fetcher, err := fetch.NewFetcher(fetch.Config{
		Timeout:     cfg.FetchTimeout,
		Fingerprint: fingerprint.Profile(cfg.Fingerprint),
		ProxyPool:   proxyPool,
		Archive:     store,
	})
	if err != nil {
		logger.Error("fetcher init failed", "error", err)
		os.Exit(1)
	}

	browser := render.NewBrowser(render.Config{BinaryPath: cfg.ChromeBin})
	defer browser.Close()

	aggregator := aggregate.New(logger,
		autotrader.New(browser, logger),
		ebay.New(fetcher, logger),
		gumtree.New(fetcher, logger),
	)

	ai := enrich.NewClient(nil, enrich.ClientConfig{
		APIKey:         cfg.OpenAIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		PlateModel:     cfg.OpenAIPlateModel,
		ValuationModel: cfg.OpenAIValuationModel,
	})
	if !ai.Available() {
		logger.Info("enrichment capability not configured, valuations use heuristic fallback")
	}
	enricher := enrich.New(ai, ai, cfg.EnrichWorkers, logger)

	router := api.NewRouter(pipeline.New(aggregator, enricher, logger), logger)

	var metricsSrv *metrics.Server
	if cfg.MetricsPort > 0 {
		metricsSrv = metrics.Start(cfg.MetricsPort)
		logger.Info("metrics listening", "port", cfg.MetricsPort)
	}

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()
	logger.Info("carsift listening", "addr", cfg.Addr)

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Stop(shutdownCtx)
	}
	logger.Info("carsift exited")
}

// openArchive builds the configured fetch-transcript backend, or nil when
// retention is disabled.
func openArchive(ctx context.Context, cfg config.Config, logger *slog.Logger) archive.Backend {
	switch cfg.ArchiveBackend {
	case config.ArchiveSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			logger.Error("sqlite archive init failed", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		return store
	case config.ArchivePostgres:
		store, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("postgres archive init failed", "error", err)
			os.Exit(1)
		}
		return store
	default:
		return nil
	}
}
