// Command carsift-audit summarizes the fetch-transcript archive: how many
// upstream fetches ran, which status codes came back, and which anti-bot
// vendors blocked them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/carsift/carsift/internal/archive"
	"github.com/carsift/carsift/internal/archive/postgres"
	"github.com/carsift/carsift/internal/archive/sqlite"
	"github.com/carsift/carsift/internal/config"
	"github.com/carsift/carsift/internal/report"
)

func main() {
	format := flag.String("format", "text", "output format: text, json or html")
	urlFilter := flag.String("url", "", "only include fetches whose URL contains this substring")
	blockedOnly := flag.Bool("blocked", false, "only include fetches with a block verdict")
	since := flag.Duration("since", 0, "only include fetches newer than this (e.g. 24h); 0 means all")
	limit := flag.Int("limit", 0, "cap the number of records considered; 0 means all")
	flag.Parse()

	if err := run(*format, *urlFilter, *blockedOnly, *since, *limit); err != nil {
		fmt.Fprintf(os.Stderr, "carsift-audit: %v\n", err)
		os.Exit(1)
	}
}

func run(format, urlFilter string, blockedOnly bool, since time.Duration, limit int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Query(ctx, buildFilter(urlFilter, blockedOnly, since, limit))
	if err != nil {
		return fmt.Errorf("query archive: %w", err)
	}

	summary := report.GenerateSummary(records)

	switch format {
	case "text":
		return report.WriteText(os.Stdout, summary)
	case "json":
		return report.WriteJSON(os.Stdout, summary)
	case "html":
		return report.WriteHTML(os.Stdout, summary)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// buildFilter translates the CLI flags into an archive query.
func buildFilter(urlFilter string, blockedOnly bool, since time.Duration, limit int) archive.Filter {
	filter := archive.Filter{
		URL:   urlFilter,
		Limit: limit,
	}
	if blockedOnly {
		blocked := true
		filter.Blocked = &blocked
	}
	if since > 0 {
		cutoff := time.Now().Add(-since)
		filter.Since = &cutoff
	}
	return filter
}

func openArchive(ctx context.Context, cfg config.Config) (archive.Backend, error) {
	switch cfg.ArchiveBackend {
	case config.ArchiveSQLite:
		return sqlite.New(cfg.SQLitePath)
	case config.ArchivePostgres:
		return postgres.New(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("no archive configured; set CARSIFT_ARCHIVE to sqlite or postgres")
	}
}
