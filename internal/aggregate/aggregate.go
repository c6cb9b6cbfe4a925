// Package aggregate fans a search out to every registered marketplace
// adapter and merges the results into one deduplicated batch.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/carsift/carsift/internal/metrics"
	"github.com/carsift/carsift/internal/model"
	"github.com/carsift/carsift/internal/source"
)

// Warning reports one adapter's failure. A warning never aborts the batch;
// the remaining adapters' results are still returned.
type Warning struct {
	Source  model.Source `json:"source"`
	Message string       `json:"message"`
}

// Batch is the merged outcome of one search across all adapters.
type Batch struct {
	// Listings hold every unique record, already in the analyzing state.
	Listings []model.Listing
	// QueryURLs echo the concrete upstream URL each adapter derived from
	// the criteria, including adapters that returned nothing.
	QueryURLs map[model.Source]string
	// Warnings carry per-adapter failures, in adapter registration order.
	Warnings []Warning
}

// Aggregator runs adapters concurrently. Registration order is significant:
// when two sites surface the same listing, the earlier-registered adapter's
// record wins.
type Aggregator struct {
	adapters []source.Adapter
	logger   *slog.Logger
}

func New(logger *slog.Logger, adapters ...source.Adapter) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{adapters: adapters, logger: logger}
}

// Search runs every selected adapter concurrently and merges their records.
// Adapter failures become warnings; only ctx cancellation is returned as an
// error.
func (a *Aggregator) Search(ctx context.Context, criteria model.Criteria) (Batch, error) {
	selected := a.selectAdapters(criteria.Sources)

	results := make([]source.Result, len(selected))
	failures := make([]error, len(selected))

	g, gCtx := errgroup.WithContext(ctx)
	for i, adapter := range selected {
		i, adapter := i, adapter
		g.Go(func() error {
			res, err := adapter.Search(gCtx, criteria)
			results[i] = res
			failures[i] = err

			metrics.RecordSearch(string(adapter.ID()), len(res.Records), err)
			if err != nil {
				a.logger.Warn("adapter failed", "source", adapter.ID(), "error", err)
			}
			return nil
		})
	}
	// Workers never return errors; Wait only observes ctx cancellation.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Batch{}, fmt.Errorf("search aborted: %w", err)
	}

	batch := Batch{QueryURLs: make(map[model.Source]string, len(selected))}
	seen := make(map[string]struct{})

	// Merge in registration order so dedup tie-breaks are deterministic no
	// matter which adapter finished first.
	for i, adapter := range selected {
		if u := results[i].QueryURL; u != "" {
			batch.QueryURLs[adapter.ID()] = u
		}
		if failures[i] != nil {
			batch.Warnings = append(batch.Warnings, Warning{
				Source:  adapter.ID(),
				Message: warningMessage(adapter.ID(), failures[i]),
			})
			continue
		}
		for _, rec := range results[i].Records {
			id := model.CompositeID(rec)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			batch.Listings = append(batch.Listings, model.NewListing(rec))
		}
	}

	a.logger.Info("search merged",
		"adapters", len(selected),
		"listings", len(batch.Listings),
		"warnings", len(batch.Warnings))

	return batch, nil
}

func (a *Aggregator) selectAdapters(sources []model.Source) []source.Adapter {
	if len(sources) == 0 {
		return a.adapters
	}
	wanted := make(map[model.Source]struct{}, len(sources))
	for _, s := range sources {
		wanted[s] = struct{}{}
	}
	var selected []source.Adapter
	for _, adapter := range a.adapters {
		if _, ok := wanted[adapter.ID()]; ok {
			selected = append(selected, adapter)
		}
	}
	return selected
}

// warningMessage renders "<source> failed: <reason>" without repeating the
// source name when the error already carries it.
func warningMessage(src model.Source, err error) string {
	var aerr *source.AdapterError
	if errors.As(err, &aerr) {
		msg := aerr.Msg
		if aerr.Err != nil {
			msg = fmt.Sprintf("%s: %v", aerr.Msg, aerr.Err)
		}
		return fmt.Sprintf("%s failed: %s", src, msg)
	}
	return fmt.Sprintf("%s failed: %s", src, err)
}
