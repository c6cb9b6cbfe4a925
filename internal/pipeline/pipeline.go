// Package pipeline drives one search end to end: scrape phase, merged
// batch, then streamed enrichment updates.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/carsift/carsift/internal/aggregate"
	"github.com/carsift/carsift/internal/enrich"
	"github.com/carsift/carsift/internal/model"
	"github.com/carsift/carsift/internal/stream"
)

// Searcher is the scrape phase: fan out, merge, dedupe.
type Searcher interface {
	Search(ctx context.Context, criteria model.Criteria) (aggregate.Batch, error)
}

// Enricher is the second phase: per-listing plate reading and valuation.
type Enricher interface {
	Run(ctx context.Context, listings []model.Listing) <-chan enrich.Outcome
}

// Pipeline produces the event sequence for one search request. Events
// arrive in protocol order: warnings first, then the single batch, then
// updates as each listing reaches a terminal state.
type Pipeline struct {
	searcher Searcher
	enricher Enricher
	logger   *slog.Logger
}

func New(searcher Searcher, enricher Enricher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{searcher: searcher, enricher: enricher, logger: logger}
}

// Run starts the pipeline and returns its event channel. The channel is
// closed when every listing reached a terminal status or ctx was cancelled.
// A search that yields no listings emits only warnings (if any) and closes
// without a batch event.
func (p *Pipeline) Run(ctx context.Context, criteria model.Criteria) <-chan stream.Event {
	events := make(chan stream.Event)

	go func() {
		defer close(events)

		batch, err := p.searcher.Search(ctx, criteria)
		if err != nil {
			// Only cancellation reaches here; the consumer is gone.
			p.logger.Debug("pipeline aborted during scrape", "error", err)
			return
		}

		for _, warning := range batch.Warnings {
			if !send(ctx, events, stream.Error(warning.Message)) {
				return
			}
		}

		if len(batch.Listings) == 0 {
			p.logger.Info("search produced no listings")
			return
		}

		if !send(ctx, events, stream.Batch(batch.Listings)) {
			return
		}

		for outcome := range p.enricher.Run(ctx, batch.Listings) {
			if !send(ctx, events, stream.Update(outcome.ID, outcome.Update)) {
				return
			}
		}
	}()

	return events
}

func send(ctx context.Context, events chan<- stream.Event, event stream.Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
