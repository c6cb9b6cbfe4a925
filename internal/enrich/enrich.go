// Package enrich runs the second pipeline phase: per-listing plate
// extraction and valuation, emitting one partial update per listing.
package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/carsift/carsift/internal/metrics"
	"github.com/carsift/carsift/internal/model"
)

// PlateUnknown is the sentinel returned when no identifier could be read.
// It never raises an error; an unreadable plate is an ordinary outcome.
const PlateUnknown = "UNKNOWN"

// PlateReader extracts a registration identifier from a listing photo.
// Implementations must return PlateUnknown instead of failing.
type PlateReader interface {
	ReadPlate(ctx context.Context, imageURL string) string
}

// ListingSummary is the slice of a listing handed to the valuation
// capability.
type ListingSummary struct {
	Title        string  `json:"title"`
	Subtitle     string  `json:"subtitle,omitempty"`
	Price        float64 `json:"price"`
	MileageMiles int     `json:"mileageMiles,omitempty"`
	Location     string  `json:"location,omitempty"`
	SellerType   string  `json:"sellerType,omitempty"`
	LicensePlate string  `json:"licensePlate,omitempty"`
}

// Estimate is a raw price band from the valuation capability.
type Estimate struct {
	FairPrice float64
	RangeLow  float64
	RangeHigh float64
}

// Valuer estimates a fair price band for one listing.
type Valuer interface {
	EstimateValue(ctx context.Context, summary ListingSummary) (Estimate, error)
}

// Outcome pairs a listing's composite identity with its terminal update.
type Outcome struct {
	ID     string
	Update model.ListingUpdate
}

// Enricher fans listings out over a bounded worker pool. Each listing is
// enriched independently; one listing's failure never blocks the others.
type Enricher struct {
	plates  PlateReader
	valuer  Valuer
	workers int
	logger  *slog.Logger
}

func New(plates PlateReader, valuer Valuer, workers int, logger *slog.Logger) *Enricher {
	if workers <= 0 {
		workers = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{plates: plates, valuer: valuer, workers: workers, logger: logger}
}

// Run enriches every listing and delivers outcomes on the returned channel
// in completion order. The channel is closed once all listings are done or
// ctx is cancelled.
func (e *Enricher) Run(ctx context.Context, listings []model.Listing) <-chan Outcome {
	out := make(chan Outcome)

	go func() {
		defer close(out)

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)

		for _, listing := range listings {
			listing := listing
			g.Go(func() error {
				update := e.enrichOne(gCtx, listing)
				select {
				case out <- Outcome{ID: listing.ID, Update: update}:
				case <-gCtx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

// enrichOne produces the terminal update for a single listing. It works on
// its own copy of the listing and never touches shared state. An internal
// fault that escapes even the fallback path yields a status-only failed
// update.
func (e *Enricher) enrichOne(ctx context.Context, listing model.Listing) (update model.ListingUpdate) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("enrichment fault", "listing", listing.ID, "panic", fmt.Sprint(r))
			metrics.EnrichmentsTotal.WithLabelValues("failed").Inc()
			update = model.ListingUpdate{Status: model.StatusFailed}
		}
	}()

	plate := PlateUnknown
	if e.plates != nil && listing.Image != "" {
		plate = e.plates.ReadPlate(ctx, listing.Image)
		if plate == "" {
			plate = PlateUnknown
		}
	}

	valuation := e.value(ctx, listing, plate)

	title := listing.Title
	if plate != PlateUnknown {
		title = fmt.Sprintf("%s (Plate: %s)", listing.Title, plate)
	}

	metrics.EnrichmentsTotal.WithLabelValues("complete").Inc()
	return model.ListingUpdate{
		Title:        title,
		LicensePlate: plate,
		Valuation:    &valuation,
		Status:       model.StatusComplete,
	}
}

// value asks the external capability for a price band and falls back to a
// deterministic heuristic when it is unavailable or fails.
func (e *Enricher) value(ctx context.Context, listing model.Listing, plate string) model.Valuation {
	fallback := model.Valuation{
		FairPrice:  listing.Price * 0.98,
		RangeLow:   listing.Price * 0.9,
		RangeHigh:  listing.Price * 1.05,
		Confidence: 0.35,
		Notes:      "heuristic fallback",
	}

	if e.valuer == nil {
		return fallback
	}

	estimate, err := e.valuer.EstimateValue(ctx, ListingSummary{
		Title:        listing.Title,
		Subtitle:     listing.Subtitle,
		Price:        listing.Price,
		MileageMiles: listing.MileageMiles,
		Location:     listing.Location,
		SellerType:   listing.SellerType,
		LicensePlate: plate,
	})
	if err != nil {
		e.logger.Warn("valuation unavailable", "listing", listing.ID, "error", err)
		return fallback
	}

	return model.Valuation{
		FairPrice:  estimate.FairPrice,
		RangeLow:   estimate.RangeLow,
		RangeHigh:  estimate.RangeHigh,
		Confidence: 0.8,
		Notes:      "model-generated",
	}
}
