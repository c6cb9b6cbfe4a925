package model

import "fmt"

// Source identifies a supported marketplace.
type Source string

const (
	SourceAutoTrader Source = "autotrader"
	SourceEbay       Source = "ebay"
	SourceGumtree    Source = "gumtree"
)

// KnownSources returns every supported marketplace in registration order.
// The order is significant: it is the tie-break order used when the same
// listing surfaces on more than one site.
func KnownSources() []Source {
	return []Source{SourceAutoTrader, SourceEbay, SourceGumtree}
}

// Valid reports whether s names a supported marketplace.
func (s Source) Valid() bool {
	switch s {
	case SourceAutoTrader, SourceEbay, SourceGumtree:
		return true
	}
	return false
}

// SellerType values accepted in search criteria.
const (
	SellerPrivate = "private"
	SellerTrade   = "trade"
)

// DefaultLimit caps the number of records a single adapter may emit when the
// caller does not specify one.
const DefaultLimit = 16

// Criteria is the canonical representation of a search request. Every field
// is optional; the zero value means "unconstrained".
type Criteria struct {
	Channel       string   `json:"channel,omitempty"`
	BodyType      string   `json:"bodyType,omitempty"`
	Make          string   `json:"make,omitempty"`
	Model         string   `json:"model,omitempty"`
	MinYear       int      `json:"minYear,omitempty"`
	MaxYear       int      `json:"maxYear,omitempty"`
	MinPrice      float64  `json:"minPrice,omitempty"`
	MaxPrice      float64  `json:"maxPrice,omitempty"`
	MinMileage    float64  `json:"minMileage,omitempty"`
	MaxMileage    float64  `json:"maxMileage,omitempty"`
	MinEngineSize float64  `json:"minEngineSize,omitempty"`
	MaxEngineSize float64  `json:"maxEngineSize,omitempty"`
	Postcode      string   `json:"postcode,omitempty"`
	Radius        int      `json:"radius,omitempty"`
	Colours       []string `json:"colours,omitempty"`
	Transmissions []string `json:"transmissions,omitempty"`
	SellerType    string   `json:"sellerType,omitempty"`
	FuelType      string   `json:"fuelType,omitempty"`
	Doors         int      `json:"doors,omitempty"`
	Seats         int      `json:"seats,omitempty"`
	Sort          string   `json:"sort,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	Page          int      `json:"page,omitempty"`
	Sources       []Source `json:"sources,omitempty"`
}

// EffectiveLimit returns the per-adapter record cap, applying DefaultLimit
// when the caller left it unset.
func (c Criteria) EffectiveLimit() int {
	if c.Limit > 0 {
		return c.Limit
	}
	return DefaultLimit
}

// Validate checks the criteria before any adapter runs. It returns one
// message per problem so the caller can reject the request with a structured
// error rather than starting a stream that can never succeed.
func (c Criteria) Validate() []string {
	var problems []string

	if c.Page < 0 {
		problems = append(problems, "page must be >= 1")
	}
	if c.Limit < 0 {
		problems = append(problems, "limit must be positive")
	}
	if c.MinPrice < 0 || c.MaxPrice < 0 {
		problems = append(problems, "price bounds must be non-negative")
	}
	if c.MinMileage < 0 || c.MaxMileage < 0 {
		problems = append(problems, "mileage bounds must be non-negative")
	}
	if c.SellerType != "" && c.SellerType != SellerPrivate && c.SellerType != SellerTrade {
		problems = append(problems, fmt.Sprintf("sellerType must be %q or %q", SellerPrivate, SellerTrade))
	}
	for _, s := range c.Sources {
		if !s.Valid() {
			problems = append(problems, fmt.Sprintf("unknown source %q", s))
		}
	}
	return problems
}

// RawListing is the normalized record an adapter extracts from one result
// card. It is created once by the adapter and never mutated afterwards.
type RawListing struct {
	SourceID        Source  `json:"sourceId"`
	SourceListingID string  `json:"sourceListingId"`
	Title           string  `json:"title"`
	Subtitle        string  `json:"subtitle,omitempty"`
	Link            string  `json:"link"`
	Price           float64 `json:"price"`
	Currency        string  `json:"currency"`
	MileageMiles    int     `json:"mileageMiles,omitempty"`
	MileageKm       int     `json:"mileageKm,omitempty"`
	Location        string  `json:"location,omitempty"`
	Image           string  `json:"image,omitempty"`
	SellerType      string  `json:"sellerType,omitempty"`
	// TextBlock is the card's raw text, kept for diagnostics only.
	TextBlock string `json:"textBlock,omitempty"`
}

// Status is the lifecycle state of a pipeline-visible listing.
type Status string

const (
	// StatusScraped is reserved. The pipeline moves listings straight to
	// StatusAnalyzing when the batch is built and never assigns this value.
	StatusScraped   Status = "scraped"
	StatusAnalyzing Status = "analyzing"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// Valuation is the price-fairness estimate attached during enrichment.
type Valuation struct {
	FairPrice  float64 `json:"fairPrice"`
	RangeLow   float64 `json:"rangeLow"`
	RangeHigh  float64 `json:"rangeHigh"`
	Confidence float64 `json:"confidence"`
	Notes      string  `json:"notes"`
}

// Listing is the merged, pipeline-visible record. ID is the composite
// identity "<sourceId>-<sourceListingId>", globally unique within one batch
// and the only key used to address later updates.
type Listing struct {
	RawListing
	ID           string     `json:"listingId"`
	Status       Status     `json:"status"`
	LicensePlate string     `json:"licensePlate,omitempty"`
	Valuation    *Valuation `json:"valuation,omitempty"`
}

// CompositeID builds the stable identity for a raw record.
func CompositeID(r RawListing) string {
	return string(r.SourceID) + "-" + r.SourceListingID
}

// NewListing copies a raw record into a pipeline listing in the analyzing
// state.
func NewListing(r RawListing) Listing {
	return Listing{
		RawListing: r,
		ID:         CompositeID(r),
		Status:     StatusAnalyzing,
	}
}

// ListingUpdate is the partial diff emitted when a listing reaches a
// terminal enrichment outcome. Zero-valued fields are omitted on the wire.
type ListingUpdate struct {
	Title        string     `json:"title,omitempty"`
	LicensePlate string     `json:"licensePlate,omitempty"`
	Valuation    *Valuation `json:"valuation,omitempty"`
	Status       Status     `json:"status,omitempty"`
}
