package gumtree

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/carsift/carsift/internal/archive"
	"github.com/carsift/carsift/internal/model"
)

type stubFetcher struct {
	rec     *archive.FetchRecord
	lastURL string
}

func (s *stubFetcher) Fetch(ctx context.Context, targetURL string) (*archive.FetchRecord, error) {
	s.lastURL = targetURL
	rec := *s.rec
	rec.URL = targetURL
	return &rec, nil
}

const resultsPage = `
<html><body>
<article data-q="search-result">
  <a data-q="search-result-anchor" href="/p/bmw/2017-bmw-320d-m-sport/1501234567">
    <h2 class="listing-title">2017 BMW 320d M Sport</h2>
    <img data-src="https://media.gumtree.com/img1.jpg" src="data:image/gif;base64,x"/>
  </a>
  <div class="listing-attributes">
    <div data-q="car-attributes-name">Mileage</div>
    <div data-q="car-attributes-value">58,200 miles</div>
    <div data-q="car-attributes-name">Seller type</div>
    <div data-q="car-attributes-value">Trade</div>
  </div>
  <div class="listing-location">Manchester</div>
  <span>&#163;11,750</span>
</article>
<article data-q="search-result">
  <a data-q="search-result-anchor" href="/p/ford/focus-for-sale/1509999999">
    <h2 class="listing-title">Ford Focus 1.6 Zetec</h2>
  </a>
  <div class="listing-attributes">2009 92,000 Private Petrol</div>
  <span>&#163;2,300</span>
</article>
</body></html>`

func TestSearch_ExtractsListings(t *testing.T) {
	fetcher := &stubFetcher{rec: &archive.FetchRecord{
		StatusCode: http.StatusOK,
		Body:       []byte(resultsPage),
	}}
	adapter := New(fetcher, nil)

	res, err := adapter.Search(context.Background(), model.Criteria{Make: "BMW"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}

	first := res.Records[0]
	if first.SourceID != model.SourceGumtree {
		t.Errorf("sourceId = %q, want gumtree", first.SourceID)
	}
	if first.SourceListingID != "1501234567" {
		t.Errorf("listing id = %q, want final path segment", first.SourceListingID)
	}
	if first.Title != "2017 BMW 320d M Sport" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Link != "https://www.gumtree.com/p/bmw/2017-bmw-320d-m-sport/1501234567" {
		t.Errorf("link = %q, want absolute URL", first.Link)
	}
	if first.Price != 11750 {
		t.Errorf("price = %v, want 11750", first.Price)
	}
	if first.MileageMiles != 58200 {
		t.Errorf("mileage = %d, want structured attribute value 58200", first.MileageMiles)
	}
	if first.SellerType != model.SellerTrade {
		t.Errorf("sellerType = %q, want trade", first.SellerType)
	}
	if first.Location != "Manchester" {
		t.Errorf("location = %q", first.Location)
	}
	if first.Image != "https://media.gumtree.com/img1.jpg" {
		t.Errorf("image = %q, want data-src value", first.Image)
	}
	if !strings.Contains(first.Subtitle, "58,200 miles") || !strings.Contains(first.Subtitle, "Trade") {
		t.Errorf("subtitle = %q, want joined attribute values", first.Subtitle)
	}

	second := res.Records[1]
	if second.SellerType != model.SellerPrivate {
		t.Errorf("sellerType = %q, want private", second.SellerType)
	}
	// 2009 looks like a year and must lose to 92,000 in the fallback scan.
	if second.MileageMiles != 92000 {
		t.Errorf("mileage = %d, want heuristic value 92000", second.MileageMiles)
	}
}

func TestBuildSearchURL(t *testing.T) {
	tests := []struct {
		name     string
		criteria model.Criteria
		want     []string
		wantPath string
	}{
		{
			name:     "defaults",
			criteria: model.Criteria{},
			want:     []string{"sort=date"},
			wantPath: "https://www.gumtree.com/cars/uk?",
		},
		{
			name: "make and model become path segments",
			criteria: model.Criteria{
				Make:  "Land Rover",
				Model: "Range Rover Sport",
			},
			wantPath: "https://www.gumtree.com/cars/uk/land-rover/range-rover-sport?",
		},
		{
			name: "bounded price and mileage",
			criteria: model.Criteria{
				MinPrice:   2000,
				MaxPrice:   8000,
				MaxMileage: 90000,
			},
			want: []string{"price=2000_8000", "mileage=0_90000"},
		},
		{
			name:     "open-ended maximum price",
			criteria: model.Criteria{MinPrice: 5000},
			want:     []string{"price=5000_"},
		},
		{
			name:     "body type and page",
			criteria: model.Criteria{BodyType: "Estate Car", Page: 2},
			want:     []string{"body-type=estate-car", "page=2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchURL(tt.criteria)
			if tt.wantPath != "" && !strings.HasPrefix(got, tt.wantPath) {
				t.Errorf("url = %q, want prefix %q", got, tt.wantPath)
			}
			for _, frag := range tt.want {
				if !strings.Contains(got, frag) {
					t.Errorf("url = %q, missing %q", got, frag)
				}
			}
		})
	}
}

func TestSearch_EmptyPageIsSuccess(t *testing.T) {
	fetcher := &stubFetcher{rec: &archive.FetchRecord{StatusCode: http.StatusOK, Body: []byte("<html><body></body></html>")}}
	adapter := New(fetcher, nil)

	res, err := adapter.Search(context.Background(), model.Criteria{})
	if err != nil {
		t.Fatalf("empty result set must not be an error, got %v", err)
	}
	if len(res.Records) != 0 {
		t.Fatalf("expected 0 records, got %d", len(res.Records))
	}
}

func TestSearch_NonOKStatus(t *testing.T) {
	fetcher := &stubFetcher{rec: &archive.FetchRecord{StatusCode: http.StatusServiceUnavailable}}
	adapter := New(fetcher, nil)

	_, err := adapter.Search(context.Background(), model.Criteria{})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error %q should carry the status code", err.Error())
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"BMW", "bmw"},
		{"Land Rover", "land-rover"},
		{"Alfa Romeo!", "alfa-romeo"},
		{"  C-Class  ", "c-class"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
