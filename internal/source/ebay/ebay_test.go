package ebay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/carsift/carsift/internal/archive"
	"github.com/carsift/carsift/internal/model"
	"github.com/carsift/carsift/internal/source"
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
<html><body><ul>
<li class="s-item" data-view="iid:256001">
  <a class="s-item__link" href="https://www.ebay.co.uk/itm/256001"></a>
  <div class="s-item__title">2018 Ford Fiesta 1.0 EcoBoost</div>
  <span class="s-item__price">&#163;8,250</span>
  <span class="s-item__dynamic">45,000 miles from a Dealer</span>
  <span class="s-item__location">Item location: Leeds, United Kingdom</span>
  <img class="s-item__image-img" src="https://i.ebayimg.com/images/g/abc/s-l225.jpg"/>
</li>
<li class="s-item">
  <a class="s-item__link" href="https://www.ebay.co.uk/itm/999"></a>
  <div class="s-item__title">Shop on eBay</div>
  <span class="s-item__price">&#163;20.00</span>
</li>
<li class="s-item">
  <a class="s-item__link" href="https://www.ebay.co.uk/itm/256002"></a>
  <div class="s-item__title">2015 Vauxhall Corsa</div>
  <span class="s-item__price">&#163;4,100</span>
  <span class="s-item__dynamic">62,300 miles</span>
  <img class="s-item__image-img" src="https://ir.ebaystatic.com/cr/v/c1/s_1x2.gif"/>
</li>
</ul></body></html>`

func TestSearch_ExtractsListings(t *testing.T) {
	fetcher := &stubFetcher{rec: &archive.FetchRecord{
		StatusCode: http.StatusOK,
		Body:       []byte(resultsPage),
	}}
	adapter := New(fetcher, nil)

	res, err := adapter.Search(context.Background(), model.Criteria{Make: "Ford", Model: "Fiesta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records (sponsored card skipped), got %d", len(res.Records))
	}

	first := res.Records[0]
	if first.SourceID != model.SourceEbay {
		t.Errorf("sourceId = %q, want ebay", first.SourceID)
	}
	if first.SourceListingID != "iid:256001" {
		t.Errorf("listing id = %q, want data-view value", first.SourceListingID)
	}
	if first.Title != "2018 Ford Fiesta 1.0 EcoBoost" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Price != 8250 {
		t.Errorf("price = %v, want 8250", first.Price)
	}
	if first.Currency != "GBP" {
		t.Errorf("currency = %q, want GBP", first.Currency)
	}
	if first.MileageMiles != 45000 {
		t.Errorf("mileage = %d, want 45000", first.MileageMiles)
	}
	if first.MileageKm != 72420 {
		t.Errorf("mileage km = %d, want 72420", first.MileageKm)
	}
	if first.Location != "Leeds, United Kingdom" {
		t.Errorf("location = %q, want prefix stripped", first.Location)
	}
	if first.SellerType != model.SellerTrade {
		t.Errorf("sellerType = %q, want trade", first.SellerType)
	}
	if first.Image == "" || strings.Contains(first.Image, "s_1x2.gif") {
		t.Errorf("image = %q, want real photo URL", first.Image)
	}

	second := res.Records[1]
	if second.SourceListingID != "256002" {
		t.Errorf("fallback listing id = %q, want link segment", second.SourceListingID)
	}
	if second.Image != "" {
		t.Errorf("placeholder image should be dropped, got %q", second.Image)
	}
	if second.SellerType != "" {
		t.Errorf("sellerType = %q, want empty for non-dealer card", second.SellerType)
	}
}

func TestSearch_QueryURL(t *testing.T) {
	fetcher := &stubFetcher{rec: &archive.FetchRecord{StatusCode: http.StatusOK, Body: []byte("<html></html>")}}
	adapter := New(fetcher, nil)

	res, err := adapter.Search(context.Background(), model.Criteria{
		Make:     "Ford",
		Model:    "Fiesta",
		BodyType: "Hatchback",
		MinPrice: 1000,
		MaxPrice: 9000,
		Sort:     "price-asc",
		Page:     3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.QueryURL != fetcher.lastURL {
		t.Fatalf("QueryURL %q does not echo fetched URL %q", res.QueryURL, fetcher.lastURL)
	}

	for _, want := range []string{
		"_nkw=Ford+Fiesta+Hatchback",
		"_udlo=1000",
		"_udhi=9000",
		"_sop=15",
		"_pgn=3",
	} {
		if !strings.Contains(res.QueryURL, want) {
			t.Errorf("query URL %q missing %q", res.QueryURL, want)
		}
	}
	if !strings.HasPrefix(res.QueryURL, "https://www.ebay.co.uk/sch/Cars-/9801/i.html?") {
		t.Errorf("query URL %q has wrong base", res.QueryURL)
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

func TestSearch_BlockedRecord(t *testing.T) {
	fetcher := &stubFetcher{rec: &archive.FetchRecord{
		StatusCode: http.StatusForbidden,
		Blocked:    true,
		BlockSrc:   "Cloudflare",
	}}
	adapter := New(fetcher, nil)

	_, err := adapter.Search(context.Background(), model.Criteria{})
	if err == nil {
		t.Fatal("expected adapter error for blocked fetch")
	}
	var aerr *source.AdapterError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *source.AdapterError, got %T", err)
	}
	if aerr.Source != model.SourceEbay {
		t.Errorf("error source = %q, want ebay", aerr.Source)
	}
	if !strings.Contains(aerr.Error(), "Cloudflare") {
		t.Errorf("error %q should name the blocker", aerr.Error())
	}
}

func TestSearch_LimitApplied(t *testing.T) {
	var cards strings.Builder
	cards.WriteString("<html><body><ul>")
	for i := 0; i < 30; i++ {
		cards.WriteString(`<li class="s-item"><a class="s-item__link" href="https://www.ebay.co.uk/itm/` +
			strings.Repeat("1", i+1) + `"></a><div class="s-item__title">Car</div><span class="s-item__price">&#163;1,000</span></li>`)
	}
	cards.WriteString("</ul></body></html>")

	fetcher := &stubFetcher{rec: &archive.FetchRecord{StatusCode: http.StatusOK, Body: []byte(cards.String())}}
	adapter := New(fetcher, nil)

	res, err := adapter.Search(context.Background(), model.Criteria{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != model.DefaultLimit {
		t.Errorf("expected default limit %d, got %d", model.DefaultLimit, len(res.Records))
	}

	res, err = adapter.Search(context.Background(), model.Criteria{Limit: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 5 {
		t.Errorf("expected explicit limit 5, got %d", len(res.Records))
	}
}
