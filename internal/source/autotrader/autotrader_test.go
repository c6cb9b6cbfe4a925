package autotrader

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/carsift/carsift/internal/model"
	"github.com/carsift/carsift/internal/render"
	"github.com/carsift/carsift/internal/source"
)

// fakeSession replays canned probe results instead of driving a browser.
type fakeSession struct {
	blocked     bool
	cards       []rawCard
	navigateErr error
	navigated   string
	closed      bool
}

func (s *fakeSession) Navigate(url string) error {
	s.navigated = url
	return s.navigateErr
}

func (s *fakeSession) Evaluate(expr string, out any) error {
	if strings.Contains(expr, "Attention Required") {
		*(out.(*bool)) = s.blocked
		return nil
	}
	raw, err := json.Marshal(s.cards)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *fakeSession) Close() { s.closed = true }

type fakeOpener struct {
	session *fakeSession
	openErr error
}

func (o *fakeOpener) Open(ctx context.Context) (render.Session, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.session, nil
}

func TestSearch_NormalizesCards(t *testing.T) {
	session := &fakeSession{cards: []rawCard{
		{
			Title:     "Audi A3 1.5 TFSI S line",
			Subtitle:  "5dr Hatchback",
			Location:  "Bristol Dealer location",
			Seller:    "",
			Image:     "https://m.atcdn.co.uk/a3.jpg",
			Link:      "/car-details/202408123456789?advertising-location=at_cars",
			TextBlock: "Audi A3 1.5 TFSI S line £18,990 32,450 miles Bristol",
		},
		{
			Title:     "Skoda Octavia",
			Attention: "Great value",
			Seller:    "Private seller",
			Link:      "",
			TextBlock: "Skoda Octavia £6,500",
		},
	}}
	adapter := New(&fakeOpener{session: session}, nil)

	res, err := adapter.Search(context.Background(), model.Criteria{Make: "Audi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.closed {
		t.Error("session must be closed after a successful search")
	}
	if res.QueryURL != session.navigated {
		t.Errorf("QueryURL %q does not echo navigated URL %q", res.QueryURL, session.navigated)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}

	first := res.Records[0]
	if first.SourceID != model.SourceAutoTrader {
		t.Errorf("sourceId = %q, want autotrader", first.SourceID)
	}
	if first.SourceListingID != "202408123456789" {
		t.Errorf("listing id = %q, want car-details segment without query", first.SourceListingID)
	}
	if first.Price != 18990 {
		t.Errorf("price = %v, want 18990", first.Price)
	}
	if first.MileageMiles != 32450 {
		t.Errorf("mileage = %d, want 32450", first.MileageMiles)
	}
	if first.Location != "Bristol" {
		t.Errorf("location = %q, want seller suffix stripped", first.Location)
	}
	if first.Link != "https://www.autotrader.co.uk/car-details/202408123456789?advertising-location=at_cars" {
		t.Errorf("link = %q, want absolute URL", first.Link)
	}
	if first.Subtitle != "5dr Hatchback" {
		t.Errorf("subtitle = %q", first.Subtitle)
	}

	second := res.Records[1]
	if second.SourceListingID != "autotrader-2" {
		t.Errorf("fallback listing id = %q", second.SourceListingID)
	}
	if second.SellerType != model.SellerPrivate {
		t.Errorf("sellerType = %q, want private", second.SellerType)
	}
	if second.Subtitle != "Great value" {
		t.Errorf("subtitle = %q, want attention grabber fallback", second.Subtitle)
	}
	if second.Link != "https://www.autotrader.co.uk" {
		t.Errorf("link = %q, want site root for cards without a link", second.Link)
	}
}

func TestSearch_BlockedInterstitial(t *testing.T) {
	session := &fakeSession{blocked: true}
	adapter := New(&fakeOpener{session: session}, nil)

	_, err := adapter.Search(context.Background(), model.Criteria{})
	if err == nil {
		t.Fatal("expected error when the page title signals a block")
	}
	var aerr *source.AdapterError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *source.AdapterError, got %T", err)
	}
	if aerr.Source != model.SourceAutoTrader {
		t.Errorf("error source = %q, want autotrader", aerr.Source)
	}
	if !session.closed {
		t.Error("session must be closed on the blocked path")
	}
}

func TestSearch_NavigateFailure(t *testing.T) {
	session := &fakeSession{navigateErr: errors.New("net::ERR_TIMED_OUT")}
	adapter := New(&fakeOpener{session: session}, nil)

	_, err := adapter.Search(context.Background(), model.Criteria{})
	if err == nil {
		t.Fatal("expected error when navigation fails")
	}
	if !session.closed {
		t.Error("session must be closed when navigation fails")
	}
}

func TestSearch_LimitApplied(t *testing.T) {
	cards := make([]rawCard, 40)
	for i := range cards {
		cards[i] = rawCard{Title: "Car", TextBlock: "Car £1,000"}
	}
	adapter := New(&fakeOpener{session: &fakeSession{cards: cards}}, nil)

	res, err := adapter.Search(context.Background(), model.Criteria{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != model.DefaultLimit {
		t.Errorf("expected default limit %d, got %d", model.DefaultLimit, len(res.Records))
	}
}

func TestBuildSearchURL(t *testing.T) {
	got := buildSearchURL(model.Criteria{
		Make:          "BMW",
		Model:         "3 Series",
		BodyType:      "Saloon",
		Postcode:      " SW1A 1AA ",
		Radius:        25,
		MinYear:       2016,
		MaxYear:       2020,
		MinPrice:      8000,
		MaxPrice:      20000,
		MinMileage:    1000,
		MaxMileage:    60000,
		MinEngineSize: 2,
		MaxEngineSize: 3,
		Colours:       []string{"Black", "Blue"},
		Transmissions: []string{"Automatic"},
		FuelType:      "Diesel",
		SellerType:    "trade",
		Doors:         4,
		Seats:         5,
		Page:          2,
	})

	if !strings.HasPrefix(got, "https://www.autotrader.co.uk/car-search?") {
		t.Fatalf("url = %q, wrong base", got)
	}
	for _, frag := range []string{
		"channel=cars",
		"sort=most-recent",
		"make=BMW",
		"model=3+Series",
		"body-type=Saloon",
		"postcode=SW1A+1AA",
		"radius=25",
		"year-from=2016",
		"year-to=2020",
		"price-from=8000",
		"price-to=20000",
		"minimum-mileage=1000",
		"maximum-mileage=60000",
		"minimum-badge-engine-size=2.0",
		"maximum-badge-engine-size=3.0",
		"colour=Black",
		"colour=Blue",
		"transmission=Automatic",
		"fuel-type=Diesel",
		"seller-type=trade",
		"quantity-of-doors=4",
		"seats_values=5",
		"page=2",
	} {
		if !strings.Contains(got, frag) {
			t.Errorf("url missing %q: %s", frag, got)
		}
	}
}

func TestBuildSearchURL_Defaults(t *testing.T) {
	got := buildSearchURL(model.Criteria{})
	if !strings.Contains(got, "channel=cars") || !strings.Contains(got, "sort=most-recent") {
		t.Errorf("url = %q, want default channel and sort", got)
	}
	if strings.Contains(got, "page=") {
		t.Errorf("url = %q, first page must not carry a page parameter", got)
	}
}
