// Package autotrader extracts car listings from AutoTrader UK. AutoTrader
// populates its result cards with scripts, so the adapter drives a rendering
// session instead of fetching static markup.
package autotrader

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/carsift/carsift/internal/model"
	"github.com/carsift/carsift/internal/render"
	"github.com/carsift/carsift/internal/source"
)

const (
	baseURL    = "https://www.autotrader.co.uk"
	searchPath = "/car-search"
)

var (
	priceRe      = regexp.MustCompile(`£[\d,]+`)
	mileageRe    = regexp.MustCompile(`(?i)([\d,]+)\s+miles`)
	locationRe   = regexp.MustCompile(`(?i)(Dealer|Private)\s+location`)
	listingIDRe  = regexp.MustCompile(`car-details/([^?]+)`)
	blockedProbe = `document.title.includes("Attention Required")`
)

// cardProbe runs in the page and returns one object per result card. The
// title anchor mixes a bare text node with a detail span, so both are
// collected before joining.
const cardProbe = `
(() => {
  const nodes = Array.from(document.querySelectorAll("[data-testid^='advertCard-']"));
  return nodes.map((card) => {
    const titleLink = card.querySelector("[data-testid='search-listing-title']");
    const parts = [];
    if (titleLink) {
      for (const child of titleLink.childNodes) {
        if (child.nodeType === Node.TEXT_NODE && child.textContent.trim()) {
          parts.push(child.textContent.trim());
          break;
        }
      }
      const detail = titleLink.querySelector("span");
      if (detail && detail.textContent.trim()) {
        parts.push(detail.textContent.trim());
      }
    }
    const text = (sel) => {
      const el = card.querySelector(sel);
      return el && el.textContent ? el.textContent.trim() : "";
    };
    const img = card.querySelector("picture img");
    return {
      title: parts.join(" ").trim() || (titleLink && titleLink.textContent.trim()) || "",
      subtitle: text("[data-testid='search-listing-subtitle']"),
      attention: text("[data-testid='search-listing-attention-grabber']"),
      location: text("[data-testid='search-listing-location']"),
      seller: text("[data-testid='private-seller']"),
      image: img ? img.src : "",
      link: titleLink ? titleLink.getAttribute("href") || "" : "",
      textBlock: card.innerText || "",
    };
  });
})()`

type rawCard struct {
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle"`
	Attention string `json:"attention"`
	Location  string `json:"location"`
	Seller    string `json:"seller"`
	Image     string `json:"image"`
	Link      string `json:"link"`
	TextBlock string `json:"textBlock"`
}

// Adapter renders an AutoTrader search page and reads the result cards out
// of the live DOM.
type Adapter struct {
	opener render.Opener
	logger *slog.Logger
}

func New(opener render.Opener, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{opener: opener, logger: logger}
}

func (a *Adapter) ID() model.Source { return model.SourceAutoTrader }

func (a *Adapter) Search(ctx context.Context, criteria model.Criteria) (source.Result, error) {
	searchURL := buildSearchURL(criteria)

	session, err := a.opener.Open(ctx)
	if err != nil {
		return source.Result{QueryURL: searchURL}, source.WrapErr(model.SourceAutoTrader, "open rendering session", err)
	}
	defer session.Close()

	if err := session.Navigate(searchURL); err != nil {
		return source.Result{QueryURL: searchURL}, source.WrapErr(model.SourceAutoTrader, "load results page", err)
	}

	var blocked bool
	if err := session.Evaluate(blockedProbe, &blocked); err != nil {
		return source.Result{QueryURL: searchURL}, source.WrapErr(model.SourceAutoTrader, "inspect page title", err)
	}
	if blocked {
		return source.Result{QueryURL: searchURL}, source.Errf(model.SourceAutoTrader, "request blocked by upstream interstitial")
	}

	var cards []rawCard
	if err := session.Evaluate(cardProbe, &cards); err != nil {
		return source.Result{QueryURL: searchURL}, source.WrapErr(model.SourceAutoTrader, "extract result cards", err)
	}

	limit := criteria.EffectiveLimit()
	if len(cards) > limit {
		cards = cards[:limit]
	}

	records := make([]model.RawListing, 0, len(cards))
	for i, card := range cards {
		records = append(records, normalize(card, i))
	}
	a.logger.Debug("autotrader search complete", "url", searchURL, "listings", len(records))

	return source.Result{Records: records, QueryURL: searchURL}, nil
}

// buildSearchURL maps criteria onto AutoTrader's search query language.
func buildSearchURL(c model.Criteria) string {
	params := url.Values{}

	channel := c.Channel
	if channel == "" {
		channel = "cars"
	}
	params.Set("channel", channel)

	sort := c.Sort
	if sort == "" {
		sort = "most-recent"
	}
	params.Set("sort", sort)

	if c.BodyType != "" {
		params.Set("body-type", c.BodyType)
	}
	if c.Make != "" {
		params.Set("make", c.Make)
	}
	if c.Model != "" {
		params.Set("model", c.Model)
	}
	if c.Postcode != "" {
		params.Set("postcode", strings.TrimSpace(c.Postcode))
	}
	if c.Radius > 0 {
		params.Set("radius", strconv.Itoa(c.Radius))
	}
	if c.MinYear > 0 {
		params.Set("year-from", strconv.Itoa(c.MinYear))
	}
	if c.MaxYear > 0 {
		params.Set("year-to", strconv.Itoa(c.MaxYear))
	}
	if c.MinPrice > 0 {
		params.Set("price-from", strconv.Itoa(int(c.MinPrice)))
	}
	if c.MaxPrice > 0 {
		params.Set("price-to", strconv.Itoa(int(c.MaxPrice)))
	}
	if c.MinMileage > 0 {
		params.Set("minimum-mileage", strconv.Itoa(int(c.MinMileage)))
	}
	if c.MaxMileage > 0 {
		params.Set("maximum-mileage", strconv.Itoa(int(c.MaxMileage)))
	}
	if c.MinEngineSize > 0 {
		params.Set("minimum-badge-engine-size", strconv.FormatFloat(c.MinEngineSize, 'f', 1, 64))
	}
	if c.MaxEngineSize > 0 {
		params.Set("maximum-badge-engine-size", strconv.FormatFloat(c.MaxEngineSize, 'f', 1, 64))
	}
	for _, colour := range c.Colours {
		if colour != "" {
			params.Add("colour", colour)
		}
	}
	for _, transmission := range c.Transmissions {
		if transmission != "" {
			params.Add("transmission", transmission)
		}
	}
	if c.FuelType != "" {
		params.Set("fuel-type", c.FuelType)
	}
	if c.SellerType != "" {
		params.Set("seller-type", c.SellerType)
	}
	if c.Doors > 0 {
		params.Set("quantity-of-doors", strconv.Itoa(c.Doors))
	}
	if c.Seats > 0 {
		params.Set("seats_values", strconv.Itoa(c.Seats))
	}
	if c.Page > 1 {
		params.Set("page", strconv.Itoa(c.Page))
	}

	return baseURL + searchPath + "?" + params.Encode()
}

func normalize(card rawCard, index int) model.RawListing {
	title := card.Title
	if title == "" {
		title = "AutoTrader Listing"
	}

	priceText := priceRe.FindString(card.Title)
	if priceText == "" {
		priceText = priceRe.FindString(card.TextBlock)
	}

	mileageMiles := 0
	if m := mileageRe.FindStringSubmatch(card.TextBlock); m != nil {
		mileageMiles, _ = model.ParseMileageMiles(m[1])
	}

	location := strings.TrimSpace(locationRe.ReplaceAllString(card.Location, ""))

	listingID := ""
	if m := listingIDRe.FindStringSubmatch(card.Link); m != nil {
		listingID = m[1]
	}
	if listingID == "" {
		listingID = "autotrader-" + strconv.Itoa(index+1)
	}

	link := baseURL
	if card.Link != "" {
		if ref, err := url.Parse(card.Link); err == nil {
			base, _ := url.Parse(baseURL)
			link = base.ResolveReference(ref).String()
		}
	}

	subtitle := card.Subtitle
	if subtitle == "" {
		subtitle = card.Attention
	}

	sellerType := ""
	if card.Seller != "" {
		if strings.Contains(strings.ToLower(card.Seller), "private") {
			sellerType = model.SellerPrivate
		} else {
			sellerType = model.SellerTrade
		}
	}

	return model.RawListing{
		SourceID:        model.SourceAutoTrader,
		SourceListingID: listingID,
		Title:           title,
		Subtitle:        subtitle,
		Link:            link,
		Price:           model.ParsePrice(priceText),
		Currency:        "GBP",
		MileageMiles:    mileageMiles,
		MileageKm:       model.MilesToKm(mileageMiles),
		Location:        location,
		Image:           card.Image,
		SellerType:      sellerType,
		TextBlock:       card.TextBlock,
	}
}
