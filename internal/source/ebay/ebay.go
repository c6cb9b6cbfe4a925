// Package ebay extracts car listings from eBay UK search result pages.
package ebay

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/carsift/carsift/internal/fetch"
	"github.com/carsift/carsift/internal/model"
	"github.com/carsift/carsift/internal/source"
)

const baseURL = "https://www.ebay.co.uk/sch/Cars-/9801/i.html"

var locationRe = regexp.MustCompile(`(?i)Item location:\s*`)

// Adapter scrapes eBay's server-rendered search results. eBay does not need
// script execution, so a plain page fetch is enough.
type Adapter struct {
	fetcher fetch.PageFetcher
	logger  *slog.Logger
}

func New(fetcher fetch.PageFetcher, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{fetcher: fetcher, logger: logger}
}

func (a *Adapter) ID() model.Source { return model.SourceEbay }

// Search fetches one results page and extracts up to the effective limit of
// listings from it.
func (a *Adapter) Search(ctx context.Context, criteria model.Criteria) (source.Result, error) {
	searchURL := buildSearchURL(criteria)

	rec, err := a.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return source.Result{}, source.WrapErr(model.SourceEbay, "fetch", err)
	}
	if aerr := source.FromRecord(model.SourceEbay, rec); aerr != nil {
		return source.Result{QueryURL: searchURL}, aerr
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rec.Body))
	if err != nil {
		return source.Result{QueryURL: searchURL}, source.WrapErr(model.SourceEbay, "parse results page", err)
	}

	records := extract(doc, criteria.EffectiveLimit())
	a.logger.Debug("ebay search complete", "url", searchURL, "listings", len(records))

	return source.Result{Records: records, QueryURL: searchURL}, nil
}

// buildSearchURL maps criteria onto eBay's search query language. Make,
// model, and body type have no dedicated parameters and travel as keywords.
func buildSearchURL(c model.Criteria) string {
	params := url.Values{}

	var keywords []string
	if c.Make != "" {
		keywords = append(keywords, c.Make)
	}
	if c.Model != "" {
		keywords = append(keywords, c.Model)
	}
	if c.BodyType != "" {
		keywords = append(keywords, c.BodyType)
	}
	if len(keywords) > 0 {
		params.Set("_nkw", strings.Join(keywords, " "))
	}
	if c.MinPrice > 0 {
		params.Set("_udlo", strconv.Itoa(int(c.MinPrice)))
	}
	if c.MaxPrice > 0 {
		params.Set("_udhi", strconv.Itoa(int(c.MaxPrice)))
	}
	// 10 = newly listed, 15 = price ascending
	if c.Sort == "price-asc" {
		params.Set("_sop", "15")
	} else {
		params.Set("_sop", "10")
	}
	if c.Page > 1 {
		params.Set("_pgn", strconv.Itoa(c.Page))
	}

	return baseURL + "?" + params.Encode()
}

func extract(doc *goquery.Document, limit int) []model.RawListing {
	var records []model.RawListing

	doc.Find("li.s-item").EachWithBreak(func(i int, card *goquery.Selection) bool {
		if len(records) >= limit {
			return false
		}

		title := collapse(card.Find(".s-item__title").Text())
		if title == "" {
			title = "eBay Listing"
		}
		// Sponsored "Shop on eBay" cards are padding, not listings.
		if strings.Contains(title, "Shop on eBay") {
			return true
		}

		priceText := collapse(card.Find(".s-item__price").First().Text())
		mileageText := collapse(card.Find(".s-item__dynamic").First().Text())
		mileageMiles, _ := model.ParseMileageMiles(mileageText)

		location := strings.TrimSpace(locationRe.ReplaceAllString(
			collapse(card.Find(".s-item__location").First().Text()), ""))

		img := card.Find(".s-item__image-img").First()
		image, ok := img.Attr("src")
		if !ok || image == "" {
			image, _ = img.Attr("data-src")
		}
		// s_1x2.gif is the lazy-load placeholder, not a photo.
		if strings.Contains(image, "s_1x2.gif") {
			image = ""
		}

		link, _ := card.Find(".s-item__link").Attr("href")
		if link == "" {
			link = "https://www.ebay.co.uk"
		}

		listingID, _ := card.Attr("data-view")
		if listingID == "" {
			listingID = lastPathSegment(link)
		}
		if listingID == "" {
			listingID = "ebay-" + strconv.Itoa(i+1)
		}

		sellerType := ""
		if strings.Contains(mileageText, "Dealer") {
			sellerType = model.SellerTrade
		}

		records = append(records, model.RawListing{
			SourceID:        model.SourceEbay,
			SourceListingID: listingID,
			Title:           title,
			Link:            link,
			Price:           model.ParsePrice(priceText),
			Currency:        "GBP",
			MileageMiles:    mileageMiles,
			MileageKm:       model.MilesToKm(mileageMiles),
			Location:        location,
			Image:           image,
			SellerType:      sellerType,
			TextBlock:       strings.TrimSpace(title + " " + mileageText),
		})
		return true
	})

	return records
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func lastPathSegment(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
