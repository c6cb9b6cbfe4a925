// Package gumtree extracts car listings from Gumtree UK search result pages.
package gumtree

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

const baseURL = "https://www.gumtree.com"

var (
	priceRe     = regexp.MustCompile(`£[\d,]+`)
	mileageRe   = regexp.MustCompile(`(?i)([\d,]+)\s*miles`)
	numberRe    = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})*\b|\b\d+\b`)
	tradeRe     = regexp.MustCompile(`(?i)Trade`)
	privateRe   = regexp.MustCompile(`(?i)Private`)
	slugStripRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// Adapter scrapes Gumtree's server-rendered search results.
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

func (a *Adapter) ID() model.Source { return model.SourceGumtree }

func (a *Adapter) Search(ctx context.Context, criteria model.Criteria) (source.Result, error) {
	searchURL := buildSearchURL(criteria)

	rec, err := a.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return source.Result{}, source.WrapErr(model.SourceGumtree, "fetch", err)
	}
	if aerr := source.FromRecord(model.SourceGumtree, rec); aerr != nil {
		return source.Result{QueryURL: searchURL}, aerr
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rec.Body))
	if err != nil {
		return source.Result{QueryURL: searchURL}, source.WrapErr(model.SourceGumtree, "parse results page", err)
	}

	records := extract(doc, criteria.EffectiveLimit())
	a.logger.Debug("gumtree search complete", "url", searchURL, "listings", len(records))

	return source.Result{Records: records, QueryURL: searchURL}, nil
}

// buildSearchURL maps criteria onto Gumtree's URL scheme. Make and model are
// path segments; everything else is a query parameter.
func buildSearchURL(c model.Criteria) string {
	segments := []string{"cars", "uk"}
	if s := slugify(c.Make); s != "" {
		segments = append(segments, s)
	}
	if s := slugify(c.Model); s != "" {
		segments = append(segments, s)
	}

	params := url.Values{}
	sort := c.Sort
	if sort == "" {
		sort = "date"
	}
	params.Set("sort", sort)

	if c.MinPrice > 0 || c.MaxPrice > 0 {
		max := ""
		if c.MaxPrice > 0 {
			max = strconv.Itoa(int(c.MaxPrice))
		}
		params.Set("price", strconv.Itoa(int(c.MinPrice))+"_"+max)
	}
	if c.MaxMileage > 0 {
		params.Set("mileage", strconv.Itoa(int(c.MinMileage))+"_"+strconv.Itoa(int(c.MaxMileage)))
	}
	if c.BodyType != "" {
		bt := slugify(c.BodyType)
		if bt == "" {
			bt = c.BodyType
		}
		params.Set("body-type", bt)
	}
	if c.Page > 1 {
		params.Set("page", strconv.Itoa(c.Page))
	}

	return baseURL + "/" + strings.Join(segments, "/") + "?" + params.Encode()
}

func extract(doc *goquery.Document, limit int) []model.RawListing {
	doc.Find("style").Remove()

	var records []model.RawListing
	doc.Find("article[data-q='search-result']").EachWithBreak(func(i int, card *goquery.Selection) bool {
		if len(records) >= limit {
			return false
		}

		anchor := card.Find("a[data-q='search-result-anchor']").First()

		title := collapse(anchor.Find("[class*='title']").First().Text())
		if title == "" {
			title = collapse(anchor.Text())
		}
		if title == "" {
			title = "Gumtree Listing"
		}

		cardText := collapse(card.Text())
		attributesText := collapse(card.Find("[class*='attributes']").First().Text())
		location := collapse(card.Find("[class*='location']").First().Text())

		var attributeValues []string
		card.Find("div[data-q='car-attributes-value']").Each(func(_ int, val *goquery.Selection) {
			if v := strings.TrimSpace(val.Text()); v != "" {
				attributeValues = append(attributeValues, v)
			}
		})

		mileageMiles := extractMileage(card, attributesText, cardText)

		img := anchor.Find("img").First()
		image := firstAttr(img, "data-src", "data-lazy-src", "src")

		relativeLink, _ := anchor.Attr("href")
		link := relativeLink
		if !strings.HasPrefix(link, "http") {
			link = baseURL + relativeLink
		}

		listingID := lastPathSegment(relativeLink)
		if listingID == "" {
			listingID = "gumtree-" + strconv.Itoa(i+1)
		}

		sellerType := ""
		switch {
		case tradeRe.MatchString(attributesText):
			sellerType = model.SellerTrade
		case privateRe.MatchString(attributesText):
			sellerType = model.SellerPrivate
		}

		subtitle := attributesText
		if len(attributeValues) > 0 {
			subtitle = strings.Join(attributeValues, " - ")
		}

		records = append(records, model.RawListing{
			SourceID:        model.SourceGumtree,
			SourceListingID: listingID,
			Title:           title,
			Subtitle:        subtitle,
			Link:            link,
			Price:           model.ParsePrice(priceRe.FindString(cardText)),
			Currency:        "GBP",
			MileageMiles:    mileageMiles,
			MileageKm:       model.MilesToKm(mileageMiles),
			Location:        location,
			Image:           image,
			SellerType:      sellerType,
			TextBlock:       cardText,
		})
		return true
	})

	return records
}

// extractMileage tries the structured attribute pair first, then a "N miles"
// pattern in the attribute strip and the whole card, and finally falls back
// to the first plausible odometer-sized number. Year-like values are
// excluded from the fallback.
func extractMileage(card *goquery.Selection, attributesText, cardText string) int {
	structured := ""
	card.Find("div[data-q='car-attributes-name']").EachWithBreak(func(_ int, name *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(name.Text()), "mileage") {
			return true
		}
		val := name.Siblings().Filter("div[data-q='car-attributes-value']").First()
		structured = strings.TrimSpace(val.Text())
		return false
	})

	if v, ok := model.ParseMileageMiles(structured); ok {
		return v
	}
	if m := mileageRe.FindStringSubmatch(attributesText); m != nil {
		if v, ok := model.ParseMileageMiles(m[1]); ok {
			return v
		}
	}
	if m := mileageRe.FindStringSubmatch(cardText); m != nil {
		if v, ok := model.ParseMileageMiles(m[1]); ok {
			return v
		}
	}

	for _, candidate := range numberRe.FindAllString(attributesText, -1) {
		v, ok := model.ParseMileageMiles(candidate)
		if !ok {
			continue
		}
		if v > 100 && v < 300000 && (v < 1990 || v > 2025) {
			return v
		}
	}
	return 0
}

func firstAttr(sel *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func slugify(s string) string {
	s = slugStripRe.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

func lastPathSegment(link string) string {
	parts := strings.FieldsFunc(link, func(r rune) bool { return r == '/' })
	for i := len(parts) - 1; i >= 0; i-- {
		if seg, _, _ := strings.Cut(parts[i], "?"); seg != "" {
			return seg
		}
	}
	return ""
}
