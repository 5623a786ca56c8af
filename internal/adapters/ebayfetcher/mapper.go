package ebayfetcher

import (
	"strings"

	"github.com/Hamnivore/used-item-aggregator/internal/adapters/fetchutil"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/PuerkitoBio/goquery"
)

func extractListings(doc *goquery.Selection) []domain.ListingRecord {
	results := doc.Find(".srp-results").First()
	if results.Length() == 0 {
		return nil
	}

	var listings []domain.ListingRecord
	results.Find("li[id]").Each(func(_ int, li *goquery.Selection) {
		if listing, ok := parseListing(li); ok {
			listings = append(listings, listing)
		}
	})
	return listings
}

func parseListing(li *goquery.Selection) (domain.ListingRecord, bool) {
	name := fetchutil.NormalizeName(li.Find(".s-item__title").First().Text())
	if name == "" {
		return domain.ListingRecord{}, false
	}

	listing := domain.ListingRecord{Name: name, ImageURLs: []string{}}

	if price := li.Find(".s-item__price").First(); price.Length() > 0 {
		listing.Price = fetchutil.ParsePrice(strings.TrimSpace(price.Text()))
	}

	if href, ok := li.Find("a.s-item__link").First().Attr("href"); ok {
		listing.URL = fetchutil.StringPtr(href)
	}

	if img := li.Find("img").First(); img.Length() > 0 {
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}
		if src != "" {
			listing.ImageURLs = []string{src}
		}
	}

	return listing, true
}
