package offerupfetcher

import (
	"strings"

	"github.com/Hamnivore/used-item-aggregator/internal/adapters/fetchutil"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const listingsHeading = "Current listings"

// extractListings reads the first list that follows the "Current listings" heading.
func (a *OfferUpFetcherAdapter) extractListings(doc *goquery.Selection) []domain.ListingRecord {
	var container *goquery.Selection
	headingSeen := false

	// group selectors match in document order
	doc.Find("h2, ul").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "h2" {
			if strings.TrimSpace(s.Text()) == listingsHeading {
				headingSeen = true
			}
			return true
		}
		if headingSeen {
			container = s
			return false
		}
		return true
	})
	if container == nil {
		return nil
	}

	var listings []domain.ListingRecord
	container.Find("li").Each(func(_ int, li *goquery.Selection) {
		if listing, ok := a.parseListing(li); ok {
			listings = append(listings, listing)
		}
	})
	return listings
}

func (a *OfferUpFetcherAdapter) parseListing(li *goquery.Selection) (domain.ListingRecord, bool) {
	name := fetchutil.NormalizeName(li.Find("span.MuiTypography-subtitle1").First().Text())
	if name == "" {
		return domain.ListingRecord{}, false
	}

	listing := domain.ListingRecord{Name: name, ImageURLs: []string{}}

	for _, n := range li.Nodes {
		if text := firstTextContaining(n, "$"); text != "" {
			listing.Price = fetchutil.ParsePrice(text)
			break
		}
	}

	if href, ok := li.Find("a").First().Attr("href"); ok {
		itemURL := a.siteURL + href
		listing.URL = &itemURL
	}

	if src, ok := li.Find("img").First().Attr("src"); ok && src != "" {
		listing.ImageURLs = []string{src}
	}

	return listing, true
}

// firstTextContaining walks n depth-first and returns the first text node containing substr.
func firstTextContaining(n *html.Node, substr string) string {
	if n.Type == html.TextNode && strings.Contains(n.Data, substr) {
		return n.Data
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text := firstTextContaining(c, substr); text != "" {
			return text
		}
	}
	return ""
}
