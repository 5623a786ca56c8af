package craigslistfetcher

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Hamnivore/used-item-aggregator/internal/adapters/fetchutil"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
)

// Search API items are positional arrays. The title is the last element,
// the price sits at index 3, and tagged sub-arrays carry extra data.
const (
	priceIndex  = 3
	tagImages   = 4
	tagPostPath = 6
)

func (a *CraigslistFetcherAdapter) mapItems(items []json.RawMessage) []domain.ListingRecord {
	listings := make([]domain.ListingRecord, 0, len(items))
	for _, raw := range items {
		var fields []interface{}
		if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
			continue
		}
		listing, ok := a.mapItem(fields)
		if !ok {
			continue
		}
		listings = append(listings, listing)
	}
	return listings
}

func (a *CraigslistFetcherAdapter) mapItem(fields []interface{}) (domain.ListingRecord, bool) {
	name, _ := fields[len(fields)-1].(string)
	name = fetchutil.NormalizeName(name)
	if name == "" {
		return domain.ListingRecord{}, false
	}

	listing := domain.ListingRecord{Name: name, ImageURLs: []string{}}

	if len(fields) > priceIndex {
		if price, ok := fields[priceIndex].(float64); ok {
			listing.Price = &price
		}
	}

	if images := taggedSublist(fields, tagImages); images != nil {
		listing.ImageURLs = a.imageURLs(images[1:])
	}

	if post := taggedSublist(fields, tagPostPath); post != nil {
		part := ""
		if len(post) > 1 {
			part = pathPart(post[1])
		}
		itemURL := fmt.Sprintf("%s/%s.html", a.baseURL, part)
		listing.URL = &itemURL
	}

	return listing, true
}

// taggedSublist returns the first nested array whose first element equals tag.
func taggedSublist(fields []interface{}, tag float64) []interface{} {
	for _, f := range fields {
		sub, ok := f.([]interface{})
		if !ok || len(sub) == 0 {
			continue
		}
		if t, ok := sub[0].(float64); ok && t == tag {
			return sub
		}
	}
	return nil
}

func pathPart(v interface{}) string {
	switch p := v.(type) {
	case string:
		return p
	case float64:
		return strconv.FormatFloat(p, 'f', -1, 64)
	default:
		return fmt.Sprint(p)
	}
}

func (a *CraigslistFetcherAdapter) imageURLs(ids []interface{}) []string {
	urls := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, ok := raw.(string)
		if !ok {
			continue
		}
		parts := strings.Split(id, ":")
		if len(parts) < 2 {
			continue
		}
		urls = append(urls, fmt.Sprintf("%s/%s_300x300.jpg", a.imageBaseURL, parts[1]))
	}
	return urls
}
