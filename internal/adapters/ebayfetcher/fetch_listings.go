package ebayfetcher

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Hamnivore/used-item-aggregator/internal/adapters/fetchutil"
	"github.com/Hamnivore/used-item-aggregator/internal/contextkeys"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/gocolly/colly/v2"
)

func (a *EbayFetcherAdapter) buildURL(query string) (string, error) {
	u, err := url.Parse(a.searchURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("_nkw", query)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Search reads the first results list of the search page.
func (a *EbayFetcherAdapter) Search(ctx context.Context, query string) ([]domain.ListingRecord, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{"component": "EbayFetcherAdapter"})

	targetURL, err := a.buildURL(query)
	if err != nil {
		return nil, fmt.Errorf("ebay adapter: failed to build URL: %w", err)
	}

	collector := fetchutil.Clone(ctx, a.collector)

	var listings []domain.ListingRecord
	var responseErr error
	parsed := false

	collector.OnRequest(func(r *colly.Request) {
		logger.Debug("Making request to search page", port.Fields{"url": r.URL.String()})
	})

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		if parsed {
			return
		}
		parsed = true
		listings = extractListings(e.DOM)
	})

	collector.OnError(func(r *colly.Response, err error) {
		responseErr = fetchutil.ToFetchError(domain.SourceEbay, r, err)
	})

	visitErr := collector.Visit(targetURL)
	collector.Wait()

	if err := fetchutil.VisitError(ctx, domain.SourceEbay, responseErr, visitErr); err != nil {
		logger.Warn("eBay search failed", port.Fields{"error": err.Error()})
		return nil, err
	}

	logger.Debug("Parsed eBay listings", port.Fields{"listings": len(listings)})
	return listings, nil
}
