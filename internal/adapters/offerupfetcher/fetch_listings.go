package offerupfetcher

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

func (a *OfferUpFetcherAdapter) Search(ctx context.Context, query string) ([]domain.ListingRecord, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{"component": "OfferUpFetcherAdapter"})

	u, err := url.Parse(a.searchURL)
	if err != nil {
		return nil, fmt.Errorf("offerup adapter: failed to build URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	collector := fetchutil.Clone(ctx, a.collector)

	var listings []domain.ListingRecord
	var responseErr error
	parsed := false

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		if parsed {
			return
		}
		parsed = true
		listings = a.extractListings(e.DOM)
	})

	collector.OnError(func(r *colly.Response, err error) {
		responseErr = fetchutil.ToFetchError(domain.SourceOfferUp, r, err)
	})

	visitErr := collector.Visit(u.String())
	collector.Wait()

	if err := fetchutil.VisitError(ctx, domain.SourceOfferUp, responseErr, visitErr); err != nil {
		logger.Warn("OfferUp search failed", port.Fields{"error": err.Error()})
		return nil, err
	}

	logger.Debug("Parsed OfferUp listings", port.Fields{"listings": len(listings)})
	return listings, nil
}
