package craigslistfetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"

	"github.com/Hamnivore/used-item-aggregator/internal/adapters/fetchutil"
	"github.com/Hamnivore/used-item-aggregator/internal/contextkeys"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/gocolly/colly/v2"
)

var searchPathRe = regexp.MustCompile(`var searchPath = "([^"]+)";`)

const defaultSearchPath = "sss"

type searchResponse struct {
	Data struct {
		Items []json.RawMessage `json:"items"`
	} `json:"data"`
}

// Search opens a session on the site, discovers the search path for the
// query and then reads the listings from the search API.
func (a *CraigslistFetcherAdapter) Search(ctx context.Context, query string) ([]domain.ListingRecord, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{"component": "CraigslistFetcherAdapter"})

	if err := a.initSession(ctx); err != nil {
		return nil, err
	}

	searchPath, err := a.discoverSearchPath(ctx, query)
	if err != nil {
		return nil, err
	}
	logger.Debug("Resolved search path", port.Fields{"search_path": searchPath})

	items, err := a.fetchItems(ctx, query, searchPath)
	if err != nil {
		return nil, err
	}

	listings := a.mapItems(items)
	logger.Debug("Parsed craigslist listings", port.Fields{"raw_items": len(items), "listings": len(listings)})
	return listings, nil
}

func (a *CraigslistFetcherAdapter) initSession(ctx context.Context) error {
	collector := fetchutil.Clone(ctx, a.collector)

	var responseErr error
	collector.OnError(func(r *colly.Response, err error) {
		responseErr = fetchutil.ToFetchError(domain.SourceCraigslist, r, err)
	})

	visitErr := collector.Visit(a.baseURL)
	collector.Wait()

	if err := fetchutil.VisitError(ctx, domain.SourceCraigslist, responseErr, visitErr); err != nil {
		return fmt.Errorf("craigslist: failed to initialize session: %w", err)
	}
	return nil
}

func (a *CraigslistFetcherAdapter) discoverSearchPath(ctx context.Context, query string) (string, error) {
	collector := fetchutil.Clone(ctx, a.collector)

	searchPath := defaultSearchPath
	var responseErr error

	collector.OnResponse(func(r *colly.Response) {
		if m := searchPathRe.FindSubmatch(r.Body); m != nil {
			searchPath = string(m[1])
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		responseErr = fetchutil.ToFetchError(domain.SourceCraigslist, r, err)
	})

	searchURL := fmt.Sprintf("%s/search/sss?query=%s", a.baseURL, url.QueryEscape(query))
	visitErr := collector.Visit(searchURL)
	collector.Wait()

	if err := fetchutil.VisitError(ctx, domain.SourceCraigslist, responseErr, visitErr); err != nil {
		return "", fmt.Errorf("craigslist: failed to perform search: %w", err)
	}
	return searchPath, nil
}

func (a *CraigslistFetcherAdapter) fetchItems(ctx context.Context, query, searchPath string) ([]json.RawMessage, error) {
	collector := fetchutil.Clone(ctx, a.collector)

	var items []json.RawMessage
	var responseErr error

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "*/*")
		r.Headers.Set("Origin", a.baseURL)
		r.Headers.Set("Referer", a.baseURL+"/")
		r.Headers.Set("Sec-Fetch-Dest", "empty")
		r.Headers.Set("Sec-Fetch-Mode", "cors")
		r.Headers.Set("Sec-Fetch-Site", "same-site")
		r.Headers.Set("Cache-Control", "no-cache")
	})
	collector.OnResponse(func(r *colly.Response) {
		var data searchResponse
		if err := json.Unmarshal(r.Body, &data); err != nil {
			responseErr = &domain.FetchError{
				Source:  domain.SourceCraigslist,
				Message: fmt.Sprintf("invalid search api response: %v", err),
				Err:     err,
			}
			return
		}
		items = data.Data.Items
	})
	collector.OnError(func(r *colly.Response, err error) {
		responseErr = fetchutil.ToFetchError(domain.SourceCraigslist, r, err)
	})

	params := url.Values{}
	params.Set("batch", "11-0-360-0-0")
	params.Set("cc", "US")
	params.Set("lang", "en")
	params.Set("query", query)
	params.Set("searchPath", searchPath)

	visitErr := collector.Visit(a.apiURL + "?" + params.Encode())
	collector.Wait()

	if err := fetchutil.VisitError(ctx, domain.SourceCraigslist, responseErr, visitErr); err != nil {
		return nil, fmt.Errorf("craigslist: search api request failed: %w", err)
	}
	return items, nil
}
