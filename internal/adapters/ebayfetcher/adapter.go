package ebayfetcher

import (
	"fmt"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/adapters/fetchutil"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/gocolly/colly/v2"
)

const DefaultSearchURL = "https://www.ebay.com/sch/i.html"

type Config struct {
	SearchURL      string
	RandomDelay    time.Duration
	RequestTimeout time.Duration
}

// EbayFetcherAdapter scrapes the eBay search results page.
type EbayFetcherAdapter struct {
	collector *colly.Collector
	searchURL string
}

var _ port.SourceAdapterPort = (*EbayFetcherAdapter)(nil)

func NewEbayFetcherAdapter(cfg Config) (*EbayFetcherAdapter, error) {
	searchURL := cfg.SearchURL
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}

	c, err := fetchutil.NewCollector(fetchutil.CollectorConfig{
		URLs:           []string{searchURL},
		RandomDelay:    cfg.RandomDelay,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("EbayFetcherAdapter: %w", err)
	}

	return &EbayFetcherAdapter{collector: c, searchURL: searchURL}, nil
}

func (a *EbayFetcherAdapter) Source() domain.SourceID {
	return domain.SourceEbay
}
