package offerupfetcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/adapters/fetchutil"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/gocolly/colly/v2"
)

const (
	DefaultSearchURL = "https://offerup.com/search"
	DefaultSiteURL   = "https://offerup.com"
)

type Config struct {
	SearchURL string
	// SiteURL prefixes the relative item links found on the page.
	SiteURL        string
	RandomDelay    time.Duration
	RequestTimeout time.Duration
}

// OfferUpFetcherAdapter scrapes the OfferUp search page.
type OfferUpFetcherAdapter struct {
	collector *colly.Collector
	searchURL string
	siteURL   string
}

var _ port.SourceAdapterPort = (*OfferUpFetcherAdapter)(nil)

func NewOfferUpFetcherAdapter(cfg Config) (*OfferUpFetcherAdapter, error) {
	searchURL := cfg.SearchURL
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	siteURL := strings.TrimSuffix(cfg.SiteURL, "/")
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}

	c, err := fetchutil.NewCollector(fetchutil.CollectorConfig{
		URLs:           []string{searchURL},
		RandomDelay:    cfg.RandomDelay,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("OfferUpFetcherAdapter: %w", err)
	}

	return &OfferUpFetcherAdapter{
		collector: c,
		searchURL: searchURL,
		siteURL:   siteURL,
	}, nil
}

func (a *OfferUpFetcherAdapter) Source() domain.SourceID {
	return domain.SourceOfferUp
}
