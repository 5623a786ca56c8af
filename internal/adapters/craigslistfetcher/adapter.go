package craigslistfetcher

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
	defaultAPIURL       = "https://sapi.craigslist.org/web/v8/postings/search/full"
	defaultImageBaseURL = "https://images.craigslist.org"
)

type Config struct {
	// Location is the craigslist subdomain, e.g. "chicago". Ignored when BaseURL is set.
	Location     string
	BaseURL      string
	APIURL       string
	ImageBaseURL string

	RandomDelay    time.Duration
	RequestTimeout time.Duration
}

// CraigslistFetcherAdapter searches craigslist through its JSON search API.
type CraigslistFetcherAdapter struct {
	collector    *colly.Collector
	baseURL      string
	apiURL       string
	imageBaseURL string
}

var _ port.SourceAdapterPort = (*CraigslistFetcherAdapter)(nil)

func NewCraigslistFetcherAdapter(cfg Config) (*CraigslistFetcherAdapter, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		if cfg.Location == "" {
			return nil, fmt.Errorf("CraigslistFetcherAdapter: location or base url is required")
		}
		baseURL = fmt.Sprintf("https://%s.craigslist.org", cfg.Location)
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	imageBaseURL := strings.TrimSuffix(cfg.ImageBaseURL, "/")
	if imageBaseURL == "" {
		imageBaseURL = defaultImageBaseURL
	}

	c, err := fetchutil.NewCollector(fetchutil.CollectorConfig{
		URLs:           []string{baseURL, apiURL},
		RandomDelay:    cfg.RandomDelay,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("CraigslistFetcherAdapter: %w", err)
	}

	return &CraigslistFetcherAdapter{
		collector:    c,
		baseURL:      baseURL,
		apiURL:       apiURL,
		imageBaseURL: imageBaseURL,
	}, nil
}

func (a *CraigslistFetcherAdapter) Source() domain.SourceID {
	return domain.SourceCraigslist
}
