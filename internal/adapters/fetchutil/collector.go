package fetchutil

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
)

// CollectorConfig is shared by all colly based source adapters.
type CollectorConfig struct {
	// URLs the adapter will visit. Their hosts become the allowed domains.
	URLs []string
	// RandomDelay is slept after each request, 0..RandomDelay.
	RandomDelay    time.Duration
	RequestTimeout time.Duration
	Parallelism    int
}

// NewCollector builds the parent collector of an adapter. Clones share its
// HTTP backend, so limits and cookies are shared across searches.
func NewCollector(cfg CollectorConfig) (*colly.Collector, error) {
	hosts := make([]string, 0, len(cfg.URLs))
	for _, raw := range cfg.URLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid source url %q: %w", raw, err)
		}
		if u.Hostname() == "" {
			return nil, fmt.Errorf("source url %q has no host", raw)
		}
		hosts = append(hosts, u.Hostname())
	}

	c := colly.NewCollector(colly.AllowedDomains(hosts...), colly.AllowURLRevisit())

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
		RandomDelay: cfg.RandomDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set limit rule: %w", err)
	}

	if cfg.RequestTimeout > 0 {
		c.SetRequestTimeout(cfg.RequestTimeout)
	}

	return c, nil
}

// Clone returns a one-shot collector for a single search. Callbacks are not
// inherited by clones, so the browser-like extensions are attached here.
// Requests issued after ctx is done are aborted.
func Clone(ctx context.Context, parent *colly.Collector) *colly.Collector {
	c := parent.Clone()
	extensions.RandomUserAgent(c)
	extensions.Referer(c)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	return c
}

// ToFetchError converts a colly failure into the error the core expects.
func ToFetchError(source domain.SourceID, r *colly.Response, err error) *domain.FetchError {
	fe := &domain.FetchError{Source: source, Err: err}
	if r != nil && r.StatusCode != 0 {
		fe.StatusCode = r.StatusCode
		fe.Message = fmt.Sprintf("unexpected status code %d", r.StatusCode)
		return fe
	}
	if err != nil {
		fe.Message = err.Error()
	}
	return fe
}

// VisitError picks the most specific error of a finished visit.
func VisitError(ctx context.Context, source domain.SourceID, responseErr, visitErr error) error {
	if responseErr != nil {
		return responseErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if visitErr != nil {
		var fe *domain.FetchError
		if errors.As(visitErr, &fe) {
			return fe
		}
		return &domain.FetchError{Source: source, Message: visitErr.Error(), Err: visitErr}
	}
	return nil
}
