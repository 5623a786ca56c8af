package port

import (
	"context"

	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
)

// SourceAdapterPort turns a query into listings for one third-party source.
// Failures are reported as *domain.FetchError.
type SourceAdapterPort interface {
	Source() domain.SourceID
	Search(ctx context.Context, query string) ([]domain.ListingRecord, error)
}
