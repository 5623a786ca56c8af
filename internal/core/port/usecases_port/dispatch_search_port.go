package usecases_port

import (
	"context"

	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
)

// DispatchSearchPort accepts searches without blocking the caller.
type DispatchSearchPort interface {
	Enqueue(ctx context.Context, query string) (domain.Job, error)
}
