package usecases_port

import (
	"context"

	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
)

// OrchestrateSearchPort runs one job against every source adapter and
// delivers the resulting events to sink.
type OrchestrateSearchPort interface {
	Execute(ctx context.Context, job domain.Job, sink port.DeliverySinkPort) (domain.SearchStats, error)
}
