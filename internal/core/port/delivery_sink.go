package port

import (
	"context"

	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/google/uuid"
)

// DeliverySinkPort is how the events of a job reach the caller, either
// accumulated for polling or pushed down a stream.
type DeliverySinkPort interface {
	// JobQueued is called once when the job enters the dispatcher queue
	JobQueued(ctx context.Context, job domain.Job) error
	// JobStarted is called when the orchestrator picks the job up
	JobStarted(ctx context.Context, job domain.Job) error
	// Emit delivers one event. A search_complete event ends the job.
	Emit(ctx context.Context, job domain.Job, event domain.SourceEvent) error
}

// ResultStorePort is the poll flavour of a sink.
type ResultStorePort interface {
	DeliverySinkPort
	Get(ctx context.Context, id uuid.UUID) (domain.SearchSnapshot, error)
}
