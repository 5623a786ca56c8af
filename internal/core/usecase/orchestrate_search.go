package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/contextkeys"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
)

const DefaultSourceTimeout = 30 * time.Second

type OrchestratorConfig struct {
	// SourceTimeout bounds every adapter call. Zero means DefaultSourceTimeout.
	SourceTimeout time.Duration
}

type OrchestrateSearchUseCase struct {
	adapters      []port.SourceAdapterPort
	sourceTimeout time.Duration
}

// NewOrchestrateSearchUseCase creates the fan-out/fan-in use case over the given adapters
func NewOrchestrateSearchUseCase(adapters []port.SourceAdapterPort, cfg OrchestratorConfig) (*OrchestrateSearchUseCase, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("orchestrator: at least one source adapter is required")
	}
	timeout := cfg.SourceTimeout
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	return &OrchestrateSearchUseCase{
		adapters:      adapters,
		sourceTimeout: timeout,
	}, nil
}

// adapterOutcome is what one adapter settled with
type adapterOutcome struct {
	source domain.SourceID
	items  []domain.ListingRecord
	err    error
}

// Execute runs the job against all adapters concurrently and emits its events
// into sink. Adapter failures become error events. The search_complete event
// is emitted once, after every adapter has settled.
func (uc *OrchestrateSearchUseCase) Execute(ctx context.Context, job domain.Job, sink port.DeliverySinkPort) (domain.SearchStats, error) {
	baseLogger := contextkeys.LoggerFromContext(ctx)
	ucLogger := baseLogger.WithFields(port.Fields{
		"use_case":  "OrchestrateSearch",
		"search_id": job.ID.String(),
	})

	stats := domain.SearchStats{Adapters: len(uc.adapters)}

	if err := job.Transition(domain.JobStatusRunning, time.Now().UTC()); err != nil {
		ucLogger.Error("Job cannot be started", err, port.Fields{"status": job.Status})
		return stats, err
	}
	if err := sink.JobStarted(ctx, job); err != nil {
		ucLogger.Error("Sink rejected job start", err, nil)
		return stats, fmt.Errorf("orchestrator: failed to mark job %s running: %w", job.ID, err)
	}

	ucLogger.Info("Starting search across sources", port.Fields{
		"query":          job.Query,
		"adapters_count": len(uc.adapters),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// buffered to N so a settled adapter never blocks after we stop reading
	outcomes := make(chan adapterOutcome, len(uc.adapters))
	var wg sync.WaitGroup

	for _, adapter := range uc.adapters {
		wg.Add(1)
		go func(a port.SourceAdapterPort) {
			defer wg.Done()

			sourceLogger := ucLogger.WithFields(port.Fields{"source": a.Source()})
			sourceCtx := contextkeys.ContextWithLogger(runCtx, sourceLogger)

			outcomes <- uc.runAdapter(sourceCtx, a, job.Query)
		}(adapter)
	}

	for settled := 0; settled < len(uc.adapters); settled++ {
		out := <-outcomes
		sourceLogger := ucLogger.WithFields(port.Fields{"source": out.source})

		if out.err != nil {
			stats.Errors++
			sourceLogger.Warn("Source failed", port.Fields{"error": out.err.Error()})
			if err := sink.Emit(ctx, job, domain.NewSourceErrorEvent(out.source, out.err.Error())); err != nil {
				return stats, uc.abort(ucLogger, cancel, job, err)
			}
			continue
		}

		if len(out.items) == 0 {
			stats.Empty++
			sourceLogger.Info("Source returned no listings", nil)
			continue
		}

		sourceLogger.Info("Source returned listings", port.Fields{"listings_count": len(out.items)})
		for _, item := range out.items {
			if err := sink.Emit(ctx, job, domain.NewResultEvent(out.source, item)); err != nil {
				return stats, uc.abort(ucLogger, cancel, job, err)
			}
			stats.Results++
		}
	}

	wg.Wait()

	if err := job.Transition(domain.JobStatusDone, time.Now().UTC()); err != nil {
		return stats, err
	}
	if err := sink.Emit(ctx, job, domain.NewJobCompleteEvent()); err != nil {
		ucLogger.Error("Failed to deliver search completion", err, nil)
		return stats, fmt.Errorf("orchestrator: failed to complete job %s: %w", job.ID, err)
	}

	ucLogger.Info("All sources settled.", port.Fields{
		"results": stats.Results,
		"errors":  stats.Errors,
		"empty":   stats.Empty,
	})

	return stats, nil
}

// abort stops the job after the sink refused an event. Adapters still running
// are cancelled and nothing more is pushed.
func (uc *OrchestrateSearchUseCase) abort(logger port.LoggerPort, cancel context.CancelFunc, job domain.Job, err error) error {
	cancel()
	if errors.Is(err, domain.ErrTransportDisconnected) {
		logger.Warn("Delivery transport disconnected, abandoning job", nil)
	} else {
		logger.Error("Sink rejected event, abandoning job", err, nil)
	}
	return fmt.Errorf("orchestrator: job %s aborted: %w", job.ID, err)
}

// runAdapter calls one adapter under the source timeout. A call that does not
// return by the deadline is abandoned and reported as a timeout. Panics are
// turned into errors.
func (uc *OrchestrateSearchUseCase) runAdapter(ctx context.Context, adapter port.SourceAdapterPort, query string) adapterOutcome {
	source := adapter.Source()
	logger := contextkeys.LoggerFromContext(ctx)

	callCtx, cancel := context.WithTimeout(ctx, uc.sourceTimeout)
	defer cancel()

	done := make(chan adapterOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Source adapter panicked", fmt.Errorf("%v", r), nil)
				done <- adapterOutcome{source: source, err: fmt.Errorf("adapter panic: %v", r)}
			}
		}()

		logger.Debug("Calling source adapter", port.Fields{"timeout": uc.sourceTimeout.String()})
		items, err := adapter.Search(callCtx, query)
		done <- adapterOutcome{source: source, items: items, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			out.err = domain.ErrSourceTimeout
		}
		return out
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return adapterOutcome{source: source, err: domain.ErrSourceTimeout}
		}
		return adapterOutcome{source: source, err: callCtx.Err()}
	}
}
