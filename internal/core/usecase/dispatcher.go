package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/contextkeys"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	usecases_port "github.com/Hamnivore/used-item-aggregator/internal/core/port/usecases_port"
)

const DefaultQueueCapacity = 100

// cancelTimeout bounds the delivery of the cancellation of one queued job.
const cancelTimeout = 5 * time.Second

type DispatcherConfig struct {
	// QueueCapacity is the number of jobs that may wait behind the running one.
	QueueCapacity int
}

// queuedJob carries what the job needs from the caller's context
// once it is picked up by the background loop.
type queuedJob struct {
	job     domain.Job
	traceID string
	logger  port.LoggerPort
}

// SearchDispatcher accepts searches and runs them one at a time, in
// submission order, on a single background loop.
type SearchDispatcher struct {
	orchestrator usecases_port.OrchestrateSearchPort
	sink         port.DeliverySinkPort
	logger       port.LoggerPort

	queue chan queuedJob

	mu       sync.Mutex
	closed   bool
	started  bool
	inflight context.CancelFunc

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewSearchDispatcher(
	orchestrator usecases_port.OrchestrateSearchPort,
	sink port.DeliverySinkPort,
	cfg DispatcherConfig,
	logger port.LoggerPort,
) *SearchDispatcher {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &SearchDispatcher{
		orchestrator: orchestrator,
		sink:         sink,
		logger:       logger.WithFields(port.Fields{"component": "SearchDispatcher"}),
		queue:        make(chan queuedJob, capacity),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Enqueue records a new queued job and returns it without waiting for any
// fetch. It fails with domain.ErrQueueFull when the queue has no room and
// with domain.ErrDispatcherClosed after Shutdown.
func (d *SearchDispatcher) Enqueue(ctx context.Context, query string) (domain.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return domain.Job{}, domain.ErrDispatcherClosed
	}
	// Enqueue is the only sender and holds the lock, so the send below cannot block.
	if len(d.queue) == cap(d.queue) {
		return domain.Job{}, domain.ErrQueueFull
	}

	job := domain.NewJob(query)
	if err := d.sink.JobQueued(ctx, job); err != nil {
		return domain.Job{}, fmt.Errorf("dispatcher: failed to record queued job: %w", err)
	}

	d.queue <- queuedJob{
		job:     job,
		traceID: contextkeys.TraceIDFromContext(ctx),
		logger:  contextkeys.LoggerFromContext(ctx),
	}

	contextkeys.LoggerFromContext(ctx).Info("Search queued", port.Fields{
		"search_id":   job.ID.String(),
		"queue_depth": len(d.queue),
	})
	return job, nil
}

// Run is the single consumer. It blocks until ctx is cancelled or Shutdown is called.
func (d *SearchDispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher: already running")
	}
	d.started = true
	d.mu.Unlock()

	defer close(d.doneCh)

	d.logger.Info("Dispatcher loop started", port.Fields{"queue_capacity": cap(d.queue)})

	for {
		// stop requests win over pending jobs
		select {
		case <-ctx.Done():
			d.logger.Info("(Priority Check) Context cancelled. Exiting dispatcher loop.", nil)
			d.discardQueued()
			return nil
		case <-d.stopCh:
			d.logger.Info("(Priority Check) Shutdown requested. Exiting dispatcher loop.", nil)
			d.discardQueued()
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			d.logger.Info("(Wait Check) Context cancelled. Exiting dispatcher loop.", nil)
			d.discardQueued()
			return nil
		case <-d.stopCh:
			d.logger.Info("(Wait Check) Shutdown requested. Exiting dispatcher loop.", nil)
			d.discardQueued()
			return nil
		case qj := <-d.queue:
			d.process(ctx, qj)
		}
	}
}

// process runs exactly one job to completion.
func (d *SearchDispatcher) process(ctx context.Context, qj queuedJob) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	d.inflight = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.inflight = nil
		d.mu.Unlock()
	}()

	jobLogger := qj.logger.WithFields(port.Fields{"search_id": qj.job.ID.String()})
	jobCtx = contextkeys.ContextWithLogger(jobCtx, jobLogger)
	if qj.traceID != "" {
		jobCtx = contextkeys.ContextWithTraceID(jobCtx, qj.traceID)
	}

	jobLogger.Info("Dispatching search", port.Fields{"query": qj.job.Query})
	stats, err := d.orchestrator.Execute(jobCtx, qj.job, d.sink)
	if err != nil {
		jobLogger.Error("Search finished with error", err, nil)
		return
	}
	jobLogger.Info("Search finished", port.Fields{
		"results": stats.Results,
		"errors":  stats.Errors,
	})
}

func (d *SearchDispatcher) discardQueued() {
	for {
		select {
		case qj := <-d.queue:
			d.cancelQueued(qj)
		default:
			return
		}
	}
}

// cancelQueued ends a job that never ran, so the sink does not keep it
// queued forever: started, one "cancelled" error entry, then search_complete.
func (d *SearchDispatcher) cancelQueued(qj queuedJob) {
	logger := d.logger.WithFields(port.Fields{"search_id": qj.job.ID.String()})
	logger.Warn("Cancelling queued search on shutdown", nil)

	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	ctx = contextkeys.ContextWithLogger(ctx, qj.logger)
	if qj.traceID != "" {
		ctx = contextkeys.ContextWithTraceID(ctx, qj.traceID)
	}

	job := qj.job
	now := time.Now().UTC()
	err := job.Transition(domain.JobStatusRunning, now)
	if err == nil {
		err = d.sink.JobStarted(ctx, job)
	}
	if err == nil {
		err = d.sink.Emit(ctx, job, domain.NewSourceErrorEvent(domain.SourceAggregator, domain.ErrSearchCancelled.Error()))
	}
	if err == nil {
		err = job.Transition(domain.JobStatusDone, now)
	}
	if err == nil {
		err = d.sink.Emit(ctx, job, domain.NewJobCompleteEvent())
	}
	if err != nil {
		logger.Warn("Could not deliver cancellation of queued search", port.Fields{"error": err.Error()})
	}
}

// Shutdown stops intake and waits for the in-flight job. If ctx expires
// first the in-flight job is cancelled and Shutdown waits for the loop to
// exit before returning ctx's error.
func (d *SearchDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	started := d.started
	d.mu.Unlock()

	d.stopOnce.Do(func() { close(d.stopCh) })

	if !started {
		d.discardQueued()
		return nil
	}

	select {
	case <-d.doneCh:
		d.logger.Info("Dispatcher drained", nil)
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		if d.inflight != nil {
			d.logger.Warn("Shutdown deadline reached, cancelling in-flight search", nil)
			d.inflight()
		}
		d.mu.Unlock()
		<-d.doneCh
		return ctx.Err()
	}
}
