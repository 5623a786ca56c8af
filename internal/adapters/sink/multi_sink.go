package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/Hamnivore/used-item-aggregator/internal/contextkeys"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
)

// MultiSink delivers every call to a primary sink and mirrors it to the others.
// Only the primary decides the outcome. Mirror failures are logged. When the
// primary fails after the job was queued, the mirrors are closed out with an
// error entry and search_complete so their copy of the job still ends.
type MultiSink struct {
	primary port.DeliverySinkPort
	mirrors []port.DeliverySinkPort
}

var _ port.DeliverySinkPort = (*MultiSink)(nil)

func NewMultiSink(primary port.DeliverySinkPort, mirrors ...port.DeliverySinkPort) (*MultiSink, error) {
	if primary == nil {
		return nil, fmt.Errorf("multisink: primary sink is required")
	}
	return &MultiSink{primary: primary, mirrors: mirrors}, nil
}

func (m *MultiSink) JobQueued(ctx context.Context, job domain.Job) error {
	if err := m.primary.JobQueued(ctx, job); err != nil {
		return err
	}
	m.mirror(ctx, "JobQueued", func(s port.DeliverySinkPort) error { return s.JobQueued(ctx, job) })
	return nil
}

func (m *MultiSink) JobStarted(ctx context.Context, job domain.Job) error {
	err := m.primary.JobStarted(ctx, job)
	m.mirror(ctx, "JobStarted", func(s port.DeliverySinkPort) error { return s.JobStarted(ctx, job) })
	if err != nil {
		m.closeMirrors(ctx, job, err)
		return err
	}
	return nil
}

func (m *MultiSink) Emit(ctx context.Context, job domain.Job, event domain.SourceEvent) error {
	if err := m.primary.Emit(ctx, job, event); err != nil {
		m.closeMirrors(ctx, job, err)
		return err
	}
	m.mirror(ctx, "Emit", func(s port.DeliverySinkPort) error { return s.Emit(ctx, job, event) })
	return nil
}

func (m *MultiSink) mirror(ctx context.Context, op string, call func(port.DeliverySinkPort) error) {
	var errs []error
	for _, s := range m.mirrors {
		if err := call(s); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		contextkeys.LoggerFromContext(ctx).Warn("Mirror sink failed", port.Fields{
			"operation": op,
			"error":     errors.Join(errs...).Error(),
		})
	}
}

// closeMirrors ends the job on every mirror after the primary refused it.
func (m *MultiSink) closeMirrors(ctx context.Context, job domain.Job, cause error) {
	if len(m.mirrors) == 0 {
		return
	}
	message := "delivery failed"
	if errors.Is(cause, domain.ErrTransportDisconnected) {
		message = domain.ErrTransportDisconnected.Error()
	}

	contextkeys.LoggerFromContext(ctx).Warn("Primary sink failed, closing mirrored job", port.Fields{
		"search_id": job.ID.String(),
		"error":     cause.Error(),
	})
	m.mirror(ctx, "Abort", func(s port.DeliverySinkPort) error {
		if err := s.Emit(ctx, job, domain.NewSourceErrorEvent(domain.SourceAggregator, message)); err != nil {
			return err
		}
		return s.Emit(ctx, job, domain.NewJobCompleteEvent())
	})
}
