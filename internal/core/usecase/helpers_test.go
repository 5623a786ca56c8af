package usecase

import (
	"context"
	"sync"

	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
)

type nopLogger struct{}

func (nopLogger) Info(string, port.Fields)         {}
func (nopLogger) Warn(string, port.Fields)         {}
func (nopLogger) Error(string, error, port.Fields) {}
func (nopLogger) Debug(string, port.Fields)        {}
func (l nopLogger) WithFields(port.Fields) port.LoggerPort {
	return l
}

type searchFunc func(ctx context.Context, query string) ([]domain.ListingRecord, error)

type fakeAdapter struct {
	source domain.SourceID
	search searchFunc
}

func (f fakeAdapter) Source() domain.SourceID { return f.source }

func (f fakeAdapter) Search(ctx context.Context, query string) ([]domain.ListingRecord, error) {
	return f.search(ctx, query)
}

func returns(items ...domain.ListingRecord) searchFunc {
	return func(ctx context.Context, query string) ([]domain.ListingRecord, error) {
		return items, nil
	}
}

func fails(err error) searchFunc {
	return func(ctx context.Context, query string) ([]domain.ListingRecord, error) {
		return nil, err
	}
}

// recordingSink keeps every call. emitErr, when set, is returned from Emit.
type recordingSink struct {
	mu      sync.Mutex
	queued  []domain.Job
	started []domain.Job
	events  []domain.SourceEvent
	emitErr error

	// onEmit runs after an event is recorded, outside the lock
	onEmit func(domain.SourceEvent)
}

func (s *recordingSink) JobQueued(ctx context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, job)
	return nil
}

func (s *recordingSink) JobStarted(ctx context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, job)
	return nil
}

func (s *recordingSink) Emit(ctx context.Context, job domain.Job, event domain.SourceEvent) error {
	s.mu.Lock()
	if s.emitErr != nil {
		s.mu.Unlock()
		return s.emitErr
	}
	s.events = append(s.events, event)
	hook := s.onEmit
	s.mu.Unlock()

	if hook != nil {
		hook(event)
	}
	return nil
}

func (s *recordingSink) snapshot() []domain.SourceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SourceEvent, len(s.events))
	copy(out, s.events)
	return out
}
