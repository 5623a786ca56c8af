package resultstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/contextkeys"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/google/uuid"
)

type searchRecord struct {
	job     domain.Job
	entries []domain.SourceEvent
}

// MemoryResultStore keeps every search of the process in memory so callers
// can poll it. The orchestrator is the only writer of a given search.
type MemoryResultStore struct {
	mu       sync.RWMutex
	searches map[uuid.UUID]*searchRecord
	now      func() time.Time
}

var _ port.ResultStorePort = (*MemoryResultStore)(nil)

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		searches: make(map[uuid.UUID]*searchRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryResultStore) JobQueued(ctx context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.searches[job.ID]; exists {
		return fmt.Errorf("result store: search %s already exists", job.ID)
	}
	job.Status = domain.JobStatusQueued
	s.searches[job.ID] = &searchRecord{job: job}
	return nil
}

func (s *MemoryResultStore) JobStarted(ctx context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.searches[job.ID]
	if !ok {
		return fmt.Errorf("result store: %w: %s", domain.ErrSearchNotFound, job.ID)
	}
	return rec.job.Transition(domain.JobStatusRunning, s.now())
}

// Emit appends a result or error entry. search_complete marks the search done.
// Nothing is accepted once the search is done.
func (s *MemoryResultStore) Emit(ctx context.Context, job domain.Job, event domain.SourceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.searches[job.ID]
	if !ok {
		return fmt.Errorf("result store: %w: %s", domain.ErrSearchNotFound, job.ID)
	}
	if rec.job.Status == domain.JobStatusDone {
		contextkeys.LoggerFromContext(ctx).Warn("Dropping event for finished search", port.Fields{
			"search_id":  job.ID.String(),
			"event_type": event.Type,
		})
		return fmt.Errorf("result store: %w: %s", domain.ErrJobFinished, job.ID)
	}

	if event.IsTerminal() {
		return rec.job.Transition(domain.JobStatusDone, s.now())
	}
	if rec.job.Status != domain.JobStatusRunning {
		return fmt.Errorf("result store: %w: event before start for %s", domain.ErrInvalidTransition, job.ID)
	}

	// the slice is only ever appended, snapshots copy it under the read lock
	rec.entries = append(rec.entries, event)
	return nil
}

// Get returns a copy of the search that later appends cannot change.
func (s *MemoryResultStore) Get(ctx context.Context, id uuid.UUID) (domain.SearchSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.searches[id]
	if !ok {
		return domain.SearchSnapshot{}, domain.ErrSearchNotFound
	}

	entries := make([]domain.SourceEvent, len(rec.entries))
	copy(entries, rec.entries)

	return domain.SearchSnapshot{Job: rec.job, Entries: entries}, nil
}

// Prune drops finished searches older than retention and returns how many went.
func (s *MemoryResultStore) Prune(retention time.Duration) int {
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.searches {
		if rec.job.Status != domain.JobStatusDone || rec.job.FinishedAt == nil {
			continue
		}
		if rec.job.FinishedAt.Before(cutoff) {
			delete(s.searches, id)
			removed++
		}
	}
	return removed
}

// RunJanitor prunes every interval until ctx is cancelled.
func (s *MemoryResultStore) RunJanitor(ctx context.Context, interval, retention time.Duration, logger port.LoggerPort) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Prune(retention); removed > 0 {
				logger.Info("Pruned finished searches", port.Fields{"removed": removed})
			}
		}
	}
}
