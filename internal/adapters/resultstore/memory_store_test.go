package resultstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedJob(t *testing.T, s *MemoryResultStore) domain.Job {
	t.Helper()
	ctx := context.Background()
	job := domain.NewJob("bike")
	require.NoError(t, s.JobQueued(ctx, job))
	require.NoError(t, s.JobStarted(ctx, job))
	return job
}

func TestMemoryResultStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryResultStore()
	job := domain.NewJob("bike")

	require.NoError(t, s.JobQueued(ctx, job))
	snap, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, snap.Job.Status)
	assert.Empty(t, snap.Entries)

	require.NoError(t, s.JobStarted(ctx, job))
	require.NoError(t, s.Emit(ctx, job, domain.NewResultEvent("alpha", domain.ListingRecord{Name: "a"})))
	require.NoError(t, s.Emit(ctx, job, domain.NewSourceErrorEvent("beta", "503")))

	snap, err = s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, snap.Job.Status)
	assert.Len(t, snap.Entries, 2)

	require.NoError(t, s.Emit(ctx, job, domain.NewJobCompleteEvent()))
	snap, err = s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, snap.Job.Status)
	assert.NotNil(t, snap.Job.StartedAt)
	assert.NotNil(t, snap.Job.FinishedAt)
}

func TestMemoryResultStore_NoMutationAfterDone(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryResultStore()
	job := startedJob(t, s)

	require.NoError(t, s.Emit(ctx, job, domain.NewResultEvent("alpha", domain.ListingRecord{Name: "a"})))
	require.NoError(t, s.Emit(ctx, job, domain.NewJobCompleteEvent()))

	first, err := s.Get(ctx, job.ID)
	require.NoError(t, err)

	err = s.Emit(ctx, job, domain.NewResultEvent("alpha", domain.ListingRecord{Name: "late"}))
	assert.True(t, errors.Is(err, domain.ErrJobFinished))
	err = s.Emit(ctx, job, domain.NewJobCompleteEvent())
	assert.True(t, errors.Is(err, domain.ErrJobFinished))

	for i := 0; i < 3; i++ {
		again, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMemoryResultStore_StatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryResultStore()
	job := startedJob(t, s)

	err := s.JobStarted(ctx, job)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	queuedOnly := domain.NewJob("chair")
	require.NoError(t, s.JobQueued(ctx, queuedOnly))
	err = s.Emit(ctx, queuedOnly, domain.NewResultEvent("alpha", domain.ListingRecord{Name: "a"}))
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestMemoryResultStore_UnknownSearch(t *testing.T) {
	s := NewMemoryResultStore()
	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrSearchNotFound)

	err = s.Emit(context.Background(), domain.NewJob("x"), domain.NewJobCompleteEvent())
	assert.ErrorIs(t, err, domain.ErrSearchNotFound)
}

func TestMemoryResultStore_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryResultStore()
	job := startedJob(t, s)

	require.NoError(t, s.Emit(ctx, job, domain.NewResultEvent("alpha", domain.ListingRecord{Name: "a"})))
	snap, err := s.Get(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, s.Emit(ctx, job, domain.NewResultEvent("alpha", domain.ListingRecord{Name: "b"})))
	assert.Len(t, snap.Entries, 1)
}

func TestMemoryResultStore_ConcurrentReadsDuringAppends(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryResultStore()
	job := startedJob(t, s)

	const total = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			_ = s.Emit(ctx, job, domain.NewResultEvent("alpha", domain.ListingRecord{Name: "item"}))
		}
		_ = s.Emit(ctx, job, domain.NewJobCompleteEvent())
	}()

	last := 0
	for {
		snap, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		// entries only grow, and done implies all of them are there
		assert.GreaterOrEqual(t, len(snap.Entries), last)
		last = len(snap.Entries)
		if snap.Job.Status == domain.JobStatusDone {
			assert.Len(t, snap.Entries, total)
			break
		}
	}
	wg.Wait()
}

func TestMemoryResultStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryResultStore()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	finished := startedJob(t, s)
	require.NoError(t, s.Emit(ctx, finished, domain.NewJobCompleteEvent()))
	running := startedJob(t, s)

	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	assert.Equal(t, 0, s.Prune(time.Hour))

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.Equal(t, 1, s.Prune(time.Hour))

	_, err := s.Get(ctx, finished.ID)
	assert.ErrorIs(t, err, domain.ErrSearchNotFound)
	_, err = s.Get(ctx, running.ID)
	assert.NoError(t, err)
}
