package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(name string) domain.ListingRecord {
	return domain.ListingRecord{Name: name}
}

func TestOrchestrator_BikeScenario(t *testing.T) {
	alphaDone := make(chan struct{})
	sink := &recordingSink{}
	alphaSeen := 0
	sink.onEmit = func(ev domain.SourceEvent) {
		if ev.Source == "alpha" {
			alphaSeen++
			if alphaSeen == 2 {
				close(alphaDone)
			}
		}
	}

	orch, err := NewOrchestrateSearchUseCase([]port.SourceAdapterPort{
		fakeAdapter{source: "alpha", search: returns(item("1"), item("2"))},
		fakeAdapter{source: "beta", search: func(ctx context.Context, query string) ([]domain.ListingRecord, error) {
			<-alphaDone
			return nil, &domain.FetchError{Source: "beta", StatusCode: 503, Message: "503"}
		}},
		fakeAdapter{source: "gamma", search: returns()},
	}, OrchestratorConfig{SourceTimeout: time.Second})
	require.NoError(t, err)

	job := domain.NewJob("bike")
	stats, err := orch.Execute(context.Background(), job, sink)
	require.NoError(t, err)

	assert.Equal(t, []domain.SourceEvent{
		domain.NewResultEvent("alpha", item("1")),
		domain.NewResultEvent("alpha", item("2")),
		domain.NewSourceErrorEvent("beta", "503"),
		domain.NewJobCompleteEvent(),
	}, sink.snapshot())
	assert.Equal(t, domain.SearchStats{Adapters: 3, Results: 2, Errors: 1, Empty: 1}, stats)

	require.Len(t, sink.started, 1)
	assert.Equal(t, domain.JobStatusRunning, sink.started[0].Status)
}

func TestOrchestrator_EveryAdapterSettlesBeforeComplete(t *testing.T) {
	const n = 8
	adapters := make([]port.SourceAdapterPort, 0, n)
	for i := 0; i < n; i++ {
		delay := time.Duration(rand.Intn(20)) * time.Millisecond
		source := domain.SourceID(fmt.Sprintf("s%d", i))
		var search searchFunc
		switch i % 3 {
		case 0:
			search = returns(item("a"), item("b"), item("c"))
		case 1:
			search = fails(errors.New("boom"))
		default:
			search = returns()
		}
		adapters = append(adapters, fakeAdapter{source: source, search: func(ctx context.Context, q string) ([]domain.ListingRecord, error) {
			time.Sleep(delay)
			return search(ctx, q)
		}})
	}

	orch, err := NewOrchestrateSearchUseCase(adapters, OrchestratorConfig{})
	require.NoError(t, err)

	sink := &recordingSink{}
	stats, err := orch.Execute(context.Background(), domain.NewJob("lamp"), sink)
	require.NoError(t, err)

	events := sink.snapshot()
	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].IsTerminal())

	completes := 0
	withResults := map[domain.SourceID]bool{}
	errored := map[domain.SourceID]bool{}
	lastItem := map[domain.SourceID]string{}
	for _, ev := range events {
		switch ev.Type {
		case domain.EventTypeSearchComplete:
			completes++
		case domain.EventTypeResult:
			withResults[ev.Source] = true
			// items of one source keep their order
			assert.Greater(t, ev.Item.Name, lastItem[ev.Source])
			lastItem[ev.Source] = ev.Item.Name
		case domain.EventTypeError:
			errored[ev.Source] = true
		}
	}
	assert.Equal(t, 1, completes)
	assert.Equal(t, n, len(withResults)+len(errored)+stats.Empty)
	assert.Equal(t, n, stats.Adapters)
}

func TestOrchestrator_TimeoutBecomesSourceError(t *testing.T) {
	orch, err := NewOrchestrateSearchUseCase([]port.SourceAdapterPort{
		fakeAdapter{source: "stuck", search: func(ctx context.Context, q string) ([]domain.ListingRecord, error) {
			// ignores ctx on purpose
			time.Sleep(time.Second)
			return []domain.ListingRecord{item("late")}, nil
		}},
		fakeAdapter{source: "fast", search: returns(item("x"))},
	}, OrchestratorConfig{SourceTimeout: 30 * time.Millisecond})
	require.NoError(t, err)

	sink := &recordingSink{}
	start := time.Now()
	_, err = orch.Execute(context.Background(), domain.NewJob("bike"), sink)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	assert.Contains(t, sink.snapshot(), domain.NewSourceErrorEvent("stuck", "timeout"))
	assert.NotContains(t, sink.snapshot(), domain.NewResultEvent("stuck", item("late")))
}

func TestOrchestrator_PanicIsIsolated(t *testing.T) {
	orch, err := NewOrchestrateSearchUseCase([]port.SourceAdapterPort{
		fakeAdapter{source: "bad", search: func(ctx context.Context, q string) ([]domain.ListingRecord, error) {
			panic("boom")
		}},
		fakeAdapter{source: "good", search: returns(item("x"))},
	}, OrchestratorConfig{SourceTimeout: time.Second})
	require.NoError(t, err)

	sink := &recordingSink{}
	_, err = orch.Execute(context.Background(), domain.NewJob("bike"), sink)
	require.NoError(t, err)

	events := sink.snapshot()
	assert.Contains(t, events, domain.NewSourceErrorEvent("bad", "adapter panic: boom"))
	assert.Contains(t, events, domain.NewResultEvent("good", item("x")))
	assert.True(t, events[len(events)-1].IsTerminal())
}

func TestOrchestrator_TransportDisconnectAbortsJob(t *testing.T) {
	cancelled := make(chan struct{})
	orch, err := NewOrchestrateSearchUseCase([]port.SourceAdapterPort{
		fakeAdapter{source: "fast", search: returns(item("x"))},
		fakeAdapter{source: "slow", search: func(ctx context.Context, q string) ([]domain.ListingRecord, error) {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}},
	}, OrchestratorConfig{SourceTimeout: time.Minute})
	require.NoError(t, err)

	sink := &recordingSink{emitErr: domain.ErrTransportDisconnected}
	_, err = orch.Execute(context.Background(), domain.NewJob("bike"), sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransportDisconnected)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running adapter was not cancelled")
	}
	assert.Empty(t, sink.snapshot())
}

func TestOrchestrator_RejectsJobThatIsNotQueued(t *testing.T) {
	orch, err := NewOrchestrateSearchUseCase([]port.SourceAdapterPort{
		fakeAdapter{source: "a", search: returns()},
	}, OrchestratorConfig{})
	require.NoError(t, err)

	job := domain.NewJob("bike")
	require.NoError(t, job.Transition(domain.JobStatusRunning, time.Now()))

	sink := &recordingSink{}
	_, err = orch.Execute(context.Background(), job, sink)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, sink.started)
}

func TestNewOrchestrateSearchUseCase_NeedsAdapters(t *testing.T) {
	_, err := NewOrchestrateSearchUseCase(nil, OrchestratorConfig{})
	assert.Error(t, err)
}
