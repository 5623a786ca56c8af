package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Transitions(t *testing.T) {
	job := NewJob("  bike ")
	assert.Equal(t, "  bike ", job.Query)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.True(t, job.Status.IsActive())

	now := time.Now()
	assert.ErrorIs(t, job.Transition(JobStatusDone, now), ErrInvalidTransition)

	require.NoError(t, job.Transition(JobStatusRunning, now))
	require.NotNil(t, job.StartedAt)
	assert.True(t, job.Status.IsActive())

	assert.ErrorIs(t, job.Transition(JobStatusQueued, now), ErrInvalidTransition)
	assert.ErrorIs(t, job.Transition(JobStatusRunning, now), ErrInvalidTransition)

	require.NoError(t, job.Transition(JobStatusDone, now.Add(time.Second)))
	require.NotNil(t, job.FinishedAt)
	assert.False(t, job.Status.IsActive())

	for _, next := range []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusDone} {
		assert.ErrorIs(t, job.Transition(next, now), ErrInvalidTransition)
	}
}

func TestNewJob_UniqueIDs(t *testing.T) {
	assert.NotEqual(t, NewJob("a").ID, NewJob("a").ID)
}

func TestListingRecord_JSON(t *testing.T) {
	body, err := json.Marshal(ListingRecord{Name: "Bike"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Bike","price":null,"image_urls":[],"url":null}`, string(body))

	price := 12.5
	link := "https://example.org"
	body, err = json.Marshal(ListingRecord{Name: "Bike", Price: &price, URL: &link, ImageURLs: []string{"a.jpg"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Bike","price":12.5,"image_urls":["a.jpg"],"url":"https://example.org"}`, string(body))
}

func TestSourceEvents(t *testing.T) {
	assert.True(t, NewJobCompleteEvent().IsTerminal())
	assert.False(t, NewSourceErrorEvent("a", "x").IsTerminal())

	ev := NewResultEvent("a", ListingRecord{Name: "n"})
	require.NotNil(t, ev.Item)
	assert.Equal(t, EventTypeResult, ev.Type)
}

func TestFetchError(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	assert.Equal(t, "503", (&FetchError{Message: "503", StatusCode: 503}).Error())
	assert.Equal(t, "unexpected status code 404", (&FetchError{StatusCode: 404}).Error())
	assert.Equal(t, "dial tcp: refused", (&FetchError{Err: cause}).Error())
	assert.Equal(t, "fetch failed", (&FetchError{}).Error())

	var fe *FetchError
	wrapped := error(&FetchError{Source: "ebay", Err: cause})
	assert.True(t, errors.As(wrapped, &fe))
	assert.ErrorIs(t, wrapped, cause)
}
