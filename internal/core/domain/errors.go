package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by the dispatcher when its bounded queue has no room.
	ErrQueueFull = errors.New("search queue is full")
	// ErrDispatcherClosed is returned once the dispatcher stopped accepting jobs.
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
	// ErrTransportDisconnected means the streaming peer is gone. Fatal for the session.
	ErrTransportDisconnected = errors.New("transport disconnected")
	ErrSearchNotFound        = errors.New("search not found")
	ErrInvalidTransition     = errors.New("invalid job status transition")
	ErrJobFinished           = errors.New("job already finished")
	ErrSourceTimeout         = errors.New("timeout")
	// ErrSearchCancelled is reported for a queued search dropped on shutdown.
	ErrSearchCancelled = errors.New("cancelled")
)

// FetchError is the failure a source adapter reports for a search.
type FetchError struct {
	Source     SourceID
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("unexpected status code %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "fetch failed"
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
