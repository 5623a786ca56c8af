package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
)

// CanTransitionTo reports whether the status may move forward to next.
// Only queued -> running -> done is allowed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusDone
	default:
		return false
	}
}

// IsActive is true while the job has not reached done.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// Job is one search request tracked through its lifecycle.
type Job struct {
	ID         uuid.UUID  `json:"search_id"`
	Query      string     `json:"query"`
	Status     JobStatus  `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewJob creates a queued job for the query. The query is kept as given.
func NewJob(query string) Job {
	return Job{
		ID:        uuid.New(),
		Query:     query,
		Status:    JobStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
}

// Transition moves the job to next and stamps the matching timestamp.
func (j *Job) Transition(next JobStatus, at time.Time) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	switch next {
	case JobStatusRunning:
		j.StartedAt = &at
	case JobStatusDone:
		j.FinishedAt = &at
	}
	return nil
}

// SearchStats summarises what the orchestrator observed for one job.
type SearchStats struct {
	Adapters int
	Results  int
	Errors   int
	Empty    int
}

// SearchSnapshot is a consistent copy of a job and the outcome entries
// recorded for it so far.
type SearchSnapshot struct {
	Job     Job
	Entries []SourceEvent
}
