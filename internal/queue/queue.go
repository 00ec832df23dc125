// Package queue is the job substrate between the API and the render workers.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/screenshot-api/internal/screenshot"
	"github.com/onnwee/screenshot-api/internal/tracing"
)

// ErrUnknownJob means the substrate has no record of a job id, either
// because it never existed or because its result expired.
var ErrUnknownJob = errors.New("unknown job")

// DefaultResultTTL is how long job states stay resolvable.
const DefaultResultTTL = 24 * time.Hour

// State is a job's position in its lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Job is one unit of render work.
type Job struct {
	ID         string              `json:"id"`
	Request    screenshot.Request  `json:"request"`
	Key        screenshot.CacheKey `json:"key"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
	// Trace carries the submitter's span context to the worker.
	Trace map[string]string `json:"trace,omitempty"`
}

// Status is the externally visible state of a job.
type Status struct {
	ID        string              `json:"id"`
	State     State               `json:"state"`
	ResultKey screenshot.CacheKey `json:"result_key,omitempty"`
	Error     string              `json:"error,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Broker is the submission side used by the API.
type Broker interface {
	// Submit enqueues a render job and returns it with a fresh id.
	Submit(ctx context.Context, req screenshot.Request, key screenshot.CacheKey) (Job, error)
	// Status returns ErrUnknownJob for ids it has no record of.
	Status(ctx context.Context, id string) (Status, error)
}

// Consumer is the execution side used by workers.
type Consumer interface {
	// Next blocks until a job is available or ctx is done.
	Next(ctx context.Context) (Job, error)
	// Update records a state transition for a job previously returned by Next.
	Update(ctx context.Context, st Status) error
}

func newJob(ctx context.Context, req screenshot.Request, key screenshot.CacheKey, now time.Time) Job {
	return Job{
		ID:         uuid.NewString(),
		Request:    req,
		Key:        key,
		EnqueuedAt: now.UTC(),
		Trace:      tracing.Inject(ctx),
	}
}

// validID filters out ids that could never have been issued.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
