package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/screenshot-api/internal/cache"
	"github.com/onnwee/screenshot-api/internal/logger"
	"github.com/onnwee/screenshot-api/internal/metrics"
	"github.com/onnwee/screenshot-api/internal/queue"
)

// State is the caller-facing state of a job.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateUnknown   State = "unknown"
)

// Status is the resolved state of a job. Image is set when succeeded and
// Message when failed.
type Status struct {
	JobID   string
	State   State
	Image   []byte
	Message string
}

// Resolver maps job ids to their current state and result.
type Resolver struct {
	broker queue.Broker
	store  cache.Store
	ttl    time.Duration
}

// NewResolver returns a resolver. Results older than cacheTTL are not served.
func NewResolver(broker queue.Broker, store cache.Store, cacheTTL time.Duration) *Resolver {
	return &Resolver{broker: broker, store: store, ttl: cacheTTL}
}

// Resolve reports the state of job id. Errors other than the substrate being
// unreachable are folded into the returned Status.
func (r *Resolver) Resolve(ctx context.Context, id string) (Status, error) {
	st, err := r.broker.Status(ctx, id)
	if errors.Is(err, queue.ErrUnknownJob) {
		metrics.StatusLookups.WithLabelValues(string(StateUnknown)).Inc()
		return Status{JobID: id, State: StateUnknown}, nil
	}
	if err != nil {
		metrics.StatusLookups.WithLabelValues("error").Inc()
		return Status{}, fmt.Errorf("%w: %w", ErrSubstrateUnavailable, err)
	}

	res := r.fromQueue(ctx, st)
	metrics.StatusLookups.WithLabelValues(string(res.State)).Inc()
	return res, nil
}

func (r *Resolver) fromQueue(ctx context.Context, st queue.Status) Status {
	switch st.State {
	case queue.StatePending, queue.StateRunning:
		return Status{JobID: st.ID, State: StatePending}
	case queue.StateFailed:
		msg := st.Error
		if msg == "" {
			msg = "render failed"
		}
		return Status{JobID: st.ID, State: StateFailed, Message: msg}
	case queue.StateSucceeded:
		return r.loadResult(ctx, st)
	default:
		return Status{JobID: st.ID, State: StateFailed, Message: fmt.Sprintf("job in unexpected state %q", st.State)}
	}
}

// loadResult reads the image a finished job wrote. A missing or expired file
// is a failure, not an error.
func (r *Resolver) loadResult(ctx context.Context, st queue.Status) Status {
	failed := func(msg string) Status {
		return Status{JobID: st.ID, State: StateFailed, Message: msg}
	}
	if st.ResultKey == "" {
		return failed("job finished without a result")
	}

	if r.ttl > 0 {
		age, err := r.store.Age(ctx, st.ResultKey)
		if err == nil && age > r.ttl {
			return failed("screenshot expired, request it again")
		}
	}

	img, err := r.store.Read(ctx, st.ResultKey)
	if errors.Is(err, cache.ErrNotFound) {
		return failed("screenshot is no longer available, request it again")
	}
	if err != nil {
		logger.WarnContext(ctx, "Failed to read finished screenshot", "job_id", st.ID, "error", err)
		return failed(fmt.Sprintf("failed to read screenshot: %v", err))
	}
	return Status{JobID: st.ID, State: StateSucceeded, Image: img}
}
