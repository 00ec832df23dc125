// Package dispatch decides between serving a cached screenshot and queueing a
// render, and resolves the state of queued renders.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/screenshot-api/internal/cache"
	"github.com/onnwee/screenshot-api/internal/circuitbreaker"
	"github.com/onnwee/screenshot-api/internal/logger"
	"github.com/onnwee/screenshot-api/internal/metrics"
	"github.com/onnwee/screenshot-api/internal/queue"
	"github.com/onnwee/screenshot-api/internal/screenshot"
	"github.com/onnwee/screenshot-api/internal/tracing"
)

// ErrSubstrateUnavailable wraps failures to reach the job queue.
var ErrSubstrateUnavailable = errors.New("job queue unavailable")

// JanitorTrigger schedules a cache sweep without waiting for it.
type JanitorTrigger interface {
	Trigger(reason string) bool
}

// Result is either a cache hit carrying Image, or an enqueued job carrying JobID.
type Result struct {
	CacheHit bool
	Image    []byte
	Key      screenshot.CacheKey
	JobID    string
}

// Options configures a Dispatcher.
type Options struct {
	// CacheTTL is the maximum age of an entry served as a hit.
	CacheTTL time.Duration
	// Janitor may be nil.
	Janitor JanitorTrigger
	// Breaker guards job submission. Nil disables it.
	Breaker *circuitbreaker.CircuitBreaker
}

// Dispatcher serves fresh cache entries and enqueues renders for the rest.
type Dispatcher struct {
	store   cache.Store
	broker  queue.Broker
	ttl     time.Duration
	janitor JanitorTrigger
	breaker *circuitbreaker.CircuitBreaker
}

// NewDispatcher returns a dispatcher over store and broker.
func NewDispatcher(store cache.Store, broker queue.Broker, opts Options) *Dispatcher {
	return &Dispatcher{
		store:   store,
		broker:  broker,
		ttl:     opts.CacheTTL,
		janitor: opts.Janitor,
		breaker: opts.Breaker,
	}
}

// Dispatch validates req, then returns a fresh cached image or enqueues a render.
// Validation failures are *screenshot.ValidationError and create no job.
// Queue failures wrap ErrSubstrateUnavailable and carry no job id.
func (d *Dispatcher) Dispatch(ctx context.Context, req screenshot.Request) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.screenshot")
	defer span.End()

	if err := screenshot.Validate(req); err != nil {
		metrics.DispatchTotal.WithLabelValues("invalid").Inc()
		return Result{}, err
	}

	key := screenshot.Key(req)
	span.SetAttributes(
		attribute.String("screenshot.key", key.String()),
		attribute.Bool("screenshot.no_cache", req.NoCache),
	)

	if req.NoCache {
		metrics.CacheLookups.WithLabelValues("bypass").Inc()
	} else if img, ok := d.lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("screenshot.cache_hit", true))
		metrics.DispatchTotal.WithLabelValues("hit").Inc()
		d.triggerJanitor()
		return Result{CacheHit: true, Image: img, Key: key}, nil
	}

	job, err := d.submit(ctx, req, key)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.DispatchTotal.WithLabelValues("unavailable").Inc()
		logger.ErrorContext(ctx, "Failed to enqueue render job", "key", key, "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrSubstrateUnavailable, err)
	}

	span.SetAttributes(attribute.String("job.id", job.ID))
	metrics.DispatchTotal.WithLabelValues("enqueued").Inc()
	logger.InfoContext(ctx, "Enqueued render job", "job_id", job.ID, "key", key)
	d.triggerJanitor()
	return Result{Key: key, JobID: job.ID}, nil
}

// lookup returns the cached image when it exists and is younger than the TTL.
// Any store error is treated as a miss.
func (d *Dispatcher) lookup(ctx context.Context, key screenshot.CacheKey) ([]byte, bool) {
	ok, err := d.store.Exists(ctx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		logger.WarnContext(ctx, "Cache lookup failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	age, err := d.store.Age(ctx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	if age >= d.ttl {
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		return nil, false
	}

	img, err := d.store.Read(ctx, key)
	if err != nil {
		// removed by a sweep since Exists; render again
		metrics.CacheLookups.WithLabelValues("error").Inc()
		logger.WarnContext(ctx, "Cache read failed, falling back to render", "key", key, "error", err)
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return img, true
}

func (d *Dispatcher) submit(ctx context.Context, req screenshot.Request, key screenshot.CacheKey) (queue.Job, error) {
	if d.breaker == nil {
		return d.broker.Submit(ctx, req, key)
	}
	var job queue.Job
	err := d.breaker.Call(func() error {
		var err error
		job, err = d.broker.Submit(ctx, req, key)
		return err
	})
	return job, err
}

func (d *Dispatcher) triggerJanitor() {
	if d.janitor != nil {
		d.janitor.Trigger("dispatch")
	}
}
