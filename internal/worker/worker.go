// Package worker executes render jobs taken from the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/screenshot-api/internal/cache"
	"github.com/onnwee/screenshot-api/internal/errorreporting"
	"github.com/onnwee/screenshot-api/internal/logger"
	"github.com/onnwee/screenshot-api/internal/metrics"
	"github.com/onnwee/screenshot-api/internal/queue"
	"github.com/onnwee/screenshot-api/internal/render"
	"github.com/onnwee/screenshot-api/internal/tracing"
)

// Config bounds how jobs run.
type Config struct {
	// Concurrency is the number of independent loops, each with its own renderer.
	Concurrency int
	// SoftTimeLimit is the deadline handed to the renderer.
	SoftTimeLimit time.Duration
	// HardTimeLimit is when the worker gives up on a render and restarts the renderer.
	HardTimeLimit time.Duration
	// MaxTasksPerRenderer recycles a renderer after that many jobs. Zero disables recycling.
	MaxTasksPerRenderer int
}

func (c *Config) applyDefaults() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.HardTimeLimit <= 0 {
		c.HardTimeLimit = 3 * time.Minute
	}
	if c.SoftTimeLimit <= 0 || c.SoftTimeLimit > c.HardTimeLimit {
		c.SoftTimeLimit = c.HardTimeLimit
	}
}

var errShutdown = errors.New("render interrupted by worker shutdown")

// statusTimeout bounds status writes, which still happen during shutdown.
const statusTimeout = 5 * time.Second

// Worker pulls jobs from a Consumer and renders them into the cache.
type Worker struct {
	consumer    queue.Consumer
	store       cache.Store
	newRenderer render.Factory
	cfg         Config
	log         *slog.Logger
	retryDelay  time.Duration
}

// New returns a worker. Run starts it.
func New(consumer queue.Consumer, store cache.Store, newRenderer render.Factory, cfg Config) *Worker {
	cfg.applyDefaults()
	return &Worker{
		consumer:    consumer,
		store:       store,
		newRenderer: newRenderer,
		cfg:         cfg,
		log:         logger.WithComponent("worker"),
		retryDelay:  time.Second,
	}
}

// Run processes jobs until ctx is cancelled. A failing job never stops the loop.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("Starting render worker",
		"concurrency", w.cfg.Concurrency,
		"soft_limit", w.cfg.SoftTimeLimit,
		"hard_limit", w.cfg.HardTimeLimit,
		"max_tasks_per_renderer", w.cfg.MaxTasksPerRenderer)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			l := &loop{w: w, log: w.log.With("loop", id)}
			l.run(ctx)
		}(i)
	}
	wg.Wait()
	w.log.Info("Render worker stopped")
}

// loop owns one renderer and runs one job at a time.
type loop struct {
	w        *Worker
	log      *slog.Logger
	renderer render.Renderer
	tasks    int
}

func (l *loop) run(ctx context.Context) {
	defer l.recycle("shutdown")
	for {
		job, err := l.w.consumer.Next(ctx)
		if ctx.Err() != nil {
			if err == nil && job.ID != "" {
				// handed a job as shutdown began
				l.setStatus(ctx, queue.Status{ID: job.ID, State: queue.StateFailed, Error: errShutdown.Error()})
			}
			return
		}
		if err != nil {
			l.log.Error("Failed to fetch next job", "error", err)
			select {
			case <-time.After(l.w.retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		l.process(ctx, job)
	}
}

func (l *loop) process(ctx context.Context, job queue.Job) {
	ctx = logger.ContextWithJobID(tracing.Extract(ctx, job.Trace), job.ID)
	ctx, span := tracing.StartSpan(ctx, "worker.render")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("screenshot.view", string(job.Request.View)),
		attribute.Bool("screenshot.full_page", job.Request.FullPage),
	)
	log := logger.FromContext(ctx)

	start := time.Now()
	metrics.RenderJobsInFlight.Inc()
	defer metrics.RenderJobsInFlight.Dec()

	l.setStatus(ctx, queue.Status{ID: job.ID, State: queue.StateRunning})
	log.Info("Rendering screenshot", "url", errorreporting.ScrubPII(job.Request.URL), "view", job.Request.View, "full_page", job.Request.FullPage)

	st := l.execute(ctx, job)
	l.setStatus(ctx, st)

	elapsed := time.Since(start)
	metrics.RenderJobsTotal.WithLabelValues(string(st.State)).Inc()
	metrics.RenderJobDuration.WithLabelValues(string(st.State)).Observe(elapsed.Seconds())
	if st.State == queue.StateFailed {
		tracing.RecordError(span, errors.New(st.Error))
		log.Warn("Render job failed", "error", st.Error, "duration", elapsed)
		return
	}
	log.Info("Render job succeeded", "duration", elapsed)
}

// execute always returns a terminal status.
func (l *loop) execute(ctx context.Context, job queue.Job) queue.Status {
	failed := func(msg string) queue.Status {
		return queue.Status{ID: job.ID, State: queue.StateFailed, Error: msg}
	}

	if job.Request.NoCache {
		if err := l.w.store.Delete(ctx, job.Key); err != nil {
			logger.WarnContext(ctx, "Failed to drop cached entry before re-render", "error", err)
		}
	}

	opts, err := render.OptionsFor(job.Request)
	if err != nil {
		return failed(err.Error())
	}

	if l.renderer == nil {
		r, err := l.w.newRenderer(ctx)
		if err != nil {
			l.report(job, err)
			return failed(err.Error())
		}
		l.renderer = r
	}

	buf, err := l.renderWithLimits(ctx, job, opts)
	if l.renderer != nil {
		l.tasks++
		if limit := l.w.cfg.MaxTasksPerRenderer; limit > 0 && l.tasks >= limit {
			l.recycle("max_tasks")
		}
	}
	if err != nil {
		return failed(err.Error())
	}
	if len(buf) == 0 {
		return failed("renderer returned an empty image")
	}

	if err := l.w.store.Write(ctx, job.Key, buf); err != nil {
		l.report(job, err)
		return failed(fmt.Sprintf("cache write failed: %v", err))
	}
	return queue.Status{ID: job.ID, State: queue.StateSucceeded, ResultKey: job.Key}
}

type renderResult struct {
	buf []byte
	err error
}

// renderWithLimits runs the render under the soft deadline and abandons it at the hard limit.
func (l *loop) renderWithLimits(ctx context.Context, job queue.Job, opts render.Options) ([]byte, error) {
	softCtx, cancel := context.WithTimeout(ctx, l.w.cfg.SoftTimeLimit)
	defer cancel()

	renderer := l.renderer
	done := make(chan renderResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "Renderer panicked", "panic", r, "stack", string(debug.Stack()))
				done <- renderResult{err: fmt.Errorf("renderer crashed: %v", r)}
			}
		}()
		buf, err := renderer.Render(softCtx, opts)
		done <- renderResult{buf: buf, err: err}
	}()

	hard := time.NewTimer(l.w.cfg.HardTimeLimit)
	defer hard.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			var rerr *render.Error
			if !errors.As(res.err, &rerr) {
				// unknown failure mode, start from a clean browser
				l.recycle("crash")
			}
			l.report(job, res.err)
		}
		return res.buf, res.err
	case <-hard.C:
		metrics.RenderTimeouts.Inc()
		l.recycle("timeout")
		err := fmt.Errorf("render exceeded time limit of %s", l.w.cfg.HardTimeLimit)
		l.report(job, err)
		return nil, err
	case <-ctx.Done():
		l.recycle("shutdown")
		return nil, errShutdown
	}
}

// recycle closes the current renderer; the next job starts a new one.
func (l *loop) recycle(reason string) {
	if l.renderer == nil {
		return
	}
	if err := l.renderer.Close(); err != nil {
		l.log.Warn("Failed to close renderer", "error", err)
	}
	l.renderer = nil
	if reason != "shutdown" {
		l.log.Info("Recycled renderer", "reason", reason, "tasks", l.tasks)
		metrics.RendererRecycles.WithLabelValues(reason).Inc()
	}
	l.tasks = 0
}

func (l *loop) setStatus(ctx context.Context, st queue.Status) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusTimeout)
	defer cancel()
	if err := l.w.consumer.Update(ctx, st); err != nil {
		logger.ErrorContext(ctx, "Failed to record job status", "state", st.State, "error", err)
	}
}

func (l *loop) report(job queue.Job, err error) {
	errorreporting.AddBreadcrumb("render", job.Request.URL, sentry.LevelInfo)
	errorreporting.CaptureErrorWithContext(err,
		map[string]string{"component": "worker", "view": string(job.Request.View)},
		map[string]interface{}{"job_id": job.ID, "url": job.Request.URL},
	)
}
