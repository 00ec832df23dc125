package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/onnwee/screenshot-api/internal/cache"
	"github.com/onnwee/screenshot-api/internal/logger"
	"github.com/onnwee/screenshot-api/internal/metrics"
)

// Trigger sources recorded in metrics and LastRun.
const (
	TriggerSchedule = "schedule"
	TriggerDispatch = "dispatch"
	TriggerAdmin    = "admin"
)

// Sweeper runs one full cache cleanup.
type Sweeper interface {
	Sweep(ctx context.Context) (cache.SweepReport, error)
}

// Run describes the most recent sweep.
type Run struct {
	Trigger  string            `json:"trigger"`
	At       time.Time         `json:"at"`
	Duration time.Duration     `json:"duration_ns"`
	Report   cache.SweepReport `json:"report"`
	Error    string            `json:"error,omitempty"`
}

// Service runs janitor sweeps on a cron schedule and on request, off the serving path.
type Service struct {
	sweeper  Sweeper
	schedule cron.Schedule
	ticks    chan struct{}
	pending  chan string
	stop     chan struct{}
	stopOnce sync.Once
	log      *slog.Logger

	sweepMu sync.Mutex // one sweep at a time per service

	mu   sync.Mutex
	last *Run
}

// NewService creates a scheduler service sweeping on expr, a standard cron
// expression or a descriptor such as "@every 10m".
func NewService(sweeper Sweeper, expr string) (*Service, error) {
	schedule, err := parseSchedule(expr)
	if err != nil {
		return nil, err
	}
	return newService(sweeper, schedule), nil
}

func newService(sweeper Sweeper, schedule cron.Schedule) *Service {
	return &Service{
		sweeper:  sweeper,
		schedule: schedule,
		ticks:    make(chan struct{}, 1),
		pending:  make(chan string, 1),
		stop:     make(chan struct{}),
		log:      logger.WithComponent("janitor-scheduler"),
	}
}

// Start runs a sweep immediately and then on every scheduled tick or trigger.
func (s *Service) Start(ctx context.Context) {
	s.log.Info("Starting janitor scheduler")
	s.RunNow(ctx, TriggerSchedule)

	c := cron.New()
	c.Schedule(s.schedule, cron.FuncJob(func() {
		// a tick arriving while one is pending is dropped
		select {
		case s.ticks <- struct{}{}:
		default:
		}
	}))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Janitor scheduler stopped by context")
			return
		case <-s.stop:
			s.log.Info("Janitor scheduler stopped by signal")
			return
		case reason := <-s.pending:
			s.RunNow(ctx, reason)
		case <-s.ticks:
			s.RunNow(ctx, TriggerSchedule)
		}
	}
}

// Stop gracefully stops the scheduler
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Trigger asks for a sweep without waiting for it. Requests arriving while one
// is already pending are coalesced; it reports whether this call queued a sweep.
func (s *Service) Trigger(reason string) bool {
	select {
	case s.pending <- reason:
		return true
	default:
		return false
	}
}

// RunNow sweeps synchronously. Errors are logged and recorded, never fatal.
func (s *Service) RunNow(ctx context.Context, reason string) Run {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	start := time.Now()
	report, err := s.sweeper.Sweep(ctx)
	run := Run{Trigger: reason, At: start, Duration: time.Since(start), Report: report}

	status := "success"
	if err != nil {
		status = "failed"
		run.Error = err.Error()
		s.log.Error("Cache sweep failed", "trigger", reason, "error", err)
	} else if report.Deleted > 0 || report.Failures > 0 {
		s.log.Info("Cache sweep finished",
			"trigger", reason,
			"scanned", report.Scanned,
			"deleted", report.Deleted,
			"freed_bytes", report.FreedBytes,
			"failures", report.Failures)
	}

	metrics.JanitorSweeps.WithLabelValues(reason, status).Inc()
	metrics.JanitorSweepDuration.Observe(run.Duration.Seconds())
	metrics.JanitorEvictions.Add(float64(report.Deleted))
	metrics.JanitorFreedBytes.Add(float64(report.FreedBytes))
	metrics.JanitorDeleteFailures.Add(float64(report.Failures))

	s.mu.Lock()
	s.last = &run
	s.mu.Unlock()
	return run
}

// LastRun returns the most recent sweep, if any.
func (s *Service) LastRun() (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Run{}, false
	}
	return *s.last, true
}
