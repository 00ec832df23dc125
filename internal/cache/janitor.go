package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/onnwee/screenshot-api/internal/logger"
)

// DefaultTargetFillRatio is the fraction of the size budget a size sweep evicts down to.
const DefaultTargetFillRatio = 0.8

// SweepReport summarizes one sweep.
type SweepReport struct {
	Scanned    int   `json:"scanned"`
	Deleted    int   `json:"deleted"`
	FreedBytes int64 `json:"freed_bytes"`
	Failures   int   `json:"failures"`
}

func (r *SweepReport) add(o SweepReport) {
	r.Scanned += o.Scanned
	r.Deleted += o.Deleted
	r.FreedBytes += o.FreedBytes
	r.Failures += o.Failures
}

// JanitorConfig carries the budgets used by Sweep.
type JanitorConfig struct {
	TTL             time.Duration
	MaxBytes        int64
	TargetFillRatio float64
}

// Janitor removes expired entries and keeps the store under its size budget.
// Sweeps may run concurrently with reads, writes and each other.
type Janitor struct {
	store Store
	cfg   JanitorConfig
	now   func() time.Time
	log   *slog.Logger
}

// NewJanitor returns a janitor over store.
func NewJanitor(store Store, cfg JanitorConfig) *Janitor {
	if cfg.TargetFillRatio <= 0 || cfg.TargetFillRatio > 1 {
		cfg.TargetFillRatio = DefaultTargetFillRatio
	}
	return &Janitor{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		log:   logger.WithComponent("cache-janitor"),
	}
}

// Config returns the budgets the janitor was built with.
func (j *Janitor) Config() JanitorConfig { return j.cfg }

// ExpireSweep deletes every entry older than ttl.
func (j *Janitor) ExpireSweep(ctx context.Context, ttl time.Duration) (SweepReport, error) {
	var report SweepReport
	entries, err := j.store.List(ctx)
	if err != nil {
		return report, fmt.Errorf("expire sweep: %w", err)
	}
	report.Scanned = len(entries)

	now := j.now()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if now.Sub(e.ModTime) <= ttl {
			continue
		}
		j.remove(ctx, e, &report)
	}
	return report, nil
}

// SizeSweep evicts oldest-first once the store exceeds maxBytes, until it
// holds at most maxBytes*ratio or is empty.
func (j *Janitor) SizeSweep(ctx context.Context, maxBytes int64, ratio float64) (SweepReport, error) {
	var report SweepReport
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultTargetFillRatio
	}
	entries, err := j.store.List(ctx)
	if err != nil {
		return report, fmt.Errorf("size sweep: %w", err)
	}
	report.Scanned = len(entries)

	var total int64
	for _, e := range entries {
		total += e.Size
	}
	if total <= maxBytes {
		return report, nil
	}

	target := int64(float64(maxBytes) * ratio)
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].ModTime.Before(entries[b].ModTime)
	})
	for _, e := range entries {
		if total <= target {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if j.remove(ctx, e, &report) {
			total -= e.Size
		}
	}
	if total > target {
		j.log.Warn("size sweep could not reach target", "total_bytes", total, "target_bytes", target)
	}
	return report, nil
}

// Sweep runs the expiry sweep and then the size sweep with the configured budgets.
// Both sweeps run even if the first fails; their errors are joined.
func (j *Janitor) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	expired, expErr := j.ExpireSweep(ctx, j.cfg.TTL)
	report.add(expired)
	if errors.Is(expErr, context.Canceled) || errors.Is(expErr, context.DeadlineExceeded) {
		return report, expErr
	}
	sized, sizeErr := j.SizeSweep(ctx, j.cfg.MaxBytes, j.cfg.TargetFillRatio)
	report.add(sized)
	// the size sweep lists the store again
	report.Scanned = max(expired.Scanned, sized.Scanned)
	return report, errors.Join(expErr, sizeErr)
}

// remove deletes one entry and records the outcome. Failures are logged and skipped.
func (j *Janitor) remove(ctx context.Context, e Entry, report *SweepReport) bool {
	if err := j.store.Delete(ctx, e.Key); err != nil {
		report.Failures++
		j.log.Warn("failed to delete cache entry", "key", e.Key, "error", err)
		return false
	}
	report.Deleted++
	report.FreedBytes += e.Size
	return true
}
