package handlers

import (
	"context"
	"net/http"

	"github.com/onnwee/screenshot-api/internal/apierr"
	"github.com/onnwee/screenshot-api/internal/cache"
	"github.com/onnwee/screenshot-api/internal/logger"
	"github.com/onnwee/screenshot-api/internal/scheduler"
)

// CacheStats reports the on-disk cache footprint.
type CacheStats interface {
	Stats(ctx context.Context) (entries int, bytes int64, err error)
}

// SweepRunner runs a janitor sweep and remembers the last one.
type SweepRunner interface {
	RunNow(ctx context.Context, trigger string) scheduler.Run
	LastRun() (scheduler.Run, bool)
}

// CacheAdminHandler handles cache administration endpoints.
type CacheAdminHandler struct {
	stats   CacheStats
	sweeper SweepRunner
	limits  cache.JanitorConfig
}

// NewCacheAdminHandler creates a new cache admin handler.
func NewCacheAdminHandler(stats CacheStats, sweeper SweepRunner, limits cache.JanitorConfig) *CacheAdminHandler {
	return &CacheAdminHandler{stats: stats, sweeper: sweeper, limits: limits}
}

type cacheStatsResponse struct {
	Entries         int            `json:"entries"`
	SizeBytes       int64          `json:"size_bytes"`
	MaxBytes        int64          `json:"max_bytes"`
	TTLSeconds      int64          `json:"ttl_seconds"`
	TargetFillRatio float64        `json:"target_fill_ratio"`
	LastSweep       *scheduler.Run `json:"last_sweep,omitempty"`
}

// GetCacheStats returns current cache statistics.
// GET /admin/cache/stats
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	entries, size, err := h.stats.Stats(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to read cache stats", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.CacheReadFailed("Failed to read cache directory"))
		return
	}

	resp := cacheStatsResponse{
		Entries:         entries,
		SizeBytes:       size,
		MaxBytes:        h.limits.MaxBytes,
		TTLSeconds:      int64(h.limits.TTL.Seconds()),
		TargetFillRatio: h.limits.TargetFillRatio,
	}
	if run, ok := h.sweeper.LastRun(); ok {
		resp.LastSweep = &run
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// Sweep runs a janitor sweep now and returns its report.
// POST /admin/cache/sweep
func (h *CacheAdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	run := h.sweeper.RunNow(r.Context(), scheduler.TriggerAdmin)
	status := http.StatusOK
	if run.Error != "" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, r, status, run)
}
