package handlers

import (
	"context"
	"net/http"
	"time"
)

// Health returns a simple JSON payload to indicate the API is alive.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

// Check probes one dependency.
type Check func(ctx context.Context) error

// readinessTimeout bounds all checks of one readiness probe.
const readinessTimeout = 2 * time.Second

// Ready runs every check and reports 503 when any fails.
// GET /health/ready
func Ready(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		overall := "ready"
		if status != http.StatusOK {
			overall = "unavailable"
		}
		writeJSON(w, r, status, map[string]any{"status": overall, "checks": results})
	}
}
