package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/onnwee/screenshot-api/internal/logger"
)

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnContext(r.Context(), "Failed to encode response", "error", err)
	}
}

// writeImage serves a JPEG body.
func writeImage(w http.ResponseWriter, r *http.Request, img []byte, cacheHeader string) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	if cacheHeader != "" {
		w.Header().Set("X-Cache", cacheHeader)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img); err != nil {
		logger.DebugContext(r.Context(), "Client went away while sending screenshot", "error", err)
	}
}

// processingResponse is returned while a render is queued or running.
type processingResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
}
