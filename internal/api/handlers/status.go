package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/onnwee/screenshot-api/internal/apierr"
	"github.com/onnwee/screenshot-api/internal/dispatch"
	"github.com/onnwee/screenshot-api/internal/logger"
)

// StatusResolver reports the state of a render job.
type StatusResolver interface {
	Resolve(ctx context.Context, id string) (dispatch.Status, error)
}

// StatusHandler serves job status polls and status streams.
type StatusHandler struct {
	resolver StatusResolver
	stream   StreamConfig
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(resolver StatusResolver, stream StreamConfig) *StatusHandler {
	stream.applyDefaults()
	return &StatusHandler{resolver: resolver, stream: stream}
}

// Get returns the screenshot once the job succeeded, or its current state.
// GET /screenshot/status/{job_id}
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job_id"]

	st, err := h.resolver.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, dispatch.ErrSubstrateUnavailable) {
			w.Header().Set("Retry-After", "5")
			apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Screenshot queue is unavailable, try again later"))
			return
		}
		logger.ErrorContext(r.Context(), "Status lookup failed", "job_id", id, "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal(""))
		return
	}

	switch st.State {
	case dispatch.StateSucceeded:
		writeImage(w, r, st.Image, "")
	case dispatch.StatePending:
		writeJSON(w, r, http.StatusOK, processingResponse{Status: "processing", TaskID: id})
	case dispatch.StateUnknown:
		apierr.WriteErrorWithContext(w, r, apierr.JobNotFound(id))
	default:
		apierr.WriteErrorWithContext(w, r, apierr.RenderFailed(id, st.Message))
	}
}
