package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/onnwee/screenshot-api/internal/apierr"
	"github.com/onnwee/screenshot-api/internal/dispatch"
	"github.com/onnwee/screenshot-api/internal/logger"
	"github.com/onnwee/screenshot-api/internal/screenshot"
)

// Dispatcher serves a cached screenshot or queues a render.
type Dispatcher interface {
	Dispatch(ctx context.Context, req screenshot.Request) (dispatch.Result, error)
}

// ScreenshotHandler handles screenshot requests.
type ScreenshotHandler struct {
	dispatcher Dispatcher
}

// NewScreenshotHandler creates a new screenshot handler.
func NewScreenshotHandler(d Dispatcher) *ScreenshotHandler {
	return &ScreenshotHandler{dispatcher: d}
}

// Capture returns the cached image or a task id to poll.
// GET /screenshot?url=...  and  POST /screenshot with a JSON body
func (h *ScreenshotHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var (
		req  screenshot.Request
		perr *apierr.Error
	)
	if r.Method == http.MethodPost {
		req, perr = decodeBody(r)
	} else {
		req, perr = parseQuery(r.URL.Query())
	}
	if perr != nil {
		apierr.WriteErrorWithContext(w, r, perr)
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		writeDispatchError(w, r, err)
		return
	}

	if res.CacheHit {
		writeImage(w, r, res.Image, "HIT")
		return
	}
	w.Header().Set("X-Cache", "MISS")
	w.Header().Set("Location", "/screenshot/status/"+url.PathEscape(res.JobID))
	writeJSON(w, r, http.StatusAccepted, processingResponse{Status: "processing", TaskID: res.JobID})
}

func writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *screenshot.ValidationError
	switch {
	case errors.As(err, &verr):
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue(verr.Field, verr.Field+" "+verr.Reason))
	case errors.Is(err, dispatch.ErrSubstrateUnavailable):
		w.Header().Set("Retry-After", "5")
		apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Screenshot queue is unavailable, try again later"))
	default:
		logger.ErrorContext(r.Context(), "Screenshot dispatch failed", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal(""))
	}
}

// requestBody mirrors screenshot.Request with optional fields so omitted
// values keep their defaults.
type requestBody struct {
	URL           string  `json:"url"`
	View          *string `json:"view"`
	FullPage      *bool   `json:"full_page"`
	WaitTime      *int    `json:"wait_time"`
	Quality       *int    `json:"quality"`
	WaitUntil     *string `json:"wait_until"`
	WaitForImages *bool   `json:"wait_for_images"`
	ScrollPage    *bool   `json:"scroll_page"`
	NoCache       *bool   `json:"no_cache"`
}

func decodeBody(r *http.Request) (screenshot.Request, *apierr.Error) {
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return screenshot.Request{}, apierr.ValidationBodyTooLarge(tooLarge.Limit)
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return screenshot.Request{}, apierr.ValidationInvalidValue(typeErr.Field, typeErr.Field+" has the wrong type")
		}
		if errors.Is(err, io.EOF) {
			return screenshot.Request{}, apierr.ValidationInvalidValue(screenshot.FieldURL, "url is required")
		}
		return screenshot.Request{}, apierr.ValidationInvalidJSON()
	}

	req := screenshot.NewRequest(strings.TrimSpace(body.URL))
	if body.View != nil {
		req.View = screenshot.View(strings.ToLower(*body.View))
	}
	if body.FullPage != nil {
		req.FullPage = *body.FullPage
	}
	if body.WaitTime != nil {
		req.WaitTime = *body.WaitTime
	}
	if body.Quality != nil {
		req.Quality = *body.Quality
	}
	if body.WaitUntil != nil {
		req.WaitUntil = screenshot.WaitUntil(strings.ToLower(*body.WaitUntil))
	}
	if body.WaitForImages != nil {
		req.WaitForImages = *body.WaitForImages
	}
	if body.ScrollPage != nil {
		req.ScrollPage = *body.ScrollPage
	}
	if body.NoCache != nil {
		req.NoCache = *body.NoCache
	}
	return req, nil
}

func parseQuery(q url.Values) (screenshot.Request, *apierr.Error) {
	req := screenshot.NewRequest(strings.TrimSpace(q.Get("url")))
	if v := q.Get("view"); v != "" {
		req.View = screenshot.View(strings.ToLower(v))
	}
	if v := q.Get("wait_until"); v != "" {
		req.WaitUntil = screenshot.WaitUntil(strings.ToLower(v))
	}

	ints := []struct {
		field string
		dst   *int
	}{
		{screenshot.FieldWaitTime, &req.WaitTime},
		{screenshot.FieldQuality, &req.Quality},
	}
	for _, p := range ints {
		v := q.Get(p.field)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return screenshot.Request{}, apierr.ValidationInvalidValue(p.field, p.field+" must be an integer")
		}
		*p.dst = n
	}

	bools := []struct {
		field string
		dst   *bool
	}{
		{"full_page", &req.FullPage},
		{"wait_for_images", &req.WaitForImages},
		{"scroll_page", &req.ScrollPage},
		{"no_cache", &req.NoCache},
	}
	for _, p := range bools {
		v := q.Get(p.field)
		if v == "" {
			continue
		}
		b, ok := parseBool(v)
		if !ok {
			return screenshot.Request{}, apierr.ValidationInvalidValue(p.field, p.field+" must be a boolean")
		}
		*p.dst = b
	}
	return req, nil
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "1", "t", "true", "yes", "y", "on":
		return true, true
	case "0", "f", "false", "no", "n", "off":
		return false, true
	}
	return false, false
}
