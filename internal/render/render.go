// Package render turns a screenshot request into JPEG bytes using a browser.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/screenshot-api/internal/screenshot"
)

// Stages reported in Error.
const (
	StageLaunch   = "launch"
	StageViewport = "viewport"
	StageNavigate = "navigate"
	StageWait     = "wait"
	StageScroll   = "scroll"
	StageImages   = "images"
	StageCapture  = "capture"
)

// Options is everything a Renderer needs for one capture.
type Options struct {
	URL           string
	Viewport      screenshot.Viewport
	FullPage      bool
	WaitUntil     screenshot.WaitUntil
	PostLoadWait  time.Duration
	Quality       int
	WaitForImages bool
	ScrollPage    bool
}

// OptionsFor maps a validated request onto render options.
func OptionsFor(req screenshot.Request) (Options, error) {
	vp, ok := req.View.Viewport()
	if !ok {
		return Options{}, fmt.Errorf("unknown view %q", req.View)
	}
	return Options{
		URL:           req.URL,
		Viewport:      vp,
		FullPage:      req.FullPage,
		WaitUntil:     req.WaitUntil,
		PostLoadWait:  req.PostLoadWait(),
		Quality:       req.Quality,
		WaitForImages: req.WaitForImages,
		ScrollPage:    req.ScrollPage,
	}, nil
}

// Renderer captures pages. Implementations honor ctx cancellation and deadlines.
type Renderer interface {
	Render(ctx context.Context, opts Options) ([]byte, error)
	Close() error
}

// Factory creates a fresh Renderer. Workers call it again after recycling.
type Factory func(ctx context.Context) (Renderer, error)

// Error is a capture failure. Callers treat it as opaque and surface Error() to users.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render failed during %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the failure came from a deadline.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Stage: stage, Err: err}
}
