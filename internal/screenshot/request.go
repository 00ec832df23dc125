// Package screenshot defines the render request value object, its validation
// and the cache key derived from it.
package screenshot

import "time"

// View is a named screen-size profile.
type View string

const (
	ViewDesktop View = "desktop"
	ViewMobile  View = "mobile"
)

// Viewport is the browser window size used for a view.
type Viewport struct {
	Width  int64
	Height int64
}

var viewports = map[View]Viewport{
	ViewDesktop: {Width: 1920, Height: 1080},
	ViewMobile:  {Width: 375, Height: 812},
}

// Viewport returns the window size for v and whether v is a known view.
func (v View) Viewport() (Viewport, bool) {
	vp, ok := viewports[v]
	return vp, ok
}

// WaitUntil is the page-ready condition a render waits for before capturing.
type WaitUntil string

const (
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

func (w WaitUntil) valid() bool {
	switch w {
	case WaitLoad, WaitDOMContentLoaded, WaitNetworkIdle:
		return true
	}
	return false
}

const (
	DefaultQuality   = 80
	DefaultView      = ViewDesktop
	DefaultWaitUntil = WaitNetworkIdle
)

// Request describes one screenshot. It is treated as an immutable value.
type Request struct {
	URL           string    `json:"url"`
	View          View      `json:"view"`
	FullPage      bool      `json:"full_page"`
	WaitTime      int       `json:"wait_time"` // milliseconds after the ready condition
	Quality       int       `json:"quality"`
	WaitUntil     WaitUntil `json:"wait_until"`
	WaitForImages bool      `json:"wait_for_images"`
	ScrollPage    bool      `json:"scroll_page"`
	NoCache       bool      `json:"no_cache"`
}

// NewRequest returns a request for rawURL with every option at its default.
func NewRequest(rawURL string) Request {
	return Request{
		URL:           rawURL,
		View:          DefaultView,
		Quality:       DefaultQuality,
		WaitUntil:     DefaultWaitUntil,
		WaitForImages: true,
		ScrollPage:    true,
	}
}

// PostLoadWait returns WaitTime as a duration.
func (r Request) PostLoadWait() time.Duration {
	return time.Duration(r.WaitTime) * time.Millisecond
}
