package render

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/onnwee/screenshot-api/internal/screenshot"
)

const (
	scrollPause      = 500 * time.Millisecond
	scrollSettle     = time.Second
	defaultNavLimit  = 30 * time.Second
	// DefaultMaxCaptureHeight keeps full-page captures under Chrome's texture limit.
	DefaultMaxCaptureHeight = 16384
)

// ChromeConfig configures the headless browser process.
type ChromeConfig struct {
	// ExecPath overrides browser discovery.
	ExecPath string
	// NavigationTimeout bounds navigation plus the ready condition. Defaults to 30s.
	NavigationTimeout time.Duration
	NoSandbox         bool
	UserAgent         string
	// MaxCaptureHeight clips full-page captures, in CSS pixels. Zero means
	// DefaultMaxCaptureHeight, a negative value disables clipping.
	MaxCaptureHeight int
}

// ChromeRenderer drives one headless Chrome process. Each Render opens its own
// tab and closes it on return.
type ChromeRenderer struct {
	cfg           ChromeConfig
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

// NewChromeRenderer launches the browser. The process outlives ctx and stops on Close.
func NewChromeRenderer(ctx context.Context, cfg ChromeConfig) (*ChromeRenderer, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavLimit
	}
	if cfg.MaxCaptureHeight == 0 {
		cfg.MaxCaptureHeight = DefaultMaxCaptureHeight
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// First Run starts the browser; bound it by the caller's ctx.
	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, stageErr(StageLaunch, err)
	}

	return &ChromeRenderer{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// ChromeFactory returns a Factory producing ChromeRenderers with cfg.
func ChromeFactory(cfg ChromeConfig) Factory {
	return func(ctx context.Context) (Renderer, error) {
		return NewChromeRenderer(ctx, cfg)
	}
}

// Close shuts the browser down. It is safe to call more than once.
func (r *ChromeRenderer) Close() error {
	r.closeOnce.Do(func() {
		r.browserCancel()
		r.allocCancel()
	})
	return nil
}

func (r *ChromeRenderer) Render(ctx context.Context, opts Options) ([]byte, error) {
	tabCtx, closeTab := chromedp.NewContext(r.browserCtx)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithDeadline(tabCtx, deadline)
		defer cancel()
	}

	ready, navigating := r.watchLifecycle(tabCtx, opts.WaitUntil)

	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(opts.Viewport.Width, opts.Viewport.Height),
		page.SetLifecycleEventsEnabled(true),
	)
	if err != nil {
		return nil, stageErr(StageViewport, r.cause(ctx, err))
	}

	if err := r.navigate(ctx, tabCtx, opts, ready, navigating); err != nil {
		return nil, err
	}

	if opts.PostLoadWait > 0 {
		if err := chromedp.Run(tabCtx, chromedp.Sleep(opts.PostLoadWait)); err != nil {
			return nil, stageErr(StageWait, r.cause(ctx, err))
		}
	}
	if opts.ScrollPage {
		if err := scrollThrough(tabCtx); err != nil {
			return nil, stageErr(StageScroll, r.cause(ctx, err))
		}
	}
	if opts.WaitForImages {
		if err := waitForImages(tabCtx); err != nil {
			return nil, stageErr(StageImages, r.cause(ctx, err))
		}
	}

	buf, err := capture(tabCtx, opts, r.cfg.MaxCaptureHeight)
	if err != nil {
		return nil, stageErr(StageCapture, r.cause(ctx, err))
	}
	return buf, nil
}

// watchLifecycle signals ready once the page reports the wanted lifecycle
// event after navigation began.
func (r *ChromeRenderer) watchLifecycle(tabCtx context.Context, until screenshot.WaitUntil) (<-chan struct{}, *atomic.Bool) {
	ready := make(chan struct{})
	navigating := new(atomic.Bool)
	if until != screenshot.WaitNetworkIdle {
		// chromedp.Navigate already waits for the load event
		close(ready)
		return ready, navigating
	}
	var once sync.Once
	chromedp.ListenTarget(tabCtx, func(ev any) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok || e.Name != "networkIdle" || !navigating.Load() {
			return
		}
		once.Do(func() { close(ready) })
	})
	return ready, navigating
}

func (r *ChromeRenderer) navigate(ctx, tabCtx context.Context, opts Options, ready <-chan struct{}, navigating *atomic.Bool) error {
	navCtx, cancel := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout)
	defer cancel()

	navigating.Store(true)
	if err := chromedp.Run(navCtx, chromedp.Navigate(opts.URL)); err != nil {
		return stageErr(StageNavigate, r.cause(ctx, err))
	}
	select {
	case <-ready:
		return nil
	case <-navCtx.Done():
		if ctx.Err() != nil {
			return stageErr(StageNavigate, ctx.Err())
		}
		return stageErr(StageNavigate, fmt.Errorf("page did not reach %s within %s", opts.WaitUntil, r.cfg.NavigationTimeout))
	}
}

// cause prefers the caller's context error over chromedp's generic cancellation.
func (r *ChromeRenderer) cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

const pageHeightsJS = `({
	total: Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight),
	viewport: window.innerHeight
})`

// scrollThrough walks the page one viewport at a time so lazy content loads,
// then returns to the top.
func scrollThrough(ctx context.Context) error {
	var heights struct {
		Total    float64 `json:"total"`
		Viewport float64 `json:"viewport"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(pageHeightsJS, &heights)); err != nil {
		return err
	}
	if heights.Viewport <= 0 {
		return nil
	}
	var pos float64
	for pos < heights.Total {
		var ok bool
		err := chromedp.Run(ctx,
			chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d), true", int64(pos)), &ok),
			chromedp.Sleep(scrollPause),
		)
		if err != nil {
			return err
		}
		pos += heights.Viewport
	}
	var ok bool
	return chromedp.Run(ctx,
		chromedp.Evaluate("window.scrollTo(0, 0), true", &ok),
		chromedp.Sleep(scrollSettle),
	)
}

const pendingImagesJS = `Promise.all(
	Array.from(document.images)
		.filter(img => !img.complete)
		.map(img => new Promise(resolve => { img.onload = img.onerror = resolve; }))
).then(() => true)`

const forceLazyImagesJS = `(() => {
	let n = 0;
	document.querySelectorAll('img[loading="lazy"]').forEach(img => {
		if (img.dataset.src) { img.src = img.dataset.src; n++; }
		if (img.dataset.srcset) { img.srcset = img.dataset.srcset; n++; }
	});
	return n;
})()`

// waitForImages waits for pending images, forces lazy sources, and waits again.
func waitForImages(ctx context.Context) error {
	var done bool
	var forced int
	return chromedp.Run(ctx,
		chromedp.Evaluate(pendingImagesJS, &done, awaitPromise),
		chromedp.Evaluate(forceLazyImagesJS, &forced),
		chromedp.Evaluate(pendingImagesJS, &done, awaitPromise),
	)
}

const documentSizeJS = `({
	width: Math.max(document.documentElement.scrollWidth, document.body ? document.body.scrollWidth : 0),
	height: Math.max(document.documentElement.scrollHeight, document.body ? document.body.scrollHeight : 0)
})`

// captureHeight is the full-page clip height for a document; the page is never
// shorter than the viewport and never taller than limit when limit > 0.
func captureHeight(document float64, viewport int64, limit int) float64 {
	h := math.Max(document, float64(viewport))
	if limit > 0 {
		h = math.Min(h, float64(limit))
	}
	return h
}

func capture(ctx context.Context, opts Options, maxHeight int) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		shot := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(opts.Quality))

		if opts.FullPage {
			var size struct {
				Width  float64 `json:"width"`
				Height float64 `json:"height"`
			}
			if err := chromedp.Evaluate(documentSizeJS, &size).Do(ctx); err != nil {
				return err
			}
			width := math.Max(size.Width, float64(opts.Viewport.Width))
			height := captureHeight(size.Height, opts.Viewport.Height, maxHeight)
			shot = shot.
				WithCaptureBeyondViewport(true).
				WithClip(&page.Viewport{X: 0, Y: 0, Width: width, Height: height, Scale: 1})
		}

		var err error
		buf, err = shot.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}
