package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Fake is an in-process Renderer for tests and for running the stack without a browser.
type Fake struct {
	// Image is returned by Render unless RenderFunc is set.
	Image []byte
	// RenderFunc overrides Render.
	RenderFunc func(ctx context.Context, opts Options) ([]byte, error)

	mu     sync.Mutex
	calls  []Options
	closed atomic.Bool
}

// FakeJPEG is a minimal byte sequence with JPEG start and end markers.
var FakeJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 'f', 'a', 'k', 'e', 0xFF, 0xD9}

func (f *Fake) Render(ctx context.Context, opts Options) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()

	if f.closed.Load() {
		return nil, stageErr(StageLaunch, errors.New("renderer closed"))
	}
	if err := ctx.Err(); err != nil {
		return nil, stageErr(StageNavigate, err)
	}
	if f.RenderFunc != nil {
		return f.RenderFunc(ctx, opts)
	}
	if f.Image != nil {
		return f.Image, nil
	}
	return FakeJPEG, nil
}

func (f *Fake) Close() error {
	f.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool { return f.closed.Load() }

// Calls returns the options of every Render call so far.
func (f *Fake) Calls() []Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Options(nil), f.calls...)
}
