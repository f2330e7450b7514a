package mapview

import (
	"context"
	"errors"
	"sync"
	"time"

	"bus-tracker/internal/fleet"
)

// Renderer draws frames and moves the camera.
type Renderer interface {
	Render(ctx context.Context, f Frame) error
	Focus(ctx context.Context, at fleet.Coordinates) error
}

// Multi fans every call out to all renderers and joins their errors.
type Multi []Renderer

func (m Multi) Render(ctx context.Context, f Frame) error {
	var errs []error
	for _, r := range m {
		if err := r.Render(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Focus(ctx context.Context, at fleet.Coordinates) error {
	var errs []error
	for _, r := range m {
		if err := r.Focus(ctx, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Latest keeps the most recent frame for clients that poll. When it
// follows a source, every read rebuilds the frame as of the read time so
// marker activity is never served from a stale render.
type Latest struct {
	// Now is the clock for sourced frames. Defaults to time.Now.
	Now func() time.Time

	mu     sync.RWMutex
	frame  Frame
	ok     bool
	source func(now time.Time) Frame
}

// Follow makes Frame rebuild from src once the first frame was rendered.
func (l *Latest) Follow(src func(now time.Time) Frame) {
	l.mu.Lock()
	l.source = src
	l.mu.Unlock()
}

func (l *Latest) Render(_ context.Context, f Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	// A pending focus survives redraws until the next Focus call.
	if f.Focus == nil {
		f.Focus = l.frame.Focus
	}
	l.frame, l.ok = f, true
	return nil
}

func (l *Latest) Focus(_ context.Context, at fleet.Coordinates) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame.Focus = &at
	return nil
}

// Frame returns the current frame, if one was rendered.
func (l *Latest) Frame() (Frame, bool) {
	l.mu.RLock()
	f, ok, src := l.frame, l.ok, l.source
	l.mu.RUnlock()
	if !ok || src == nil {
		return f, ok
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	fresh := src(now())
	fresh.Focus = f.Focus
	return fresh, true
}
