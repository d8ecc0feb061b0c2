// Package ratelimit implements the global request ceiling and optional
// per-host politeness limits applied before every fetch attempt.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Window admits at most limit requests in any rolling period of length window.
// Callers over the ceiling block until the oldest admitted request leaves the
// window; they are never rejected.
type Window struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// WindowOption customizes a Window.
type WindowOption func(*Window)

// WithClock overrides the time source and the sleep used while blocked.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) WindowOption {
	return func(w *Window) {
		if now != nil {
			w.now = now
		}
		if sleep != nil {
			w.sleep = sleep
		}
	}
}

// NewWindow builds a ceiling of limit requests per window.
func NewWindow(limit int, window time.Duration, opts ...WindowOption) (*Window, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("rate limit must be > 0")
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate window must be > 0")
	}
	w := &Window{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Wait blocks until a slot is free, records the admission and returns how long
// the caller was held. It only fails when ctx is done.
func (w *Window) Wait(ctx context.Context) (time.Duration, error) {
	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return waited, fmt.Errorf("rate limit wait: %w", err)
		}
		w.mu.Lock()
		now := w.now()
		w.evict(now)
		if len(w.stamps) < w.limit {
			w.stamps = append(w.stamps, now)
			w.mu.Unlock()
			return waited, nil
		}
		delay := w.stamps[0].Add(w.window).Sub(now)
		w.mu.Unlock()

		if err := w.sleep(ctx, delay); err != nil {
			return waited, fmt.Errorf("rate limit wait: %w", err)
		}
		waited += delay
	}
}

// inFlight reports how many admissions fall inside the current window.
func (w *Window) inFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.now())
	return len(w.stamps)
}

// evict drops admissions older than the window. Caller holds mu.
func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
