// Package ratelimit implements the per-client fixed-window counter that guards
// the upstream API.
//
// A window opens on a client's first request and lasts for the configured
// duration. Every request inside the window increments the count, including
// rejected ones, so a client that keeps hammering stays rejected until the
// window expires. Expiry is lazy: a stale window is replaced on the next
// request from that client.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMax    = 30
	DefaultWindow = time.Minute
)

type window struct {
	count   int
	resetAt time.Time
}

// Decision is the outcome of a single Admit call.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	ResetAt time.Time
}

// Remaining is the number of requests still allowed in the current window.
func (d Decision) Remaining() int {
	if d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}

// RetryAfter is the time left until the window resets, rounded up to whole seconds.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	left := d.ResetAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return (left + time.Second - 1).Truncate(time.Second)
}

// Limiter is safe for concurrent use. The zero value is not usable; call New.
type Limiter struct {
	max    int
	period time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

func New(max int, period time.Duration) *Limiter {
	if max < 1 {
		max = DefaultMax
	}
	if period <= 0 {
		period = DefaultWindow
	}
	return &Limiter{
		max:     max,
		period:  period,
		windows: make(map[string]*window),
	}
}

func (l *Limiter) Max() int { return l.max }
func (l *Limiter) Window() time.Duration { return l.period }

// Admit counts one request from key at now and reports whether it may proceed.
func (l *Limiter) Admit(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(l.period)}
		l.windows[key] = w
	}
	w.count++

	return Decision{
		Allowed: w.count <= l.max,
		Count:   w.count,
		Limit:   l.max,
		ResetAt: w.resetAt,
	}
}

// Len reports how many clients currently have a window, expired or not.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Sweep drops windows that expired before now and returns how many were
// removed. A swept client starts a fresh window on its next request, exactly
// as it would have without the sweep.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, k)
			removed++
		}
	}
	return removed
}

// Run sweeps expired windows every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration, now func() time.Time, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := l.Sweep(now())
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}
