// Package ratelimit caps login attempts per client address inside a fixed window.
// State is process-local; several instances behind a balancer each keep their
// own counters.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/apperr"
)

var ErrTooManyAttempts = fmt.Errorf("%w: too many login attempts", apperr.ErrRateLimited)

// Decision is the outcome of a single Admit call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Err returns ErrTooManyAttempts for a rejected decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrTooManyAttempts
}

type window struct {
	count int
	start time.Time
}

// Limiter counts attempts per key. Safe for concurrent use.
type Limiter struct {
	max    int
	period time.Duration
	now    func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a limiter admitting max attempts per key in each period.
func New(max int, period time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		max:     max,
		period:  period,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, o := range opts {
		o(l)
	}
	l.lastSweep = l.now()
	return l
}

// Admit records one attempt for key and reports whether it is allowed.
// The check and the increment happen under one lock so concurrent bursts
// from the same address cannot undercount.
func (l *Limiter) Admit(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.period)) {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++

	remaining := l.max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   w.count <= l.max,
		Limit:     l.max,
		Remaining: remaining,
		Reset:     w.start.Add(l.period),
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// sweep drops expired windows at most once per period. Caller holds mu.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.period {
		return
	}
	for k, w := range l.windows {
		if !now.Before(w.start.Add(l.period)) {
			delete(l.windows, k)
		}
	}
	l.lastSweep = now
}
