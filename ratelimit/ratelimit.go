// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ratelimit

import (
	"sync"
	"time"
)

// Config holds the thresholds for one limiter instance.
type Config struct {
	Name           string
	Limit          int
	Window         time.Duration
	BurstLimit     int
	BurstExtension time.Duration
	SweepInterval  time.Duration
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RetryAfter returns how long a rejected caller should wait.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// entry is one key's window. Burst admissions push resetAt out, so it is
// both the window and the burst reset time.
type entry struct {
	count   int
	resetAt time.Time
	burst   int
}

// Limiter is a per-key fixed-window limiter with a burst allowance.
// Safe for concurrent use.
type Limiter struct {
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*entry

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New creates a limiter. If cfg.SweepInterval is positive a background
// sweeper runs until Close is called.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go l.sweepLoop()
	} else {
		close(l.done)
	}
	return l
}

func (l *Limiter) Name() string { return l.cfg.Name }

// Check admits or rejects one request for key.
func (l *Limiter) Check(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(l.cfg.Window)}
		l.entries[key] = e
	}

	if e.count < l.cfg.Limit {
		e.count++
		return Decision{
			Allowed:   true,
			Remaining: l.cfg.Limit - e.count + l.cfg.BurstLimit - e.burst,
			ResetAt:   e.resetAt,
		}
	}

	if e.burst < l.cfg.BurstLimit {
		e.burst++
		e.resetAt = e.resetAt.Add(l.cfg.BurstExtension)
		return Decision{
			Allowed:   true,
			Remaining: l.cfg.BurstLimit - e.burst,
			ResetAt:   e.resetAt,
		}
	}

	return Decision{Allowed: false, Remaining: 0, ResetAt: e.resetAt}
}

// Sweep removes expired entries and returns how many were dropped.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the background sweeper.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
	<-l.done
}

func (l *Limiter) sweepLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stop:
			return
		}
	}
}
