// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Applier is what the queue workers call for each credit.
type Applier interface {
	Credit(ctx context.Context, c Credit) error
}

// QueueConfig tunes the in-process credit queue.
type QueueConfig struct {
	Workers      int
	Buffer       int
	Attempts     int
	Backoff      time.Duration
	ApplyTimeout time.Duration
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 200 * time.Millisecond
	}
	if c.ApplyTimeout <= 0 {
		c.ApplyTimeout = 5 * time.Second
	}
	return c
}

// Queue applies credits on background workers so the payment response
// never waits for them.
type Queue struct {
	applier Applier
	cfg     QueueConfig
	jobs    chan Credit

	mu       sync.RWMutex
	closed   bool
	workers  sync.WaitGroup
	overflow sync.WaitGroup
}

// NewQueue starts cfg.Workers workers feeding credits to applier.
func NewQueue(applier Applier, cfg QueueConfig) *Queue {
	cfg = cfg.withDefaults()
	q := &Queue{
		applier: applier,
		cfg:     cfg,
		jobs:    make(chan Credit, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		q.workers.Add(1)
		go q.work()
	}
	return q
}

// Dispatch hands c to the workers without blocking. When the buffer is
// full the credit is applied on its own goroutine instead of being dropped.
func (q *Queue) Dispatch(c Credit) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		slog.Error("credit dispatched after shutdown", "payment_key", c.PaymentKey, "candidate_id", c.CandidateID)
		return
	}

	select {
	case q.jobs <- c:
	default:
		slog.Warn("credit queue full, applying inline", "payment_key", c.PaymentKey)
		q.overflow.Add(1)
		go func() {
			defer q.overflow.Done()
			q.apply(c)
		}()
	}
}

// Close stops accepting credits and waits for queued ones to be applied,
// or for ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.workers.Wait()
		q.overflow.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer q.workers.Done()
	for c := range q.jobs {
		q.apply(c)
	}
}

func (q *Queue) apply(c Credit) {
	var err error
	for attempt := 1; attempt <= q.cfg.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.ApplyTimeout)
		err = q.applier.Credit(ctx, c)
		cancel()

		switch {
		case err == nil:
			slog.Info("votes credited", "payment_key", c.PaymentKey, "candidate_id", c.CandidateID, "votes", c.Votes)
			return
		case errors.Is(err, ErrAlreadyCredited):
			slog.Info("duplicate credit ignored", "payment_key", c.PaymentKey)
			return
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidCount):
			slog.Error("vote credit rejected", "error", err, "payment_key", c.PaymentKey, "candidate_id", c.CandidateID)
			return
		}

		if attempt < q.cfg.Attempts {
			time.Sleep(q.cfg.Backoff * time.Duration(attempt))
		}
	}
	slog.Error("vote credit failed", "error", err, "payment_key", c.PaymentKey, "candidate_id", c.CandidateID, "attempts", q.cfg.Attempts)
}
