package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"placement-service/internal/domain"
)

// Countdown fires a submission when an attempt's deadline passes. Deadlines are always derived from the
// stored start timestamp, so a restarted process reschedules them without granting extra time.
type Countdown struct {
	now   func() time.Time
	retry time.Duration

	mu     sync.Mutex
	fire   func(ctx context.Context, attemptID string) error
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

// NewCountdown builds a countdown whose failed expiry submissions are retried after the given delay.
func NewCountdown(retry time.Duration) *Countdown {
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return &Countdown{now: time.Now, retry: retry, timers: make(map[string]*time.Timer)}
}

// NewCountdownWithClock is test-only for deterministic deadlines.
func NewCountdownWithClock(retry time.Duration, now func() time.Time) *Countdown {
	c := NewCountdown(retry)
	c.now = now
	return c
}

func (c *Countdown) bind(fire func(ctx context.Context, attemptID string) error) {
	c.mu.Lock()
	c.fire = fire
	c.mu.Unlock()
}

// Schedule arms (or re-arms) the expiry timer for an attempt.
func (c *Countdown) Schedule(attemptID string, deadline time.Time) {
	c.arm(attemptID, deadline.Sub(c.now()))
}

func (c *Countdown) arm(attemptID string, wait time.Duration) {
	if wait < 0 {
		wait = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if t, ok := c.timers[attemptID]; ok {
		t.Stop()
	}
	c.timers[attemptID] = time.AfterFunc(wait, func() { c.expire(attemptID) })
}

// Cancel disarms the timer of a finished attempt.
func (c *Countdown) Cancel(attemptID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[attemptID]; ok {
		t.Stop()
		delete(c.timers, attemptID)
	}
}

// Pending reports how many attempts have an armed timer.
func (c *Countdown) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Stop disarms every timer and waits for in-flight expiry submissions.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Countdown) expire(attemptID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	delete(c.timers, attemptID)
	fire := c.fire
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	if fire == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	err := fire(ctx, attemptID)
	switch {
	case err == nil:
	case retryable(err):
		logger.Warn("timed submission failed, retrying", slog.String("attempt_id", attemptID), slog.Duration("retry_in", c.retry), slog.Any("err", err))
		c.arm(attemptID, c.retry)
	default:
		logger.Error("timed submission failed permanently", slog.String("attempt_id", attemptID), slog.Any("err", err))
	}
}

// retryable separates outages (evaluator, store connectivity) from errors a later attempt cannot fix.
func retryable(err error) bool {
	for _, permanent := range []error{
		domain.ErrAttemptNotFound,
		domain.ErrAssessmentNotFound,
		domain.ErrAlreadyTerminal,
		domain.ErrDraftsLost,
		domain.ErrInvalidTransition,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}
