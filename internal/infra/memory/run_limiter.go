package memory

import (
	"context"
	"sync"
	"time"
)

// RunLimiter is a fixed-window counter per key, mirroring the Redis limiter for local runs and tests.
type RunLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]runWindow
}

type runWindow struct {
	count   int
	resetAt time.Time
}

func NewRunLimiter(limit int, window time.Duration) *RunLimiter {
	return &RunLimiter{limit: limit, window: window, now: time.Now, windows: make(map[string]runWindow)}
}

// WithClock replaces the time source; used for deterministic windows in tests.
func (l *RunLimiter) WithClock(now func() time.Time) *RunLimiter {
	l.now = now
	return l
}

func (l *RunLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.windows[key]
	if !now.Before(w.resetAt) {
		w = runWindow{resetAt: now.Add(l.window)}
	}
	w.count++
	l.windows[key] = w
	return w.count <= l.limit, nil
}
