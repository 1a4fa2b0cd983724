// Package ratelimit throttles outbound provider calls with sliding windows:
// a global limiter with one fixed quota, and a tiered limiter that gives each
// named upstream interface an independent quota derived from the account's
// subscription tier.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// WindowStore keeps per-key call logs for a trailing window. Entries whose
// age is >= window are never counted.
//
// pkg/redis.WindowStore satisfies it for multi-instance deployments;
// LocalWindows is correct only for a single process.
type WindowStore interface {
	// Admit prunes expired entries and records now if fewer than limit remain.
	// It returns whether the call was admitted, the count after the decision
	// and the oldest timestamp still in the window.
	Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, int, time.Time, error)
	// Peek prunes and reports the window without recording anything
	Peek(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error)
	Clear(ctx context.Context, key string) error
}

// LocalWindows is the in-process WindowStore. Each key has its own lock so
// one busy interface never blocks another.
type LocalWindows struct {
	mu      sync.Mutex
	windows map[string]*localWindow
}

type localWindow struct {
	mu    sync.Mutex
	calls []time.Time // ascending
}

// NewLocalWindows creates an empty in-process window store
func NewLocalWindows() *LocalWindows {
	return &LocalWindows{windows: make(map[string]*localWindow)}
}

func (l *LocalWindows) get(key string) *localWindow {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &localWindow{}
		l.windows[key] = w
	}
	return w
}

// prune drops entries at or before now-window. Caller holds w.mu.
func (w *localWindow) prune(window time.Duration, now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

func (w *localWindow) oldest() time.Time {
	if len(w.calls) == 0 {
		return time.Time{}
	}
	return w.calls[0]
}

// Admit implements WindowStore
func (l *LocalWindows) Admit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (bool, int, time.Time, error) {
	w := l.get(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(window, now)
	if len(w.calls) >= limit {
		return false, len(w.calls), w.oldest(), nil
	}
	w.calls = append(w.calls, now)
	return true, len(w.calls), w.oldest(), nil
}

// Peek implements WindowStore
func (l *LocalWindows) Peek(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	w := l.get(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(window, now)
	return len(w.calls), w.oldest(), nil
}

// Clear implements WindowStore
func (l *LocalWindows) Clear(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
	return nil
}
