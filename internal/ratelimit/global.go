package ratelimit

import (
	"context"
	"time"

	"github.com/wonny/aegis-picks/pkg/logger"
)

// Global enforces one fixed quota of maxCalls per window across every caller
type Global struct {
	engine   *engine
	key      string
	maxCalls int
	window   time.Duration
}

// NewGlobal creates a global limiter. name keys its window in the store.
func NewGlobal(store WindowStore, name string, maxCalls int, window time.Duration, log *logger.Logger, opts ...Option) *Global {
	if maxCalls < 1 {
		maxCalls = 1
	}
	return &Global{
		engine:   newEngine(store, log, opts),
		key:      "global:" + name,
		maxCalls: maxCalls,
		window:   window,
	}
}

// Acquire grants a slot immediately or returns false
func (g *Global) Acquire(ctx context.Context) bool {
	return g.engine.acquire(ctx, g.key, g.maxCalls, g.window, 0) == nil
}

// Wait blocks until a slot frees, at most timeout (NoTimeout needs a background context)
func (g *Global) Wait(ctx context.Context, timeout time.Duration) error {
	return g.engine.acquire(ctx, g.key, g.maxCalls, g.window, timeout)
}

// Remaining returns the free slots in the current window
func (g *Global) Remaining(ctx context.Context) (int, error) {
	count, _, err := g.engine.peek(ctx, g.key, g.window)
	if err != nil {
		return 0, err
	}
	if count >= g.maxCalls {
		return 0, nil
	}
	return g.maxCalls - count, nil
}
