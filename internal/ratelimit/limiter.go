package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/aegis-picks/pkg/logger"
	"github.com/wonny/aegis-picks/pkg/metrics"
)

var (
	// ErrRateLimited means no slot freed before the timeout
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUnboundedWait means an unbounded wait was requested outside a background context
	ErrUnboundedWait = errors.New("unbounded rate limit wait requires a background context")
)

// NoTimeout asks Acquire to wait until a slot frees. Only allowed when the
// context is marked with WithBackground.
const NoTimeout time.Duration = -1

// minRetry keeps the recheck loop from spinning when the oldest entry is
// exactly on the window edge
const minRetry = 10 * time.Millisecond

type backgroundKey struct{}

// WithBackground marks ctx as a batch/background context, permitting NoTimeout
func WithBackground(ctx context.Context) context.Context {
	return context.WithValue(ctx, backgroundKey{}, true)
}

// IsBackground reports whether ctx was marked with WithBackground
func IsBackground(ctx context.Context) bool {
	v, _ := ctx.Value(backgroundKey{}).(bool)
	return v
}

// Option configures a limiter
type Option func(*options)

type options struct {
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	metrics *metrics.Metrics
}

func defaultOptions() options {
	return options{now: time.Now, sleep: sleepContext}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSleep replaces the wait primitive (tests drive a fake clock with it)
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// counters are the in-process acquire statistics of one key
type counters struct {
	granted atomic.Int64
	denied  atomic.Int64
	waited  atomic.Int64 // nanoseconds
}

// engine runs the sliding-window acquire loop shared by both limiters.
// When the shared store fails it degrades to a process-local window.
type engine struct {
	store  WindowStore
	local  *LocalWindows
	opts   options
	logger *logger.Logger
	stats  sync.Map // key -> *counters
}

func newEngine(store WindowStore, log *logger.Logger, opts []Option) *engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.Nop()
	}
	local := NewLocalWindows()
	if store == nil {
		store = local
	}
	return &engine{
		store:  store,
		local:  local,
		opts:   o,
		logger: log.Component("ratelimit"),
	}
}

func (e *engine) counters(key string) *counters {
	c, _ := e.stats.LoadOrStore(key, &counters{})
	return c.(*counters)
}

func (e *engine) admit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	now := e.opts.now()
	ok, _, oldest, err := e.store.Admit(ctx, key, limit, window, now)
	if err == nil {
		return ok, oldest
	}

	e.logger.WithError(err).WithField("key", key).Warn("shared rate window unavailable, using local window")
	ok, _, oldest, _ = e.local.Admit(ctx, key, limit, window, now)
	return ok, oldest
}

func (e *engine) deny(key string, waited time.Duration) {
	e.counters(key).denied.Add(1)
	e.opts.metrics.LimiterDecision(key, false, waited)
}

func (e *engine) peek(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, oldest, err := e.store.Peek(ctx, key, window, e.opts.now())
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("peek window %s: %w", key, err)
	}
	return count, oldest, nil
}

// acquire blocks until a slot frees, the timeout elapses or ctx is done.
// timeout 0 means a single non-blocking attempt.
func (e *engine) acquire(ctx context.Context, key string, limit int, window, timeout time.Duration) error {
	if timeout < 0 && !IsBackground(ctx) {
		return ErrUnboundedWait
	}

	start := e.opts.now()
	var deadline time.Time
	if timeout >= 0 {
		deadline = start.Add(timeout)
	}
	c := e.counters(key)

	for {
		ok, oldest := e.admit(ctx, key, limit, window)
		now := e.opts.now()
		if ok {
			waited := now.Sub(start)
			c.granted.Add(1)
			c.waited.Add(int64(waited))
			e.opts.metrics.LimiterDecision(key, true, waited)
			return nil
		}

		if !deadline.IsZero() && !now.Before(deadline) {
			e.deny(key, now.Sub(start))
			return ErrRateLimited
		}

		wait := window - now.Sub(oldest)
		if oldest.IsZero() || wait < minRetry {
			wait = minRetry
		}
		if !deadline.IsZero() {
			if remaining := deadline.Sub(now); wait > remaining {
				wait = remaining
			}
		}

		e.logger.WithFields(map[string]interface{}{
			"key":  key,
			"wait": wait.String(),
		}).Debug("rate window full, waiting")

		if err := e.opts.sleep(ctx, wait); err != nil {
			e.deny(key, e.opts.now().Sub(start))
			return fmt.Errorf("wait for %s: %w", key, err)
		}
	}
}
