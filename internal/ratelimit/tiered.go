package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/aegis-picks/pkg/logger"
)

// TieredConfig holds the static quota inputs of a tiered limiter.
// Tier and margin are fixed for the lifetime of the limiter.
type TieredConfig struct {
	Table          TierTable
	AccountPoints  int
	SafetyMargin   float64
	DefaultTimeout time.Duration
	PacerBurst     int
}

// Tiered gives every named upstream interface an independent quota of
// min(tier limit, special limit) * safety margin per window.
// ⭐ SSOT: 외부 API 호출 한도는 여기서만 계산
type Tiered struct {
	engine *engine
	cfg    TieredConfig
	pacer  *pacer
}

// Stats is the operational view of one interface's window
type Stats struct {
	Interface    string        `json:"interface"`
	Capacity     int           `json:"capacity"`
	TierLimit    int           `json:"tier_limit"`
	SpecialLimit int           `json:"special_limit,omitempty"`
	SafetyMargin float64       `json:"safety_margin"`
	Window       time.Duration `json:"window"`
	InWindow     int           `json:"in_window"`
	Remaining    int           `json:"remaining"`
	RetryIn      time.Duration `json:"retry_in"`
	Granted      int64         `json:"granted"`
	Denied       int64         `json:"denied"`
	TotalWait    time.Duration `json:"total_wait"`
}

// NewTiered creates a tiered limiter. A nil store uses process-local windows.
func NewTiered(store WindowStore, cfg TieredConfig, log *logger.Logger, opts ...Option) *Tiered {
	if cfg.SafetyMargin <= 0 || cfg.SafetyMargin > 1 {
		cfg.SafetyMargin = 1
	}
	if len(cfg.Table.Tiers) == 0 {
		cfg.Table = DefaultTierTable()
	}
	return &Tiered{
		engine: newEngine(store, log, opts),
		cfg:    cfg,
		pacer:  newPacer(cfg.PacerBurst),
	}
}

// Capacity returns the effective per-window quota of iface (at least 1)
func (t *Tiered) Capacity(iface string) int {
	limit := t.cfg.Table.LimitFor(t.cfg.AccountPoints)
	if special, ok := t.cfg.Table.SpecialLimit(iface); ok {
		limit = min(limit, special)
	}
	// epsilon absorbs float error in limit*margin
	capacity := int(math.Floor(float64(limit)*t.cfg.SafetyMargin + 1e-9))
	return max(capacity, 1)
}

// Window returns the sliding window length
func (t *Tiered) Window() time.Duration {
	return t.cfg.Table.Window
}

// DefaultTimeout is the wait request-serving callers should pass
func (t *Tiered) DefaultTimeout() time.Duration {
	return t.cfg.DefaultTimeout
}

// Acquire waits for a slot on iface. timeout 0 tries once; NoTimeout waits
// indefinitely and is rejected unless ctx is marked WithBackground.
// Returns ErrRateLimited when no slot freed in time. Pacing delay counts
// against the same timeout and is taken before the window slot.
func (t *Tiered) Acquire(ctx context.Context, iface string, timeout time.Duration) error {
	if timeout < 0 && !IsBackground(ctx) {
		return ErrUnboundedWait
	}
	k := key(iface)
	capacity := t.Capacity(iface)

	now := t.engine.opts.now()
	res, delay, ok := t.pacer.reserve(now, k, capacity, t.cfg.Table.Window, timeout)
	if !ok {
		t.engine.deny(k, 0)
		return ErrRateLimited
	}
	if delay > 0 {
		if err := t.engine.opts.sleep(ctx, delay); err != nil {
			res.CancelAt(now)
			t.engine.deny(k, delay)
			return fmt.Errorf("pace %s: %w", iface, err)
		}
		if timeout > 0 {
			timeout = max(timeout-delay, 0)
		}
	}

	return t.engine.acquire(ctx, k, capacity, t.cfg.Table.Window, timeout)
}

// TryAcquire grants a slot on iface immediately or returns false
func (t *Tiered) TryAcquire(ctx context.Context, iface string) bool {
	return t.Acquire(ctx, iface, 0) == nil
}

// Stats reports the current window of iface
func (t *Tiered) Stats(ctx context.Context, iface string) (Stats, error) {
	capacity := t.Capacity(iface)
	window := t.cfg.Table.Window

	count, oldest, err := t.engine.peek(ctx, key(iface), window)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		Interface:    iface,
		Capacity:     capacity,
		TierLimit:    t.cfg.Table.LimitFor(t.cfg.AccountPoints),
		SafetyMargin: t.cfg.SafetyMargin,
		Window:       window,
		InWindow:     count,
		Remaining:    max(capacity-count, 0),
	}
	if special, ok := t.cfg.Table.SpecialLimit(iface); ok {
		st.SpecialLimit = special
	}
	if count >= capacity && !oldest.IsZero() {
		st.RetryIn = max(window-t.engine.opts.now().Sub(oldest), 0)
	}

	c := t.engine.counters(key(iface))
	st.Granted = c.granted.Load()
	st.Denied = c.denied.Load()
	st.TotalWait = time.Duration(c.waited.Load())
	return st, nil
}

// Interfaces lists the interfaces that carry a special cap
func (t *Tiered) Interfaces() []string {
	out := make([]string, 0, len(t.cfg.Table.Interfaces))
	for iface := range t.cfg.Table.Interfaces {
		out = append(out, iface)
	}
	sort.Strings(out)
	return out
}

// Reset clears the window of iface (ops tooling)
func (t *Tiered) Reset(ctx context.Context, iface string) error {
	if err := t.engine.store.Clear(ctx, key(iface)); err != nil {
		return fmt.Errorf("reset limiter %s: %w", iface, err)
	}
	return t.engine.local.Clear(ctx, key(iface))
}

func key(iface string) string {
	return "iface:" + iface
}
