package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-picks/pkg/logger"
	"github.com/wonny/aegis-picks/pkg/metrics"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleep advances the fake clock instead of blocking
func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) TotalSlept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.slept {
		total += d
	}
	return total
}

func TestLocalWindows_PrunesExpiredEntries(t *testing.T) {
	ctx := context.Background()
	w := NewLocalWindows()
	start := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ok, _, _, err := w.Admit(ctx, "k", 3, time.Minute, start.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, count, oldest, err := w.Admit(ctx, "k", 3, time.Minute, start.Add(59*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, count)
	assert.Equal(t, start, oldest)

	// the first entry is exactly one window old and no longer counts
	count, oldest, err = w.Peek(ctx, "k", time.Minute, start.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, start.Add(time.Second), oldest)

	require.NoError(t, w.Clear(ctx, "k"))
	count, _, _ = w.Peek(ctx, "k", time.Minute, start)
	assert.Zero(t, count)
}

func TestGlobal_NPlusOneFails(t *testing.T) {
	tests := []struct {
		name     string
		maxCalls int
	}{
		{"one", 1},
		{"five", 5},
		{"hundred", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			g := NewGlobal(nil, "test", tt.maxCalls, 10*time.Second, logger.Nop(), WithClock(clock.Now), WithSleep(clock.Sleep))

			for i := 0; i < tt.maxCalls; i++ {
				clock.Advance(10 * time.Millisecond)
				require.True(t, g.Acquire(ctx), "call %d should be granted", i+1)
			}
			assert.False(t, g.Acquire(ctx))

			remaining, err := g.Remaining(ctx)
			require.NoError(t, err)
			assert.Zero(t, remaining)
		})
	}
}

func TestGlobal_WaitBlocksUntilOldestExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	g := NewGlobal(nil, "test", 2, 10*time.Second, logger.Nop(), WithClock(clock.Now), WithSleep(clock.Sleep))

	require.True(t, g.Acquire(ctx))
	clock.Advance(time.Second)
	require.True(t, g.Acquire(ctx))

	require.NoError(t, g.Wait(ctx, time.Minute))
	// oldest call was at t0, now is t0+1s: the wait is the remaining 9s
	assert.Equal(t, 9*time.Second, clock.TotalSlept())
}

func TestGlobal_WaitTimesOut(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	g := NewGlobal(nil, "test", 1, time.Minute, logger.Nop(), WithClock(clock.Now), WithSleep(clock.Sleep))

	require.True(t, g.Acquire(ctx))
	err := g.Wait(ctx, 5*time.Second)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 5*time.Second, clock.TotalSlept())
}

func TestGlobal_UnboundedWaitNeedsBackground(t *testing.T) {
	clock := newFakeClock()
	g := NewGlobal(nil, "test", 1, time.Minute, logger.Nop(), WithClock(clock.Now), WithSleep(clock.Sleep))

	require.True(t, g.Acquire(context.Background()))
	assert.ErrorIs(t, g.Wait(context.Background(), NoTimeout), ErrUnboundedWait)

	ctx := WithBackground(context.Background())
	require.NoError(t, g.Wait(ctx, NoTimeout))
	assert.Equal(t, time.Minute, clock.TotalSlept())
}

func TestWait_RespectsContextCancel(t *testing.T) {
	g := NewGlobal(nil, "test", 1, time.Hour, logger.Nop())
	require.True(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := g.Wait(WithBackground(ctx), NoTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTiered_Capacity(t *testing.T) {
	table := TierTable{
		Window:     time.Minute,
		Tiers:      []TierLevel{{MinPoints: 0, Limit: 50}, {MinPoints: 2000, Limit: 200}},
		Interfaces: map[string]int{"fund_nav": 100, "big": 1000},
	}

	tests := []struct {
		name   string
		points int
		margin float64
		iface  string
		want   int
	}{
		{"special below tier", 2000, 0.9, "fund_nav", 90},
		{"tier below special", 2000, 0.9, "big", 180},
		{"no special", 2000, 0.9, "daily", 180},
		{"low tier", 100, 0.9, "fund_nav", 45},
		{"full margin", 2000, 1.0, "fund_nav", 100},
		{"floor of one", 0, 0.001, "daily", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewTiered(nil, TieredConfig{Table: table, AccountPoints: tt.points, SafetyMargin: tt.margin}, logger.Nop())
			assert.Equal(t, tt.want, l.Capacity(tt.iface))
		})
	}
}

func TestTiered_NeverExceedsSpecialCap(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	table := TierTable{
		Window:     time.Minute,
		Tiers:      []TierLevel{{MinPoints: 0, Limit: 200}},
		Interfaces: map[string]int{"fund_nav": 100},
	}
	l := NewTiered(nil, TieredConfig{Table: table, AccountPoints: 5000, SafetyMargin: 0.9}, logger.Nop(),
		WithClock(clock.Now), WithSleep(clock.Sleep))

	granted := 0
	for i := 0; i < 200; i++ {
		if l.TryAcquire(ctx, "fund_nav") {
			granted++
		}
	}
	assert.Equal(t, 90, granted)

	// other interfaces keep their own window
	assert.True(t, l.TryAcquire(ctx, "daily"))

	st, err := l.Stats(ctx, "fund_nav")
	require.NoError(t, err)
	assert.Equal(t, 90, st.Capacity)
	assert.Equal(t, 200, st.TierLimit)
	assert.Equal(t, 100, st.SpecialLimit)
	assert.Equal(t, 90, st.InWindow)
	assert.Zero(t, st.Remaining)
	assert.Equal(t, time.Minute, st.RetryIn)
	assert.Equal(t, int64(90), st.Granted)
	assert.Equal(t, int64(110), st.Denied)
}

func TestTiered_ConcurrentAcquireHonoursCap(t *testing.T) {
	ctx := context.Background()
	table := TierTable{Window: time.Hour, Tiers: []TierLevel{{MinPoints: 0, Limit: 200}}, Interfaces: map[string]int{"daily": 100}}
	l := NewTiered(nil, TieredConfig{Table: table, SafetyMargin: 0.9}, logger.Nop())

	var mu sync.Mutex
	granted := 0
	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire(ctx, "daily") {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 90, granted)
}

func TestTiered_AcquireWaitsForSlot(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	table := TierTable{Window: 10 * time.Second, Tiers: []TierLevel{{MinPoints: 0, Limit: 1}}}
	l := NewTiered(nil, TieredConfig{Table: table, SafetyMargin: 1}, logger.Nop(),
		WithClock(clock.Now), WithSleep(clock.Sleep))

	require.NoError(t, l.Acquire(ctx, "daily", 0))
	assert.ErrorIs(t, l.Acquire(ctx, "daily", 0), ErrRateLimited)
	require.NoError(t, l.Acquire(ctx, "daily", 30*time.Second))
	assert.Equal(t, 10*time.Second, clock.TotalSlept())
}

func TestTiered_Reset(t *testing.T) {
	ctx := context.Background()
	table := TierTable{Window: time.Hour, Tiers: []TierLevel{{MinPoints: 0, Limit: 1}}}
	l := NewTiered(nil, TieredConfig{Table: table, SafetyMargin: 1}, logger.Nop())

	require.True(t, l.TryAcquire(ctx, "daily"))
	require.False(t, l.TryAcquire(ctx, "daily"))
	require.NoError(t, l.Reset(ctx, "daily"))
	assert.True(t, l.TryAcquire(ctx, "daily"))
}

type brokenStore struct{}

func (brokenStore) Admit(context.Context, string, int, time.Duration, time.Time) (bool, int, time.Time, error) {
	return false, 0, time.Time{}, errors.New("redis: connection refused")
}

func (brokenStore) Peek(context.Context, string, time.Duration, time.Time) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("redis: connection refused")
}

func (brokenStore) Clear(context.Context, string) error { return nil }

func TestTiered_SharedStoreFailureFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	table := TierTable{Window: time.Hour, Tiers: []TierLevel{{MinPoints: 0, Limit: 2}}}
	l := NewTiered(brokenStore{}, TieredConfig{Table: table, SafetyMargin: 1}, logger.Nop())

	assert.True(t, l.TryAcquire(ctx, "daily"))
	assert.True(t, l.TryAcquire(ctx, "daily"))
	assert.False(t, l.TryAcquire(ctx, "daily"), "local window still enforces the cap")

	_, err := l.Stats(ctx, "daily")
	assert.Error(t, err)
}

func TestTiered_Metrics(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	table := TierTable{Window: time.Hour, Tiers: []TierLevel{{MinPoints: 0, Limit: 1}}}
	l := NewTiered(nil, TieredConfig{Table: table, SafetyMargin: 1}, logger.Nop(), WithMetrics(m))

	l.TryAcquire(ctx, "daily")
	l.TryAcquire(ctx, "daily")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.LimiterDecisions.WithLabelValues("iface:daily", "granted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LimiterDecisions.WithLabelValues("iface:daily", "denied")))
}

func TestTiered_PacerSpreadsBurst(t *testing.T) {
	ctx := context.Background()
	table := TierTable{Window: time.Second, Tiers: []TierLevel{{MinPoints: 0, Limit: 100}}}
	l := NewTiered(nil, TieredConfig{Table: table, SafetyMargin: 1, PacerBurst: 1}, logger.Nop())

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Acquire(ctx, "daily", time.Second))
	}
	// 100/s with burst 1: three paced gaps of ~10ms
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestTiered_PacerHonoursTimeout(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	// fund_nav: min(200, 100) * 0.9 = 90/min, one token every ~667ms
	l := NewTiered(nil, TieredConfig{
		Table:         DefaultTierTable(),
		AccountPoints: 2000,
		SafetyMargin:  0.9,
		PacerBurst:    1,
	}, logger.Nop(), WithClock(clock.Now), WithSleep(clock.Sleep))

	require.True(t, l.TryAcquire(ctx, "fund_nav"))
	assert.False(t, l.TryAcquire(ctx, "fund_nav"), "paced token is not immediately available")
	assert.ErrorIs(t, l.Acquire(ctx, "fund_nav", 10*time.Millisecond), ErrRateLimited)
	assert.Zero(t, clock.TotalSlept(), "non-blocking and short-timeout calls never sleep")

	st, err := l.Stats(ctx, "fund_nav")
	require.NoError(t, err)
	assert.Equal(t, 1, st.InWindow, "pacer denials do not use window slots")
	assert.Equal(t, int64(2), st.Denied)

	require.NoError(t, l.Acquire(ctx, "fund_nav", time.Second))
	assert.InDelta(t, float64(667*time.Millisecond), float64(clock.TotalSlept()), float64(5*time.Millisecond))

	st, err = l.Stats(ctx, "fund_nav")
	require.NoError(t, err)
	assert.Equal(t, 2, st.InWindow)
}

func TestTiered_PacerUnboundedNeedsBackground(t *testing.T) {
	table := TierTable{Window: time.Minute, Tiers: []TierLevel{{MinPoints: 0, Limit: 60}}}
	l := NewTiered(nil, TieredConfig{Table: table, SafetyMargin: 1, PacerBurst: 1}, logger.Nop())

	assert.ErrorIs(t, l.Acquire(context.Background(), "daily", NoTimeout), ErrUnboundedWait)
	assert.NoError(t, l.Acquire(WithBackground(context.Background()), "daily", NoTimeout))
}
