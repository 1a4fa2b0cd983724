package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pacer spreads admitted calls evenly over the window with a token bucket,
// so a fresh window is not drained in one burst. burst <= 0 disables it.
type pacer struct {
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newPacer(burst int) *pacer {
	return &pacer{burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (p *pacer) enabled() bool {
	return p != nil && p.burst > 0
}

func (p *pacer) limiter(key string, capacity int, window time.Duration) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	lim, ok := p.limiters[key]
	if !ok {
		every := rate.Limit(float64(capacity) / window.Seconds())
		lim = rate.NewLimiter(every, p.burst)
		p.limiters[key] = lim
	}
	return lim
}

// reserve takes a token for key at now and returns how long the caller must
// wait before using it. A token further away than maxDelay is not taken
// (maxDelay < 0 means no bound). The returned reservation is nil when pacing
// is disabled.
func (p *pacer) reserve(now time.Time, key string, capacity int, window, maxDelay time.Duration) (*rate.Reservation, time.Duration, bool) {
	if !p.enabled() || window <= 0 {
		return nil, 0, true
	}
	r := p.limiter(key, capacity, window).ReserveN(now, 1)
	if !r.OK() {
		return nil, 0, false
	}
	delay := r.DelayFrom(now)
	if maxDelay >= 0 && delay > maxDelay {
		r.CancelAt(now)
		return nil, 0, false
	}
	return r, delay, true
}
