// Package provider wraps raw data sources so every upstream call is rate
// limited and circuit protected, with an optional secondary source as fallback.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis-picks/internal/breaker"
	"github.com/wonny/aegis-picks/internal/ratelimit"
	"github.com/wonny/aegis-picks/pkg/logger"
	"github.com/wonny/aegis-picks/pkg/metrics"
)

// Upstream interface names. Each one has its own breaker and rate window.
const (
	IfaceStockList   = "stock_list"
	IfaceDaily       = "daily"
	IfaceDailyBasic  = "daily_basic"
	IfaceFinancials  = "financials"
	IfaceFundList    = "fund_list"
	IfaceFundNav     = "fund_nav"
	IfaceFundManager = "fund_manager"
	IfaceIndexDaily  = "index_daily"
)

// Interfaces lists every upstream interface name
func Interfaces() []string {
	return []string{
		IfaceStockList, IfaceDaily, IfaceDailyBasic, IfaceFinancials,
		IfaceFundList, IfaceFundNav, IfaceFundManager, IfaceIndexDaily,
	}
}

// Guard runs provider calls through the limiter and the breaker
// ⭐ SSOT: 외부 호출 보호 순서 (acquire → breaker → call → record)
type Guard struct {
	limiter *ratelimit.Tiered
	global  *ratelimit.Global // 계정 전체 호출 상한, optional
	breaker *breaker.Breaker
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewGuard creates a guard. limiter or breaker may be nil to skip that step.
func NewGuard(limiter *ratelimit.Tiered, brk *breaker.Breaker, log *logger.Logger, m *metrics.Metrics) *Guard {
	if log == nil {
		log = logger.Nop()
	}
	return &Guard{
		limiter: limiter,
		breaker: brk,
		logger:  log.Component("provider"),
		metrics: m,
	}
}

// WithGlobal adds an account-wide cap checked after the per-interface quota
func (g *Guard) WithGlobal(global *ratelimit.Global) *Guard {
	g.global = global
	return g
}

// Do calls fn under iface's quota and circuit. It returns
// ratelimit.ErrRateLimited or breaker.ErrCircuitOpen without calling fn,
// or fn's error after recording it as a breaker failure.
func Do[T any](ctx context.Context, g *Guard, iface string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if g.limiter != nil {
		timeout := g.limiter.DefaultTimeout()
		if ratelimit.IsBackground(ctx) {
			timeout = ratelimit.NoTimeout
		}
		if err := g.limiter.Acquire(ctx, iface, timeout); err != nil {
			g.metrics.ProviderCall(iface, "rate_limited")
			return zero, fmt.Errorf("%s: %w", iface, err)
		}
	}

	if g.global != nil {
		timeout := time.Duration(0)
		if g.limiter != nil {
			timeout = g.limiter.DefaultTimeout()
		}
		if ratelimit.IsBackground(ctx) {
			timeout = ratelimit.NoTimeout
		}
		if err := g.global.Wait(ctx, timeout); err != nil {
			g.metrics.ProviderCall(iface, "rate_limited")
			return zero, fmt.Errorf("%s: global: %w", iface, err)
		}
	}

	if g.breaker != nil && g.breaker.IsOpen(ctx, iface) {
		g.metrics.ProviderCall(iface, "circuit_open")
		return zero, fmt.Errorf("%s: %w", iface, breaker.ErrCircuitOpen)
	}

	out, err := fn(ctx)
	if err != nil {
		// 호출자 취소는 업스트림 장애가 아님
		if ctx.Err() == nil && g.breaker != nil {
			g.breaker.RecordFailure(ctx, iface)
		}
		g.metrics.ProviderCall(iface, "failed")
		return zero, fmt.Errorf("%s: %w", iface, err)
	}

	if g.breaker != nil {
		g.breaker.RecordSuccess(ctx, iface)
	}
	g.metrics.ProviderCall(iface, "ok")
	return out, nil
}

// WithFallback tries primary under iface and, when it fails for any reason,
// secondary under iface's secondary key. Errors are logged and swallowed: the
// result is the zero value so callers simply see less data.
func WithFallback[T any](ctx context.Context, g *Guard, iface string, primary, secondary func(context.Context) (T, error)) T {
	out, err := Do(ctx, g, iface, primary)
	if err == nil {
		return out
	}
	g.logFailure(iface, err)

	if secondary == nil || ctx.Err() != nil {
		var zero T
		return zero
	}

	out, err = Do(ctx, g, SecondaryIface(iface), secondary)
	if err != nil {
		g.logFailure(SecondaryIface(iface), err)
		var zero T
		return zero
	}
	g.metrics.ProviderCall(iface, "fallback")
	return out
}

// SecondaryIface is the breaker/limiter key of the fallback source of iface
func SecondaryIface(iface string) string {
	return iface + ".secondary"
}

func (g *Guard) logFailure(iface string, err error) {
	entry := g.logger.WithError(err).WithField("interface", iface)
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		entry.Debug("circuit open, skipping call")
	case errors.Is(err, ratelimit.ErrRateLimited):
		entry.Warn("rate limited, skipping call")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		entry.Debug("call abandoned by caller")
	default:
		entry.Warn("provider call failed")
	}
}
