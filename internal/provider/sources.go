package provider

import (
	"context"
	"time"

	"github.com/wonny/aegis-picks/internal/contracts"
)

// GuardedStockSource decorates a primary (and optional secondary) stock source.
// Failures never surface: a failed call yields empty data.
type GuardedStockSource struct {
	guard     *Guard
	primary   contracts.StockSource
	secondary contracts.StockSource
}

// NewGuardedStockSource creates a guarded stock source; secondary may be nil
func NewGuardedStockSource(g *Guard, primary, secondary contracts.StockSource) *GuardedStockSource {
	return &GuardedStockSource{guard: g, primary: primary, secondary: secondary}
}

// ListStocks implements contracts.StockSource
func (s *GuardedStockSource) ListStocks(ctx context.Context) ([]contracts.StockInfo, error) {
	var fallback func(context.Context) ([]contracts.StockInfo, error)
	if s.secondary != nil {
		fallback = s.secondary.ListStocks
	}
	return WithFallback(ctx, s.guard, IfaceStockList, s.primary.ListStocks, fallback), nil
}

// DailyBars implements contracts.StockSource
func (s *GuardedStockSource) DailyBars(ctx context.Context, code string, end time.Time, days int) ([]contracts.Bar, error) {
	call := func(src contracts.StockSource) func(context.Context) ([]contracts.Bar, error) {
		if src == nil {
			return nil
		}
		return func(ctx context.Context) ([]contracts.Bar, error) { return src.DailyBars(ctx, code, end, days) }
	}
	return WithFallback(ctx, s.guard, IfaceDaily, call(s.primary), call(s.secondary)), nil
}

// DailyBasic implements contracts.StockSource
func (s *GuardedStockSource) DailyBasic(ctx context.Context, date time.Time) (map[string]contracts.DailyBasic, error) {
	call := func(src contracts.StockSource) func(context.Context) (map[string]contracts.DailyBasic, error) {
		if src == nil {
			return nil
		}
		return func(ctx context.Context) (map[string]contracts.DailyBasic, error) { return src.DailyBasic(ctx, date) }
	}
	return WithFallback(ctx, s.guard, IfaceDailyBasic, call(s.primary), call(s.secondary)), nil
}

// Financials implements contracts.StockSource
func (s *GuardedStockSource) Financials(ctx context.Context, code string, asOf time.Time) (*contracts.Financials, error) {
	call := func(src contracts.StockSource) func(context.Context) (*contracts.Financials, error) {
		if src == nil {
			return nil
		}
		return func(ctx context.Context) (*contracts.Financials, error) { return src.Financials(ctx, code, asOf) }
	}
	return WithFallback(ctx, s.guard, IfaceFinancials, call(s.primary), call(s.secondary)), nil
}

// GuardedFundSource decorates a primary (and optional secondary) fund source
type GuardedFundSource struct {
	guard     *Guard
	primary   contracts.FundSource
	secondary contracts.FundSource
}

// NewGuardedFundSource creates a guarded fund source; secondary may be nil
func NewGuardedFundSource(g *Guard, primary, secondary contracts.FundSource) *GuardedFundSource {
	return &GuardedFundSource{guard: g, primary: primary, secondary: secondary}
}

// ListFunds implements contracts.FundSource
func (s *GuardedFundSource) ListFunds(ctx context.Context) ([]contracts.FundInfo, error) {
	var fallback func(context.Context) ([]contracts.FundInfo, error)
	if s.secondary != nil {
		fallback = s.secondary.ListFunds
	}
	return WithFallback(ctx, s.guard, IfaceFundList, s.primary.ListFunds, fallback), nil
}

// NavHistory implements contracts.FundSource
func (s *GuardedFundSource) NavHistory(ctx context.Context, code string, end time.Time, days int) ([]contracts.NavPoint, error) {
	call := func(src contracts.FundSource) func(context.Context) ([]contracts.NavPoint, error) {
		if src == nil {
			return nil
		}
		return func(ctx context.Context) ([]contracts.NavPoint, error) { return src.NavHistory(ctx, code, end, days) }
	}
	return WithFallback(ctx, s.guard, IfaceFundNav, call(s.primary), call(s.secondary)), nil
}

// Manager implements contracts.FundSource
func (s *GuardedFundSource) Manager(ctx context.Context, code string) (*contracts.ManagerInfo, error) {
	call := func(src contracts.FundSource) func(context.Context) (*contracts.ManagerInfo, error) {
		if src == nil {
			return nil
		}
		return func(ctx context.Context) (*contracts.ManagerInfo, error) { return src.Manager(ctx, code) }
	}
	return WithFallback(ctx, s.guard, IfaceFundManager, call(s.primary), call(s.secondary)), nil
}

// GuardedMarketContext protects the market summary call
type GuardedMarketContext struct {
	guard *Guard
	inner contracts.MarketContext
}

// NewGuardedMarketContext creates a guarded market context source
func NewGuardedMarketContext(g *Guard, inner contracts.MarketContext) *GuardedMarketContext {
	return &GuardedMarketContext{guard: g, inner: inner}
}

// Summary implements contracts.MarketContext. Unlike the data sources it
// returns the error so the caller can substitute its placeholder.
func (m *GuardedMarketContext) Summary(ctx context.Context, date time.Time) (string, error) {
	return Do(ctx, m.guard, IfaceIndexDaily, func(ctx context.Context) (string, error) {
		return m.inner.Summary(ctx, date)
	})
}
