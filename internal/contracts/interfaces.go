package contracts

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the requested row does not exist
var ErrNotFound = errors.New("not found")

// StockSource is the raw stock data provider. Each method is one named
// upstream interface for rate limiting and circuit breaking.
type StockSource interface {
	ListStocks(ctx context.Context) ([]StockInfo, error)                                // stock_list
	DailyBars(ctx context.Context, code string, end time.Time, days int) ([]Bar, error) // daily
	DailyBasic(ctx context.Context, date time.Time) (map[string]DailyBasic, error)      // daily_basic
	Financials(ctx context.Context, code string, asOf time.Time) (*Financials, error)   // financials
}

// FundSource is the raw fund data provider
type FundSource interface {
	ListFunds(ctx context.Context) ([]FundInfo, error)                                        // fund_list
	NavHistory(ctx context.Context, code string, end time.Time, days int) ([]NavPoint, error) // fund_nav
	Manager(ctx context.Context, code string) (*ManagerInfo, error)                           // fund_manager
}

// FactorStore persists factor sets
// ⭐ SSOT: 팩터 영속화 인터페이스
type FactorStore interface {
	UpsertFactors(ctx context.Context, sets []*FactorSet) error
	// GetFactors returns ErrNotFound on a miss
	GetFactors(ctx context.Context, code string, date time.Time) (*FactorSet, error)
	// GetFactorsBatch returns only the codes that exist
	GetFactorsBatch(ctx context.Context, codes []string, date time.Time) (map[string]*FactorSet, error)
	GetTopByScore(ctx context.Context, date time.Time, asset AssetType, h Horizon, limit int, minScore float64) ([]*FactorSet, error)
}

// RecommendationRepository persists audit records
type RecommendationRepository interface {
	InsertRecommendation(ctx context.Context, rec *RecommendationRecord) error
	PerformanceStats(ctx context.Context, days int) ([]PerformanceStats, error)
}

// Explainer attaches a narrative rationale to a final ranked list
type Explainer interface {
	Explain(ctx context.Context, candidates []*Candidate, asset AssetType, h Horizon) ([]*Candidate, error)
}

// MarketContext summarises the market on a trade date
type MarketContext interface {
	Summary(ctx context.Context, date time.Time) (string, error)
}

// Calendar resolves trading dates
type Calendar interface {
	LatestTradeDate(now time.Time) time.Time
	IsTradingDay(d time.Time) bool
}

// Screener produces a ranked candidate list for one asset class and horizon
type Screener interface {
	Type() string
	Screen(ctx context.Context, date time.Time, limit int, prefs *Preferences) ([]*Candidate, error)
}
