package screener

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/internal/factorcache"
	"github.com/wonny/aegis-picks/internal/factors"
	"github.com/wonny/aegis-picks/pkg/logger"
)

// historySessions covers the 3-year return plus its base session
const historySessions = 757

var errEmptyUniverse = errors.New("empty universe")

// CollectorConfig sizes a collection run
type CollectorConfig struct {
	PoolSize    int // 팩터 계산 대상 상위 N (시가총액/설정액 기준)
	Concurrency int
}

// DefaultCollectorConfig returns the production defaults
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{PoolSize: 300, Concurrency: 8}
}

func (c CollectorConfig) normalized() CollectorConfig {
	d := DefaultCollectorConfig()
	if c.PoolSize <= 0 {
		c.PoolSize = d.PoolSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	return c
}

// StockUniverse is the raw data of one stock screening run
type StockUniverse struct {
	Date    time.Time
	Stocks  []contracts.StockInfo
	Basics  map[string]contracts.DailyBasic
	Factors map[string]*contracts.FactorSet

	Failed        int  // 업스트림 오류로 팩터를 만들지 못한 종목 수
	BasicsMissing bool // daily_basic 스냅샷 조회 실패
}

// Partial reports whether an upstream error left gaps in the data
func (u *StockUniverse) Partial() bool {
	return u.Failed > 0 || u.BasicsMissing
}

// StockCollector gathers the stock pool and its factor sets, computing
// only what the factor cache does not already hold. Short and long stock
// screeners share one collector, so factors are computed once per date.
type StockCollector struct {
	source  contracts.StockSource
	cache   *factorcache.Cache
	builder *factors.Builder
	config  CollectorConfig
	logger  *logger.Logger
}

// NewStockCollector creates a stock collector
func NewStockCollector(src contracts.StockSource, cache *factorcache.Cache, builder *factors.Builder, cfg CollectorConfig, log *logger.Logger) *StockCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &StockCollector{
		source:  src,
		cache:   cache,
		builder: builder,
		config:  cfg.normalized(),
		logger:  log.Component("stock_collector"),
	}
}

// Universe returns the listed stocks, cached WARM
func (c *StockCollector) Universe(ctx context.Context, date time.Time) ([]contracts.StockInfo, error) {
	stocks, err := factorcache.Remember(ctx, c.cache, factorcache.KindUniverse, string(contracts.AssetStock), date, c.cache.Config().WarmTTL,
		func(ctx context.Context) ([]contracts.StockInfo, error) {
			list, err := c.source.ListStocks(ctx)
			if err != nil {
				return nil, err
			}
			if len(list) == 0 {
				return nil, errEmptyUniverse
			}
			return list, nil
		})
	if errors.Is(err, errEmptyUniverse) {
		c.logger.Warn("Stock universe is empty")
		return nil, nil
	}
	return stocks, err
}

// Collect implements the raw data step of the stock screeners
func (c *StockCollector) Collect(ctx context.Context, date time.Time) (*StockUniverse, error) {
	stocks, err := c.Universe(ctx, date)
	if err != nil {
		return nil, err
	}

	basics, err := c.source.DailyBasic(ctx, date)
	basicsMissing := err != nil
	if err != nil {
		c.logger.WithError(err).Warn("Daily basic snapshot unavailable")
		basics = nil
	}

	pool := stockPool(stocks, basics, c.config.PoolSize)
	codes := make([]string, len(pool))
	for i, s := range pool {
		codes[i] = s.Code
	}

	found, missing, err := c.cache.GetBatch(ctx, codes, date)
	if err != nil {
		// store 장애 시 누락분은 재계산
		c.logger.WithError(err).Warn("Factor store lookup failed")
	}

	computed, failed, err := c.compute(ctx, date, missing, basics)
	if err != nil {
		return nil, err
	}
	for _, fs := range computed {
		found[fs.Code] = fs
	}
	if len(computed) > 0 {
		if err := c.cache.SetBatch(ctx, computed, true); err != nil {
			c.logger.WithError(err).Warn("Failed to persist computed stock factors")
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"trade_date": date.Format("2006-01-02"),
		"universe":   len(stocks),
		"pool":       len(pool),
		"cached":     len(pool) - len(missing),
		"computed":   len(computed),
		"failed":     failed,
	}).Info("Stock data collected")

	return &StockUniverse{
		Date: date, Stocks: pool, Basics: basics, Factors: found,
		Failed: failed, BasicsMissing: basicsMissing,
	}, nil
}

// compute builds the factor sets of codes. Codes whose history fetch
// errored are counted as failed; codes with no history are skipped.
func (c *StockCollector) compute(ctx context.Context, date time.Time, codes []string, basics map[string]contracts.DailyBasic) ([]*contracts.FactorSet, int, error) {
	var (
		mu     sync.Mutex
		out    = make([]*contracts.FactorSet, 0, len(codes))
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)
	for _, code := range codes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			bars, err := c.source.DailyBars(gctx, code, date, historySessions)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				c.logger.WithError(err).WithField("code", code).Debug("Daily bars fetch failed, skipping")
				return nil
			}
			if len(bars) == 0 {
				c.logger.WithField("code", code).Debug("No daily bars, skipping")
				return nil
			}
			fin, err := c.source.Financials(gctx, code, date)
			if err != nil {
				fin = nil
			}

			in := factors.StockInput{Code: code, TradeDate: date, Bars: bars, Financials: fin}
			if b, ok := basics[code]; ok {
				in.Basic = &b
			}
			fs := c.builder.Stock(in)

			mu.Lock()
			out = append(out, fs)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return out, failed, nil
}

// stockPool keeps the n largest stocks by market cap. Stocks without a
// snapshot keep their listing order after the ranked ones.
func stockPool(stocks []contracts.StockInfo, basics map[string]contracts.DailyBasic, n int) []contracts.StockInfo {
	pool := make([]contracts.StockInfo, len(stocks))
	copy(pool, stocks)

	capOf := func(code string) float64 {
		if b, ok := basics[code]; ok {
			return valueOr(b.MarketCap, -1)
		}
		return -1
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return capOf(pool[i].Code) > capOf(pool[j].Code)
	})

	if len(pool) > n {
		pool = pool[:n]
	}
	return pool
}

// FundUniverse is the raw data of one fund screening run
type FundUniverse struct {
	Date    time.Time
	Funds   []contracts.FundInfo
	Factors map[string]*contracts.FactorSet

	Failed int // 업스트림 오류로 팩터를 만들지 못한 펀드 수
}

// Partial reports whether an upstream error left gaps in the data
func (u *FundUniverse) Partial() bool {
	return u.Failed > 0
}

// FundCollector gathers the fund pool and its factor sets
type FundCollector struct {
	source  contracts.FundSource
	cache   *factorcache.Cache
	builder *factors.Builder
	config  CollectorConfig
	logger  *logger.Logger
}

// NewFundCollector creates a fund collector
func NewFundCollector(src contracts.FundSource, cache *factorcache.Cache, builder *factors.Builder, cfg CollectorConfig, log *logger.Logger) *FundCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &FundCollector{
		source:  src,
		cache:   cache,
		builder: builder,
		config:  cfg.normalized(),
		logger:  log.Component("fund_collector"),
	}
}

// Universe returns the listed funds, cached WARM
func (c *FundCollector) Universe(ctx context.Context, date time.Time) ([]contracts.FundInfo, error) {
	funds, err := factorcache.Remember(ctx, c.cache, factorcache.KindUniverse, string(contracts.AssetFund), date, c.cache.Config().WarmTTL,
		func(ctx context.Context) ([]contracts.FundInfo, error) {
			list, err := c.source.ListFunds(ctx)
			if err != nil {
				return nil, err
			}
			if len(list) == 0 {
				return nil, errEmptyUniverse
			}
			return list, nil
		})
	if errors.Is(err, errEmptyUniverse) {
		c.logger.Warn("Fund universe is empty")
		return nil, nil
	}
	return funds, err
}

// Collect implements the raw data step of the fund screeners
func (c *FundCollector) Collect(ctx context.Context, date time.Time) (*FundUniverse, error) {
	funds, err := c.Universe(ctx, date)
	if err != nil {
		return nil, err
	}

	pool := make([]contracts.FundInfo, len(funds))
	copy(pool, funds)
	sort.SliceStable(pool, func(i, j int) bool {
		return valueOr(pool[i].SizeBillion, -1) > valueOr(pool[j].SizeBillion, -1)
	})
	if len(pool) > c.config.PoolSize {
		pool = pool[:c.config.PoolSize]
	}

	codes := make([]string, len(pool))
	for i, f := range pool {
		codes[i] = f.Code
	}

	found, missing, err := c.cache.GetBatch(ctx, codes, date)
	if err != nil {
		// store 장애 시 누락분은 재계산
		c.logger.WithError(err).Warn("Factor store lookup failed")
	}

	computed, failed, err := c.compute(ctx, date, missing)
	if err != nil {
		return nil, err
	}
	for _, fs := range computed {
		found[fs.Code] = fs
	}
	if len(computed) > 0 {
		if err := c.cache.SetBatch(ctx, computed, true); err != nil {
			c.logger.WithError(err).Warn("Failed to persist computed fund factors")
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"trade_date": date.Format("2006-01-02"),
		"universe":   len(funds),
		"pool":       len(pool),
		"cached":     len(pool) - len(missing),
		"computed":   len(computed),
		"failed":     failed,
	}).Info("Fund data collected")

	return &FundUniverse{Date: date, Funds: pool, Factors: found, Failed: failed}, nil
}

func (c *FundCollector) compute(ctx context.Context, date time.Time, codes []string) ([]*contracts.FactorSet, int, error) {
	var (
		mu     sync.Mutex
		out    = make([]*contracts.FactorSet, 0, len(codes))
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)
	for _, code := range codes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			navs, err := c.source.NavHistory(gctx, code, date, historySessions)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				c.logger.WithError(err).WithField("code", code).Debug("NAV history fetch failed, skipping")
				return nil
			}
			if len(navs) == 0 {
				c.logger.WithField("code", code).Debug("No NAV history, skipping")
				return nil
			}
			mgr, err := c.source.Manager(gctx, code)
			if err != nil {
				mgr = nil
			}

			fs := c.builder.Fund(factors.FundInput{Code: code, TradeDate: date, Navs: navs, Manager: mgr})

			mu.Lock()
			out = append(out, fs)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return out, failed, nil
}

// valueOr dereferences p, returning def for nil
func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
