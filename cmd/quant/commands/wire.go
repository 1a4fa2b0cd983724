package commands

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-picks/internal/breaker"
	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/internal/factorcache"
	"github.com/wonny/aegis-picks/internal/factors"
	"github.com/wonny/aegis-picks/internal/factorstore"
	"github.com/wonny/aegis-picks/internal/ops"
	"github.com/wonny/aegis-picks/internal/provider"
	"github.com/wonny/aegis-picks/internal/provider/pgsource"
	"github.com/wonny/aegis-picks/internal/ratelimit"
	"github.com/wonny/aegis-picks/internal/recommend"
	"github.com/wonny/aegis-picks/internal/screener"
	"github.com/wonny/aegis-picks/internal/strategyconfig"
	"github.com/wonny/aegis-picks/internal/tradedate"
	"github.com/wonny/aegis-picks/pkg/config"
	"github.com/wonny/aegis-picks/pkg/database"
	"github.com/wonny/aegis-picks/pkg/kvstore"
	"github.com/wonny/aegis-picks/pkg/logger"
	"github.com/wonny/aegis-picks/pkg/metrics"
	"github.com/wonny/aegis-picks/pkg/redis"
)

// app holds every constructed component of one process
// ⭐ SSOT: 컴포넌트 생성/주입은 여기서만 (전역 싱글톤 없음)
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics

	db    *database.DB
	redis *redis.Client

	breaker *breaker.Breaker
	limiter *ratelimit.Tiered
	global  *ratelimit.Global

	factors    *factorstore.Repository
	cache      *factorcache.Cache
	stocks     *screener.StockCollector
	funds      *screener.FundCollector
	calendar   *tradedate.Calendar
	recoRepo   *recommend.Repository
	explainer  *recommend.GuardedExplainer
	engine     *recommend.Engine
	evaluator  *recommend.Evaluator
	opsHandler *ops.Handler
}

// newApp loads config and wires the full component graph
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	a := &app{
		cfg:     cfg,
		log:     logger.New(cfg),
		metrics: metrics.New(),
	}

	a.db, err = database.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := a.db.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Redis 사용 불가 시 프로세스 로컬 스토어로 (단일 인스턴스 전용)
	var kv kvstore.Store = kvstore.NewMemory()
	var windows ratelimit.WindowStore
	a.redis, err = redis.New(ctx, cfg)
	switch {
	case err != nil:
		a.log.WithError(err).Warn("Redis unavailable, using in-process stores")
		a.redis = nil
	case a.redis.Enabled():
		kv = redis.NewStore(a.redis)
		windows = redis.NewWindowStore(a.redis)
	}

	table, err := ratelimit.LoadTierTable(cfg.Provider.RateLimitFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load rate limit tiers: %w", err)
	}

	a.breaker = breaker.New(kv, breaker.Settings{
		Threshold: cfg.Breaker.Threshold,
		Timeout:   cfg.Breaker.Timeout,
	}, a.log, breaker.WithMetrics(a.metrics))

	a.limiter = ratelimit.NewTiered(windows, ratelimit.TieredConfig{
		Table:          table,
		AccountPoints:  cfg.Provider.AccountPoints,
		SafetyMargin:   cfg.Provider.SafetyMargin,
		DefaultTimeout: cfg.Provider.AcquireTimeout,
		PacerBurst:     cfg.Provider.PacerBurst,
	}, a.log, ratelimit.WithMetrics(a.metrics))

	a.global = ratelimit.NewGlobal(windows, "provider", cfg.Provider.GlobalMaxCalls, cfg.Provider.GlobalWindow,
		a.log, ratelimit.WithMetrics(a.metrics))

	guard := provider.NewGuard(a.limiter, a.breaker, a.log, a.metrics).WithGlobal(a.global)
	source := pgsource.New(a.db.Pool)

	a.factors = factorstore.NewRepository(a.db.Pool)
	a.cache = factorcache.New(kv, a.factors, factorcache.Config{
		HotTTL:     cfg.Cache.HotTTL,
		WarmTTL:    cfg.Cache.WarmTTL,
		PersistTTL: cfg.Cache.PersistTTL,
		MaxEntries: cfg.Cache.MaxEntries,
	}, a.log, factorcache.WithMetrics(a.metrics))

	profile, err := loadProfile(cfg.Recommend.ProfileFile, a.log)
	if err != nil {
		a.Close()
		return nil, err
	}

	builder := factors.NewBuilder(a.log)
	collectorCfg := screener.DefaultCollectorConfig()
	collectorCfg.Concurrency = cfg.Recommend.Concurrency
	if profile != nil && profile.Collector.PoolSize > 0 {
		collectorCfg.Concurrency = profile.Collector.PoolSize
	}

	stockSource := provider.NewGuardedStockSource(guard, source, nil)
	fundSource := provider.NewGuardedFundSource(guard, source, nil)
	a.stocks = screener.NewStockCollector(stockSource, a.cache, builder, collectorCfg, a.log)
	a.funds = screener.NewFundCollector(fundSource, a.cache, builder, collectorCfg, a.log)

	screenOpts := []screener.Option{
		screener.WithRankingCache(a.cache),
		screener.WithMetrics(a.metrics),
	}
	variantOpts := make(map[string][]screener.Option, 4)
	for key, base := range map[string][]screener.Weight{
		strategyconfig.StockShort: screener.StockShortWeights,
		strategyconfig.StockLong:  screener.StockLongWeights,
		strategyconfig.FundShort:  screener.FundShortWeights,
		strategyconfig.FundLong:   screener.FundLongWeights,
	} {
		if variantOpts[key], err = profileOptions(profile, key, base, screenOpts); err != nil {
			a.Close()
			return nil, err
		}
	}
	screeners := recommend.Screeners{
		StockShort: screener.NewStockShortScreener(a.stocks, a.log, variantOpts[strategyconfig.StockShort]...),
		StockLong:  screener.NewStockLongScreener(a.stocks, a.log, variantOpts[strategyconfig.StockLong]...),
		FundShort:  screener.NewFundShortScreener(a.funds, a.log, variantOpts[strategyconfig.FundShort]...),
		FundLong:   screener.NewFundLongScreener(a.funds, a.log, variantOpts[strategyconfig.FundLong]...),
	}

	a.calendar, err = tradedate.New(cfg.Recommend.MarketTimezone, cfg.Recommend.MarketClose, cfg.Recommend.Holidays)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("trade calendar: %w", err)
	}

	a.recoRepo = recommend.NewRepository(a.db.Pool)
	a.explainer = recommend.NewGuardedExplainer(recommend.TemplateExplainer{}, cfg.Recommend.ExplainTimeout, a.log)

	engineCfg := recommend.DefaultConfig()
	engineCfg.PersistTopN = cfg.Recommend.PersistTopN
	engineCfg.MarketContextTimeout = cfg.Recommend.MarketContextTimeout
	engineCfg.PreferredSectorBoost = cfg.Recommend.PreferredSectorBoost
	engineCfg.TargetRules = profileTargets(profile)

	a.engine = recommend.New(screeners, a.cache, a.recoRepo, a.calendar, engineCfg, a.log,
		recommend.WithExplainer(a.explainer),
		recommend.WithMarketContext(provider.NewGuardedMarketContext(guard, source)),
		recommend.WithMetrics(a.metrics),
	)

	a.evaluator = recommend.NewEvaluator(a.recoRepo, stockSource, fundSource, a.calendar, map[contracts.Horizon]int{
		contracts.HorizonShort: cfg.Recommend.ShortHoldSessions,
		contracts.HorizonLong:  cfg.Recommend.LongHoldSessions,
	}, a.log)

	a.opsHandler = ops.NewHandler(a.log,
		ops.WithBreaker(a.breaker, provider.Interfaces()),
		ops.WithLimiters(a.limiter, a.global),
		ops.WithCache(a.cache),
	)

	return a, nil
}

// Close releases connections
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
