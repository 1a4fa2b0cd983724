// Package recommend orchestrates one recommendation run: screeners per
// horizon and asset class, a second preference pass, targets, the narrative
// explainer and the audit trail.
package recommend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/internal/factorcache"
	"github.com/wonny/aegis-picks/internal/screener"
	"github.com/wonny/aegis-picks/pkg/logger"
	"github.com/wonny/aegis-picks/pkg/metrics"
)

// MarketContextPlaceholder replaces a market summary that failed or timed out
const MarketContextPlaceholder = "Market context unavailable"

const defaultPersistTopN = 5

// Config holds orchestrator settings
type Config struct {
	PersistTopN          int           // 호라이즌 x 자산군별 저장 건수
	MarketContextTimeout time.Duration // 시장 요약 조회 hard timeout
	PreferredSectorBoost float64       // 선호 섹터 가산점
	TargetRules          map[contracts.Horizon]TargetRule
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		PersistTopN:          defaultPersistTopN,
		MarketContextTimeout: 3 * time.Second,
		PreferredSectorBoost: 5,
		TargetRules:          DefaultTargetRules,
	}
}

// Screeners are the four screeners a run draws from
type Screeners struct {
	StockShort contracts.Screener
	StockLong  contracts.Screener
	FundShort  contracts.Screener
	FundLong   contracts.Screener
}

func (s Screeners) get(h contracts.Horizon, asset contracts.AssetType) contracts.Screener {
	switch {
	case h == contracts.HorizonShort && asset == contracts.AssetStock:
		return s.StockShort
	case h == contracts.HorizonLong && asset == contracts.AssetStock:
		return s.StockLong
	case h == contracts.HorizonShort && asset == contracts.AssetFund:
		return s.FundShort
	default:
		return s.FundLong
	}
}

// Request is one recommendation run
type Request struct {
	Mode        contracts.Mode
	StockLimit  int // 0 = screener default
	FundLimit   int
	Preferences *contracts.Preferences
	TradeDate   time.Time // zero = latest trading date
}

// HorizonResult holds the final lists of one horizon
type HorizonResult struct {
	Stocks []*contracts.Candidate `json:"stocks"`
	Funds  []*contracts.Candidate `json:"funds"`
}

// Metadata describes a run
type Metadata struct {
	RunID           string           `json:"run_id"`
	Mode            contracts.Mode   `json:"mode"`
	TradeDate       time.Time        `json:"trade_date"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Timings         map[string]int64 `json:"timings_ms"`
	MarketContext   string           `json:"market_context"`
	Persisted       int              `json:"persisted"`
	PersistFailures int              `json:"persist_failures"`
}

// Result is the outcome of Generate. A horizon outside the requested mode stays nil.
type Result struct {
	ShortTerm *HorizonResult `json:"short_term,omitempty"`
	LongTerm  *HorizonResult `json:"long_term,omitempty"`
	Metadata  Metadata       `json:"metadata"`
}

// Engine generates recommendations
// ⭐ SSOT: 추천 생성 흐름은 여기서만
type Engine struct {
	screeners Screeners
	cache     *factorcache.Cache
	repo      contracts.RecommendationRepository
	calendar  contracts.Calendar
	explainer contracts.Explainer
	market    contracts.MarketContext
	config    Config
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithExplainer attaches a narrative explainer
func WithExplainer(e contracts.Explainer) Option {
	return func(en *Engine) { en.explainer = e }
}

// WithMarketContext attaches a market summary source
func WithMarketContext(m contracts.MarketContext) Option {
	return func(en *Engine) { en.market = m }
}

// WithMetrics records persist failures
func WithMetrics(m *metrics.Metrics) Option {
	return func(en *Engine) { en.metrics = m }
}

// WithClock replaces the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(en *Engine) { en.now = now }
}

// New creates an engine. cache and repo may be nil, which skips score
// write-back and the audit trail.
func New(s Screeners, cache *factorcache.Cache, repo contracts.RecommendationRepository, cal contracts.Calendar, cfg Config, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.PersistTopN <= 0 {
		cfg.PersistTopN = defaultPersistTopN
	}
	if cfg.TargetRules == nil {
		cfg.TargetRules = DefaultTargetRules
	}

	e := &Engine{
		screeners: s,
		cache:     cache,
		repo:      repo,
		calendar:  cal,
		config:    cfg,
		logger:    log.Component("recommend"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// timings collects per-step durations from concurrent tasks
type timings struct {
	mu sync.Mutex
	m  map[string]int64
}

func (t *timings) record(step string, d time.Duration) {
	t.mu.Lock()
	t.m[step] = d.Milliseconds()
	t.mu.Unlock()
}

// Generate runs every screener the mode needs and returns the final lists.
// Screener, explainer, market context and persistence failures degrade the
// result but never fail the run; only a cancelled context does.
func (e *Engine) Generate(ctx context.Context, req Request) (*Result, error) {
	start := e.now()

	mode, err := contracts.ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	date := req.TradeDate
	if date.IsZero() {
		date = e.calendar.LatestTradeDate(start)
	}

	runID := uuid.NewString()
	log := e.logger.WithFields(map[string]interface{}{
		"run_id":     runID,
		"mode":       string(mode),
		"trade_date": date.Format("2006-01-02"),
	})
	log.Info("Recommendation run started")

	tm := &timings{m: make(map[string]int64)}

	// 시장 요약은 스크리닝과 병렬로, hard timeout 적용
	marketCh := make(chan string, 1)
	go func() {
		marketCh <- e.marketContext(ctx, date, log, tm)
	}()

	result := &Result{}
	horizons := mode.Horizons()
	for _, h := range horizons {
		hr := &HorizonResult{}
		if h == contracts.HorizonShort {
			result.ShortTerm = hr
		} else {
			result.LongTerm = hr
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range horizons {
		hr := result.horizon(h)
		g.Go(func() error {
			list, err := e.rank(gctx, h, contracts.AssetStock, date, req.StockLimit, req.Preferences, log, tm)
			hr.Stocks = list
			return err
		})
		g.Go(func() error {
			list, err := e.rank(gctx, h, contracts.AssetFund, date, req.FundLimit, req.Preferences, log, tm)
			hr.Funds = list
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	persistStart := e.now()
	result.Metadata.Persisted, result.Metadata.PersistFailures = e.persist(ctx, runID, date, result, log)
	e.writeBackScores(ctx, result, log)
	tm.record("persist", e.now().Sub(persistStart))

	result.Metadata.RunID = runID
	result.Metadata.Mode = mode
	result.Metadata.TradeDate = date
	result.Metadata.GeneratedAt = e.now()
	result.Metadata.MarketContext = <-marketCh
	tm.record("total", e.now().Sub(start))
	result.Metadata.Timings = tm.m

	log.WithFields(map[string]interface{}{
		"persisted":        result.Metadata.Persisted,
		"persist_failures": result.Metadata.PersistFailures,
		"elapsed_ms":       tm.m["total"],
	}).Info("Recommendation run completed")

	return result, nil
}

func (r *Result) horizon(h contracts.Horizon) *HorizonResult {
	if h == contracts.HorizonLong {
		return r.LongTerm
	}
	return r.ShortTerm
}

// rank produces the final list of one horizon and asset class
func (e *Engine) rank(ctx context.Context, h contracts.Horizon, asset contracts.AssetType, date time.Time, limit int, prefs *contracts.Preferences, log *logger.Logger, tm *timings) ([]*contracts.Candidate, error) {
	step := fmt.Sprintf("%s.%s", h, asset)
	log = log.WithFields(map[string]interface{}{"horizon": string(h), "asset_type": string(asset)})

	s := e.screeners.get(h, asset)
	if s == nil {
		log.Warn("No screener configured")
		return []*contracts.Candidate{}, nil
	}

	screenStart := e.now()
	list, err := s.Screen(ctx, date, limit, prefs)
	tm.record(step+".screen", e.now().Sub(screenStart))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Warn("Screener failed, returning no candidates")
		return []*contracts.Candidate{}, nil
	}

	list = e.postFilter(list, prefs, h, log)

	if e.explainer != nil && len(list) > 0 {
		explainStart := e.now()
		explained, err := e.explainer.Explain(ctx, list, asset, h)
		tm.record(step+".explain", e.now().Sub(explainStart))
		if err != nil {
			log.WithError(err).Warn("Explainer failed, keeping ranked list")
		} else if len(explained) == len(list) {
			list = explained
		}
	}

	return list, nil
}

// postFilter is the second preference pass: reject, boost preferred sectors,
// re-rank and attach targets
func (e *Engine) postFilter(list []*contracts.Candidate, prefs *contracts.Preferences, h contracts.Horizon, log *logger.Logger) []*contracts.Candidate {
	kept, rejected := screener.FilterCandidates(list, prefs)
	if len(rejected) > 0 {
		log.WithField("rejected", rejected).Info("Second preference pass rejected candidates")
	}

	if prefs != nil && len(prefs.PreferredSectors) > 0 && e.config.PreferredSectorBoost > 0 {
		for _, c := range kept {
			if c.AssetType == contracts.AssetStock && inList(prefs.PreferredSectors, c.Sector) {
				c.Score = boostScore(c.Score, e.config.PreferredSectorBoost)
			}
		}
	}
	screener.Rank(kept)

	rule := e.config.TargetRules[h]
	for _, c := range kept {
		c.TargetReturnPct, c.StopLossPct = rule.Targets(c.Score)
		if c.Factors != nil {
			c.Factors.SetScore(h, c.Score)
		}
	}
	return kept
}

// persist stores the top N of every list. Each failed record is logged and
// counted; the batch continues.
func (e *Engine) persist(ctx context.Context, runID string, date time.Time, r *Result, log *logger.Logger) (int, int) {
	if e.repo == nil {
		return 0, 0
	}

	var ok, failed int
	save := func(h contracts.Horizon, list []*contracts.Candidate) {
		for i, c := range list {
			if i >= e.config.PersistTopN {
				break
			}
			rec := &contracts.RecommendationRecord{
				RunID:           runID,
				Code:            c.Code,
				Name:            c.Name,
				AssetType:       c.AssetType,
				RecType:         h,
				RecDate:         date,
				Rank:            c.Rank,
				Score:           c.Score,
				TargetReturnPct: c.TargetReturnPct,
				StopLossPct:     c.StopLossPct,
			}
			if c.Price > 0 {
				rec.EntryPrice = contracts.Float(c.Price)
			}

			if err := e.repo.InsertRecommendation(ctx, rec); err != nil {
				failed++
				e.metrics.PersistFailed()
				log.WithError(err).WithFields(map[string]interface{}{
					"code":     c.Code,
					"rec_type": string(h),
				}).Error("Failed to persist recommendation")
				continue
			}
			ok++
		}
	}

	for _, h := range []contracts.Horizon{contracts.HorizonShort, contracts.HorizonLong} {
		hr := r.horizon(h)
		if hr == nil {
			continue
		}
		save(h, hr.Stocks)
		save(h, hr.Funds)
	}
	return ok, failed
}

// writeBackScores stores the final composite scores with the factor records,
// merging both horizons of an asset into one write
func (e *Engine) writeBackScores(ctx context.Context, r *Result, log *logger.Logger) {
	if e.cache == nil {
		return
	}

	merged := make(map[string]*contracts.FactorSet)
	var order []string
	for _, h := range []contracts.Horizon{contracts.HorizonShort, contracts.HorizonLong} {
		hr := r.horizon(h)
		if hr == nil {
			continue
		}
		for _, list := range [][]*contracts.Candidate{hr.Stocks, hr.Funds} {
			for _, c := range list {
				if c.Factors == nil || c.Factors.Score(h) == nil {
					continue
				}
				fs, ok := merged[c.Code]
				if !ok {
					fs = c.Factors.Clone()
					merged[c.Code] = fs
					order = append(order, c.Code)
				}
				fs.SetScore(h, *c.Factors.Score(h))
			}
		}
	}
	if len(merged) == 0 {
		return
	}

	sets := make([]*contracts.FactorSet, 0, len(order))
	for _, code := range order {
		sets = append(sets, merged[code])
	}
	if err := e.cache.SetBatch(ctx, sets, true); err != nil {
		log.WithError(err).Warn("Failed to persist composite scores")
	}
}

func (e *Engine) marketContext(ctx context.Context, date time.Time, log *logger.Logger, tm *timings) string {
	if e.market == nil {
		return MarketContextPlaceholder
	}
	start := e.now()
	summary, err := callWithin(ctx, e.config.MarketContextTimeout, func(ctx context.Context) (string, error) {
		return e.market.Summary(ctx, date)
	})
	tm.record("market_context", e.now().Sub(start))
	if err != nil || summary == "" {
		log.WithError(err).Warn("Market context unavailable, using placeholder")
		return MarketContextPlaceholder
	}
	return summary
}

func inList(list []string, v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
