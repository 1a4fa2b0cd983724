// Package screener turns a universe of assets into a ranked candidate list.
// Every screener runs the same four steps (collect, filter, score, rank);
// concrete screeners only supply the steps through a Strategy.
package screener

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/internal/factorcache"
	"github.com/wonny/aegis-picks/pkg/logger"
	"github.com/wonny/aegis-picks/pkg/metrics"
)

// Strategy is the variable part of a screener run. R is the raw data type
// collected once per run.
type Strategy[R any] interface {
	Type() string
	DefaultLimit() int
	CollectRawData(ctx context.Context, date time.Time) (R, error)
	// ApplyFilters builds candidates and drops the ones failing the
	// preference and threshold checks
	ApplyFilters(ctx context.Context, raw R, prefs *contracts.Preferences) ([]*contracts.Candidate, error)
	CalculateScores(ctx context.Context, candidates []*contracts.Candidate) ([]*contracts.Candidate, error)
}

// Screener runs a Strategy in fixed order and ranks its output
// ⭐ SSOT: 스크리닝 실행 순서는 여기서만
type Screener[R any] struct {
	strategy Strategy[R]
	cache    *factorcache.Cache
	metrics  *metrics.Metrics
	limit    int // 0 = strategy default
	logger   *logger.Logger
	now      func() time.Time
}

// Option configures a Screener
type Option func(*options)

type options struct {
	cache   *factorcache.Cache
	metrics *metrics.Metrics
	now     func() time.Time
	limit   int
	weights []Weight
}

func resolve(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRankingCache caches the ranked list HOT per (type, preferences, date)
func WithRankingCache(c *factorcache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithMetrics records run duration and result size
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDefaultLimit overrides the strategy's default result size
func WithDefaultLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

// WithWeights replaces the built-in score weights. Only the New*Screener
// constructors honour it.
func WithWeights(w []Weight) Option {
	return func(o *options) { o.weights = w }
}

// WithClock replaces the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New wraps a strategy into a screener
func New[R any](strategy Strategy[R], log *logger.Logger, opts ...Option) *Screener[R] {
	o := resolve(opts)
	if log == nil {
		log = logger.Nop()
	}
	return &Screener[R]{
		strategy: strategy,
		cache:    o.cache,
		metrics:  o.metrics,
		limit:    o.limit,
		logger:   log.Component("screener").WithField("screener", strategy.Type()),
		now:      o.now,
	}
}

// Type implements contracts.Screener
func (s *Screener[R]) Type() string {
	return s.strategy.Type()
}

// Screen collects, filters, scores and ranks, returning at most limit
// candidates sorted by score descending. limit <= 0 uses the default limit.
// Scores are only comparable within one run.
func (s *Screener[R]) Screen(ctx context.Context, date time.Time, limit int, prefs *contracts.Preferences) ([]*contracts.Candidate, error) {
	if limit <= 0 {
		limit = s.limit
	}
	if limit <= 0 {
		limit = s.strategy.DefaultLimit()
	}
	start := s.now()

	var ranked []*contracts.Candidate
	var err error
	if s.cache != nil {
		// 빈 결과나 업스트림 오류로 일부 누락된 결과는 캐시하지 않음
		var partial bool
		code := fmt.Sprintf("%s|%s", s.strategy.Type(), prefs.Hash())
		ranked, err = factorcache.RememberIf(ctx, s.cache, factorcache.KindRanking, code, date, s.cache.Config().HotTTL,
			func(ctx context.Context) ([]*contracts.Candidate, error) {
				list, p, err := s.run(ctx, date, prefs)
				partial = p
				return list, err
			},
			func(list []*contracts.Candidate) bool {
				return len(list) > 0 && !partial
			})
	} else {
		ranked, _, err = s.run(ctx, date, prefs)
	}
	if err != nil {
		return nil, err
	}

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	// cached lists are shared between callers
	out := contracts.CloneCandidates(ranked)

	elapsed := s.now().Sub(start)
	s.metrics.ScreenFinished(s.strategy.Type(), elapsed, len(out))
	s.logger.WithFields(map[string]interface{}{
		"trade_date": date.Format("2006-01-02"),
		"limit":      limit,
		"returned":   len(out),
		"elapsed_ms": elapsed.Milliseconds(),
	}).Info("Screening completed")

	return out, nil
}

// partialData is implemented by raw data that can miss part of its inputs
type partialData interface {
	Partial() bool
}

// run executes the four steps and returns the full ranked list, and
// whether the raw data was incomplete
func (s *Screener[R]) run(ctx context.Context, date time.Time, prefs *contracts.Preferences) ([]*contracts.Candidate, bool, error) {
	raw, err := s.strategy.CollectRawData(ctx, date)
	if err != nil {
		return nil, false, fmt.Errorf("%s: collect raw data: %w", s.strategy.Type(), err)
	}
	partial := false
	if p, ok := any(raw).(partialData); ok {
		partial = p.Partial()
	}

	candidates, err := s.strategy.ApplyFilters(ctx, raw, prefs)
	if err != nil {
		return nil, partial, fmt.Errorf("%s: apply filters: %w", s.strategy.Type(), err)
	}

	scored, err := s.strategy.CalculateScores(ctx, candidates)
	if err != nil {
		return nil, partial, fmt.Errorf("%s: calculate scores: %w", s.strategy.Type(), err)
	}

	Rank(scored)
	return scored, partial, nil
}

// Rank sorts by score descending (code ascending on ties) and assigns ranks
func Rank(candidates []*contracts.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Code < candidates[j].Code
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
}
