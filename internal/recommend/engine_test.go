package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/internal/factorcache"
	"github.com/wonny/aegis-picks/pkg/kvstore"
	"github.com/wonny/aegis-picks/pkg/logger"
	"github.com/wonny/aegis-picks/pkg/metrics"
)

var tradeDate = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

// fakeScreener returns a copy of its preset list
type fakeScreener struct {
	typ   string
	list  []*contracts.Candidate
	err   error
	mu    sync.Mutex
	calls int
	limit int
}

func (s *fakeScreener) Type() string { return s.typ }

func (s *fakeScreener) Screen(_ context.Context, _ time.Time, limit int, _ *contracts.Preferences) ([]*contracts.Candidate, error) {
	s.mu.Lock()
	s.calls++
	s.limit = limit
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return contracts.CloneCandidates(s.list), nil
}

func (s *fakeScreener) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func stock(code, sector string, score float64, h contracts.Horizon) *contracts.Candidate {
	fs := &contracts.FactorSet{Code: code, AssetType: contracts.AssetStock, TradeDate: tradeDate}
	fs.SetScore(h, score)
	return &contracts.Candidate{
		Code: code, Name: code, AssetType: contracts.AssetStock, Sector: sector,
		Price: 10, Score: score, Factors: fs,
	}
}

func fund(code, fundType string, score float64, h contracts.Horizon) *contracts.Candidate {
	fs := &contracts.FactorSet{Code: code, AssetType: contracts.AssetFund, TradeDate: tradeDate}
	fs.SetScore(h, score)
	return &contracts.Candidate{
		Code: code, Name: code, AssetType: contracts.AssetFund, FundType: fundType,
		Price: 1.2, Score: score, Factors: fs,
	}
}

type fakeRepo struct {
	mu      sync.Mutex
	records []*contracts.RecommendationRecord
	failOn  map[string]bool
}

func (r *fakeRepo) InsertRecommendation(_ context.Context, rec *contracts.RecommendationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[rec.Code] {
		return errors.New("unique violation")
	}
	cp := *rec
	r.records = append(r.records, &cp)
	return nil
}

func (r *fakeRepo) PerformanceStats(context.Context, int) ([]contracts.PerformanceStats, error) {
	return nil, nil
}

type fixedCalendar struct{ date time.Time }

func (c fixedCalendar) LatestTradeDate(time.Time) time.Time { return c.date }
func (c fixedCalendar) IsTradingDay(time.Time) bool         { return true }

type fixture struct {
	screeners map[string]*fakeScreener
	repo      *fakeRepo
	cache     *factorcache.Cache
}

func newFixture() *fixture {
	return &fixture{
		screeners: map[string]*fakeScreener{
			"stock_short": {typ: "stock_short", list: []*contracts.Candidate{
				stock("600519", "食品饮料", 90, contracts.HorizonShort),
				stock("000725", "电子", 80, contracts.HorizonShort),
				stock("600036", "银行", 70, contracts.HorizonShort),
			}},
			"stock_long": {typ: "stock_long", list: []*contracts.Candidate{
				stock("600519", "食品饮料", 60, contracts.HorizonLong),
			}},
			"fund_short": {typ: "fund_short", list: []*contracts.Candidate{
				fund("110011", "混合型", 75, contracts.HorizonShort),
			}},
			"fund_long": {typ: "fund_long", list: []*contracts.Candidate{
				fund("110011", "混合型", 55, contracts.HorizonLong),
			}},
		},
		repo:  &fakeRepo{failOn: map[string]bool{}},
		cache: factorcache.New(kvstore.NewMemory(), nil, factorcache.DefaultConfig(), logger.Nop()),
	}
}

func (f *fixture) engine(cfg Config, opts ...Option) *Engine {
	s := Screeners{
		StockShort: f.screeners["stock_short"],
		StockLong:  f.screeners["stock_long"],
		FundShort:  f.screeners["fund_short"],
		FundLong:   f.screeners["fund_long"],
	}
	return New(s, f.cache, f.repo, fixedCalendar{date: tradeDate}, cfg, logger.Nop(), opts...)
}

func TestGenerate_ShortModeNeverSetsLongTerm(t *testing.T) {
	f := newFixture()
	e := f.engine(DefaultConfig())

	res, err := e.Generate(context.Background(), Request{Mode: contracts.ModeShort})
	require.NoError(t, err)

	require.NotNil(t, res.ShortTerm)
	assert.Nil(t, res.LongTerm)
	assert.Len(t, res.ShortTerm.Stocks, 3)
	assert.Len(t, res.ShortTerm.Funds, 1)
	assert.Equal(t, 0, f.screeners["stock_long"].Calls())
	assert.Equal(t, 0, f.screeners["fund_long"].Calls())
	for _, rec := range f.repo.records {
		assert.Equal(t, contracts.HorizonShort, rec.RecType)
	}
}

func TestGenerate_AllModeAndMetadata(t *testing.T) {
	f := newFixture()
	e := f.engine(DefaultConfig())

	res, err := e.Generate(context.Background(), Request{StockLimit: 7, FundLimit: 3})
	require.NoError(t, err)

	require.NotNil(t, res.ShortTerm)
	require.NotNil(t, res.LongTerm)
	assert.Equal(t, contracts.ModeAll, res.Metadata.Mode)
	assert.Equal(t, tradeDate, res.Metadata.TradeDate, "zero date resolves through the calendar")
	assert.Len(t, res.Metadata.RunID, 36)
	assert.Equal(t, MarketContextPlaceholder, res.Metadata.MarketContext)
	assert.Contains(t, res.Metadata.Timings, "short.stock.screen")
	assert.Contains(t, res.Metadata.Timings, "total")
	assert.Equal(t, 7, f.screeners["stock_long"].limit)
	assert.Equal(t, 3, f.screeners["fund_short"].limit)
}

func TestGenerate_InvalidMode(t *testing.T) {
	_, err := newFixture().engine(DefaultConfig()).Generate(context.Background(), Request{Mode: "weekly"})
	assert.Error(t, err)
}

func TestGenerate_PersistedScoreEqualsReturnedScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	cfg := DefaultConfig()
	cfg.PersistTopN = 2
	e := f.engine(cfg)

	res, err := e.Generate(ctx, Request{
		Mode:        contracts.ModeAll,
		Preferences: &contracts.Preferences{PreferredSectors: []string{"电子"}},
	})
	require.NoError(t, err)

	returned := make(map[string]*contracts.Candidate)
	for _, c := range res.ShortTerm.Stocks {
		returned[string(contracts.HorizonShort)+c.Code] = c
	}
	for _, c := range res.LongTerm.Stocks {
		returned[string(contracts.HorizonLong)+c.Code] = c
	}
	for _, c := range res.ShortTerm.Funds {
		returned[string(contracts.HorizonShort)+c.Code] = c
	}
	for _, c := range res.LongTerm.Funds {
		returned[string(contracts.HorizonLong)+c.Code] = c
	}

	// short stocks capped at 2, plus 1 long stock and 1 fund per horizon
	assert.Len(t, f.repo.records, 5)
	assert.Equal(t, 5, res.Metadata.Persisted)
	for _, rec := range f.repo.records {
		c := returned[string(rec.RecType)+rec.Code]
		require.NotNil(t, c, rec.Code)
		assert.Equal(t, c.Score, rec.Score)
		assert.Equal(t, c.Rank, rec.Rank)
		assert.Equal(t, c.TargetReturnPct, rec.TargetReturnPct)
		assert.Equal(t, res.Metadata.RunID, rec.RunID)
		require.NotNil(t, rec.EntryPrice)
	}

	// composite scores of both horizons land in one factor record
	fs, err := f.cache.Get(ctx, "600519", tradeDate)
	require.NoError(t, err)
	require.NotNil(t, fs)
	assert.Equal(t, returned["short600519"].Score, *fs.Scores.Short)
	assert.Equal(t, returned["long600519"].Score, *fs.Scores.Long)
}

func TestGenerate_SecondPassRejectsAndBoosts(t *testing.T) {
	f := newFixture()
	e := f.engine(Config{PreferredSectorBoost: 15})

	res, err := e.Generate(context.Background(), Request{
		Mode: contracts.ModeShort,
		Preferences: &contracts.Preferences{
			ExcludedSectors:  []string{"银行"},
			PreferredSectors: []string{"电子"},
		},
	})
	require.NoError(t, err)

	stocks := res.ShortTerm.Stocks
	require.Len(t, stocks, 2)
	assert.Equal(t, "000725", stocks[0].Code, "80 + 15 boost outranks 90")
	assert.Equal(t, 95.0, stocks[0].Score)
	assert.Equal(t, 1, stocks[0].Rank)
	assert.Equal(t, "600519", stocks[1].Code)
	assert.Equal(t, 2, stocks[1].Rank)
	assert.Equal(t, 95.0, *stocks[0].Factors.Scores.Short)

	target, stop := DefaultTargetRules[contracts.HorizonShort].Targets(95)
	assert.Equal(t, target, stocks[0].TargetReturnPct)
	assert.Equal(t, stop, stocks[0].StopLossPct)
}

func TestGenerate_BoostIsCapped(t *testing.T) {
	f := newFixture()
	e := f.engine(Config{PreferredSectorBoost: 50})

	res, err := e.Generate(context.Background(), Request{
		Mode:        contracts.ModeShort,
		Preferences: &contracts.Preferences{PreferredSectors: []string{"食品饮料"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.ShortTerm.Stocks[0].Score)
}

type failingExplainer struct{}

func (failingExplainer) Explain(context.Context, []*contracts.Candidate, contracts.AssetType, contracts.Horizon) ([]*contracts.Candidate, error) {
	return nil, errors.New("llm 503")
}

type hangingExplainer struct{ release chan struct{} }

func (h hangingExplainer) Explain(context.Context, []*contracts.Candidate, contracts.AssetType, contracts.Horizon) ([]*contracts.Candidate, error) {
	<-h.release
	return nil, nil
}

func TestGenerate_ExplainerFailureKeepsList(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	tests := []struct {
		name      string
		explainer contracts.Explainer
	}{
		{"error", NewGuardedExplainer(failingExplainer{}, time.Second, logger.Nop())},
		{"timeout", NewGuardedExplainer(hangingExplainer{release: release}, 20*time.Millisecond, logger.Nop())},
		{"unguarded error", failingExplainer{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			e := f.engine(DefaultConfig(), WithExplainer(tt.explainer))

			res, err := e.Generate(context.Background(), Request{Mode: contracts.ModeShort})
			require.NoError(t, err)
			require.Len(t, res.ShortTerm.Stocks, 3)
			assert.Equal(t, "600519", res.ShortTerm.Stocks[0].Code)
			assert.Empty(t, res.ShortTerm.Stocks[0].Rationale)
			assert.Len(t, f.repo.records, 4)
		})
	}
}

func TestGenerate_TemplateExplainerAttachesRationale(t *testing.T) {
	f := newFixture()
	e := f.engine(DefaultConfig(), WithExplainer(NewGuardedExplainer(TemplateExplainer{}, time.Second, logger.Nop())))

	res, err := e.Generate(context.Background(), Request{Mode: contracts.ModeLong})
	require.NoError(t, err)
	for _, c := range append(res.LongTerm.Stocks, res.LongTerm.Funds...) {
		assert.Contains(t, c.Rationale, "#1 score")
		assert.Contains(t, c.Rationale, "stop -12.0%")
	}
}

func TestGenerate_PersistFailureDoesNotAbort(t *testing.T) {
	f := newFixture()
	f.repo.failOn["000725"] = true
	m := metrics.New()
	e := f.engine(DefaultConfig(), WithMetrics(m))

	res, err := e.Generate(context.Background(), Request{Mode: contracts.ModeShort})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Metadata.PersistFailures)
	assert.Equal(t, 3, res.Metadata.Persisted)
	assert.Len(t, res.ShortTerm.Stocks, 3, "failed records stay in the result")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))
}

func TestGenerate_ScreenerFailureYieldsEmptyList(t *testing.T) {
	f := newFixture()
	f.screeners["fund_short"].err = errors.New("collect raw data: boom")
	e := f.engine(DefaultConfig())

	res, err := e.Generate(context.Background(), Request{Mode: contracts.ModeShort})
	require.NoError(t, err)
	assert.Empty(t, res.ShortTerm.Funds)
	assert.NotNil(t, res.ShortTerm.Funds)
	assert.Len(t, res.ShortTerm.Stocks, 3)
}

func TestGenerate_CancelledContextFails(t *testing.T) {
	f := newFixture()
	f.screeners["stock_short"].err = context.Canceled
	e := f.engine(DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Generate(ctx, Request{Mode: contracts.ModeShort})
	assert.ErrorIs(t, err, context.Canceled)
}

type slowMarket struct{ release chan struct{} }

func (m slowMarket) Summary(context.Context, time.Time) (string, error) {
	<-m.release // ignores ctx on purpose
	return "never", nil
}

type staticMarket string

func (m staticMarket) Summary(context.Context, time.Time) (string, error) { return string(m), nil }

func TestGenerate_MarketContext(t *testing.T) {
	t.Run("summary attached", func(t *testing.T) {
		e := newFixture().engine(DefaultConfig(), WithMarketContext(staticMarket("breadth 1200 up / 800 down")))
		res, err := e.Generate(context.Background(), Request{Mode: contracts.ModeShort})
		require.NoError(t, err)
		assert.Equal(t, "breadth 1200 up / 800 down", res.Metadata.MarketContext)
	})

	t.Run("hang degrades to placeholder", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		cfg := DefaultConfig()
		cfg.MarketContextTimeout = 20 * time.Millisecond
		e := newFixture().engine(cfg, WithMarketContext(slowMarket{release: release}))

		start := time.Now()
		res, err := e.Generate(context.Background(), Request{Mode: contracts.ModeShort})
		require.NoError(t, err)
		assert.Equal(t, MarketContextPlaceholder, res.Metadata.MarketContext)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}
