package screener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/internal/factorcache"
	"github.com/wonny/aegis-picks/pkg/kvstore"
	"github.com/wonny/aegis-picks/pkg/logger"
)

var tradeDate = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

// fakeStrategy returns preset candidates with preset scores
type fakeStrategy struct {
	candidates   []*contracts.Candidate
	collectErr   error
	collectCalls int
}

func (s *fakeStrategy) Type() string      { return "fake" }
func (s *fakeStrategy) DefaultLimit() int { return 3 }

func (s *fakeStrategy) CollectRawData(context.Context, time.Time) ([]*contracts.Candidate, error) {
	s.collectCalls++
	if s.collectErr != nil {
		return nil, s.collectErr
	}
	return contracts.CloneCandidates(s.candidates), nil
}

func (s *fakeStrategy) ApplyFilters(_ context.Context, raw []*contracts.Candidate, prefs *contracts.Preferences) ([]*contracts.Candidate, error) {
	passed, _ := FilterCandidates(raw, prefs)
	return passed, nil
}

func (s *fakeStrategy) CalculateScores(_ context.Context, c []*contracts.Candidate) ([]*contracts.Candidate, error) {
	return c, nil
}

func scored(code, sector string, score float64) *contracts.Candidate {
	return &contracts.Candidate{Code: code, AssetType: contracts.AssetStock, Sector: sector, Score: score}
}

func newFake() *fakeStrategy {
	return &fakeStrategy{candidates: []*contracts.Candidate{
		scored("A", "电子", 10),
		scored("B", "银行", 90),
		scored("C", "医药", 50),
		scored("D", "电子", 70),
		scored("E", "银行", 30),
	}}
}

func codes(cands []*contracts.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Code
	}
	return out
}

func newCache() *factorcache.Cache {
	return factorcache.New(kvstore.NewMemory(), nil, factorcache.DefaultConfig(), logger.Nop())
}

func TestScreen_SortsAndTruncates(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"limit 2", 2, []string{"B", "D"}},
		{"default limit", 0, []string{"B", "D", "C"}},
		{"limit above size", 10, []string{"B", "D", "C", "E", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New[[]*contracts.Candidate](newFake(), logger.Nop())

			got, err := s.Screen(context.Background(), tradeDate, tt.limit, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(got))
			for i, c := range got {
				assert.Equal(t, i+1, c.Rank)
				if i > 0 {
					assert.GreaterOrEqual(t, got[i-1].Score, c.Score)
				}
			}
		})
	}
}

func TestScreen_ExcludedSectorNeverReturned(t *testing.T) {
	s := New[[]*contracts.Candidate](newFake(), logger.Nop())
	prefs := &contracts.Preferences{ExcludedSectors: []string{"银行"}}

	got, err := s.Screen(context.Background(), tradeDate, 10, prefs)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "C", "A"}, codes(got))
	for _, c := range got {
		assert.NotEqual(t, "银行", c.Sector)
	}
}

func TestScreen_CollectErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	s := New[[]*contracts.Candidate](&fakeStrategy{collectErr: boom}, logger.Nop())

	_, err := s.Screen(context.Background(), tradeDate, 5, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "collect raw data")
}

func TestScreen_RankingCache(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	s := New[[]*contracts.Candidate](fake, logger.Nop(), WithRankingCache(newCache()))

	first, err := s.Screen(ctx, tradeDate, 2, nil)
	require.NoError(t, err)
	first[0].Score = -1 // callers own their copy

	second, err := s.Screen(ctx, tradeDate, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.collectCalls, "same preferences and date hit the ranking cache")
	assert.Equal(t, []string{"B", "D", "C"}, codes(second))
	assert.Equal(t, 90.0, second[0].Score)

	_, err = s.Screen(ctx, tradeDate, 3, &contracts.Preferences{AvoidST: true})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.collectCalls, "different preferences rank separately")

	_, err = s.Screen(ctx, tradeDate.AddDate(0, 0, 1), 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, fake.collectCalls, "different date ranks separately")
}

func TestScreen_EmptyRankingNotCached(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStrategy{}
	s := New[[]*contracts.Candidate](fake, logger.Nop(), WithRankingCache(newCache()))

	got, err := s.Screen(ctx, tradeDate, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	fake.candidates = newFake().candidates
	got, err = s.Screen(ctx, tradeDate, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "D", "C"}, codes(got))
	assert.Equal(t, 2, fake.collectCalls, "an empty ranking is recomputed")
}

func TestScore_MinMax(t *testing.T) {
	ret := func(v float64) *contracts.Candidate {
		return &contracts.Candidate{Factors: &contracts.FactorSet{Performance: &contracts.PerformanceFactors{Return1W: contracts.Float(v)}}}
	}
	w := []Weight{{Metric: "return_1w", Weight: 1, Extract: period("1w")}}

	cands := []*contracts.Candidate{ret(1), ret(2), ret(3)}
	Score(cands, w)
	assert.Equal(t, []float64{0, 50, 100}, []float64{cands[0].Score, cands[1].Score, cands[2].Score})

	flat := []*contracts.Candidate{ret(4), ret(4)}
	Score(flat, w)
	assert.Equal(t, 50.0, flat[0].Score)
	assert.Equal(t, 50.0, flat[1].Score)

	inverted := []*contracts.Candidate{ret(1), ret(3)}
	Score(inverted, []Weight{{Metric: "return_1w", Weight: 1, Invert: true, Extract: period("1w")}})
	assert.Equal(t, 100.0, inverted[0].Score)
	assert.Equal(t, 0.0, inverted[1].Score)
}

func TestScore_MissingMetricRenormalises(t *testing.T) {
	mk := func(r1w, sharpe *float64) *contracts.Candidate {
		return &contracts.Candidate{Factors: &contracts.FactorSet{
			Performance: &contracts.PerformanceFactors{Return1W: r1w},
			Risk:        &contracts.RiskFactors{Sharpe: sharpe},
		}}
	}
	w := []Weight{
		{Metric: "return_1w", Weight: 0.5, Extract: period("1w")},
		{Metric: "sharpe", Weight: 0.5, Extract: risk(func(r *contracts.RiskFactors) *float64 { return r.Sharpe })},
	}

	a := mk(contracts.Float(3), nil)
	b := mk(contracts.Float(1), contracts.Float(0.5))
	c := mk(contracts.Float(2), contracts.Float(1.5))
	none := &contracts.Candidate{}
	Score([]*contracts.Candidate{a, b, c, none}, w)

	assert.Equal(t, 100.0, a.Score, "only return_1w counts, at its max")
	assert.Equal(t, 0.0, b.Score)
	assert.Equal(t, 75.0, c.Score)
	assert.Equal(t, 0.0, none.Score)
}

func TestCheckStock(t *testing.T) {
	f := contracts.Float
	base := func() *contracts.Candidate {
		return &contracts.Candidate{
			Code: "600000", AssetType: contracts.AssetStock, Sector: "电子",
			MarketCap: f(500), PE: f(20), Liquidity: f(1e8),
			Factors: &contracts.FactorSet{Fundamental: &contracts.FundamentalFactors{ROE: f(12)}},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *contracts.Candidate)
		prefs  *contracts.Preferences
		want   string
	}{
		{"nil prefs", nil, nil, ""},
		{"st avoided", func(c *contracts.Candidate) { c.IsST = true }, &contracts.Preferences{AvoidST: true}, ReasonST},
		{"st allowed", func(c *contracts.Candidate) { c.IsST = true }, &contracts.Preferences{}, ""},
		{"excluded sector", nil, &contracts.Preferences{ExcludedSectors: []string{" 电子 "}}, ReasonExcludedSector},
		{"allowed list miss", nil, &contracts.Preferences{AllowedSectors: []string{"医药"}}, ReasonSectorNotInList},
		{"preferred is not a filter", nil, &contracts.Preferences{PreferredSectors: []string{"医药"}}, ""},
		{"below min cap", nil, &contracts.Preferences{MinMarketCap: f(1000)}, ReasonMarketCap},
		{"above max cap", nil, &contracts.Preferences{MaxMarketCap: f(100)}, ReasonMarketCap},
		{"pe above max", nil, &contracts.Preferences{MaxPE: f(15)}, ReasonPE},
		{"loss making with max pe", func(c *contracts.Candidate) { c.PE = f(-3) }, &contracts.Preferences{MaxPE: f(15)}, ReasonPE},
		{"illiquid", nil, &contracts.Preferences{MinLiquidity: f(2e8)}, ReasonLiquidity},
		{"roe below min", nil, &contracts.Preferences{MinROE: f(15)}, ReasonROE},
		{"roe unknown passes", func(c *contracts.Candidate) { c.Factors = nil }, &contracts.Preferences{MinROE: f(15)}, ""},
		{"all bounds met", nil, &contracts.Preferences{MinROE: f(10), MaxPE: f(30), MinMarketCap: f(100)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			if tt.mutate != nil {
				tt.mutate(c)
			}
			assert.Equal(t, tt.want, Check(c, tt.prefs))
		})
	}
}

func TestCheckFund(t *testing.T) {
	f := contracts.Float
	base := func() *contracts.Candidate {
		return &contracts.Candidate{
			Code: "110011", AssetType: contracts.AssetFund, FundType: "混合型",
			FundSize: f(50), Sector: "银行",
			Factors: &contracts.FactorSet{Risk: &contracts.RiskFactors{MaxDrawdown: f(18)}},
		}
	}

	tests := []struct {
		name  string
		prefs *contracts.Preferences
		want  string
	}{
		{"no prefs", &contracts.Preferences{}, ""},
		{"sector rules do not apply to funds", &contracts.Preferences{ExcludedSectors: []string{"银行"}}, ""},
		{"excluded type", &contracts.Preferences{ExcludedFundTypes: []string{"混合型"}}, ReasonFundType},
		{"preferred types miss", &contracts.Preferences{PreferredFundTypes: []string{"债券型"}}, ReasonFundType},
		{"preferred types hit", &contracts.Preferences{PreferredFundTypes: []string{"债券型", "混合型"}}, ""},
		{"drawdown over tolerance", &contracts.Preferences{MaxDrawdownTolerance: f(15)}, ReasonDrawdown},
		{"drawdown within tolerance", &contracts.Preferences{MaxDrawdownTolerance: f(20)}, ""},
		{"fund too small", &contracts.Preferences{MinFundSize: f(100)}, ReasonFundSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(base(), tt.prefs))
		})
	}
}

func TestFilterCandidates_CountsReasons(t *testing.T) {
	passed, rejected := FilterCandidates(newFake().candidates, &contracts.Preferences{ExcludedSectors: []string{"银行"}})
	assert.Len(t, passed, 3)
	assert.Equal(t, 2, rejected[ReasonExcludedSector])

	all, rejected := FilterCandidates(newFake().candidates, nil)
	assert.Len(t, all, 5)
	assert.Empty(t, rejected)
}

func TestScreen_DefaultLimitOverride(t *testing.T) {
	s := New[[]*contracts.Candidate](newFake(), logger.Nop(), WithDefaultLimit(4))

	got, err := s.Screen(context.Background(), tradeDate, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "D", "C", "E"}, codes(got))
}

func TestOverrideWeights(t *testing.T) {
	tests := []struct {
		name    string
		pct     map[string]float64
		want    map[string]float64
		wantErr bool
	}{
		{"empty keeps defaults", nil, map[string]float64{"return_1w": 0.30, "return_1m": 0.30, "volatility": 0.15, "sharpe": 0.25}, false},
		{"replaces and drops", map[string]float64{"return_1w": 60, "sharpe": 40, "volatility": 0}, map[string]float64{"return_1w": 0.6, "sharpe": 0.4}, false},
		{"unknown metric", map[string]float64{"alpha": 100}, nil, true},
		{"all zero", map[string]float64{"sharpe": 0}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OverrideWeights(FundShortWeights, tt.pct)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			m := make(map[string]float64, len(got))
			for _, w := range got {
				m[w.Metric] = w.Weight
				require.NotNil(t, w.Extract)
			}
			assert.InDeltaMapValues(t, tt.want, m, 1e-9)
		})
	}
}
