package screener

import (
	"context"
	"time"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/pkg/logger"
)

const (
	TypeFundShort = "fund_short"
	TypeFundLong  = "fund_long"

	defaultFundLimit = 20
)

// FundShortWeights favour recent returns with low volatility
var FundShortWeights = []Weight{
	{Metric: "return_1w", Weight: 0.30, Extract: period("1w")},
	{Metric: "return_1m", Weight: 0.30, Extract: period("1m")},
	{Metric: "volatility", Weight: 0.15, Invert: true, Extract: risk(func(r *contracts.RiskFactors) *float64 { return r.Volatility })},
	{Metric: "sharpe", Weight: 0.25, Extract: risk(func(r *contracts.RiskFactors) *float64 { return r.Sharpe })},
}

// FundLongWeights favour multi-year risk-adjusted returns and the manager
var FundLongWeights = []Weight{
	{Metric: "return_1y", Weight: 0.20, Extract: period("1y")},
	{Metric: "return_3y", Weight: 0.20, Extract: period("3y")},
	{Metric: "sharpe", Weight: 0.20, Extract: risk(func(r *contracts.RiskFactors) *float64 { return r.Sharpe })},
	{Metric: "max_drawdown", Weight: 0.20, Invert: true, Extract: risk(func(r *contracts.RiskFactors) *float64 { return r.MaxDrawdown })},
	{Metric: "calmar", Weight: 0.10, Extract: risk(func(r *contracts.RiskFactors) *float64 { return r.Calmar })},
	{Metric: "manager_score", Weight: 0.10, Extract: manager(func(m *contracts.ManagerFactors) *float64 { return m.ManagerScore })},
}

type fundStrategy struct {
	typ       string
	horizon   contracts.Horizon
	collector *FundCollector
	threshold func(c *contracts.Candidate) string
	weights   []Weight
	logger    *logger.Logger
}

func (s *fundStrategy) Type() string      { return s.typ }
func (s *fundStrategy) DefaultLimit() int { return defaultFundLimit }

func (s *fundStrategy) CollectRawData(ctx context.Context, date time.Time) (*FundUniverse, error) {
	return s.collector.Collect(ctx, date)
}

func (s *fundStrategy) ApplyFilters(_ context.Context, raw *FundUniverse, prefs *contracts.Preferences) ([]*contracts.Candidate, error) {
	out := make([]*contracts.Candidate, 0, len(raw.Funds))
	filtered := make(map[string]int)

	for _, info := range raw.Funds {
		fs, ok := raw.Factors[info.Code]
		if !ok || fs == nil {
			filtered["no_factors"]++
			continue
		}

		c := fundCandidate(info, fs)
		if reason := CheckFund(c, prefs); reason != "" {
			filtered[reason]++
			continue
		}
		if reason := s.threshold(c); reason != "" {
			filtered[reason]++
			continue
		}
		out = append(out, c)
	}

	s.logger.WithFields(map[string]interface{}{
		"total_input": len(raw.Funds),
		"passed":      len(out),
		"filters":     filtered,
	}).Debug("Fund filters applied")
	return out, nil
}

func (s *fundStrategy) CalculateScores(_ context.Context, candidates []*contracts.Candidate) ([]*contracts.Candidate, error) {
	Score(candidates, s.weights)
	for _, c := range candidates {
		c.Factors.SetScore(s.horizon, c.Score)
	}
	return candidates, nil
}

func fundCandidate(info contracts.FundInfo, fs *contracts.FactorSet) *contracts.Candidate {
	c := &contracts.Candidate{
		Code:      info.Code,
		Name:      info.Name,
		AssetType: contracts.AssetFund,
		FundType:  info.FundType,
		Factors:   fs.Clone(),
	}
	if info.SizeBillion != nil && *info.SizeBillion > 0 {
		c.FundSize = info.SizeBillion
	}
	if fs.LastPrice != nil {
		c.Price = *fs.LastPrice
	}
	return c
}

// FundShortTerm ranks funds with positive weekly returns
type FundShortTerm struct{ fundStrategy }

// NewFundShortTerm creates the short-term fund strategy
func NewFundShortTerm(collector *FundCollector, log *logger.Logger) *FundShortTerm {
	if log == nil {
		log = logger.Nop()
	}
	return &FundShortTerm{fundStrategy{
		typ:       TypeFundShort,
		horizon:   contracts.HorizonShort,
		collector: collector,
		threshold: shortThreshold,
		weights:   FundShortWeights,
		logger:    log.Component("screener").WithField("screener", TypeFundShort),
	}}
}

// FundLongTerm ranks funds with sustained multi-year returns
type FundLongTerm struct{ fundStrategy }

// NewFundLongTerm creates the long-term fund strategy
func NewFundLongTerm(collector *FundCollector, log *logger.Logger) *FundLongTerm {
	if log == nil {
		log = logger.Nop()
	}
	return &FundLongTerm{fundStrategy{
		typ:       TypeFundLong,
		horizon:   contracts.HorizonLong,
		collector: collector,
		threshold: longThreshold,
		weights:   FundLongWeights,
		logger:    log.Component("screener").WithField("screener", TypeFundLong),
	}}
}

// NewFundShortScreener wires the short-term fund strategy into a Screener
func NewFundShortScreener(collector *FundCollector, log *logger.Logger, opts ...Option) *Screener[*FundUniverse] {
	st := NewFundShortTerm(collector, log)
	if w := resolve(opts).weights; len(w) > 0 {
		st.weights = w
	}
	return New[*FundUniverse](st, log, opts...)
}

// NewFundLongScreener wires the long-term fund strategy into a Screener
func NewFundLongScreener(collector *FundCollector, log *logger.Logger, opts ...Option) *Screener[*FundUniverse] {
	st := NewFundLongTerm(collector, log)
	if w := resolve(opts).weights; len(w) > 0 {
		st.weights = w
	}
	return New[*FundUniverse](st, log, opts...)
}
