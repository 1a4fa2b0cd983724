package screener

import (
	"context"
	"time"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/pkg/logger"
)

const (
	TypeStockShort = "stock_short"
	TypeStockLong  = "stock_long"

	defaultStockLimit = 20
)

// StockShortWeights skew toward momentum and technical signals
var StockShortWeights = []Weight{
	{Metric: "return_1w", Weight: 0.15, Extract: period("1w")},
	{Metric: "return_1m", Weight: 0.15, Extract: period("1m")},
	{Metric: "ma_alignment", Weight: 0.15, Extract: technical(func(t *contracts.TechnicalFactors) *float64 { return t.MAAlignment })},
	{Metric: "macd_hist", Weight: 0.15, Extract: technical(func(t *contracts.TechnicalFactors) *float64 { return t.MACDHist })},
	{Metric: "rsi_14", Weight: 0.10, Extract: technical(func(t *contracts.TechnicalFactors) *float64 { return t.RSI14 })},
	{Metric: "volume_ratio", Weight: 0.10, Extract: technical(func(t *contracts.TechnicalFactors) *float64 { return t.VolumeRatio })},
	{Metric: "consolidation", Weight: 0.10, Extract: technical(func(t *contracts.TechnicalFactors) *float64 { return t.Consolidation })},
	{Metric: "breakout", Weight: 0.10, Extract: technical(func(t *contracts.TechnicalFactors) *float64 { return t.Breakout })},
}

// StockLongWeights skew toward fundamentals
var StockLongWeights = []Weight{
	{Metric: "roe", Weight: 0.20, Extract: fundamental(func(f *contracts.FundamentalFactors) *float64 { return f.ROE })},
	{Metric: "profit_yoy", Weight: 0.10, Extract: fundamental(func(f *contracts.FundamentalFactors) *float64 { return f.ProfitYoY })},
	{Metric: "revenue_yoy", Weight: 0.10, Extract: fundamental(func(f *contracts.FundamentalFactors) *float64 { return f.RevenueYoY })},
	{Metric: "pe", Weight: 0.10, Invert: true, Extract: fundamental(func(f *contracts.FundamentalFactors) *float64 { return f.PE })},
	{Metric: "debt_ratio", Weight: 0.10, Invert: true, Extract: fundamental(func(f *contracts.FundamentalFactors) *float64 { return f.DebtRatio })},
	{Metric: "quality_score", Weight: 0.10, Extract: fundamental(func(f *contracts.FundamentalFactors) *float64 { return f.QualityScore })},
	{Metric: "return_1y", Weight: 0.10, Extract: period("1y")},
	{Metric: "sharpe", Weight: 0.10, Extract: risk(func(r *contracts.RiskFactors) *float64 { return r.Sharpe })},
	{Metric: "max_drawdown", Weight: 0.10, Invert: true, Extract: risk(func(r *contracts.RiskFactors) *float64 { return r.MaxDrawdown })},
}

// stockStrategy holds what the short and long stock screeners share;
// they differ only in thresholds and weights
type stockStrategy struct {
	typ       string
	horizon   contracts.Horizon
	collector *StockCollector
	threshold func(c *contracts.Candidate) string
	weights   []Weight
	logger    *logger.Logger
}

func (s *stockStrategy) Type() string      { return s.typ }
func (s *stockStrategy) DefaultLimit() int { return defaultStockLimit }

func (s *stockStrategy) CollectRawData(ctx context.Context, date time.Time) (*StockUniverse, error) {
	return s.collector.Collect(ctx, date)
}

func (s *stockStrategy) ApplyFilters(_ context.Context, raw *StockUniverse, prefs *contracts.Preferences) ([]*contracts.Candidate, error) {
	out := make([]*contracts.Candidate, 0, len(raw.Stocks))
	filtered := make(map[string]int)

	for _, info := range raw.Stocks {
		fs, ok := raw.Factors[info.Code]
		if !ok || fs == nil {
			filtered["no_factors"]++
			continue
		}

		c := stockCandidate(info, raw.Basics, fs)
		if reason := CheckStock(c, prefs); reason != "" {
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
		"total_input": len(raw.Stocks),
		"passed":      len(out),
		"filters":     filtered,
	}).Debug("Stock filters applied")
	return out, nil
}

func (s *stockStrategy) CalculateScores(_ context.Context, candidates []*contracts.Candidate) ([]*contracts.Candidate, error) {
	Score(candidates, s.weights)
	for _, c := range candidates {
		c.Factors.SetScore(s.horizon, c.Score)
	}
	return candidates, nil
}

func stockCandidate(info contracts.StockInfo, basics map[string]contracts.DailyBasic, fs *contracts.FactorSet) *contracts.Candidate {
	c := &contracts.Candidate{
		Code:      info.Code,
		Name:      info.Name,
		AssetType: contracts.AssetStock,
		Sector:    info.Sector,
		IsST:      info.IsST,
		Factors:   fs.Clone(),
	}
	if b, ok := basics[info.Code]; ok {
		c.MarketCap = b.MarketCap
		c.PE = b.PE
	}
	// 스냅샷에 없는 값은 팩터에서 보충
	if fs.Fundamental != nil {
		if c.MarketCap == nil {
			c.MarketCap = fs.Fundamental.MarketCap
		}
		if c.PE == nil {
			c.PE = fs.Fundamental.PE
		}
	}
	if fs.Technical != nil {
		c.Liquidity = fs.Technical.AvgAmount20D
	}
	if fs.LastPrice != nil {
		c.Price = *fs.LastPrice
	}
	return c
}

// StockShortTerm ranks stocks with positive weekly momentum
type StockShortTerm struct{ stockStrategy }

// NewStockShortTerm creates the short-term stock strategy
func NewStockShortTerm(collector *StockCollector, log *logger.Logger) *StockShortTerm {
	if log == nil {
		log = logger.Nop()
	}
	return &StockShortTerm{stockStrategy{
		typ:       TypeStockShort,
		horizon:   contracts.HorizonShort,
		collector: collector,
		threshold: shortThreshold,
		weights:   StockShortWeights,
		logger:    log.Component("screener").WithField("screener", TypeStockShort),
	}}
}

// StockLongTerm ranks stocks with sustained multi-year returns
type StockLongTerm struct{ stockStrategy }

// NewStockLongTerm creates the long-term stock strategy
func NewStockLongTerm(collector *StockCollector, log *logger.Logger) *StockLongTerm {
	if log == nil {
		log = logger.Nop()
	}
	return &StockLongTerm{stockStrategy{
		typ:       TypeStockLong,
		horizon:   contracts.HorizonLong,
		collector: collector,
		threshold: longThreshold,
		weights:   StockLongWeights,
		logger:    log.Component("screener").WithField("screener", TypeStockLong),
	}}
}

// Thresholds shared by stock and fund screeners (percent)
const (
	MinShortReturn1W = 0.0
	MinLongReturn1Y  = 5.0
	MinLongReturn3Y  = 15.0
)

// shortThreshold requires a positive 1-week return
func shortThreshold(c *contracts.Candidate) string {
	r := c.Factors.Return("1w")
	if r == nil || *r <= MinShortReturn1W {
		return "return_1w"
	}
	return ""
}

// longThreshold requires 1-year > 5% and, when the history exists, 3-year > 15%
func longThreshold(c *contracts.Candidate) string {
	r1y := c.Factors.Return("1y")
	if r1y == nil || *r1y <= MinLongReturn1Y {
		return "return_1y"
	}
	if r3y := c.Factors.Return("3y"); r3y != nil && *r3y <= MinLongReturn3Y {
		return "return_3y"
	}
	return ""
}

// NewStockShortScreener wires the short-term stock strategy into a Screener
func NewStockShortScreener(collector *StockCollector, log *logger.Logger, opts ...Option) *Screener[*StockUniverse] {
	st := NewStockShortTerm(collector, log)
	if w := resolve(opts).weights; len(w) > 0 {
		st.weights = w
	}
	return New[*StockUniverse](st, log, opts...)
}

// NewStockLongScreener wires the long-term stock strategy into a Screener
func NewStockLongScreener(collector *StockCollector, log *logger.Logger, opts ...Option) *Screener[*StockUniverse] {
	st := NewStockLongTerm(collector, log)
	if w := resolve(opts).weights; len(w) > 0 {
		st.weights = w
	}
	return New[*StockUniverse](st, log, opts...)
}
