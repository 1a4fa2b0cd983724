package factors

import (
	"time"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/pkg/logger"
)

// StockInput is the raw data behind one stock's factor set
type StockInput struct {
	Code       string
	TradeDate  time.Time
	Bars       []contracts.Bar // ascending
	Basic      *contracts.DailyBasic
	Financials *contracts.Financials
}

// FundInput is the raw data behind one fund's factor set
type FundInput struct {
	Code      string
	TradeDate time.Time
	Navs      []contracts.NavPoint // ascending
	Manager   *contracts.ManagerInfo
}

// Builder assembles factor sets from raw inputs
// ⭐ SSOT: 팩터 세트 조립은 여기서만
type Builder struct {
	logger *logger.Logger
	now    func() time.Time
}

// NewBuilder creates a new factor builder
func NewBuilder(log *logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{logger: log.Component("factors"), now: time.Now}
}

// Stock computes technical, fundamental, risk and performance groups
func (b *Builder) Stock(in StockInput) *contracts.FactorSet {
	closes := make([]float64, len(in.Bars))
	for i, bar := range in.Bars {
		closes[i] = bar.Close
	}

	fs := &contracts.FactorSet{
		Code:        in.Code,
		AssetType:   contracts.AssetStock,
		TradeDate:   in.TradeDate,
		ComputedAt:  b.now(),
		Technical:   Technical(in.Bars),
		Fundamental: Fundamental(in.Basic, in.Financials),
		Risk:        Risk(closes),
		Performance: Performance(closes),
	}
	if n := len(closes); n > 0 {
		fs.LastPrice = contracts.Float(closes[n-1])
	}

	b.logger.WithFields(map[string]interface{}{
		"code":       in.Code,
		"bars":       len(in.Bars),
		"financials": in.Financials != nil,
	}).Debug("Calculated stock factors")
	return fs
}

// Fund computes risk, performance and manager groups. Accumulated NAV is
// used so distributions do not show up as drawdowns; the price is the
// latest unit NAV, the one a subscription is priced at.
func (b *Builder) Fund(in FundInput) *contracts.FactorSet {
	series := make([]float64, len(in.Navs))
	for i, p := range in.Navs {
		series[i] = p.AccNav
		if series[i] <= 0 {
			series[i] = p.UnitNav
		}
	}

	fs := &contracts.FactorSet{
		Code:        in.Code,
		AssetType:   contracts.AssetFund,
		TradeDate:   in.TradeDate,
		ComputedAt:  b.now(),
		Risk:        Risk(series),
		Performance: Performance(series),
		Manager:     Manager(in.Manager, in.TradeDate),
	}
	if n := len(in.Navs); n > 0 {
		last := in.Navs[n-1].UnitNav
		if last <= 0 {
			last = series[n-1]
		}
		fs.LastPrice = contracts.Float(last)
	}

	b.logger.WithFields(map[string]interface{}{
		"code": in.Code,
		"navs": len(in.Navs),
	}).Debug("Calculated fund factors")
	return fs
}
