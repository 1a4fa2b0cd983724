package contracts

import "time"

// FactorSet is every computed signal of one asset on one trade date.
// Identity is (Code, TradeDate); recomputation for the same date overwrites.
// Groups that do not apply to the asset type stay nil. A nil field means the
// value could not be computed, which scoring treats as "drop this weight".
// ⭐ SSOT: 팩터 데이터 구조는 여기서만 정의
type FactorSet struct {
	Code       string    `json:"code" msgpack:"code"`
	AssetType  AssetType `json:"asset_type" msgpack:"asset_type"`
	TradeDate  time.Time `json:"trade_date" msgpack:"trade_date"`
	ComputedAt time.Time `json:"computed_at" msgpack:"computed_at"`
	LastPrice  *float64  `json:"last_price,omitempty" msgpack:"last_price,omitempty"` // 종가 / 단위 기준가

	Technical   *TechnicalFactors   `json:"technical,omitempty" msgpack:"technical,omitempty"`
	Fundamental *FundamentalFactors `json:"fundamental,omitempty" msgpack:"fundamental,omitempty"`
	Risk        *RiskFactors        `json:"risk,omitempty" msgpack:"risk,omitempty"`
	Performance *PerformanceFactors `json:"performance,omitempty" msgpack:"performance,omitempty"`
	Manager     *ManagerFactors     `json:"manager,omitempty" msgpack:"manager,omitempty"`

	Scores Scores `json:"scores" msgpack:"scores"`
}

// Scores are the composite screener scores of the run that last ranked the asset
type Scores struct {
	Short *float64 `json:"short,omitempty" msgpack:"short,omitempty"`
	Long  *float64 `json:"long,omitempty" msgpack:"long,omitempty"`
}

// TechnicalFactors are price/volume signals (stocks)
type TechnicalFactors struct {
	RSI14         *float64 `json:"rsi_14,omitempty" msgpack:"rsi_14,omitempty"`
	MA5           *float64 `json:"ma_5,omitempty" msgpack:"ma_5,omitempty"`
	MA20          *float64 `json:"ma_20,omitempty" msgpack:"ma_20,omitempty"`
	MA60          *float64 `json:"ma_60,omitempty" msgpack:"ma_60,omitempty"`
	MAAlignment   *float64 `json:"ma_alignment,omitempty" msgpack:"ma_alignment,omitempty"`     // 0~100, 정배열일수록 높음
	MACDHist      *float64 `json:"macd_hist,omitempty" msgpack:"macd_hist,omitempty"`           // 종가 대비 %
	VolumeRatio   *float64 `json:"volume_ratio,omitempty" msgpack:"volume_ratio,omitempty"`     // 5일 / 20일 평균 거래량
	Consolidation *float64 `json:"consolidation,omitempty" msgpack:"consolidation,omitempty"`   // 0~100, 50 = 중립
	Breakout      *float64 `json:"breakout,omitempty" msgpack:"breakout,omitempty"`             // 20일 고가 대비 %
	AvgAmount20D  *float64 `json:"avg_amount_20d,omitempty" msgpack:"avg_amount_20d,omitempty"` // 유동성
}

// FundamentalFactors are valuation and quality signals (stocks)
type FundamentalFactors struct {
	ROE          *float64 `json:"roe,omitempty" msgpack:"roe,omitempty"`
	PE           *float64 `json:"pe,omitempty" msgpack:"pe,omitempty"`
	PB           *float64 `json:"pb,omitempty" msgpack:"pb,omitempty"`
	GrossMargin  *float64 `json:"gross_margin,omitempty" msgpack:"gross_margin,omitempty"`
	NetMargin    *float64 `json:"net_margin,omitempty" msgpack:"net_margin,omitempty"`
	DebtRatio    *float64 `json:"debt_ratio,omitempty" msgpack:"debt_ratio,omitempty"`
	RevenueYoY   *float64 `json:"revenue_yoy,omitempty" msgpack:"revenue_yoy,omitempty"`
	ProfitYoY    *float64 `json:"profit_yoy,omitempty" msgpack:"profit_yoy,omitempty"`
	MarketCap    *float64 `json:"market_cap,omitempty" msgpack:"market_cap,omitempty"`
	QualityScore *float64 `json:"quality_score,omitempty" msgpack:"quality_score,omitempty"` // 0~100
}

// RiskFactors are drawdown and risk-adjusted return signals (stocks and funds)
type RiskFactors struct {
	Volatility  *float64 `json:"volatility,omitempty" msgpack:"volatility,omitempty"`     // 연율화 %
	MaxDrawdown *float64 `json:"max_drawdown,omitempty" msgpack:"max_drawdown,omitempty"` // 양수 %, 20 = -20%
	Sharpe      *float64 `json:"sharpe,omitempty" msgpack:"sharpe,omitempty"`
	Sortino     *float64 `json:"sortino,omitempty" msgpack:"sortino,omitempty"`
	Calmar      *float64 `json:"calmar,omitempty" msgpack:"calmar,omitempty"`
}

// PerformanceFactors are trailing period returns in percent
type PerformanceFactors struct {
	Return1W         *float64 `json:"return_1w,omitempty" msgpack:"return_1w,omitempty"`
	Return1M         *float64 `json:"return_1m,omitempty" msgpack:"return_1m,omitempty"`
	Return3M         *float64 `json:"return_3m,omitempty" msgpack:"return_3m,omitempty"`
	Return6M         *float64 `json:"return_6m,omitempty" msgpack:"return_6m,omitempty"`
	Return1Y         *float64 `json:"return_1y,omitempty" msgpack:"return_1y,omitempty"`
	Return3Y         *float64 `json:"return_3y,omitempty" msgpack:"return_3y,omitempty"`
	AnnualizedReturn *float64 `json:"annualized_return,omitempty" msgpack:"annualized_return,omitempty"`
}

// ManagerFactors describe the fund manager (funds)
type ManagerFactors struct {
	TenureYears  *float64 `json:"tenure_years,omitempty" msgpack:"tenure_years,omitempty"`
	AUMBillion   *float64 `json:"aum_billion,omitempty" msgpack:"aum_billion,omitempty"`
	BestReturn   *float64 `json:"best_return,omitempty" msgpack:"best_return,omitempty"`
	ManagerScore *float64 `json:"manager_score,omitempty" msgpack:"manager_score,omitempty"` // 0~100
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// Clone returns a copy whose groups can be modified without touching the
// original. Field pointers are shared; factor values are never mutated in place.
func (f *FactorSet) Clone() *FactorSet {
	if f == nil {
		return nil
	}
	out := *f
	if f.Technical != nil {
		t := *f.Technical
		out.Technical = &t
	}
	if f.Fundamental != nil {
		v := *f.Fundamental
		out.Fundamental = &v
	}
	if f.Risk != nil {
		r := *f.Risk
		out.Risk = &r
	}
	if f.Performance != nil {
		p := *f.Performance
		out.Performance = &p
	}
	if f.Manager != nil {
		m := *f.Manager
		out.Manager = &m
	}
	return &out
}

// Score returns the stored composite score of horizon
func (f *FactorSet) Score(h Horizon) *float64 {
	if f == nil {
		return nil
	}
	if h == HorizonLong {
		return f.Scores.Long
	}
	return f.Scores.Short
}

// SetScore stores the composite score of horizon
func (f *FactorSet) SetScore(h Horizon, v float64) {
	if h == HorizonLong {
		f.Scores.Long = Float(v)
		return
	}
	f.Scores.Short = Float(v)
}

// ROE is a nil-safe accessor used by preference checks
func (f *FactorSet) ROE() *float64 {
	if f == nil || f.Fundamental == nil {
		return nil
	}
	return f.Fundamental.ROE
}

// MaxDrawdown is a nil-safe accessor used by preference checks
func (f *FactorSet) MaxDrawdown() *float64 {
	if f == nil || f.Risk == nil {
		return nil
	}
	return f.Risk.MaxDrawdown
}

// Return is a nil-safe accessor for a trailing return by period name
// (1w, 1m, 3m, 6m, 1y, 3y)
func (f *FactorSet) Return(period string) *float64 {
	if f == nil || f.Performance == nil {
		return nil
	}
	p := f.Performance
	switch period {
	case "1w":
		return p.Return1W
	case "1m":
		return p.Return1M
	case "3m":
		return p.Return3M
	case "6m":
		return p.Return6M
	case "1y":
		return p.Return1Y
	case "3y":
		return p.Return3Y
	}
	return nil
}
