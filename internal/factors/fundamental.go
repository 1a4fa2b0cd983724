package factors

import (
	"github.com/wonny/aegis-picks/internal/contracts"
)

// Fundamental merges the valuation snapshot and the latest financials.
// Either input may be nil.
func Fundamental(basic *contracts.DailyBasic, fin *contracts.Financials) *contracts.FundamentalFactors {
	if basic == nil && fin == nil {
		return nil
	}

	f := &contracts.FundamentalFactors{}
	if basic != nil {
		f.MarketCap = basic.MarketCap
		f.PB = basic.PB
		// 적자 기업 PER은 의미 없음
		if basic.PE != nil && *basic.PE > 0 {
			f.PE = basic.PE
		}
	}
	if fin != nil {
		f.ROE = fin.ROE
		f.GrossMargin = fin.GrossMargin
		f.NetMargin = fin.NetMargin
		f.DebtRatio = fin.DebtRatio
		f.RevenueYoY = fin.RevenueYoY
		f.ProfitYoY = fin.ProfitYoY
	}
	f.QualityScore = qualityScore(f)
	return f
}

// qualityScore averages the available profitability, leverage and growth
// sub-scores on 0~100
func qualityScore(f *contracts.FundamentalFactors) *float64 {
	var parts []float64
	if f.ROE != nil {
		parts = append(parts, clamp(*f.ROE/20*100, 0, 100))
	}
	if f.NetMargin != nil {
		parts = append(parts, clamp(*f.NetMargin/20*100, 0, 100))
	}
	if f.DebtRatio != nil {
		parts = append(parts, clamp(100-*f.DebtRatio, 0, 100))
	}
	if f.ProfitYoY != nil {
		parts = append(parts, clamp(50+*f.ProfitYoY/2, 0, 100))
	}
	return average(parts)
}

func average(parts []float64) *float64 {
	if len(parts) == 0 {
		return nil
	}
	var sum float64
	for _, p := range parts {
		sum += p
	}
	return contracts.Float(sum / float64(len(parts)))
}
