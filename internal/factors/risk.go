package factors

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/aegis-picks/internal/contracts"
)

// RiskFreeRate is the annual rate used by Sharpe and Sortino
const RiskFreeRate = 0.03

const minRiskSamples = 20

// Risk computes drawdown and risk-adjusted return signals from an ascending
// price or NAV series
func Risk(series []float64) *contracts.RiskFactors {
	returns := dailyReturns(series)
	if len(returns) < minRiskSamples {
		return nil
	}

	mean, std := stat.MeanStdDev(returns, nil)
	annualMean := mean * sessionsYear
	annualStd := std * math.Sqrt(sessionsYear)
	mdd := maxDrawdown(series)

	r := &contracts.RiskFactors{
		Volatility:  contracts.Float(annualStd * 100),
		MaxDrawdown: contracts.Float(mdd * 100),
	}
	if annualStd > 0 {
		r.Sharpe = contracts.Float((annualMean - RiskFreeRate) / annualStd)
	}
	if dd := downsideDeviation(returns) * math.Sqrt(sessionsYear); dd > 0 {
		r.Sortino = contracts.Float((annualMean - RiskFreeRate) / dd)
	}
	if mdd > 0 {
		r.Calmar = contracts.Float(annualMean / mdd)
	}
	return r
}

func dailyReturns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	out := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] <= 0 {
			continue
		}
		out = append(out, series[i]/series[i-1]-1)
	}
	return out
}

// maxDrawdown returns the largest peak-to-trough decline as a positive fraction
func maxDrawdown(series []float64) float64 {
	var peak, worst float64
	for _, v := range series {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// downsideDeviation is the root mean square of negative daily returns
func downsideDeviation(returns []float64) float64 {
	var sum float64
	for _, r := range returns {
		if r < 0 {
			sum += r * r
		}
	}
	return math.Sqrt(sum / float64(len(returns)))
}
