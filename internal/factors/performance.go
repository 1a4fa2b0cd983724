package factors

import (
	"math"

	"github.com/wonny/aegis-picks/internal/contracts"
)

// trading sessions per period
const (
	sessionsWeek    = 5
	sessionsMonth   = 21
	sessionsQuarter = 63
	sessionsHalf    = 126
	sessionsYear    = 252
	sessions3Y      = 756
)

// Performance computes trailing returns (percent) from an ascending price or
// NAV series. A period longer than the history stays nil.
func Performance(series []float64) *contracts.PerformanceFactors {
	if len(series) < 2 {
		return nil
	}
	return &contracts.PerformanceFactors{
		Return1W:         periodReturn(series, sessionsWeek),
		Return1M:         periodReturn(series, sessionsMonth),
		Return3M:         periodReturn(series, sessionsQuarter),
		Return6M:         periodReturn(series, sessionsHalf),
		Return1Y:         periodReturn(series, sessionsYear),
		Return3Y:         periodReturn(series, sessions3Y),
		AnnualizedReturn: annualizedReturn(series),
	}
}

func periodReturn(series []float64, sessions int) *float64 {
	if len(series) <= sessions {
		return nil
	}
	base := series[len(series)-1-sessions]
	if base <= 0 {
		return nil
	}
	return contracts.Float((series[len(series)-1]/base - 1) * 100)
}

// annualizedReturn needs at least a quarter of history to avoid
// extrapolating a few days into a yearly figure
func annualizedReturn(series []float64) *float64 {
	n := len(series) - 1
	if n < sessionsQuarter || series[0] <= 0 {
		return nil
	}
	growth := series[len(series)-1] / series[0]
	if growth <= 0 {
		return nil
	}
	return contracts.Float((math.Pow(growth, float64(sessionsYear)/float64(n)) - 1) * 100)
}
