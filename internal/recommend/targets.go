package recommend

import (
	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-picks/internal/contracts"
)

// TargetRule maps a 0~100 score to a target return and a fixed stop loss (percent)
type TargetRule struct {
	BaseTarget  decimal.Decimal // score 0 의 목표수익률
	ScoreTarget decimal.Decimal // score 100 일 때 추가되는 목표수익률
	StopLoss    decimal.Decimal
}

// DefaultTargetRules per horizon
var DefaultTargetRules = map[contracts.Horizon]TargetRule{
	contracts.HorizonShort: {
		BaseTarget:  decimal.NewFromInt(3),
		ScoreTarget: decimal.NewFromInt(7),
		StopLoss:    decimal.NewFromInt(-5),
	},
	contracts.HorizonLong: {
		BaseTarget:  decimal.NewFromInt(10),
		ScoreTarget: decimal.NewFromInt(20),
		StopLoss:    decimal.NewFromInt(-12),
	},
}

var hundred = decimal.NewFromInt(100)

// Targets returns (target, stop) rounded to two decimals:
// target = base + score/100 * scoreTarget
func (r TargetRule) Targets(score float64) (float64, float64) {
	s := decimal.NewFromFloat(score)
	if s.IsNegative() {
		s = decimal.Zero
	}
	if s.GreaterThan(hundred) {
		s = hundred
	}

	target := r.BaseTarget.Add(s.Div(hundred).Mul(r.ScoreTarget)).Round(2)
	return target.InexactFloat64(), r.StopLoss.Round(2).InexactFloat64()
}

// boostScore adds a preferred-sector boost, capped at 100
func boostScore(score, boost float64) float64 {
	v := decimal.NewFromFloat(score).Add(decimal.NewFromFloat(boost))
	if v.GreaterThan(hundred) {
		v = hundred
	}
	return v.Round(2).InexactFloat64()
}
