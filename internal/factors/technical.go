// Package factors turns raw provider data into named numeric signals.
// Every function is pure; a value that cannot be computed from the input is
// left nil instead of being guessed.
package factors

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/aegis-picks/internal/contracts"
)

const (
	rsiPeriod      = 14
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	rangeLookback  = 20
	volumeShort    = 5
	volumeLong     = 20
	equalTolerance = 0.001 // 0.1% 이내면 같은 값으로 취급
)

// Technical computes price/volume signals from ascending daily bars
// ⭐ SSOT: 기술적 지표 계산은 여기서만
func Technical(bars []contracts.Bar) *contracts.TechnicalFactors {
	if len(bars) == 0 {
		return nil
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	amounts := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
		amounts[i] = b.Amount
	}
	last := closes[len(closes)-1]

	t := &contracts.TechnicalFactors{
		RSI14:       rsi(closes, rsiPeriod),
		MA5:         sma(closes, 5),
		MA20:        sma(closes, 20),
		MA60:        sma(closes, 60),
		MACDHist:    macdHistPct(closes),
		VolumeRatio: volumeRatio(volumes),
		Breakout:    breakoutPct(bars),
	}
	if len(amounts) >= rangeLookback {
		t.AvgAmount20D = contracts.Float(stat.Mean(amounts[len(amounts)-rangeLookback:], nil))
	}
	t.MAAlignment = maAlignment(last, t.MA5, t.MA20, t.MA60)
	t.Consolidation = consolidation(t.Breakout, t.VolumeRatio)
	return t
}

// rsi returns the latest RSI. A window without any price change is neutral (50).
func rsi(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}
	window := closes[len(closes)-period-1:]
	if flat(window) {
		return contracts.Float(50)
	}
	out := talib.Rsi(closes, period)
	return contracts.Float(out[len(out)-1])
}

func sma(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	out := talib.Sma(closes, period)
	return contracts.Float(out[len(out)-1])
}

// macdHistPct is the MACD histogram as a percent of the last close
func macdHistPct(closes []float64) *float64 {
	if len(closes) < macdSlow+macdSignal {
		return nil
	}
	last := closes[len(closes)-1]
	if last == 0 {
		return nil
	}
	_, _, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	return contracts.Float(hist[len(hist)-1] / last * 100)
}

// volumeRatio is the 5-day average volume over the 20-day average
func volumeRatio(volumes []float64) *float64 {
	if len(volumes) < volumeLong {
		return nil
	}
	long := stat.Mean(volumes[len(volumes)-volumeLong:], nil)
	if long == 0 {
		return nil
	}
	short := stat.Mean(volumes[len(volumes)-volumeShort:], nil)
	return contracts.Float(short / long)
}

// breakoutPct is the last close relative to the highest high of the prior
// 20 sessions, in percent. Positive means the range was broken upward.
func breakoutPct(bars []contracts.Bar) *float64 {
	if len(bars) < rangeLookback+1 {
		return nil
	}
	prior := bars[len(bars)-rangeLookback-1 : len(bars)-1]
	high := prior[0].High
	for _, b := range prior[1:] {
		high = math.Max(high, b.High)
	}
	if high == 0 {
		return nil
	}
	return contracts.Float((bars[len(bars)-1].Close/high - 1) * 100)
}

// maAlignment scores close > MA5 > MA20 > MA60 on 0~100. Each satisfied pair
// counts 1, an equal pair 0.5, so a flat series lands on 50.
func maAlignment(last float64, ma5, ma20, ma60 *float64) *float64 {
	chain := []*float64{&last, ma5, ma20, ma60}
	var sum float64
	pairs := 0
	for i := 0; i+1 < len(chain); i++ {
		a, b := chain[i], chain[i+1]
		if a == nil || b == nil {
			continue
		}
		pairs++
		sum += compare(*a, *b)
	}
	if pairs == 0 {
		return nil
	}
	return contracts.Float(sum / float64(pairs) * 100)
}

// consolidation scores a base-breakout setup on 0~100 with 50 as neutral:
// price breaking the 20-day range and rising volume push it up, breakdowns
// and drying volume push it down.
func consolidation(breakout, volRatio *float64) *float64 {
	if breakout == nil && volRatio == nil {
		return nil
	}
	score := 50.0
	if breakout != nil {
		score += clamp(*breakout*5, -25, 25)
	}
	if volRatio != nil {
		score += clamp((*volRatio-1)*25, -25, 25)
	}
	return contracts.Float(score)
}

func compare(a, b float64) float64 {
	if b == 0 {
		return 0.5
	}
	diff := (a - b) / math.Abs(b)
	switch {
	case diff > equalTolerance:
		return 1
	case diff < -equalTolerance:
		return 0
	default:
		return 0.5
	}
}

func flat(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
