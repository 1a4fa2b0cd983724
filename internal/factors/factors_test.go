package factors

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/pkg/logger"
)

func makeBars(closes []float64, volume float64) []contracts.Bar {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]contracts.Bar, len(closes))
	for i, c := range closes {
		bars[i] = contracts.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: volume,
			Amount: c * volume,
		}
	}
	return bars
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestTechnical_FlatSeriesIsNeutral(t *testing.T) {
	tech := Technical(makeBars(constant(30, 10000), 1e6))
	require.NotNil(t, tech)

	require.NotNil(t, tech.Consolidation)
	assert.InDelta(t, 50, *tech.Consolidation, 5, "no breakout or volume signal must land near the midpoint")
	assert.InDelta(t, 50, *tech.RSI14, 0.001)
	assert.InDelta(t, 50, *tech.MAAlignment, 0.001)
	assert.InDelta(t, 1, *tech.VolumeRatio, 1e-9)
	assert.InDelta(t, 0, *tech.Breakout, 1e-9)
	assert.Nil(t, tech.MA60, "30 bars cannot produce MA60")
	assert.Nil(t, tech.MACDHist, "30 bars cannot produce MACD(12,26,9)")
}

func TestTechnical_Breakout(t *testing.T) {
	closes := append(constant(29, 100), 110)
	bars := makeBars(closes, 1e6)
	bars[len(bars)-1].Volume = 3e6

	tech := Technical(bars)
	require.NotNil(t, tech)
	assert.InDelta(t, 10, *tech.Breakout, 1e-9)
	assert.Greater(t, *tech.Consolidation, 75.0)
	assert.Greater(t, *tech.VolumeRatio, 1.0)
	assert.LessOrEqual(t, *tech.Consolidation, 100.0)
}

func TestTechnical_Uptrend(t *testing.T) {
	tech := Technical(makeBars(linear(80, 100, 1), 1e6))
	require.NotNil(t, tech)
	assert.InDelta(t, 100, *tech.MAAlignment, 0.001)
	assert.InDelta(t, 100, *tech.RSI14, 0.001, "only gains")
	require.NotNil(t, tech.MACDHist)
}

func TestTechnical_ShortHistory(t *testing.T) {
	assert.Nil(t, Technical(nil))

	tech := Technical(makeBars(constant(5, 100), 1))
	require.NotNil(t, tech)
	assert.Nil(t, tech.RSI14)
	assert.Nil(t, tech.VolumeRatio)
	assert.Nil(t, tech.Consolidation)
	assert.NotNil(t, tech.MA5)
}

func TestPerformance(t *testing.T) {
	series := linear(300, 100, 1)
	p := Performance(series)
	require.NotNil(t, p)

	assert.InDelta(t, (399.0/394.0-1)*100, *p.Return1W, 1e-9)
	assert.InDelta(t, (399.0/147.0-1)*100, *p.Return1Y, 1e-9)
	assert.Nil(t, p.Return3Y, "300 sessions cannot produce a 3-year return")
	assert.NotNil(t, p.AnnualizedReturn)

	assert.Nil(t, Performance([]float64{1}))
}

func TestRisk(t *testing.T) {
	t.Run("flat series has no volatility", func(t *testing.T) {
		r := Risk(constant(40, 100))
		require.NotNil(t, r)
		assert.InDelta(t, 0, *r.Volatility, 1e-12)
		assert.InDelta(t, 0, *r.MaxDrawdown, 1e-12)
		assert.Nil(t, r.Sharpe)
		assert.Nil(t, r.Calmar)
	})

	t.Run("drawdown", func(t *testing.T) {
		series := append(linear(20, 100, 5), linear(20, 190, -5)...)
		r := Risk(series)
		require.NotNil(t, r)
		// peak 195, trough 95
		assert.InDelta(t, (195.0-95.0)/195.0*100, *r.MaxDrawdown, 1e-9)
		assert.Greater(t, *r.Volatility, 0.0)
		require.NotNil(t, r.Sortino)
	})

	t.Run("too short", func(t *testing.T) {
		assert.Nil(t, Risk(constant(10, 1)))
	})
}

func TestFundamental(t *testing.T) {
	f := Fundamental(
		&contracts.DailyBasic{PE: contracts.Float(-3), PB: contracts.Float(1.2), MarketCap: contracts.Float(5e12)},
		&contracts.Financials{ROE: contracts.Float(20), NetMargin: contracts.Float(10), DebtRatio: contracts.Float(40)},
	)
	require.NotNil(t, f)
	assert.Nil(t, f.PE, "negative earnings drop PE")
	assert.Equal(t, 1.2, *f.PB)
	// (100 + 50 + 60) / 3
	assert.InDelta(t, 70, *f.QualityScore, 1e-9)

	assert.Nil(t, Fundamental(nil, nil))
	assert.Nil(t, Fundamental(&contracts.DailyBasic{}, nil).QualityScore)
}

func TestManager(t *testing.T) {
	asOf := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	m := Manager(&contracts.ManagerInfo{
		Since:      asOf.AddDate(-10, 0, 0),
		BestReturn: contracts.Float(50),
	}, asOf)
	require.NotNil(t, m)
	assert.InDelta(t, 10, *m.TenureYears, 0.01)
	// tenure capped at 1 * 40, best 0.5 * 40, AUM missing → renormalised over 80
	assert.InDelta(t, 75, *m.ManagerScore, 1e-9)

	assert.Nil(t, Manager(nil, asOf))
	assert.Nil(t, Manager(&contracts.ManagerInfo{}, asOf).ManagerScore)
}

func TestBuilder(t *testing.T) {
	b := NewBuilder(logger.Nop())
	date := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	stock := b.Stock(StockInput{Code: "005930", TradeDate: date, Bars: makeBars(constant(30, 100), 10)})
	assert.Equal(t, contracts.AssetStock, stock.AssetType)
	assert.NotNil(t, stock.Technical)
	assert.Nil(t, stock.Fundamental)
	assert.Nil(t, stock.Manager)

	navs := make([]contracts.NavPoint, 40)
	for i := range navs {
		navs[i] = contracts.NavPoint{Date: date.AddDate(0, 0, i-40), UnitNav: 1, AccNav: 1 + float64(i)*0.01}
	}
	fund := b.Fund(FundInput{Code: "F001", TradeDate: date, Navs: navs})
	assert.Equal(t, contracts.AssetFund, fund.AssetType)
	assert.Nil(t, fund.Technical)
	require.NotNil(t, fund.Performance)
	assert.Greater(t, *fund.Performance.Return1W, 0.0)
	assert.False(t, math.IsNaN(*fund.Risk.Volatility))
	require.NotNil(t, fund.LastPrice)
	assert.Equal(t, 1.0, *fund.LastPrice, "price is the unit NAV, not the accumulated one")
}

func TestBuilder_FundPriceFallsBackToAccNav(t *testing.T) {
	b := NewBuilder(logger.Nop())
	date := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	navs := []contracts.NavPoint{
		{Date: date.AddDate(0, 0, -1), UnitNav: 1.1, AccNav: 2.1},
		{Date: date, AccNav: 2.2},
	}
	fund := b.Fund(FundInput{Code: "F002", TradeDate: date, Navs: navs})
	require.NotNil(t, fund.LastPrice)
	assert.Equal(t, 2.2, *fund.LastPrice)

	empty := b.Fund(FundInput{Code: "F003", TradeDate: date})
	assert.Nil(t, empty.LastPrice)
}
