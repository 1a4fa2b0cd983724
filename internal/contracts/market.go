package contracts

import "time"

// Bar is one daily OHLCV bar
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Amount float64   `json:"amount"` // 거래대금
}

// StockInfo is a listed stock in the universe
type StockInfo struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Sector string `json:"sector"`
	IsST   bool   `json:"is_st"`
}

// DailyBasic is the per-day valuation snapshot of a stock
type DailyBasic struct {
	Code         string   `json:"code"`
	MarketCap    *float64 `json:"market_cap,omitempty"`
	PE           *float64 `json:"pe,omitempty"`
	PB           *float64 `json:"pb,omitempty"`
	TurnoverRate *float64 `json:"turnover_rate,omitempty"`
}

// Financials is the latest reported financial summary of a stock
type Financials struct {
	Code        string    `json:"code"`
	ReportDate  time.Time `json:"report_date"`
	ROE         *float64  `json:"roe,omitempty"`
	GrossMargin *float64  `json:"gross_margin,omitempty"`
	NetMargin   *float64  `json:"net_margin,omitempty"`
	DebtRatio   *float64  `json:"debt_ratio,omitempty"`
	RevenueYoY  *float64  `json:"revenue_yoy,omitempty"`
	ProfitYoY   *float64  `json:"profit_yoy,omitempty"`
}

// FundInfo is a fund in the universe
type FundInfo struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	FundType    string   `json:"fund_type"`
	SizeBillion *float64 `json:"size_billion,omitempty"`
}

// NavPoint is one daily net asset value
type NavPoint struct {
	Date    time.Time `json:"date"`
	UnitNav float64   `json:"unit_nav"`
	AccNav  float64   `json:"acc_nav"` // 누적 기준가 (분배금 재투자)
}

// ManagerInfo describes the current manager of a fund
type ManagerInfo struct {
	FundCode   string    `json:"fund_code"`
	Name       string    `json:"name"`
	Since      time.Time `json:"since"`
	AUMBillion *float64  `json:"aum_billion,omitempty"`
	BestReturn *float64  `json:"best_return,omitempty"`
}
