// Package pgsource reads locally collected market data from PostgreSQL
// (market.* tables). It implements the stock, fund and market-context
// sources so the pipeline can run against a database snapshot.
package pgsource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-picks/internal/contracts"
)

// Source implements contracts.StockSource, contracts.FundSource and
// contracts.MarketContext
// ⭐ SSOT: 로컬 시장 데이터 조회는 여기서만
type Source struct {
	pool *pgxpool.Pool
}

// New creates a new pg-backed source
func New(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool}
}

// ListStocks returns active stocks
func (s *Source) ListStocks(ctx context.Context) ([]contracts.StockInfo, error) {
	query := `
		SELECT code, name, sector, is_st
		FROM market.stocks
		WHERE is_active = TRUE
		ORDER BY code
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	var stocks []contracts.StockInfo
	for rows.Next() {
		var st contracts.StockInfo
		if err := rows.Scan(&st.Code, &st.Name, &st.Sector, &st.IsST); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, st)
	}
	return stocks, rows.Err()
}

// DailyBars returns up to days bars ending at end, ascending by date
func (s *Source) DailyBars(ctx context.Context, code string, end time.Time, days int) ([]contracts.Bar, error) {
	query := `
		SELECT trade_date, open, high, low, close, volume, amount
		FROM market.daily_bars
		WHERE code = $1 AND trade_date <= $2
		ORDER BY trade_date DESC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, code, end, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars %s: %w", code, err)
	}
	defer rows.Close()

	var bars []contracts.Bar
	for rows.Next() {
		var b contracts.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverse(bars)
	return bars, nil
}

// DailyBasic returns the valuation snapshot of every stock on date
func (s *Source) DailyBasic(ctx context.Context, date time.Time) (map[string]contracts.DailyBasic, error) {
	query := `
		SELECT code, market_cap, pe, pb, turnover_rate
		FROM market.daily_basic
		WHERE trade_date = $1
	`

	rows, err := s.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily basic: %w", err)
	}
	defer rows.Close()

	out := make(map[string]contracts.DailyBasic)
	for rows.Next() {
		var b contracts.DailyBasic
		if err := rows.Scan(&b.Code, &b.MarketCap, &b.PE, &b.PB, &b.TurnoverRate); err != nil {
			return nil, fmt.Errorf("failed to scan daily basic: %w", err)
		}
		out[b.Code] = b
	}
	return out, rows.Err()
}

// Financials returns the latest report on or before asOf, nil when none exists
func (s *Source) Financials(ctx context.Context, code string, asOf time.Time) (*contracts.Financials, error) {
	query := `
		SELECT code, report_date, roe, gross_margin, net_margin, debt_ratio, revenue_yoy, profit_yoy
		FROM market.financials
		WHERE code = $1 AND report_date <= $2
		ORDER BY report_date DESC
		LIMIT 1
	`

	var f contracts.Financials
	err := s.pool.QueryRow(ctx, query, code, asOf).Scan(
		&f.Code, &f.ReportDate, &f.ROE, &f.GrossMargin, &f.NetMargin, &f.DebtRatio, &f.RevenueYoY, &f.ProfitYoY,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get financials %s: %w", code, err)
	}
	return &f, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
