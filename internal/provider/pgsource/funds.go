package pgsource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/aegis-picks/internal/contracts"
)

// ListFunds returns active funds
func (s *Source) ListFunds(ctx context.Context) ([]contracts.FundInfo, error) {
	query := `
		SELECT code, name, fund_type, size_billion
		FROM market.funds
		WHERE is_active = TRUE
		ORDER BY code
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query funds: %w", err)
	}
	defer rows.Close()

	var funds []contracts.FundInfo
	for rows.Next() {
		var f contracts.FundInfo
		if err := rows.Scan(&f.Code, &f.Name, &f.FundType, &f.SizeBillion); err != nil {
			return nil, fmt.Errorf("failed to scan fund: %w", err)
		}
		funds = append(funds, f)
	}
	return funds, rows.Err()
}

// NavHistory returns up to days NAV points ending at end, ascending by date
func (s *Source) NavHistory(ctx context.Context, code string, end time.Time, days int) ([]contracts.NavPoint, error) {
	query := `
		SELECT nav_date, unit_nav, acc_nav
		FROM market.fund_nav
		WHERE code = $1 AND nav_date <= $2
		ORDER BY nav_date DESC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, code, end, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query nav %s: %w", code, err)
	}
	defer rows.Close()

	var navs []contracts.NavPoint
	for rows.Next() {
		var p contracts.NavPoint
		if err := rows.Scan(&p.Date, &p.UnitNav, &p.AccNav); err != nil {
			return nil, fmt.Errorf("failed to scan nav: %w", err)
		}
		navs = append(navs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverse(navs)
	return navs, nil
}

// Manager returns the fund's current manager, nil when unknown
func (s *Source) Manager(ctx context.Context, code string) (*contracts.ManagerInfo, error) {
	query := `
		SELECT code, manager, manager_since, manager_aum, manager_best
		FROM market.funds
		WHERE code = $1
	`

	var (
		m     contracts.ManagerInfo
		since *time.Time
	)
	err := s.pool.QueryRow(ctx, query, code).Scan(&m.FundCode, &m.Name, &since, &m.AUMBillion, &m.BestReturn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manager %s: %w", code, err)
	}
	if m.Name == "" {
		return nil, nil
	}
	if since != nil {
		m.Since = *since
	}
	return &m, nil
}
