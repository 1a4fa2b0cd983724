package pgsource

import (
	"context"
	"fmt"
	"time"
)

// Breadth is the advance/decline picture of one session
type Breadth struct {
	Date      time.Time
	Total     int
	Advancers int
	Decliners int
	AvgReturn float64 // %
}

// String renders the one-line market context
func (b Breadth) String() string {
	return fmt.Sprintf("%s: %d stocks, %d up / %d down, avg %+.2f%%",
		b.Date.Format("2006-01-02"), b.Total, b.Advancers, b.Decliners, b.AvgReturn)
}

// Summary implements contracts.MarketContext with market breadth against the
// previous session
func (s *Source) Summary(ctx context.Context, date time.Time) (string, error) {
	query := `
		WITH today AS (
			SELECT code, close FROM market.daily_bars WHERE trade_date = $1
		),
		prev AS (
			SELECT DISTINCT ON (code) code, close
			FROM market.daily_bars
			WHERE trade_date < $1 AND trade_date >= $1::date - 10
			ORDER BY code, trade_date DESC
		)
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE t.close > p.close),
			COUNT(*) FILTER (WHERE t.close < p.close),
			COALESCE(AVG((t.close / p.close - 1) * 100), 0)
		FROM today t
		JOIN prev p USING (code)
		WHERE p.close > 0
	`

	b := Breadth{Date: date}
	if err := s.pool.QueryRow(ctx, query, date).Scan(&b.Total, &b.Advancers, &b.Decliners, &b.AvgReturn); err != nil {
		return "", fmt.Errorf("failed to query market breadth: %w", err)
	}
	if b.Total == 0 {
		return "", fmt.Errorf("no market data for %s", date.Format("2006-01-02"))
	}
	return b.String(), nil
}
