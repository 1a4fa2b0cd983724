// Package tradedate resolves trading dates: weekends and configured holidays
// are closed, and a session only counts once the market has closed.
package tradedate

import (
	"fmt"
	"time"
	_ "time/tzdata" // 컨테이너에 zoneinfo 없을 때 대비
)

const dateLayout = "2006-01-02"

// maxLookback bounds the walk back over closed days
const maxLookback = 30

// Calendar implements contracts.Calendar for one exchange
// ⭐ SSOT: 거래일 판단은 여기서만
type Calendar struct {
	loc      *time.Location
	closeAt  time.Duration // 자정 기준 장 마감 시각
	holidays map[string]struct{}
}

// New creates a calendar. timezone is an IANA name, closeAt is "HH:MM"
// market-local, holidays are "YYYY-MM-DD" dates.
func New(timezone, closeAt string, holidays []string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid market timezone %q: %w", timezone, err)
	}

	t, err := time.Parse("15:04", closeAt)
	if err != nil {
		return nil, fmt.Errorf("invalid market close %q: %w", closeAt, err)
	}

	c := &Calendar{
		loc:      loc,
		closeAt:  time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute,
		holidays: make(map[string]struct{}, len(holidays)),
	}
	for _, h := range holidays {
		d, err := time.Parse(dateLayout, h)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		c.holidays[d.Format(dateLayout)] = struct{}{}
	}
	return c, nil
}

// IsTradingDay reports whether the market is open on d's calendar date.
// The date is read as given, without converting time zones.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, closed := c.holidays[d.Format(dateLayout)]
	return !closed
}

// LatestTradeDate returns the most recent session that has closed at now,
// as midnight UTC of that market-local date
func (c *Calendar) LatestTradeDate(now time.Time) time.Time {
	local := now.In(c.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)

	// 장 마감 전이면 오늘 세션은 아직 미완료
	if local.Sub(day) < c.closeAt {
		day = day.AddDate(0, 0, -1)
	}
	for i := 0; i < maxLookback && !c.IsTradingDay(day); i++ {
		day = day.AddDate(0, 0, -1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// PreviousTradeDate returns the session before d
func (c *Calendar) PreviousTradeDate(d time.Time) time.Time {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc).AddDate(0, 0, -1)
	for i := 0; i < maxLookback && !c.IsTradingDay(day); i++ {
		day = day.AddDate(0, 0, -1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}
