package tradedate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utcDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLatestTradeDate(t *testing.T) {
	cal, err := New("Asia/Shanghai", "15:00", []string{"2026-10-01", "2026-10-02", "2026-10-05"})
	require.NoError(t, err)
	sh, _ := time.LoadLocation("Asia/Shanghai")

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"after close", time.Date(2026, 10, 16, 15, 30, 0, 0, sh), utcDate(2026, 10, 16)},
		{"exactly at close", time.Date(2026, 10, 16, 15, 0, 0, 0, sh), utcDate(2026, 10, 16)},
		{"before close uses previous session", time.Date(2026, 10, 16, 10, 0, 0, 0, sh), utcDate(2026, 10, 15)},
		{"monday morning rolls back to friday", time.Date(2026, 10, 19, 9, 0, 0, 0, sh), utcDate(2026, 10, 16)},
		{"saturday", time.Date(2026, 10, 17, 20, 0, 0, 0, sh), utcDate(2026, 10, 16)},
		{"holiday run skipped", time.Date(2026, 10, 5, 18, 0, 0, 0, sh), utcDate(2026, 9, 30)},
		{"utc input converted to market time", time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC), utcDate(2026, 10, 16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.LatestTradeDate(tt.now))
		})
	}
}

func TestIsTradingDay(t *testing.T) {
	cal, err := New("Asia/Shanghai", "15:00", []string{"2026-10-01"})
	require.NoError(t, err)

	assert.True(t, cal.IsTradingDay(utcDate(2026, 10, 16)))
	assert.False(t, cal.IsTradingDay(utcDate(2026, 10, 17)), "saturday")
	assert.False(t, cal.IsTradingDay(utcDate(2026, 10, 18)), "sunday")
	assert.False(t, cal.IsTradingDay(utcDate(2026, 10, 1)), "holiday")
}

func TestPreviousTradeDate(t *testing.T) {
	cal, err := New("Asia/Shanghai", "15:00", nil)
	require.NoError(t, err)
	assert.Equal(t, utcDate(2026, 10, 16), cal.PreviousTradeDate(utcDate(2026, 10, 19)))
}

func TestNew_InvalidInput(t *testing.T) {
	_, err := New("Mars/Olympus", "15:00", nil)
	assert.Error(t, err)

	_, err = New("UTC", "3pm", nil)
	assert.Error(t, err)

	_, err = New("UTC", "15:00", []string{"2026/10/01"})
	assert.Error(t, err)
}
