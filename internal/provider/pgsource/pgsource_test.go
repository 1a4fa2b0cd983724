package pgsource

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-picks/pkg/config"
	"github.com/wonny/aegis-picks/pkg/database"
)

func TestReverse(t *testing.T) {
	s := []int{1, 2, 3, 4}
	reverse(s)
	assert.Equal(t, []int{4, 3, 2, 1}, s)

	var empty []int
	assert.NotPanics(t, func() { reverse(empty) })
}

func TestBreadthString(t *testing.T) {
	b := Breadth{
		Date:      time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		Total:     2400,
		Advancers: 1300,
		Decliners: 1000,
		AvgReturn: 0.314,
	}
	assert.Equal(t, "2026-10-16: 2400 stocks, 1300 up / 1000 down, avg +0.31%", b.String())
}

func TestSource_Integration(t *testing.T) {
	if testing.Short() || os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cfg, err := config.Load()
	require.NoError(t, err)
	db, err := database.New(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	src := New(db.Pool)
	end := time.Date(1999, 1, 29, 0, 0, 0, 0, time.UTC)

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO market.daily_bars (code, trade_date, open, high, low, close, volume, amount)
		VALUES ('ZZTEST', '1999-01-27', 1, 1, 1, 1, 10, 10),
		       ('ZZTEST', '1999-01-28', 1, 1, 1, 2, 10, 20)
		ON CONFLICT DO NOTHING`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `DELETE FROM market.daily_bars WHERE code = 'ZZTEST'`)
	})

	bars, err := src.DailyBars(ctx, "ZZTEST", end, 10)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Date.Before(bars[1].Date), "bars are ascending")

	fin, err := src.Financials(ctx, "ZZTEST", end)
	require.NoError(t, err)
	assert.Nil(t, fin)
}
