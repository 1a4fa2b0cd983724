package factorstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/pkg/config"
	"github.com/wonny/aegis-picks/pkg/database"
)

func TestPayloadRoundTrip(t *testing.T) {
	fs := &contracts.FactorSet{
		Code:        "005930",
		Technical:   &contracts.TechnicalFactors{RSI14: contracts.Float(48.2)},
		Fundamental: &contracts.FundamentalFactors{ROE: contracts.Float(9.1)},
	}

	data, err := encodePayload(fs)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "manager", "absent groups are omitted")

	var out contracts.FactorSet
	require.NoError(t, decodePayload(data, &out))
	assert.Equal(t, fs.Technical, out.Technical)
	assert.Equal(t, fs.Fundamental, out.Fundamental)
	assert.Nil(t, out.Risk)
}

func TestScoreColumn(t *testing.T) {
	assert.Equal(t, "short_score", scoreColumn(contracts.HorizonShort))
	assert.Equal(t, "long_score", scoreColumn(contracts.HorizonLong))
	assert.Equal(t, "short_score", scoreColumn("bogus"))
}

func TestRepository_Integration(t *testing.T) {
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

	repo := NewRepository(db.Pool)
	date := time.Date(1999, 1, 4, 0, 0, 0, 0, time.UTC)
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `DELETE FROM factor.asset_factors WHERE trade_date = $1`, date)
	})

	high := &contracts.FactorSet{Code: "TEST01", AssetType: contracts.AssetStock, TradeDate: date,
		Technical: &contracts.TechnicalFactors{RSI14: contracts.Float(60)}}
	high.SetScore(contracts.HorizonShort, 80)
	low := &contracts.FactorSet{Code: "TEST02", AssetType: contracts.AssetStock, TradeDate: date}
	low.SetScore(contracts.HorizonShort, 20)

	require.NoError(t, repo.UpsertFactors(ctx, []*contracts.FactorSet{high, low}))

	got, err := repo.GetFactors(ctx, "TEST01", date)
	require.NoError(t, err)
	assert.Equal(t, 60.0, *got.Technical.RSI14)

	_, err = repo.GetFactors(ctx, "NOPE", date)
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	batch, err := repo.GetFactorsBatch(ctx, []string{"TEST01", "TEST02", "NOPE"}, date)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	top, err := repo.GetTopByScore(ctx, date, contracts.AssetStock, contracts.HorizonShort, 10, 50)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "TEST01", top[0].Code)
}
