// Package factorstore persists factor sets in PostgreSQL (factor.asset_factors).
package factorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-picks/internal/contracts"
)

// Repository implements contracts.FactorStore
// ⭐ SSOT: 팩터 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new factor repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// payload is the JSONB column content: every factor group of the set
type payload struct {
	LastPrice   *float64                      `json:"last_price,omitempty"`
	Technical   *contracts.TechnicalFactors   `json:"technical,omitempty"`
	Fundamental *contracts.FundamentalFactors `json:"fundamental,omitempty"`
	Risk        *contracts.RiskFactors        `json:"risk,omitempty"`
	Performance *contracts.PerformanceFactors `json:"performance,omitempty"`
	Manager     *contracts.ManagerFactors     `json:"manager,omitempty"`
}

func encodePayload(fs *contracts.FactorSet) ([]byte, error) {
	return json.Marshal(payload{
		LastPrice:   fs.LastPrice,
		Technical:   fs.Technical,
		Fundamental: fs.Fundamental,
		Risk:        fs.Risk,
		Performance: fs.Performance,
		Manager:     fs.Manager,
	})
}

func decodePayload(data []byte, fs *contracts.FactorSet) error {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	fs.LastPrice = p.LastPrice
	fs.Technical = p.Technical
	fs.Fundamental = p.Fundamental
	fs.Risk = p.Risk
	fs.Performance = p.Performance
	fs.Manager = p.Manager
	return nil
}

const selectColumns = `
	SELECT asset_code, trade_date, asset_type, factors, short_score, long_score, computed_at
	FROM factor.asset_factors
`

// UpsertFactors writes all sets in one batch; an existing (code, date) row is overwritten
func (r *Repository) UpsertFactors(ctx context.Context, sets []*contracts.FactorSet) error {
	if len(sets) == 0 {
		return nil
	}

	query := `
		INSERT INTO factor.asset_factors (
			asset_code, trade_date, asset_type, factors, short_score, long_score, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (asset_code, trade_date) DO UPDATE SET
			asset_type = EXCLUDED.asset_type,
			factors = EXCLUDED.factors,
			short_score = COALESCE(EXCLUDED.short_score, factor.asset_factors.short_score),
			long_score = COALESCE(EXCLUDED.long_score, factor.asset_factors.long_score),
			computed_at = EXCLUDED.computed_at
	`

	batch := &pgx.Batch{}
	for _, fs := range sets {
		data, err := encodePayload(fs)
		if err != nil {
			return fmt.Errorf("failed to marshal factors %s: %w", fs.Code, err)
		}
		computedAt := fs.ComputedAt
		if computedAt.IsZero() {
			computedAt = time.Now()
		}
		batch.Queue(query, fs.Code, fs.TradeDate, string(fs.AssetType), data, fs.Scores.Short, fs.Scores.Long, computedAt)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range sets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert factors %s: %w", sets[i].Code, err)
		}
	}
	return nil
}

// GetFactors returns contracts.ErrNotFound when the row does not exist
func (r *Repository) GetFactors(ctx context.Context, code string, date time.Time) (*contracts.FactorSet, error) {
	row := r.pool.QueryRow(ctx, selectColumns+` WHERE asset_code = $1 AND trade_date = $2`, code, date)

	fs, err := scanFactorSet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get factors %s: %w", code, err)
	}
	return fs, nil
}

// GetFactorsBatch returns the rows that exist for codes on date
func (r *Repository) GetFactorsBatch(ctx context.Context, codes []string, date time.Time) (map[string]*contracts.FactorSet, error) {
	out := make(map[string]*contracts.FactorSet, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, selectColumns+` WHERE asset_code = ANY($1) AND trade_date = $2`, codes, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query factors batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		fs, err := scanFactorSet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan factors: %w", err)
		}
		out[fs.Code] = fs
	}
	return out, rows.Err()
}

// GetTopByScore returns the best scored sets of one asset type on date
func (r *Repository) GetTopByScore(ctx context.Context, date time.Time, asset contracts.AssetType, h contracts.Horizon, limit int, minScore float64) ([]*contracts.FactorSet, error) {
	column := scoreColumn(h)
	query := selectColumns + fmt.Sprintf(`
		WHERE trade_date = $1 AND asset_type = $2 AND %[1]s IS NOT NULL AND %[1]s >= $3
		ORDER BY %[1]s DESC, asset_code ASC
		LIMIT $4
	`, column)

	rows, err := r.pool.Query(ctx, query, date, string(asset), minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top factors: %w", err)
	}
	defer rows.Close()

	var sets []*contracts.FactorSet
	for rows.Next() {
		fs, err := scanFactorSet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan factors: %w", err)
		}
		sets = append(sets, fs)
	}
	return sets, rows.Err()
}

// scoreColumn maps a horizon onto a fixed column name (never user input)
func scoreColumn(h contracts.Horizon) string {
	if h == contracts.HorizonLong {
		return "long_score"
	}
	return "short_score"
}

func scanFactorSet(row pgx.Row) (*contracts.FactorSet, error) {
	var (
		fs        contracts.FactorSet
		assetType string
		data      []byte
	)
	if err := row.Scan(&fs.Code, &fs.TradeDate, &assetType, &data, &fs.Scores.Short, &fs.Scores.Long, &fs.ComputedAt); err != nil {
		return nil, err
	}
	fs.AssetType = contracts.AssetType(assetType)
	if err := decodePayload(data, &fs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal factors %s: %w", fs.Code, err)
	}
	return &fs, nil
}
