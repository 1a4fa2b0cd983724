package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-picks/internal/contracts"
)

// Repository persists recommendation audit records
// ⭐ SSOT: 추천 기록 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new recommendation repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertRecommendation stores one record and fills its ID and CreatedAt
func (r *Repository) InsertRecommendation(ctx context.Context, rec *contracts.RecommendationRecord) error {
	query := `
		INSERT INTO reco.recommendation_records (
			run_id, asset_code, asset_name, asset_type, rec_type, rec_date,
			rec_rank, rec_score, target_return_pct, stop_loss_pct, entry_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		rec.RunID, rec.Code, rec.Name, string(rec.AssetType), string(rec.RecType), rec.RecDate,
		rec.Rank, rec.Score, rec.TargetReturnPct, rec.StopLossPct, rec.EntryPrice,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert recommendation %s: %w", rec.Code, err)
	}
	return nil
}

// ListByDate returns the records of one recommendation date, best rank first
func (r *Repository) ListByDate(ctx context.Context, date time.Time) ([]contracts.RecommendationRecord, error) {
	query := `
		SELECT id, run_id::text, asset_code, asset_name, asset_type, rec_type, rec_date,
		       rec_rank, rec_score, target_return_pct, stop_loss_pct, entry_price,
		       realized_return, created_at
		FROM reco.recommendation_records
		WHERE rec_date = $1
		ORDER BY rec_type, asset_type, rec_rank
	`

	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.RecommendationRecord, 0)
	for rows.Next() {
		var rec contracts.RecommendationRecord
		var assetType, recType string
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.Code, &rec.Name, &assetType, &recType, &rec.RecDate,
			&rec.Rank, &rec.Score, &rec.TargetReturnPct, &rec.StopLossPct, &rec.EntryPrice,
			&rec.RealizedReturn, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		rec.AssetType = contracts.AssetType(assetType)
		rec.RecType = contracts.Horizon(recType)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateRealizedReturn records the outcome of a recommendation
func (r *Repository) UpdateRealizedReturn(ctx context.Context, id int64, realized float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reco.recommendation_records SET realized_return = $2 WHERE id = $1`, id, realized)
	if err != nil {
		return fmt.Errorf("failed to update realized return: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// PerformanceStats aggregates outcomes of the last days per rec_type and asset_type.
// A record counts as a hit when its realized return reached the target.
func (r *Repository) PerformanceStats(ctx context.Context, days int) ([]contracts.PerformanceStats, error) {
	query := `
		SELECT rec_type, asset_type,
		       COUNT(*)                                                        AS total,
		       COUNT(realized_return)                                          AS evaluated,
		       COUNT(*) FILTER (WHERE realized_return >= target_return_pct)    AS hits,
		       COALESCE(AVG(realized_return), 0)                               AS avg_return,
		       COUNT(*) FILTER (WHERE realized_return <= stop_loss_pct)        AS stopped
		FROM reco.recommendation_records
		WHERE rec_date >= CURRENT_DATE - $1::int
		GROUP BY rec_type, asset_type
		ORDER BY rec_type, asset_type
	`

	rows, err := r.pool.Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance stats: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.PerformanceStats, error) {
		var (
			s              contracts.PerformanceStats
			recType, asset string
			hits, stopped  int
		)
		if err := row.Scan(&recType, &asset, &s.Total, &s.Evaluated, &hits, &s.AvgReturn, &stopped); err != nil {
			return s, err
		}
		s.RecType = contracts.Horizon(recType)
		s.AssetType = contracts.AssetType(asset)
		s.HitRate = ratio(hits, s.Evaluated)
		s.StopLossHitPct = ratio(stopped, s.Evaluated) * 100
		return s, nil
	})
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
