package contracts

import "time"

// RecommendationRecord is one persisted recommendation, kept for later
// performance auditing
type RecommendationRecord struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	AssetType       AssetType `json:"asset_type"`
	RecType         Horizon   `json:"rec_type"`
	RecDate         time.Time `json:"rec_date"`
	Rank            int       `json:"rank"`
	Score           float64   `json:"score"`
	TargetReturnPct float64   `json:"target_return_pct"`
	StopLossPct     float64   `json:"stop_loss_pct"`
	EntryPrice      *float64  `json:"entry_price,omitempty"`
	RealizedReturn  *float64  `json:"realized_return,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// PerformanceStats summarises realised outcomes per recommendation type
type PerformanceStats struct {
	RecType        Horizon   `json:"rec_type"`
	AssetType      AssetType `json:"asset_type"`
	Total          int       `json:"total"`
	Evaluated      int       `json:"evaluated"` // realized_return 기록된 건수
	HitRate        float64   `json:"hit_rate"`  // realized >= target 비율
	AvgReturn      float64   `json:"avg_return"`
	StopLossHitPct float64   `json:"stop_loss_hit_pct"`
}
