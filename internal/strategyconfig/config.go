package strategyconfig

// Config is a screening profile loaded from YAML.
// 모든 필드는 선택 사항이며 비어 있으면 코드 기본값을 사용
// ⭐ SSOT: 가중치/목표수익률 튜닝은 이 파일로만
type Config struct {
	Meta      Meta                       `yaml:"meta" json:"meta"`
	Screeners map[string]ScreenerProfile `yaml:"screeners" json:"screeners"`
	Targets   map[string]TargetRule      `yaml:"targets" json:"targets"`
	Collector Collector                  `yaml:"collector" json:"collector"`
}

// Meta identifies the profile
type Meta struct {
	ProfileID   string `yaml:"profile_id" json:"profile_id"`
	Description string `yaml:"description" json:"description"`
}

// ScreenerProfile overrides one screener variant
type ScreenerProfile struct {
	WeightsPct map[string]float64 `yaml:"weights_pct" json:"weights_pct"` // metric → %, 합계 100
	Limit      int                `yaml:"limit" json:"limit"`             // 0 = 기본값
}

// TargetRule overrides target/stop percent for a horizon
type TargetRule struct {
	BasePct     float64 `yaml:"base_pct" json:"base_pct"`
	ScorePct    float64 `yaml:"score_pct" json:"score_pct"`
	StopLossPct float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
}

// Collector overrides the factor collection pool
type Collector struct {
	PoolSize int `yaml:"pool_size" json:"pool_size"` // 0 = RECOMMEND_CONCURRENCY
}

// Screener variant keys
const (
	StockShort = "stock_short"
	StockLong  = "stock_long"
	FundShort  = "fund_short"
	FundLong   = "fund_long"
)

// Horizon keys for Targets
const (
	HorizonShort = "short"
	HorizonLong  = "long"
)

// Screener returns the profile for key (zero value when absent)
func (c *Config) Screener(key string) ScreenerProfile {
	if c == nil {
		return ScreenerProfile{}
	}
	return c.Screeners[key]
}
