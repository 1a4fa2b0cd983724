package strategyconfig

import (
	"fmt"
	"math"
	"sort"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var screenerKeys = map[string]bool{StockShort: true, StockLong: true, FundShort: true, FundLong: true}

// Validate checks all required constraints
// metric 이름 검증은 screener.OverrideWeights 에서 수행
func Validate(cfg *Config) error {
	if cfg.Meta.ProfileID == "" {
		return ValidationError{"meta.profile_id", "required"}
	}

	for _, key := range sortedKeys(cfg.Screeners) {
		if !screenerKeys[key] {
			return ValidationError{"screeners." + key, "unknown screener"}
		}
		p := cfg.Screeners[key]
		if p.Limit < 0 {
			return ValidationError{"screeners." + key + ".limit", "must be >= 0"}
		}
		if err := validateWeights("screeners."+key+".weights_pct", p.WeightsPct); err != nil {
			return err
		}
	}

	for _, key := range sortedKeys(cfg.Targets) {
		if key != HorizonShort && key != HorizonLong {
			return ValidationError{"targets." + key, "unknown horizon"}
		}
		r := cfg.Targets[key]
		if r.ScorePct < 0 {
			return ValidationError{"targets." + key + ".score_pct", "must be >= 0"}
		}
		if r.StopLossPct >= 0 {
			return ValidationError{"targets." + key + ".stop_loss_pct", "must be < 0"}
		}
	}

	if cfg.Collector.PoolSize < 0 {
		return ValidationError{"collector.pool_size", "must be >= 0"}
	}
	return nil
}

func validateWeights(field string, w map[string]float64) error {
	if len(w) == 0 {
		return nil
	}
	sum := 0.0
	for _, name := range sortedKeys(w) {
		if w[name] < 0 {
			return ValidationError{field + "." + name, "must be >= 0"}
		}
		sum += w[name]
	}
	// 부동소수 오차 허용
	if math.Abs(sum-100) > 0.01 {
		return ValidationError{field, fmt.Sprintf("must sum to 100, got %.2f", sum)}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
