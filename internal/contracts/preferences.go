package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
)

// Preferences are the user's optional screening constraints. They are
// applied inside each screener (pre-filter) and again by the engine
// (post-filter + preferred-sector boost).
type Preferences struct {
	ExcludedSectors  []string `json:"excluded_sectors,omitempty"`
	PreferredSectors []string `json:"preferred_sectors,omitempty"` // 점수 가산, 제외 아님
	AllowedSectors   []string `json:"allowed_sectors,omitempty"`   // 설정 시 그 외 섹터 제외
	AvoidST          bool     `json:"avoid_st_stocks,omitempty"`

	MinROE       *float64 `json:"min_roe,omitempty"`
	MinMarketCap *float64 `json:"min_market_cap,omitempty"`
	MaxMarketCap *float64 `json:"max_market_cap,omitempty"`
	MaxPE        *float64 `json:"max_pe,omitempty"`
	MinLiquidity *float64 `json:"min_liquidity,omitempty"`

	PreferredFundTypes   []string `json:"preferred_fund_types,omitempty"` // 설정 시 그 외 유형 제외
	ExcludedFundTypes    []string `json:"excluded_fund_types,omitempty"`
	MaxDrawdownTolerance *float64 `json:"max_drawdown_tolerance,omitempty"` // 양수 %
	MinFundSize          *float64 `json:"min_fund_size,omitempty"`
}

// IsZero reports whether no constraint is set
func (p *Preferences) IsZero() bool {
	return p == nil || p.Hash() == (&Preferences{}).Hash()
}

// Hash is a stable identity of the constraint set, used in ranking cache keys
func (p *Preferences) Hash() string {
	if p == nil {
		p = &Preferences{}
	}
	norm := *p
	norm.ExcludedSectors = normalizeList(p.ExcludedSectors)
	norm.PreferredSectors = normalizeList(p.PreferredSectors)
	norm.AllowedSectors = normalizeList(p.AllowedSectors)
	norm.PreferredFundTypes = normalizeList(p.PreferredFundTypes)
	norm.ExcludedFundTypes = normalizeList(p.ExcludedFundTypes)

	// struct 사용으로 필드 순서 고정
	data, _ := json.Marshal(norm)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
