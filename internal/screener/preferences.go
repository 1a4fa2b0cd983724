package screener

import (
	"strings"

	"github.com/wonny/aegis-picks/internal/contracts"
)

// Rejection reasons, also used as log/metric labels
const (
	ReasonST              = "st_stock"
	ReasonExcludedSector  = "excluded_sector"
	ReasonSectorNotInList = "sector_not_allowed"
	ReasonMarketCap       = "market_cap"
	ReasonPE              = "pe"
	ReasonLiquidity       = "liquidity"
	ReasonROE             = "roe"
	ReasonFundType        = "fund_type"
	ReasonDrawdown        = "drawdown"
	ReasonFundSize        = "fund_size"
)

// Check applies the preference rules of the candidate's asset type.
// It returns "" when the candidate passes, otherwise the rejection reason.
// A missing numeric value never rejects; only a known value outside a bound does.
// ⭐ SSOT: 사용자 선호 필터는 여기서만 (스크리너 내부 + 엔진 2차 필터 공용)
func Check(c *contracts.Candidate, p *contracts.Preferences) string {
	if c.AssetType == contracts.AssetFund {
		return CheckFund(c, p)
	}
	return CheckStock(c, p)
}

// CheckStock applies ST, sector, market cap, PE, liquidity and ROE rules
func CheckStock(c *contracts.Candidate, p *contracts.Preferences) string {
	if p == nil {
		return ""
	}

	if p.AvoidST && c.IsST {
		return ReasonST
	}
	if containsFold(p.ExcludedSectors, c.Sector) {
		return ReasonExcludedSector
	}
	if len(p.AllowedSectors) > 0 && !containsFold(p.AllowedSectors, c.Sector) {
		return ReasonSectorNotInList
	}

	if c.MarketCap != nil {
		if p.MinMarketCap != nil && *c.MarketCap < *p.MinMarketCap {
			return ReasonMarketCap
		}
		if p.MaxMarketCap != nil && *c.MarketCap > *p.MaxMarketCap {
			return ReasonMarketCap
		}
	}

	// 적자 기업(PE <= 0)은 PE 상한을 충족하지 못함
	if p.MaxPE != nil && c.PE != nil && (*c.PE <= 0 || *c.PE > *p.MaxPE) {
		return ReasonPE
	}

	if p.MinLiquidity != nil && c.Liquidity != nil && *c.Liquidity < *p.MinLiquidity {
		return ReasonLiquidity
	}

	if roe := c.Factors.ROE(); p.MinROE != nil && roe != nil && *roe < *p.MinROE {
		return ReasonROE
	}

	return ""
}

// CheckFund applies fund type, drawdown tolerance and fund size rules
func CheckFund(c *contracts.Candidate, p *contracts.Preferences) string {
	if p == nil {
		return ""
	}

	if containsFold(p.ExcludedFundTypes, c.FundType) {
		return ReasonFundType
	}
	if len(p.PreferredFundTypes) > 0 && !containsFold(p.PreferredFundTypes, c.FundType) {
		return ReasonFundType
	}

	if mdd := c.Factors.MaxDrawdown(); p.MaxDrawdownTolerance != nil && mdd != nil && *mdd > *p.MaxDrawdownTolerance {
		return ReasonDrawdown
	}

	if p.MinFundSize != nil && c.FundSize != nil && *c.FundSize < *p.MinFundSize {
		return ReasonFundSize
	}

	return ""
}

// FilterCandidates keeps the candidates passing Check and counts rejections by reason
func FilterCandidates(candidates []*contracts.Candidate, p *contracts.Preferences) ([]*contracts.Candidate, map[string]int) {
	rejected := make(map[string]int)
	if p.IsZero() {
		return candidates, rejected
	}

	passed := make([]*contracts.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if reason := Check(c, p); reason != "" {
			rejected[reason]++
			continue
		}
		passed = append(passed, c)
	}
	return passed, rejected
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
