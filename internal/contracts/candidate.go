package contracts

// Candidate is one asset moving through a screening run. It lives for the
// duration of the run unless it is selected into a RecommendationRecord.
type Candidate struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	AssetType AssetType `json:"asset_type"`

	// stock attributes
	Sector    string   `json:"sector,omitempty"`
	IsST      bool     `json:"is_st,omitempty"`
	MarketCap *float64 `json:"market_cap,omitempty"`
	PE        *float64 `json:"pe,omitempty"`
	Liquidity *float64 `json:"liquidity,omitempty"` // 20일 평균 거래대금

	// fund attributes
	FundType string   `json:"fund_type,omitempty"`
	FundSize *float64 `json:"fund_size,omitempty"` // 억원

	Price   float64    `json:"price"` // 최근 종가 / 기준가
	Factors *FactorSet `json:"factors,omitempty"`

	Score     float64 `json:"score"` // 0~100, 같은 실행 내에서만 비교 가능
	Rank      int     `json:"rank"`
	Rationale string  `json:"rationale,omitempty"`

	TargetReturnPct float64 `json:"target_return_pct"`
	StopLossPct     float64 `json:"stop_loss_pct"`
}

// Clone copies the candidate and its factor groups
func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	out := *c
	out.Factors = c.Factors.Clone()
	return &out
}

// CloneCandidates copies a candidate list
func CloneCandidates(in []*Candidate) []*Candidate {
	out := make([]*Candidate, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
