package factors

import (
	"time"

	"github.com/wonny/aegis-picks/internal/contracts"
)

// Manager computes fund manager signals as of asOf
func Manager(info *contracts.ManagerInfo, asOf time.Time) *contracts.ManagerFactors {
	if info == nil {
		return nil
	}

	m := &contracts.ManagerFactors{
		AUMBillion: info.AUMBillion,
		BestReturn: info.BestReturn,
	}
	if !info.Since.IsZero() && info.Since.Before(asOf) {
		m.TenureYears = contracts.Float(asOf.Sub(info.Since).Hours() / 24 / 365.25)
	}

	// 경력 40 / 최고수익 40 / 운용규모 20, 없는 항목은 제외 후 재정규화
	var weighted, weights float64
	if m.TenureYears != nil {
		weighted += clamp(*m.TenureYears/5, 0, 1) * 40
		weights += 40
	}
	if m.BestReturn != nil {
		weighted += clamp(*m.BestReturn/100, 0, 1) * 40
		weights += 40
	}
	if m.AUMBillion != nil {
		weighted += clamp(*m.AUMBillion/100, 0, 1) * 20
		weights += 20
	}
	if weights > 0 {
		m.ManagerScore = contracts.Float(weighted / weights * 100)
	}
	return m
}
