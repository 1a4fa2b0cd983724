package ratelimit

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// TierLevel is the per-window call quota granted from MinPoints upward
type TierLevel struct {
	MinPoints int `yaml:"min_points" json:"min_points"`
	Limit     int `yaml:"limit" json:"limit"`
}

// TierTable maps subscription points to quotas and carries the
// per-interface special caps. Read once at startup.
type TierTable struct {
	Window     time.Duration  `yaml:"window" json:"window"`
	Tiers      []TierLevel    `yaml:"tiers" json:"tiers"`
	Interfaces map[string]int `yaml:"interfaces" json:"interfaces"`
}

// DefaultTierTable is used when no rate-limit file is configured
func DefaultTierTable() TierTable {
	return TierTable{
		Window: time.Minute,
		Tiers: []TierLevel{
			{MinPoints: 120, Limit: 50},
			{MinPoints: 2000, Limit: 200},
			{MinPoints: 5000, Limit: 500},
			{MinPoints: 10000, Limit: 1000},
		},
		Interfaces: map[string]int{
			"financials":   100,
			"fund_nav":     100,
			"fund_manager": 60,
			"index_daily":  120,
		},
	}
}

// LoadTierTable reads a YAML tier table. An empty path returns the defaults.
// 알 수 없는 필드는 즉시 실패 (KnownFields)
func LoadTierTable(path string) (TierTable, error) {
	if path == "" {
		return DefaultTierTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return TierTable{}, fmt.Errorf("read rate limit file: %w", err)
	}
	return ParseTierTable(data)
}

// ParseTierTable decodes and validates a YAML tier table
func ParseTierTable(data []byte) (TierTable, error) {
	var table TierTable
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&table); err != nil {
		return TierTable{}, fmt.Errorf("decode rate limit file: %w", err)
	}

	if table.Window == 0 {
		table.Window = time.Minute
	}
	if err := table.Validate(); err != nil {
		return TierTable{}, err
	}
	return table, nil
}

// Validate checks the table and sorts tiers ascending by points
func (t *TierTable) Validate() error {
	if t.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", t.Window)
	}
	if len(t.Tiers) == 0 {
		return fmt.Errorf("rate limit table needs at least one tier")
	}
	for _, lvl := range t.Tiers {
		if lvl.Limit < 1 {
			return fmt.Errorf("tier %d: limit must be >= 1", lvl.MinPoints)
		}
	}
	for iface, limit := range t.Interfaces {
		if limit < 1 {
			return fmt.Errorf("interface %s: limit must be >= 1", iface)
		}
	}

	sort.Slice(t.Tiers, func(i, j int) bool { return t.Tiers[i].MinPoints < t.Tiers[j].MinPoints })
	return nil
}

// LimitFor returns the quota of the highest tier reached by points.
// Accounts below the lowest tier get the lowest tier's quota.
func (t TierTable) LimitFor(points int) int {
	limit := t.Tiers[0].Limit
	for _, lvl := range t.Tiers {
		if points >= lvl.MinPoints {
			limit = lvl.Limit
		}
	}
	return limit
}

// SpecialLimit returns the interface-specific cap, if any
func (t TierTable) SpecialLimit(iface string) (int, bool) {
	limit, ok := t.Interfaces[iface]
	return limit, ok
}
