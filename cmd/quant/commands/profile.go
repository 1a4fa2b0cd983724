package commands

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/internal/recommend"
	"github.com/wonny/aegis-picks/internal/screener"
	"github.com/wonny/aegis-picks/internal/strategyconfig"
	"github.com/wonny/aegis-picks/pkg/logger"
)

// loadProfile reads STRATEGY_FILE; nil when unset
func loadProfile(path string, log *logger.Logger) (*strategyconfig.Config, error) {
	if path == "" {
		return nil, nil
	}
	profile, err := strategyconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", path, err)
	}
	hash, err := strategyconfig.Hash(profile)
	if err != nil {
		return nil, err
	}
	log.WithFields(map[string]interface{}{
		"profile_id": profile.Meta.ProfileID,
		"hash":       hash[:12],
	}).Info("Screening profile loaded")
	return profile, nil
}

// profileOptions appends the weight/limit overrides for one screener variant
func profileOptions(profile *strategyconfig.Config, key string, base []screener.Weight, opts []screener.Option) ([]screener.Option, error) {
	p := profile.Screener(key)
	out := append([]screener.Option{}, opts...)
	if len(p.WeightsPct) > 0 {
		w, err := screener.OverrideWeights(base, p.WeightsPct)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", key, err)
		}
		out = append(out, screener.WithWeights(w))
	}
	if p.Limit > 0 {
		out = append(out, screener.WithDefaultLimit(p.Limit))
	}
	return out, nil
}

// profileTargets overlays profile target rules on the defaults
func profileTargets(profile *strategyconfig.Config) map[contracts.Horizon]recommend.TargetRule {
	rules := make(map[contracts.Horizon]recommend.TargetRule, len(recommend.DefaultTargetRules))
	for h, r := range recommend.DefaultTargetRules {
		rules[h] = r
	}
	if profile == nil {
		return rules
	}
	for key, r := range profile.Targets {
		rules[contracts.Horizon(key)] = recommend.TargetRule{
			BaseTarget:  decimal.NewFromFloat(r.BasePct),
			ScoreTarget: decimal.NewFromFloat(r.ScorePct),
			StopLoss:    decimal.NewFromFloat(r.StopLossPct),
		}
	}
	return rules
}
