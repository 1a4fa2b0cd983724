package screener

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/aegis-picks/internal/contracts"
)

// Weight is one metric of a composite score
type Weight struct {
	Metric  string
	Weight  float64
	Invert  bool // 낮을수록 좋은 지표 (PE, 부채비율, 변동성, MDD)
	Extract func(c *contracts.Candidate) *float64
}

// Score sets each candidate's score in [0, 100] from per-batch min-max
// normalised metrics. A metric the candidate lacks drops out and the
// remaining weights are renormalised. When every value of a metric is equal
// it contributes 0.5. Scores are not comparable across batches.
func Score(candidates []*contracts.Candidate, weights []Weight) {
	type bounds struct {
		min, max float64
		seen     bool
	}

	b := make([]bounds, len(weights))
	for i, w := range weights {
		for _, c := range candidates {
			v, ok := value(w, c)
			if !ok {
				continue
			}
			if !b[i].seen {
				b[i] = bounds{min: v, max: v, seen: true}
				continue
			}
			b[i].min = math.Min(b[i].min, v)
			b[i].max = math.Max(b[i].max, v)
		}
	}

	for _, c := range candidates {
		var sum, total float64
		for i, w := range weights {
			v, ok := value(w, c)
			if !ok || w.Weight <= 0 {
				continue
			}

			n := 0.5
			if b[i].max > b[i].min {
				n = (v - b[i].min) / (b[i].max - b[i].min)
			}
			if w.Invert {
				n = 1 - n
			}
			sum += n * w.Weight
			total += w.Weight
		}

		if total == 0 {
			c.Score = 0
			continue
		}
		c.Score = round2(sum / total * 100)
	}
}

// OverrideWeights rebuilds base from percent weights keyed by metric name.
// Metrics missing from pct are dropped; an unknown metric is an error.
// An empty pct returns base unchanged.
func OverrideWeights(base []Weight, pct map[string]float64) ([]Weight, error) {
	if len(pct) == 0 {
		return base, nil
	}

	known := make(map[string]Weight, len(base))
	for _, w := range base {
		known[w.Metric] = w
	}

	names := make([]string, 0, len(pct))
	for name := range pct {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Weight, 0, len(pct))
	for _, name := range names {
		w, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown metric %q", name)
		}
		if pct[name] <= 0 {
			continue
		}
		w.Weight = pct[name] / 100
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no positive weight")
	}
	return out, nil
}

func value(w Weight, c *contracts.Candidate) (float64, bool) {
	p := w.Extract(c)
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// factor adapts a FactorSet accessor into a Weight extractor
func factor(get func(fs *contracts.FactorSet) *float64) func(*contracts.Candidate) *float64 {
	return func(c *contracts.Candidate) *float64 {
		if c.Factors == nil {
			return nil
		}
		return get(c.Factors)
	}
}

func technical(get func(t *contracts.TechnicalFactors) *float64) func(*contracts.Candidate) *float64 {
	return factor(func(fs *contracts.FactorSet) *float64 {
		if fs.Technical == nil {
			return nil
		}
		return get(fs.Technical)
	})
}

func fundamental(get func(f *contracts.FundamentalFactors) *float64) func(*contracts.Candidate) *float64 {
	return factor(func(fs *contracts.FactorSet) *float64 {
		if fs.Fundamental == nil {
			return nil
		}
		return get(fs.Fundamental)
	})
}

func risk(get func(r *contracts.RiskFactors) *float64) func(*contracts.Candidate) *float64 {
	return factor(func(fs *contracts.FactorSet) *float64 {
		if fs.Risk == nil {
			return nil
		}
		return get(fs.Risk)
	})
}

func manager(get func(m *contracts.ManagerFactors) *float64) func(*contracts.Candidate) *float64 {
	return factor(func(fs *contracts.FactorSet) *float64 {
		if fs.Manager == nil {
			return nil
		}
		return get(fs.Manager)
	})
}

func period(name string) func(*contracts.Candidate) *float64 {
	return factor(func(fs *contracts.FactorSet) *float64 { return fs.Return(name) })
}
