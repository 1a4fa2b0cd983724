package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/pkg/logger"
)

// ErrExplainerTimeout is returned when the explainer does not answer in time
var ErrExplainerTimeout = errors.New("explainer timed out")

// GuardedExplainer isolates an external explainer behind a circuit breaker
// and a hard timeout. Only rationales are taken from the explainer; ranking,
// scores and membership of the list never change.
type GuardedExplainer struct {
	inner   contracts.Explainer
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logger.Logger
}

// NewGuardedExplainer wraps inner. After three consecutive failures the
// explainer is skipped for a minute.
func NewGuardedExplainer(inner contracts.Explainer, timeout time.Duration, log *logger.Logger) *GuardedExplainer {
	if log == nil {
		log = logger.Nop()
	}
	l := log.Component("explainer")

	settings := gobreaker.Settings{
		Name:        "explainer",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.WithFields(map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("Explainer circuit state changed")
		},
	}

	return &GuardedExplainer{
		inner:   inner,
		cb:      gobreaker.NewCircuitBreaker(settings),
		timeout: timeout,
		logger:  l,
	}
}

// State reports the explainer circuit state
func (e *GuardedExplainer) State() string {
	return e.cb.State().String()
}

// Explain implements contracts.Explainer. On any failure the input list is
// returned unchanged together with the error.
func (e *GuardedExplainer) Explain(ctx context.Context, candidates []*contracts.Candidate, asset contracts.AssetType, h contracts.Horizon) ([]*contracts.Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	out, err := e.cb.Execute(func() (interface{}, error) {
		return callWithin(ctx, e.timeout, func(ctx context.Context) ([]*contracts.Candidate, error) {
			return e.inner.Explain(ctx, contracts.CloneCandidates(candidates), asset, h)
		})
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrExplainerTimeout
		}
		return candidates, fmt.Errorf("explain %s/%s: %w", asset, h, err)
	}

	rationale := make(map[string]string)
	for _, c := range out.([]*contracts.Candidate) {
		if c != nil && c.Rationale != "" {
			rationale[c.Code] = c.Rationale
		}
	}
	for _, c := range candidates {
		if r, ok := rationale[c.Code]; ok {
			c.Rationale = r
		}
	}
	return candidates, nil
}

// TemplateExplainer writes a short rule-based rationale from the factor
// highlights. It is the default when no external explainer is configured.
type TemplateExplainer struct{}

// Explain implements contracts.Explainer
func (TemplateExplainer) Explain(_ context.Context, candidates []*contracts.Candidate, _ contracts.AssetType, h contracts.Horizon) ([]*contracts.Candidate, error) {
	for _, c := range candidates {
		c.Rationale = rationale(c, h)
	}
	return candidates, nil
}

func rationale(c *contracts.Candidate, h contracts.Horizon) string {
	parts := []string{fmt.Sprintf("#%d score %.1f", c.Rank, c.Score)}
	add := func(format string, v *float64) {
		if v != nil {
			parts = append(parts, fmt.Sprintf(format, *v))
		}
	}

	fs := c.Factors
	if h == contracts.HorizonShort {
		add("1W %+.1f%%", fs.Return("1w"))
		add("1M %+.1f%%", fs.Return("1m"))
		if fs != nil && fs.Technical != nil {
			add("RSI %.0f", fs.Technical.RSI14)
			add("vol x%.1f", fs.Technical.VolumeRatio)
		}
	} else {
		add("1Y %+.1f%%", fs.Return("1y"))
		add("3Y %+.1f%%", fs.Return("3y"))
		add("ROE %.1f%%", fs.ROE())
		if fs != nil && fs.Risk != nil {
			add("Sharpe %.2f", fs.Risk.Sharpe)
		}
		add("MDD -%.1f%%", fs.MaxDrawdown())
		if fs != nil && fs.Manager != nil {
			add("manager %.0f", fs.Manager.ManagerScore)
		}
	}

	parts = append(parts, fmt.Sprintf("target %+.1f%% / stop %.1f%%", c.TargetReturnPct, c.StopLossPct))
	return strings.Join(parts, " · ")
}

// callWithin runs fn under a deadline and stops waiting once it passes,
// even when fn ignores its context
func callWithin[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
