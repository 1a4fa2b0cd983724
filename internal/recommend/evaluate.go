package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/pkg/logger"
)

// OutcomeStore reads past records and stores their realized returns
type OutcomeStore interface {
	ListByDate(ctx context.Context, date time.Time) ([]contracts.RecommendationRecord, error)
	UpdateRealizedReturn(ctx context.Context, id int64, realized float64) error
}

// SessionStepper walks the trading calendar backwards
type SessionStepper interface {
	LatestTradeDate(now time.Time) time.Time
	PreviousTradeDate(d time.Time) time.Time
}

// HoldingSessions is how many sessions a recommendation is held before
// its outcome is measured
var HoldingSessions = map[contracts.Horizon]int{
	contracts.HorizonShort: 5,
	contracts.HorizonLong:  20,
}

// EvaluationSummary counts the records touched by one evaluation
type EvaluationSummary struct {
	AsOf      time.Time                    `json:"as_of"`
	RecDates  map[contracts.Horizon]string `json:"rec_dates"`
	Evaluated int                          `json:"evaluated"`
	Skipped   int                          `json:"skipped"` // 이미 평가됨 / 진입가 없음
	Failed    int                          `json:"failed"`  // 가격 조회 또는 저장 실패
}

// Evaluator measures the close-to-close return of recommendations once
// their holding period has elapsed. Stock entries are valued at the
// latest close, fund entries at the latest unit NAV.
type Evaluator struct {
	store    OutcomeStore
	stocks   contracts.StockSource
	funds    contracts.FundSource
	calendar SessionStepper
	holding  map[contracts.Horizon]int
	logger   *logger.Logger
}

// NewEvaluator creates an evaluator. A nil holding map uses HoldingSessions.
func NewEvaluator(store OutcomeStore, stocks contracts.StockSource, funds contracts.FundSource, cal SessionStepper, holding map[contracts.Horizon]int, log *logger.Logger) *Evaluator {
	if log == nil {
		log = logger.Nop()
	}
	if holding == nil {
		holding = HoldingSessions
	}
	return &Evaluator{
		store:    store,
		stocks:   stocks,
		funds:    funds,
		calendar: cal,
		holding:  holding,
		logger:   log.Component("recommend.evaluate"),
	}
}

type priceKey struct {
	asset contracts.AssetType
	code  string
}

// Evaluate values every pending record whose holding period ends on the
// session of now. Per-record failures are counted, not returned.
func (e *Evaluator) Evaluate(ctx context.Context, now time.Time) (*EvaluationSummary, error) {
	asOf := e.calendar.LatestTradeDate(now)
	sum := &EvaluationSummary{
		AsOf:     asOf,
		RecDates: make(map[contracts.Horizon]string, len(e.holding)),
	}
	prices := make(map[priceKey]float64)

	for _, h := range []contracts.Horizon{contracts.HorizonShort, contracts.HorizonLong} {
		sessions, ok := e.holding[h]
		if !ok || sessions <= 0 {
			continue
		}
		recDate := asOf
		for i := 0; i < sessions; i++ {
			recDate = e.calendar.PreviousTradeDate(recDate)
		}
		sum.RecDates[h] = recDate.Format("2006-01-02")

		records, err := e.store.ListByDate(ctx, recDate)
		if err != nil {
			return sum, fmt.Errorf("list %s recommendations of %s: %w", h, sum.RecDates[h], err)
		}

		for i := range records {
			rec := &records[i]
			if rec.RecType != h {
				continue
			}
			if rec.RealizedReturn != nil || rec.EntryPrice == nil || *rec.EntryPrice <= 0 {
				sum.Skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				return sum, err
			}

			key := priceKey{rec.AssetType, rec.Code}
			price, ok := prices[key]
			if !ok {
				price, err = e.latestPrice(ctx, rec.AssetType, rec.Code, asOf)
				if err != nil {
					sum.Failed++
					e.logger.WithError(err).WithField("code", rec.Code).Warn("Failed to fetch evaluation price")
					continue
				}
				prices[key] = price
			}

			realized := RealizedReturn(*rec.EntryPrice, price)
			if err := e.store.UpdateRealizedReturn(ctx, rec.ID, realized); err != nil {
				sum.Failed++
				e.logger.WithError(err).WithField("id", rec.ID).Warn("Failed to store realized return")
				continue
			}
			sum.Evaluated++
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"as_of":     asOf.Format("2006-01-02"),
		"evaluated": sum.Evaluated,
		"skipped":   sum.Skipped,
		"failed":    sum.Failed,
	}).Info("Recommendation outcomes evaluated")
	return sum, nil
}

// latestPrice returns the close (stock) or unit NAV (fund) on or before asOf
func (e *Evaluator) latestPrice(ctx context.Context, asset contracts.AssetType, code string, asOf time.Time) (float64, error) {
	switch asset {
	case contracts.AssetStock:
		bars, err := e.stocks.DailyBars(ctx, code, asOf, 1)
		if err != nil {
			return 0, err
		}
		if len(bars) == 0 || bars[len(bars)-1].Close <= 0 {
			return 0, fmt.Errorf("no close for %s: %w", code, contracts.ErrNotFound)
		}
		return bars[len(bars)-1].Close, nil
	case contracts.AssetFund:
		navs, err := e.funds.NavHistory(ctx, code, asOf, 1)
		if err != nil {
			return 0, err
		}
		if len(navs) == 0 || navs[len(navs)-1].UnitNav <= 0 {
			return 0, fmt.Errorf("no nav for %s: %w", code, contracts.ErrNotFound)
		}
		return navs[len(navs)-1].UnitNav, nil
	}
	return 0, fmt.Errorf("unknown asset type %q", asset)
}

// RealizedReturn is (exit/entry - 1) * 100, rounded to two decimals
func RealizedReturn(entry, exit float64) float64 {
	r := decimal.NewFromFloat(exit).Div(decimal.NewFromFloat(entry)).Sub(decimal.NewFromInt(1)).Mul(hundred)
	return r.Round(2).InexactFloat64()
}
