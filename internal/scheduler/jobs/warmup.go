package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/pkg/logger"
)

// StockUniverse lists the stock universe of a session
type StockUniverse interface {
	Universe(ctx context.Context, date time.Time) ([]contracts.StockInfo, error)
}

// FundUniverse lists the fund universe of a session
type FundUniverse interface {
	Universe(ctx context.Context, date time.Time) ([]contracts.FundInfo, error)
}

// DateClearer drops cached entries of one trading date
type DateClearer interface {
	ClearForDate(ctx context.Context, date time.Time) (int, error)
}

// SessionCalendar resolves the session to warm and the one to evict
type SessionCalendar interface {
	LatestTradeDate(now time.Time) time.Time
	PreviousTradeDate(d time.Time) time.Time
}

// WarmupJob loads the universes of the latest session into the cache and
// evicts the session before it
type WarmupJob struct {
	stocks   StockUniverse
	funds    FundUniverse
	cache    DateClearer
	calendar SessionCalendar
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewWarmupJob creates the job. Any of stocks, funds and cache may be nil.
func NewWarmupJob(stocks StockUniverse, funds FundUniverse, cache DateClearer, cal SessionCalendar, schedule string, log *logger.Logger) *WarmupJob {
	if log == nil {
		log = logger.Nop()
	}
	return &WarmupJob{
		stocks:   stocks,
		funds:    funds,
		cache:    cache,
		calendar: cal,
		schedule: schedule,
		logger:   log.Component("job.warmup"),
		now:      time.Now,
	}
}

// Name returns the job name
func (j *WarmupJob) Name() string {
	return "universe_warmup"
}

// Schedule returns the cron schedule
func (j *WarmupJob) Schedule() string {
	return j.schedule
}

// Run executes the warmup. Eviction failures are logged only.
func (j *WarmupJob) Run(ctx context.Context) error {
	date := j.calendar.LatestTradeDate(j.now())
	log := j.logger.WithField("trade_date", date.Format("2006-01-02"))

	if j.cache != nil {
		prev := j.calendar.PreviousTradeDate(date)
		n, err := j.cache.ClearForDate(ctx, prev)
		if err != nil {
			log.WithError(err).Warn("Failed to evict previous session")
		} else {
			log.WithFields(map[string]interface{}{
				"evicted_date": prev.Format("2006-01-02"),
				"entries":      n,
			}).Debug("Previous session evicted")
		}
	}

	stockCount, fundCount := 0, 0
	if j.stocks != nil {
		list, err := j.stocks.Universe(ctx, date)
		if err != nil {
			return fmt.Errorf("stock universe warmup failed: %w", err)
		}
		stockCount = len(list)
	}
	if j.funds != nil {
		list, err := j.funds.Universe(ctx, date)
		if err != nil {
			return fmt.Errorf("fund universe warmup failed: %w", err)
		}
		fundCount = len(list)
	}

	log.WithFields(map[string]interface{}{
		"stocks": stockCount,
		"funds":  fundCount,
	}).Info("Universe warmup completed")
	return nil
}
