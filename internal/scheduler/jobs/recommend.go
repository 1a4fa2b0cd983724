package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/internal/recommend"
	"github.com/wonny/aegis-picks/pkg/logger"
)

// Generator runs one recommendation pass
type Generator interface {
	Generate(ctx context.Context, req recommend.Request) (*recommend.Result, error)
}

// DailyRecommendationJob generates and stores the daily recommendations
// ⭐ SSOT: 일일 추천 스케줄은 이 Job에서만
type DailyRecommendationJob struct {
	engine   Generator
	calendar contracts.Calendar
	schedule string
	logger   *logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastDate time.Time // 마지막으로 완료된 거래일
}

// NewDailyRecommendationJob creates the job. schedule is a seconds-field cron expression.
func NewDailyRecommendationJob(engine Generator, cal contracts.Calendar, schedule string, log *logger.Logger) *DailyRecommendationJob {
	if log == nil {
		log = logger.Nop()
	}
	return &DailyRecommendationJob{
		engine:   engine,
		calendar: cal,
		schedule: schedule,
		logger:   log.Component("job.daily_recommendation"),
		now:      time.Now,
	}
}

// Name returns the job name
func (j *DailyRecommendationJob) Name() string {
	return "daily_recommendation"
}

// Schedule returns the cron schedule
func (j *DailyRecommendationJob) Schedule() string {
	return j.schedule
}

// Run generates recommendations for the latest closed session. A session
// already covered by an earlier run is skipped, so holidays do not
// duplicate the previous day's records. A run that stored nothing (every
// list empty, or every write failed) returns an error and is retried.
func (j *DailyRecommendationJob) Run(ctx context.Context) error {
	date := j.calendar.LatestTradeDate(j.now())

	j.mu.Lock()
	done := j.lastDate.Equal(date)
	j.mu.Unlock()
	if done {
		j.logger.WithField("trade_date", date.Format("2006-01-02")).Info("Session already processed, skipping")
		return nil
	}

	result, err := j.engine.Generate(ctx, recommend.Request{
		Mode:      contracts.ModeAll,
		TradeDate: date,
	})
	if err != nil {
		return fmt.Errorf("recommendation run failed: %w", err)
	}

	// 저장된 추천이 없으면 (빈 목록 또는 전부 실패) 세션을 완료 처리하지 않음
	md := result.Metadata
	if md.Persisted == 0 {
		return fmt.Errorf("no recommendation stored for %s (%d candidates, %d failures)",
			date.Format("2006-01-02"), candidateCount(result), md.PersistFailures)
	}

	j.mu.Lock()
	j.lastDate = date
	j.mu.Unlock()

	j.logger.WithFields(map[string]interface{}{
		"run_id":           md.RunID,
		"trade_date":       date.Format("2006-01-02"),
		"persisted":        md.Persisted,
		"persist_failures": md.PersistFailures,
	}).Info("Daily recommendations stored")
	return nil
}

func candidateCount(r *recommend.Result) int {
	n := 0
	for _, h := range []*recommend.HorizonResult{r.ShortTerm, r.LongTerm} {
		if h != nil {
			n += len(h.Stocks) + len(h.Funds)
		}
	}
	return n
}
