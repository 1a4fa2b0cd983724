package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-picks/internal/recommend"
	"github.com/wonny/aegis-picks/pkg/logger"
)

// OutcomeEvaluator fills realized returns of matured recommendations
type OutcomeEvaluator interface {
	Evaluate(ctx context.Context, now time.Time) (*recommend.EvaluationSummary, error)
}

// EvaluationJob measures the outcome of past recommendations after the close
type EvaluationJob struct {
	evaluator OutcomeEvaluator
	schedule  string
	logger    *logger.Logger
	now       func() time.Time
}

// NewEvaluationJob creates the job
func NewEvaluationJob(evaluator OutcomeEvaluator, schedule string, log *logger.Logger) *EvaluationJob {
	if log == nil {
		log = logger.Nop()
	}
	return &EvaluationJob{
		evaluator: evaluator,
		schedule:  schedule,
		logger:    log.Component("job.evaluation"),
		now:       time.Now,
	}
}

// Name returns the job name
func (j *EvaluationJob) Name() string {
	return "recommendation_evaluation"
}

// Schedule returns the cron schedule
func (j *EvaluationJob) Schedule() string {
	return j.schedule
}

// Run evaluates matured records. Rerunning is safe since evaluated records
// are skipped. A run where every pending record failed is retried.
func (j *EvaluationJob) Run(ctx context.Context) error {
	sum, err := j.evaluator.Evaluate(ctx, j.now())
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	if sum.Failed > 0 && sum.Evaluated == 0 {
		return fmt.Errorf("evaluation of %s failed for all %d pending records", sum.AsOf.Format("2006-01-02"), sum.Failed)
	}
	return nil
}
