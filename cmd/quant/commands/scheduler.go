package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-picks/internal/ops"
	"github.com/wonny/aegis-picks/internal/scheduler"
	"github.com/wonny/aegis-picks/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 즉시 실행합니다.

Subcommands:
  start   - 스케줄러 + ops 서버 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler run daily_recommendation`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- universe_warmup: 장 시작 전 (SCHEDULER_WARMUP, 기본 평일 09:00)
- daily_recommendation: 장 마감 후 (SCHEDULER_DAILY_RUN, 기본 평일 16:30)
- recommendation_evaluation: 보유기간 경과 추천 성과 평가 (SCHEDULER_EVALUATE, 기본 평일 17:00)

METRICS_ENABLED 이면 ops 서버(/metrics, /ops/*)도 함께 시작합니다.
Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newScheduler registers the jobs on a fresh scheduler
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log)

	daily := jobs.NewDailyRecommendationJob(a.engine, a.calendar, a.cfg.Scheduler.DailyRunSpec, a.log)
	warmup := jobs.NewWarmupJob(a.stocks, a.funds, a.cache, a.calendar, a.cfg.Scheduler.WarmupSpec, a.log)
	evaluate := jobs.NewEvaluationJob(a.evaluator, a.cfg.Scheduler.EvaluateSpec, a.log)

	for _, job := range []scheduler.Job{warmup, daily, evaluate} {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	var server *ops.Server
	if a.cfg.MetricsEnabled {
		ops.WithJobs(sched)(a.opsHandler)
		server = ops.NewServer(a.cfg.MetricsPort, ops.NewRouter(a.opsHandler, a.metrics.Registry(), a.log), a.log)
		go func() {
			if err := server.Start(); err != nil {
				a.log.WithError(err).Error("Ops server stopped")
			}
		}()
	}

	sched.Start()

	PrintHeader("Aegis Picks Scheduler")
	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	if server != nil {
		fmt.Printf("Ops server: :%s\n", a.cfg.MetricsPort)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	PrintSuccess("Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()
	widths := []int{28, 18}
	PrintTableHeader([]string{"Job", "Schedule"}, widths)
	for _, name := range sched.GetAllJobs() {
		PrintTableRow([]string{name, stats[name].Schedule}, widths)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Ctrl+C 시 진행 중 작업 취소
	stop := context.AfterFunc(cmd.Context(), sched.Stop)
	defer stop()

	result, err := sched.RunJob(args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}
	if !result.Success {
		return fmt.Errorf("job %s failed after %d attempt(s): %s", result.JobName, result.Attempts, result.Error)
	}
	PrintSuccess(fmt.Sprintf("Job %s completed in %s (attempts: %d)", result.JobName, result.Duration.Round(time.Millisecond), result.Attempts))
	return nil
}
