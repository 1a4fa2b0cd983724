package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-picks/internal/breaker"
	"github.com/wonny/aegis-picks/internal/provider"
)

// breakerCmd represents the breaker command
var breakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "서킷 브레이커 조회/리셋",
	Long: `의존성(업스트림 인터페이스)별 서킷 상태를 조회하거나 강제로 닫습니다.

Example:
  go run ./cmd/quant breaker status
  go run ./cmd/quant breaker status daily
  go run ./cmd/quant breaker reset fund_nav`,
}

var (
	breakerStatusCmd = &cobra.Command{
		Use:   "status [dep]",
		Short: "서킷 상태 조회 (인자 없으면 전체)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBreakerStatus,
	}

	breakerResetCmd = &cobra.Command{
		Use:   "reset <dep>",
		Short: "서킷 강제 CLOSED",
		Args:  cobra.ExactArgs(1),
		RunE:  runBreakerReset,
	}
)

func init() {
	rootCmd.AddCommand(breakerCmd)
	breakerCmd.AddCommand(breakerStatusCmd)
	breakerCmd.AddCommand(breakerResetCmd)
}

func runBreakerStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := provider.Interfaces()
	if len(args) == 1 {
		deps = args
	}

	out := make([]breaker.Status, 0, len(deps))
	for _, dep := range deps {
		st, err := a.breaker.Status(ctx, dep)
		if err != nil {
			return err
		}
		out = append(out, st)
	}
	if jsonOutput {
		return printJSON(out)
	}

	widths := []int{14, 10, 9, 9, 20}
	PrintTableHeader([]string{"Dependency", "State", "Failures", "Threshold", "Retry At"}, widths)
	for _, st := range out {
		retry := "-"
		if st.RetryAt != nil {
			retry = st.RetryAt.Local().Format(time.DateTime)
		}
		PrintTableRow([]string{
			st.Dependency,
			string(st.State),
			fmt.Sprintf("%d", st.FailureCount),
			fmt.Sprintf("%d", st.Threshold),
			retry,
		}, widths)
	}
	return nil
}

func runBreakerReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.breaker.Reset(ctx, args[0]); err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Circuit %s reset to CLOSED", args[0]))
	return nil
}
