package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-picks/internal/provider"
	"github.com/wonny/aegis-picks/internal/ratelimit"
)

// limiterCmd represents the limiter command
var limiterCmd = &cobra.Command{
	Use:   "limiter",
	Short: "호출 한도 윈도우 조회",
	Long: `인터페이스별 sliding window 사용량과 유효 한도를 조회합니다.
유효 한도 = min(티어 한도, 인터페이스 한도) x safety margin

Example:
  go run ./cmd/quant limiter stats
  go run ./cmd/quant limiter stats fund_nav
  go run ./cmd/quant limiter reset fund_nav`,
}

var (
	limiterStatsCmd = &cobra.Command{
		Use:   "stats [iface]",
		Short: "윈도우 사용량 (인자 없으면 전체)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLimiterStats,
	}

	limiterResetCmd = &cobra.Command{
		Use:   "reset <iface>",
		Short: "윈도우 비우기",
		Args:  cobra.ExactArgs(1),
		RunE:  runLimiterReset,
	}
)

func init() {
	rootCmd.AddCommand(limiterCmd)
	limiterCmd.AddCommand(limiterStatsCmd)
	limiterCmd.AddCommand(limiterResetCmd)
}

func runLimiterStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ifaces := provider.Interfaces()
	if len(args) == 1 {
		ifaces = args
	}

	out := make([]ratelimit.Stats, 0, len(ifaces))
	for _, iface := range ifaces {
		st, err := a.limiter.Stats(ctx, iface)
		if err != nil {
			return err
		}
		out = append(out, st)
	}
	remaining, err := a.global.Remaining(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]interface{}{
			"interfaces":       out,
			"global_remaining": remaining,
		})
	}

	widths := []int{14, 8, 8, 9, 9, 8}
	PrintTableHeader([]string{"Interface", "Capacity", "InWindow", "Remaining", "RetryIn", "Denied"}, widths)
	for _, st := range out {
		PrintTableRow([]string{
			st.Interface,
			fmt.Sprintf("%d", st.Capacity),
			fmt.Sprintf("%d", st.InWindow),
			fmt.Sprintf("%d", st.Remaining),
			st.RetryIn.String(),
			fmt.Sprintf("%d", st.Denied),
		}, widths)
	}
	fmt.Println()
	PrintKeyValue("Global remaining", fmt.Sprintf("%d", remaining), 16)
	return nil
}

func runLimiterReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.limiter.Reset(ctx, args[0]); err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Window %s cleared", args[0]))
	return nil
}
