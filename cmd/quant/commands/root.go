package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Aegis Picks - 주식/펀드 매수 후보 추천 엔진",
	Long: `Aegis Picks Unified CLI

불안정하고 호출 한도가 있는 데이터 제공자 위에서
주식/펀드 후보를 단기/장기 관점으로 선별합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant recommend run --mode short
  go run ./cmd/quant breaker status daily
  go run ./cmd/quant limiter stats fund_nav
  go run ./cmd/quant scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Ctrl+C / SIGTERM cancels the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug 로그 출력")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "결과를 JSON으로 출력")
}
