package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-picks/pkg/config"
	"github.com/wonny/aegis-picks/pkg/httputil"
	"github.com/wonny/aegis-picks/pkg/logger"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "팩터 캐시 관리",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "캐시 비우기",
	Long: `실행 중인 서버(scheduler start)의 메모리/공유 KV 캐시 항목을 비웁니다.
캐시 인덱스는 서버 프로세스에만 있으므로 ops 엔드포인트를 호출합니다.
--date 지정 시 해당 거래일 항목만 제거합니다. 팩터 저장소(DB)는 유지됩니다.

Example:
  go run ./cmd/quant cache clear --date 2026-10-16
  go run ./cmd/quant cache clear --ops-addr http://picks-1:9090`,
	RunE: runCacheClear,
}

var (
	cacheClearDate string
	cacheOpsAddr   string
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().StringVar(&cacheClearDate, "date", "", "거래일 YYYY-MM-DD")
	cacheClearCmd.Flags().StringVar(&cacheOpsAddr, "ops-addr", "", "ops 서버 주소 (기본: http://localhost:$METRICS_PORT)")
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	if _, err := parseDateFlag(cacheClearDate); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	addr := cacheOpsAddr
	if addr == "" {
		addr = "http://localhost:" + cfg.MetricsPort
	}
	target := strings.TrimRight(addr, "/") + "/ops/cache"
	if cacheClearDate != "" {
		target += "?date=" + url.QueryEscape(cacheClearDate)
	}

	var out struct {
		Removed int    `json:"removed"`
		Error   string `json:"error"`
	}
	client := httputil.New(log, 10*time.Second)
	if err := client.DoJSON(cmd.Context(), http.MethodDelete, target, &out); err != nil {
		return fmt.Errorf("clear cache via %s: %w", addr, err)
	}

	if out.Error != "" {
		PrintWarning(fmt.Sprintf("Shared tier not fully cleared: %s", out.Error))
	}
	PrintSuccess(fmt.Sprintf("Removed %d cache entries", out.Removed))
	return nil
}
