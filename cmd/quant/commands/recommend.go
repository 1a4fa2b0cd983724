package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/internal/ratelimit"
	"github.com/wonny/aegis-picks/internal/recommend"
)

// recommendCmd represents the recommend command
var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "추천 생성 및 성과 조회",
	Long: `주식/펀드 매수 후보를 생성하고 과거 추천 성과를 조회합니다.

Subcommands:
  run    - 추천 1회 실행 (결과 저장)
  stats  - rec_type / 자산군별 적중률
  top    - 저장된 팩터 점수 기준 상위 종목

Example:
  go run ./cmd/quant recommend run --mode short --exclude-sector 银行
  go run ./cmd/quant recommend stats --days 30
  go run ./cmd/quant recommend top --asset fund --horizon long`,
}

var (
	recommendRunCmd = &cobra.Command{
		Use:   "run",
		Short: "추천 1회 실행",
		RunE:  runRecommend,
	}

	recommendStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "추천 성과 통계",
		RunE:  runRecommendStats,
	}

	recommendTopCmd = &cobra.Command{
		Use:   "top",
		Short: "저장된 점수 상위 종목",
		RunE:  runRecommendTop,
	}
)

var (
	recMode       string
	recStockLimit int
	recFundLimit  int
	recDate       string
	recBackground bool

	prefExcludeSectors   []string
	prefPreferSectors    []string
	prefAvoidST          bool
	prefMinROE           float64
	prefMaxPE            float64
	prefPreferFundTypes  []string
	prefExcludeFundTypes []string
	prefMaxDrawdown      float64

	statsDays int

	topAsset    string
	topHorizon  string
	topDate     string
	topLimit    int
	topMinScore float64
)

func init() {
	rootCmd.AddCommand(recommendCmd)
	recommendCmd.AddCommand(recommendRunCmd)
	recommendCmd.AddCommand(recommendStatsCmd)
	recommendCmd.AddCommand(recommendTopCmd)

	f := recommendRunCmd.Flags()
	f.StringVar(&recMode, "mode", "all", "short | long | all")
	f.IntVar(&recStockLimit, "stock-limit", 0, "주식 후보 수 (0 = 기본값)")
	f.IntVar(&recFundLimit, "fund-limit", 0, "펀드 후보 수 (0 = 기본값)")
	f.StringVar(&recDate, "date", "", "거래일 YYYY-MM-DD (기본: 최근 마감 거래일)")
	f.BoolVar(&recBackground, "background", false, "rate limit 대기 무제한 (배치 실행)")
	f.StringSliceVar(&prefExcludeSectors, "exclude-sector", nil, "제외 섹터")
	f.StringSliceVar(&prefPreferSectors, "prefer-sector", nil, "선호 섹터 (가산점)")
	f.BoolVar(&prefAvoidST, "avoid-st", false, "ST 종목 제외")
	f.Float64Var(&prefMinROE, "min-roe", 0, "최소 ROE %")
	f.Float64Var(&prefMaxPE, "max-pe", 0, "최대 PE")
	f.StringSliceVar(&prefPreferFundTypes, "prefer-fund-type", nil, "허용 펀드 유형")
	f.StringSliceVar(&prefExcludeFundTypes, "exclude-fund-type", nil, "제외 펀드 유형")
	f.Float64Var(&prefMaxDrawdown, "max-drawdown", 0, "허용 최대 낙폭 %")

	recommendStatsCmd.Flags().IntVar(&statsDays, "days", 30, "집계 기간 (일)")

	tf := recommendTopCmd.Flags()
	tf.StringVar(&topAsset, "asset", "stock", "stock | fund")
	tf.StringVar(&topHorizon, "horizon", "short", "short | long")
	tf.StringVar(&topDate, "date", "", "거래일 YYYY-MM-DD (기본: 최근 마감 거래일)")
	tf.IntVar(&topLimit, "limit", 20, "조회 건수")
	tf.Float64Var(&topMinScore, "min-score", 0, "최소 점수")
}

// preferencesFromFlags builds the filter; zero-valued numeric flags stay unset
func preferencesFromFlags(cmd *cobra.Command) *contracts.Preferences {
	p := &contracts.Preferences{
		ExcludedSectors:    prefExcludeSectors,
		PreferredSectors:   prefPreferSectors,
		AvoidST:            prefAvoidST,
		PreferredFundTypes: prefPreferFundTypes,
		ExcludedFundTypes:  prefExcludeFundTypes,
	}
	if cmd.Flags().Changed("min-roe") {
		p.MinROE = &prefMinROE
	}
	if cmd.Flags().Changed("max-pe") {
		p.MaxPE = &prefMaxPE
	}
	if cmd.Flags().Changed("max-drawdown") {
		p.MaxDrawdownTolerance = &prefMaxDrawdown
	}
	return p
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

func runRecommend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mode, err := contracts.ParseMode(recMode)
	if err != nil {
		return err
	}
	date, err := parseDateFlag(recDate)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if recBackground {
		ctx = ratelimit.WithBackground(ctx)
	}

	result, err := a.engine.Generate(ctx, recommend.Request{
		Mode:        mode,
		StockLimit:  recStockLimit,
		FundLimit:   recFundLimit,
		Preferences: preferencesFromFlags(cmd),
		TradeDate:   date,
	})
	if err != nil {
		return fmt.Errorf("generate recommendations: %w", err)
	}

	if jsonOutput {
		return printJSON(result)
	}
	printResult(result)
	return nil
}

func runRecommendStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.recoRepo.PerformanceStats(ctx, statsDays)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(stats)
	}

	PrintHeader("Recommendation Performance", [2]string{"Window", fmt.Sprintf("last %d days", statsDays)})
	widths := []int{6, 6, 7, 9, 8, 10, 9}
	PrintTableHeader([]string{"Type", "Asset", "Total", "Evaluated", "HitRate", "AvgReturn", "StopLoss"}, widths)
	for _, s := range stats {
		PrintTableRow([]string{
			string(s.RecType),
			string(s.AssetType),
			fmt.Sprintf("%d", s.Total),
			fmt.Sprintf("%d", s.Evaluated),
			fmt.Sprintf("%.1f%%", s.HitRate*100),
			fmt.Sprintf("%+.2f%%", s.AvgReturn),
			fmt.Sprintf("%.1f%%", s.StopLossHitPct),
		}, widths)
	}
	return nil
}

func runRecommendTop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	asset := contracts.AssetType(topAsset)
	if asset != contracts.AssetStock && asset != contracts.AssetFund {
		return fmt.Errorf("invalid asset %q", topAsset)
	}
	horizon := contracts.Horizon(topHorizon)
	if horizon != contracts.HorizonShort && horizon != contracts.HorizonLong {
		return fmt.Errorf("invalid horizon %q", topHorizon)
	}
	date, err := parseDateFlag(topDate)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if date.IsZero() {
		date = a.calendar.LatestTradeDate(time.Now())
	}

	sets, err := a.factors.GetTopByScore(ctx, date, asset, horizon, topLimit, topMinScore)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(sets)
	}

	PrintHeader("Top by stored score",
		[2]string{"Trade Date", date.Format(dateLayout)},
		[2]string{"Asset", string(asset)},
		[2]string{"Horizon", string(horizon)},
	)
	widths := []int{4, 8, 7}
	PrintTableHeader([]string{"#", "Code", "Score"}, widths)
	for i, fs := range sets {
		score := "-"
		if s := fs.Score(horizon); s != nil {
			score = fmt.Sprintf("%.2f", *s)
		}
		PrintTableRow([]string{fmt.Sprintf("%d", i+1), fs.Code, score}, widths)
	}
	return nil
}
