package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/internal/recommend"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const dateLayout = "2006-01-02"

// PrintHeader prints a boxed command header
func PrintHeader(title string, kv ...[2]string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	if len(kv) > 0 {
		PrintSeparator()
		for _, p := range kv {
			fmt.Printf("  %-10s: %s\n", p[0], p[1])
		}
	}
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	total := 0
	for i, w := range widths {
		total += w
		if i < len(widths)-1 {
			total += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", total))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// printJSON writes v indented to stdout
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var candidateWidths = []int{4, 8, 16, 7, 9, 9}

// printCandidates renders one ranked list
func printCandidates(title string, list []*contracts.Candidate) {
	fmt.Printf("\n[%s] %d candidates\n", title, len(list))
	if len(list) == 0 {
		return
	}
	PrintTableHeader([]string{"#", "Code", "Name", "Score", "Target", "Stop"}, candidateWidths)
	for _, c := range list {
		PrintTableRow([]string{
			fmt.Sprintf("%d", c.Rank),
			c.Code,
			truncate(c.Name, 16),
			fmt.Sprintf("%.2f", c.Score),
			fmt.Sprintf("%+.2f%%", c.TargetReturnPct),
			fmt.Sprintf("%.2f%%", c.StopLossPct),
		}, candidateWidths)
	}
}

// printResult renders a recommendation run
func printResult(r *recommend.Result) {
	md := r.Metadata
	PrintHeader("Recommendation Run",
		[2]string{"Run ID", md.RunID},
		[2]string{"Mode", string(md.Mode)},
		[2]string{"Trade Date", md.TradeDate.Format(dateLayout)},
	)
	fmt.Printf("Market: %s\n", md.MarketContext)

	if r.ShortTerm != nil {
		printCandidates("short / stock", r.ShortTerm.Stocks)
		printCandidates("short / fund", r.ShortTerm.Funds)
	}
	if r.LongTerm != nil {
		printCandidates("long / stock", r.LongTerm.Stocks)
		printCandidates("long / fund", r.LongTerm.Funds)
	}

	fmt.Println()
	PrintSeparator()
	if md.PersistFailures > 0 {
		PrintWarning(fmt.Sprintf("%d records failed to persist", md.PersistFailures))
	}
	PrintSuccess(fmt.Sprintf("Persisted %d records in %s",
		md.Persisted, (time.Duration(md.Timings["total"]) * time.Millisecond).String()))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
