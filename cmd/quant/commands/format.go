package commands

import (
	"fmt"
	"time"

	"github.com/wonny/fundscope/internal/cache"
	"github.com/wonny/fundscope/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a titled block
func PrintHeader(title string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
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

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintRunSummary prints the footer after a run
func PrintRunSummary(r *contracts.Report, stats cache.Stats) {
	PrintHeader("Run summary")
	PrintKeyValue("Run ID", r.RunID, 12)
	PrintKeyValue("Duration", r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String(), 12)
	PrintKeyValue("Ranked", fmt.Sprintf("%d", r.Stats.Ranked), 12)
	PrintKeyValue("Excluded", fmt.Sprintf("%d", r.Stats.Excluded), 12)
	PrintKeyValue("Cache", fmt.Sprintf("hits=%d misses=%d store_errors=%d", stats.Hits, stats.Misses, stats.StoreErrors), 12)
	for source, n := range r.Stats.Sources {
		PrintKeyValue("  "+source, fmt.Sprintf("%d", n), 12)
	}
	if r.Cancelled {
		PrintWarning("Run was cancelled; results are partial")
	}
}
