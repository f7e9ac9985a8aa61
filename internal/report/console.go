package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/wonny/fundscope/internal/contracts"
)

// Console prints the ranking as a fixed-width table
type Console struct {
	w   io.Writer
	top int // 0 = all rows
}

// NewConsole creates a console sink writing to w
func NewConsole(w io.Writer, top int) *Console {
	return &Console{w: w, top: top}
}

// Name implements contracts.ReportSink
func (c *Console) Name() string { return "console" }

// Write implements contracts.ReportSink
func (c *Console) Write(_ context.Context, r *contracts.Report) error {
	var b strings.Builder

	b.WriteString("═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(&b, "  %s  run %s\n", r.StrategyID, r.RunID)
	b.WriteString("───────────────────────────────────────────────────────────\n")
	fmt.Fprintf(&b, "  Universe  : %d\n", r.Stats.Universe)
	fmt.Fprintf(&b, "  Prefilter : %d\n", r.Stats.PrefilterPass)
	fmt.Fprintf(&b, "  Ranked    : %d\n", r.Stats.Ranked)
	fmt.Fprintf(&b, "  Excluded  : %d\n", r.Stats.Excluded)
	if len(r.Stats.SkippedWindows) > 0 {
		fmt.Fprintf(&b, "  Skipped   : %s\n", strings.Join(r.Stats.SkippedWindows, ", "))
	}
	if r.Cancelled {
		b.WriteString("  ⚠️  run cancelled, results are partial\n")
	}
	b.WriteString("───────────────────────────────────────────────────────────\n")

	rows := r.Ranked
	if c.top > 0 && len(rows) > c.top {
		rows = rows[:c.top]
	}
	table := make([][]string, 0, len(rows))
	for _, s := range rows {
		table = append(table, rankingRow(s))
	}
	writeTable(&b, rankingHeader, table)

	if len(r.Excluded) > 0 {
		kinds := map[string]int{}
		var order []string
		for _, e := range r.Excluded {
			key := e.Stage + "/" + e.Kind
			if kinds[key] == 0 {
				order = append(order, key)
			}
			kinds[key]++
		}
		b.WriteString("\n  Exclusions\n")
		for _, k := range order {
			fmt.Fprintf(&b, "   • %-28s %d\n", k, kinds[k])
		}
	}

	_, err := io.WriteString(c.w, b.String())
	if err != nil {
		return fmt.Errorf("failed to write console report: %w", err)
	}
	return nil
}

// writeTable pads every column to its widest cell
func writeTable(b *strings.Builder, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	line := func(cells []string) {
		for i, cell := range cells {
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)+2))
			}
		}
		b.WriteByte('\n')
	}

	line(header)
	total := 0
	for i, w := range widths {
		total += w
		if i < len(widths)-1 {
			total += 2
		}
	}
	b.WriteString(strings.Repeat("─", total))
	b.WriteByte('\n')
	for _, row := range rows {
		line(row)
	}
}
