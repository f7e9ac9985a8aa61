package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/wonny/fundscope/internal/contracts"
)

// ⭐ SSOT: 표 형태 sink (console, csv, excel) 컬럼 순서
var rankingHeader = append(
	[]string{"rank", "id", "name", "category", "manager", "score"},
	append(append([]string{}, contracts.MetricNames...), "observations", "recommended")...,
)

var exclusionHeader = []string{"id", "stage", "kind", "reason"}

// percentMetrics are ratios rendered as percentages
var percentMetrics = map[string]bool{
	contracts.MetricAnnualReturn: true,
	contracts.MetricVolatility:   true,
	contracts.MetricMaxDrawdown:  true,
}

// metricCell renders one metric for text output; missing values print "-"
func metricCell(name string, m contracts.MetricsResult) string {
	v, ok := m.Get(name)
	if !ok {
		return "-"
	}
	switch {
	case percentMetrics[name]:
		return fmt.Sprintf("%.2f%%", v*100)
	case name == contracts.MetricFee, name == contracts.MetricConcentration:
		return fmt.Sprintf("%.2f%%", v) // already a percentage
	case name == contracts.MetricManagerTenure:
		return fmt.Sprintf("%.1fy", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func rankingRow(s contracts.ScoredInstrument) []string {
	row := []string{
		strconv.Itoa(s.Rank),
		s.Instrument.ID,
		s.Instrument.Name,
		s.Instrument.Category,
		managerName(s.Manager),
		fmt.Sprintf("%.4f", s.Score),
	}
	for _, name := range contracts.MetricNames {
		row = append(row, metricCell(name, s.Metrics))
	}
	return append(row, strconv.Itoa(s.Metrics.Observations), yesNo(s.Recommended))
}

func managerName(m *contracts.Manager) string {
	if m == nil || m.Name == "" {
		return "-"
	}
	return m.Name
}

func exclusionRow(e contracts.Exclusion) []string {
	return []string{e.InstrumentID, e.Stage, e.Kind, e.Reason}
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

// fileStem names output files by strategy and run start (local time)
func fileStem(r *contracts.Report) string {
	id := r.StrategyID
	if id == "" {
		id = "fundscope"
	}
	started := r.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	return fmt.Sprintf("%s_%s", id, started.Format("20060102_150405"))
}
