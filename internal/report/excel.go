package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/wonny/fundscope/internal/contracts"
)

const (
	sheetRanking  = "Ranking"
	sheetExcluded = "Excluded"
	sheetSummary  = "Summary"
)

// Excel writes one workbook per run: ranking, exclusions and run summary
type Excel struct {
	dir string
}

// NewExcel creates an Excel sink
func NewExcel(dir string) *Excel {
	return &Excel{dir: dir}
}

// Name implements contracts.ReportSink
func (e *Excel) Name() string { return "excel" }

// Path returns the workbook path used for r
func (e *Excel) Path(r *contracts.Report) string {
	return filepath.Join(e.dir, fileStem(r)+".xlsx")
}

// Write implements contracts.ReportSink
func (e *Excel) Write(_ context.Context, r *contracts.Report) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), sheetRanking)
	if _, err := f.NewSheet(sheetExcluded); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	// Ranking: 숫자 셀은 숫자로 저장 (엑셀에서 정렬 가능)
	if err := writeRow(f, sheetRanking, 1, toCells(rankingHeader)); err != nil {
		return err
	}
	for i, s := range r.Ranked {
		cells := []interface{}{s.Rank, s.Instrument.ID, s.Instrument.Name, s.Instrument.Category, managerName(s.Manager), s.Score}
		for _, name := range contracts.MetricNames {
			if v, ok := s.Metrics.Get(name); ok {
				cells = append(cells, v)
			} else {
				cells = append(cells, "")
			}
		}
		cells = append(cells, s.Metrics.Observations, yesNo(s.Recommended))
		if err := writeRow(f, sheetRanking, i+2, cells); err != nil {
			return err
		}
	}

	if err := writeRow(f, sheetExcluded, 1, toCells(exclusionHeader)); err != nil {
		return err
	}
	for i, ex := range r.Excluded {
		if err := writeRow(f, sheetExcluded, i+2, toCells(exclusionRow(ex))); err != nil {
			return err
		}
	}

	summary := [][]interface{}{
		{"run_id", r.RunID},
		{"strategy_id", r.StrategyID},
		{"config_hash", r.ConfigHash},
		{"started_at", r.StartedAt.Format("2006-01-02 15:04:05")},
		{"completed_at", r.CompletedAt.Format("2006-01-02 15:04:05")},
		{"universe", r.Stats.Universe},
		{"prefilter_pass", r.Stats.PrefilterPass},
		{"detail_fetched", r.Stats.DetailFetched},
		{"ranked", r.Stats.Ranked},
		{"excluded", r.Stats.Excluded},
		{"cancelled", yesNo(r.Cancelled)},
	}
	for i, cells := range summary {
		if err := writeRow(f, sheetSummary, i+1, cells); err != nil {
			return err
		}
	}

	for _, sheet := range []string{sheetRanking, sheetExcluded} {
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}

	if err := f.SaveAs(e.Path(r)); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to resolve cell: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
