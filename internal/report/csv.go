package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wonny/fundscope/internal/contracts"
)

// utf8BOM makes spreadsheet apps detect UTF-8 (Chinese fund names)
const utf8BOM = "\xEF\xBB\xBF"

// CSV writes <stem>.csv (ranking) and <stem>_excluded.csv into dir
type CSV struct {
	dir string
}

// NewCSV creates a CSV sink
func NewCSV(dir string) *CSV {
	return &CSV{dir: dir}
}

// Name implements contracts.ReportSink
func (c *CSV) Name() string { return "csv" }

// Write implements contracts.ReportSink
func (c *CSV) Write(_ context.Context, r *contracts.Report) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	stem := fileStem(r)

	ranking := make([][]string, 0, len(r.Ranked))
	for _, s := range r.Ranked {
		ranking = append(ranking, rankingRow(s))
	}
	if err := writeCSV(filepath.Join(c.dir, stem+".csv"), rankingHeader, ranking); err != nil {
		return err
	}

	excluded := make([][]string, 0, len(r.Excluded))
	for _, e := range r.Excluded {
		excluded = append(excluded, exclusionRow(e))
	}
	return writeCSV(filepath.Join(c.dir, stem+"_excluded.csv"), exclusionHeader, excluded)
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(utf8BOM); err != nil {
		return fmt.Errorf("failed to write CSV BOM: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV records: %w", err)
	}
	return file.Close()
}
