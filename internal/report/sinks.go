// Package report writes finished pipeline reports to their destinations.
package report

import (
	"fmt"
	"io"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/pkg/config"
)

// Deps carries the shared resources some sinks need
type Deps struct {
	Stdout     io.Writer
	DB         TxBeginner // required for "postgres"
	Memory     *Memory    // always appended when set
	ConsoleTop int
}

// NewSinks builds the sinks named in cfg.Formats
func NewSinks(cfg config.ReportConfig, deps Deps) ([]contracts.ReportSink, error) {
	var sinks []contracts.ReportSink
	seen := make(map[string]bool)

	for _, format := range cfg.Formats {
		if seen[format] {
			continue
		}
		seen[format] = true

		switch format {
		case "console":
			if deps.Stdout == nil {
				return nil, fmt.Errorf("console sink requires an output writer")
			}
			sinks = append(sinks, NewConsole(deps.Stdout, deps.ConsoleTop))
		case "csv":
			sinks = append(sinks, NewCSV(cfg.OutputDir))
		case "excel":
			sinks = append(sinks, NewExcel(cfg.OutputDir))
		case "postgres":
			if deps.DB == nil {
				return nil, fmt.Errorf("postgres sink requires a database connection")
			}
			sinks = append(sinks, NewPostgres(deps.DB))
		default:
			return nil, fmt.Errorf("unknown report format: %s", format)
		}
	}

	if deps.Memory != nil {
		sinks = append(sinks, deps.Memory)
	}
	return sinks, nil
}
