package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "스크리닝 1회 실행",
	Long: `유니버스 로드부터 리포트 출력까지 파이프라인을 1회 실행합니다.

단계:
  1. 유니버스 (fundcode_search.js, 카테고리 필터)
  2. 기간별 순위 스냅샷 (rankhandler)
  3. 4433 백분위 필터
  4. 상세 수집 (NAV / 수수료 / 보유종목 / 벤치마크)
  5. 지표 계산 + 임계값 + 복합 점수

Ctrl+C 시 진행 중인 작업을 중단하고 부분 결과를 출력합니다.

Example:
  go run ./cmd/quant run
  go run ./cmd/quant run --format console,csv,excel --output ./out
  go run ./cmd/quant run --strategy config/strategy.yaml --top 30`,
	RunE: runPipeline,
}

var (
	runFormats []string
	runOutput  string
	runTop     int
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVar(&runFormats, "format", nil, "report formats (console,csv,excel,postgres)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "output directory for csv/excel")
	runCmd.Flags().IntVar(&runTop, "top", 50, "console rows (0 = all)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(runFormats) > 0 {
		a.cfg.Report.Formats = runFormats
	}
	if runOutput != "" {
		a.cfg.Report.OutputDir = runOutput
	}

	strategy, err := a.loadStrategy()
	if err != nil {
		return err
	}

	sinks, err := a.sinks(ctx, nil, runTop)
	if err != nil {
		return err
	}

	p, err := a.buildPipeline(strategy, sinks)
	if err != nil {
		return err
	}

	a.log.WithFields(map[string]interface{}{
		"strategy": strategy.Meta.StrategyID,
		"formats":  strings.Join(a.cfg.Report.Formats, ","),
		"workers":  a.cfg.Worker.Count,
		"cache":    a.cfg.Cache.Backend,
	}).Info("Starting run")

	report, runErr := p.Run(ctx)
	PrintRunSummary(report, a.cache.Stats())

	if runErr != nil {
		PrintError(runErr.Error())
		return fmt.Errorf("run %s: %w", report.RunID, runErr)
	}
	PrintSuccess(fmt.Sprintf("Run %s completed", report.RunID))
	return nil
}
