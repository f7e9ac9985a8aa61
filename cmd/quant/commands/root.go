package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyPath string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "fundscope - 공모펀드 4433 스크리닝 + 복합 스코어링",
	Long: `fundscope CLI

eastmoney 공모펀드 데이터로 4433 백분위 필터 → 상세 수집 →
지표 계산 → 복합 점수 랭킹을 수행합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant run
  go run ./cmd/quant run --format console,excel --top 20
  go run ./cmd/quant api --schedule "30 20 * * 1-5"
  go run ./cmd/quant strategy validate config/strategy.yaml
  go run ./cmd/quant check`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&strategyPath, "strategy", "", "strategy file (default: STRATEGY_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
