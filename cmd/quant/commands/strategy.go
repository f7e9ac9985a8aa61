package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/fundscope/internal/strategyconfig"
)

// strategyCmd represents the strategy command
var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "전략 파일 관리",
}

var strategyValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "전략 파일 검증 (오류 + 경고 + 해시)",
	Long: `전략 YAML을 파싱/검증하고 경고와 설정 해시를 출력합니다.
네트워크/DB 연결 없이 동작합니다.

Example:
  go run ./cmd/quant strategy validate config/strategy.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: validateStrategy,
}

func init() {
	rootCmd.AddCommand(strategyCmd)
	strategyCmd.AddCommand(strategyValidateCmd)
}

func validateStrategy(cmd *cobra.Command, args []string) error {
	path := strategyPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		path = os.Getenv("STRATEGY_PATH")
	}
	if path == "" {
		path = "config/strategy.yaml"
	}

	PrintHeader("Strategy " + path)

	cfg, _, err := strategyconfig.Load(path)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return fmt.Errorf("hash strategy: %w", err)
	}

	PrintKeyValue("ID", cfg.Meta.StrategyID, 14)
	PrintKeyValue("Hash", hash[:12], 14)
	PrintKeyValue("Fund type", cfg.Universe.FundType, 14)
	PrintKeyValue("Missing", cfg.Prefilter.MissingWindow, 14)
	for _, w := range cfg.Prefilter.Windows {
		PrintKeyValue("  "+w.Window, fmt.Sprintf("top %.1f%%", w.Threshold*100), 14)
	}

	weights := cfg.ScoreWeights()
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		PrintKeyValue("  "+name, fmt.Sprintf("%.2f", weights[name]), 14)
	}

	PrintSeparator()
	warnings := strategyconfig.Warn(cfg)
	for _, w := range warnings {
		PrintWarning(fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}
	PrintSuccess(fmt.Sprintf("Valid (%d warnings)", len(warnings)))
	return nil
}
