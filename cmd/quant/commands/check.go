package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/fundscope/internal/external/eastmoney"
	"github.com/wonny/fundscope/internal/fetch"
	"github.com/wonny/fundscope/pkg/httputil"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "외부 연결 점검 (eastmoney / Redis / PostgreSQL)",
	Long: `실행 전 의존 자원 연결 상태를 점검합니다.

이 명령어는:
- eastmoney 펀드 목록 1회 조회
- Redis 활성 시 연결 확인
- REPORT_FORMATS에 postgres 포함 시 DB Health Check

Example:
  go run ./cmd/quant check`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	PrintHeader("Connectivity check")

	a, err := bootstrap(ctx)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	defer a.Close()
	PrintSuccess(fmt.Sprintf("Config loaded (ENV: %s, cache: %s)", a.cfg.Env, a.cfg.Cache.Backend))

	if a.redis.Enabled() {
		PrintSuccess("Redis connected")
	} else {
		PrintInfo("Redis disabled")
	}

	if a.db != nil {
		status, err := a.db.HealthCheck(ctx)
		if err != nil {
			PrintError(fmt.Sprintf("Database health check failed: %v", err))
			return err
		}
		PrintSuccess(fmt.Sprintf("Database healthy (%v, %d conns)", status.ResponseTime, status.TotalConns))
	}

	client := eastmoney.NewClient(httputil.New(a.cfg, a.log), a.cfg.Eastmoney, a.log)
	retrier := fetch.NewRetrier(fetch.PolicyFromConfig(a.cfg.Fetch))
	out := fetch.NewChain("universe", retrier, client.FundListProvider()).Fetch(ctx, fetch.Params{})
	if !out.OK() {
		PrintError(fmt.Sprintf("eastmoney fund list: %v", out.Err))
		return out.Err
	}
	PrintSuccess(fmt.Sprintf("eastmoney fund list: %d funds (%s)", len(out.Value), out.Source))

	PrintSeparator()
	PrintSuccess("All checks passed")
	return nil
}
