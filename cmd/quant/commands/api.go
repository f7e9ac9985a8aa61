package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/fundscope/internal/api"
	"github.com/wonny/fundscope/internal/api/handlers"
	"github.com/wonny/fundscope/internal/report"
	"github.com/wonny/fundscope/internal/scheduler"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 + 스케줄 실행",
	Long: `조회 API를 띄우고, 스케줄이 설정된 경우 cron으로 파이프라인을 실행합니다.

Endpoints:
  GET  /health           - Health check
  GET  /metrics          - Prometheus metrics
  GET  /api/ranking      - 최신 랭킹 (?limit=&recommended=true)
  GET  /api/exclusions   - 최신 제외 목록 (?stage=&kind=)
  GET  /api/runs         - 실행 이력
  GET  /api/runs/{id}    - 실행 상세
  POST /api/runs         - 즉시 실행

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8089 --schedule "30 20 * * 1-5" --run-now`,
	RunE: runAPIServer,
}

var (
	apiPort     string
	apiSchedule string
	apiRunNow   bool
)

// chinaTZ evaluates schedules in the exchange's timezone
var chinaTZ = time.FixedZone("CST", 8*3600)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API port (default: PORT)")
	apiCmd.Flags().StringVar(&apiSchedule, "schedule", "", "cron expression (default: SCHEDULE)")
	apiCmd.Flags().BoolVar(&apiRunNow, "run-now", false, "run once at startup")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}
	if apiSchedule != "" {
		a.cfg.Schedule = apiSchedule
	}

	strategy, err := a.loadStrategy()
	if err != nil {
		return err
	}

	mem := report.NewMemory(report.DefaultHistory)
	sinks, err := a.sinks(ctx, mem, 0)
	if err != nil {
		return err
	}
	p, err := a.buildPipeline(strategy, sinks)
	if err != nil {
		return err
	}

	// 수동 실행(POST /api/runs)도 같은 job을 통해 중복 실행 방지
	jobName := strategy.Meta.StrategyID
	schedule := a.cfg.Schedule
	if schedule == "" {
		schedule = "@daily"
	}
	sched := scheduler.New(a.log, scheduler.WithLocation(chinaTZ))
	if err := sched.AddJob(scheduler.NewPipelineJob(jobName, schedule, p, a.log)); err != nil {
		return fmt.Errorf("register job: %w", err)
	}
	if a.cfg.Schedule != "" {
		sched.Start()
	}
	defer sched.Stop()

	if apiRunNow {
		if err := sched.RunJob(jobName); err != nil {
			return fmt.Errorf("start initial run: %w", err)
		}
	}

	handler := handlers.NewReportHandler(mem, sched, jobName, a.log)
	var metrics http.Handler
	if a.metrics != nil {
		metrics = a.metrics.Handler()
	}
	router := api.NewRouter(handler, metrics, a.log)

	a.log.WithFields(map[string]interface{}{
		"port":     a.cfg.Port,
		"schedule": a.cfg.Schedule,
		"job":      jobName,
	}).Info("Serving")

	return api.New(":"+a.cfg.Port, router, a.log).Run(ctx)
}
