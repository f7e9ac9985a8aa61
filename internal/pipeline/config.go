package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/fetch"
	"github.com/wonny/fundscope/internal/performance"
	"github.com/wonny/fundscope/internal/selection"
	"github.com/wonny/fundscope/internal/strategyconfig"
	"github.com/wonny/fundscope/pkg/config"
)

// Config is everything one run consumes, built once at startup.
// ⭐ SSOT: 런 파라미터는 환경변수 + 전략 YAML에서만 조립
type Config struct {
	StrategyID string `validate:"required"`
	ConfigHash string

	Screener   selection.ScreenerConfig
	Weights    contracts.ScoreWeights `validate:"required"`
	Thresholds selection.Thresholds
	Recommend  selection.RecommendRule
	Metrics    performance.Params

	FundType      string
	HistoryYears  int `validate:"min=1"`
	DetailLimit   int `validate:"min=0"` // 0 = no limit
	FetchFee      bool
	FetchHoldings bool
	FetchManager  bool
	BenchmarkID   string // empty = no beta

	Policy      fetch.Policy
	RunDeadline time.Duration `validate:"gt=0"`
}

// NewConfig merges env configuration with the strategy file
func NewConfig(env *config.Config, strategy *strategyconfig.Config) (Config, error) {
	hash, err := strategyconfig.Hash(strategy)
	if err != nil {
		return Config{}, fmt.Errorf("hash strategy: %w", err)
	}

	cfg := Config{
		StrategyID:    strategy.Meta.StrategyID,
		ConfigHash:    hash,
		Screener:      strategy.ScreenerConfig(),
		Weights:       strategy.ScoreWeights(),
		Thresholds:    strategy.Thresholds,
		Recommend:     strategy.Scoring.Recommend,
		Metrics:       strategy.MetricParams(),
		FundType:      strategy.Universe.FundType,
		HistoryYears:  strategy.Detail.HistoryYears,
		DetailLimit:   strategy.Detail.Limit,
		FetchFee:      strategy.Detail.Fee,
		FetchHoldings: strategy.Detail.Holdings,
		FetchManager:  strategy.Detail.Manager,
		Policy:        fetch.PolicyFromConfig(env.Fetch),
		RunDeadline:   env.Fetch.RunDeadline,
	}
	if strategy.Benchmark.Enabled {
		cfg.BenchmarkID = strategy.Benchmark.SecID
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the run configuration; any error is fatal at startup
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("pipeline config: %s failed %s", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("pipeline config: %w", err)
	}
	if err := c.Screener.Validate(); err != nil {
		return fmt.Errorf("pipeline config: prefilter: %w", err)
	}
	if err := selection.ValidateWeights(c.Weights); err != nil {
		return fmt.Errorf("pipeline config: weights: %w", err)
	}
	if c.Metrics.MinObservations < 2 || c.Metrics.TradingDays <= 0 {
		return fmt.Errorf("pipeline config: metrics params invalid: %+v", c.Metrics)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("pipeline config: fetch policy: %w", err)
	}
	// 단일 태스크 최악 시간이 런 데드라인보다 짧아야 함
	if wc := c.Policy.WorstCase(); wc >= c.RunDeadline {
		return fmt.Errorf("pipeline config: worst-case task time %s exceeds run deadline %s", wc, c.RunDeadline)
	}
	return nil
}
