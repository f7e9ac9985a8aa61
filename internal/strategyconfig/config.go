package strategyconfig

import (
	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/performance"
	"github.com/wonny/fundscope/internal/selection"
)

// Config는 펀드 스크리닝 전략의 전체 설정
type Config struct {
	Meta       Meta                 `yaml:"meta" json:"meta"`
	Universe   Universe             `yaml:"universe" json:"universe"`
	Prefilter  Prefilter            `yaml:"prefilter" json:"prefilter"`
	Detail     Detail               `yaml:"detail" json:"detail"`
	Metrics    Metrics              `yaml:"metrics" json:"metrics"`
	Benchmark  Benchmark            `yaml:"benchmark" json:"benchmark"`
	Thresholds selection.Thresholds `yaml:"thresholds" json:"thresholds"`
	Scoring    Scoring              `yaml:"scoring" json:"scoring"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id" validate:"required"`
	Version    string `yaml:"version" json:"version" validate:"required"`
}

// Universe: 후보 펀드 풀
type Universe struct {
	// category prefixes (混合型, 股票型 ...), empty = all
	Categories []string `yaml:"categories" json:"categories"`
	// rankhandler ft: hh=混合, gp=股票, zs=指数, zq=债券
	FundType string `yaml:"fund_type" json:"fund_type" validate:"oneof=all gp hh zq zs qdii fof"`
}

// Prefilter: 4433 percentile rule
type Prefilter struct {
	Windows       []Window `yaml:"windows" json:"windows" validate:"required,min=1,dive"`
	MissingWindow string   `yaml:"missing_window" json:"missing_window" validate:"required,oneof=skip fail"`
}

type Window struct {
	Window    string  `yaml:"window" json:"window" validate:"required"`
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"gt=0,lte=1"`
}

// Detail: survivor detail fetch
type Detail struct {
	HistoryYears int  `yaml:"history_years" json:"history_years" validate:"min=1,max=20"`
	Limit        int  `yaml:"limit" json:"limit" validate:"min=0"` // 0 = every survivor
	Fee          bool `yaml:"fee" json:"fee"`
	Holdings     bool `yaml:"holdings" json:"holdings"` // also feeds concentration
	Manager      bool `yaml:"manager" json:"manager"`
}

// Metrics: 지표 계산 파라미터
type Metrics struct {
	MinObservations int     `yaml:"min_observations" json:"min_observations" validate:"min=2"`
	RiskFreeRate    float64 `yaml:"risk_free_rate" json:"risk_free_rate" validate:"gte=0,lt=1"`
	TradingDays     int     `yaml:"trading_days" json:"trading_days" validate:"min=1,max=366"`
}

// Benchmark for beta
type Benchmark struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	SecID   string `yaml:"secid" json:"secid" validate:"required_if=Enabled true"` // 1.000300 = 沪深300
	Name    string `yaml:"name" json:"name"`
}

// Scoring: 종합 점수 가중치 (합 = 1.0)
type Scoring struct {
	Weights   map[string]float64      `yaml:"weights" json:"weights" validate:"required"`
	Recommend selection.RecommendRule `yaml:"recommend" json:"recommend"`
}

// ScreenerConfig converts the prefilter section
func (c *Config) ScreenerConfig() selection.ScreenerConfig {
	rules := make([]selection.WindowRule, len(c.Prefilter.Windows))
	for i, w := range c.Prefilter.Windows {
		rules[i] = selection.WindowRule{Window: w.Window, Threshold: w.Threshold}
	}
	return selection.ScreenerConfig{
		Windows:       rules,
		MissingWindow: selection.MissingWindowPolicy(c.Prefilter.MissingWindow),
	}
}

// MetricParams converts the metrics section
func (c *Config) MetricParams() performance.Params {
	return performance.Params{
		MinObservations: c.Metrics.MinObservations,
		RiskFreeRate:    c.Metrics.RiskFreeRate,
		TradingDays:     c.Metrics.TradingDays,
	}
}

// ScoreWeights returns a copy of the scoring weights
func (c *Config) ScoreWeights() contracts.ScoreWeights {
	w := make(contracts.ScoreWeights, len(c.Scoring.Weights))
	for k, v := range c.Scoring.Weights {
		w[k] = v
	}
	return w
}

// Default returns the built-in strategy (same as config/strategy.yaml)
func Default() *Config {
	windows := make([]Window, 0, 5)
	for _, r := range selection.DefaultWindowRules() {
		windows = append(windows, Window{Window: r.Window, Threshold: r.Threshold})
	}
	p := performance.DefaultParams()

	return &Config{
		Meta:     Meta{StrategyID: "fund_4433", Version: "1.0.0"},
		Universe: Universe{Categories: []string{"混合型"}, FundType: "hh"},
		Prefilter: Prefilter{
			Windows:       windows,
			MissingWindow: string(selection.MissingWindowSkip),
		},
		Detail: Detail{HistoryYears: 3, Fee: true, Holdings: true, Manager: true},
		Metrics: Metrics{
			MinObservations: p.MinObservations,
			RiskFreeRate:    p.RiskFreeRate,
			TradingDays:     p.TradingDays,
		},
		Benchmark: Benchmark{Enabled: true, SecID: "1.000300", Name: "沪深300"},
		Scoring: Scoring{
			Weights:   selection.DefaultWeights(),
			Recommend: selection.DefaultRecommendRule(),
		},
	}
}
