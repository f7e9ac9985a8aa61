package contracts

import (
	"context"
	"time"
)

// ScoreWeights maps metric name → weight in [0,1], summing to 1
type ScoreWeights map[string]float64

// Sum returns the total weight
func (w ScoreWeights) Sum() float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}

// ScoredInstrument is one row of the final ranking
// ⭐ SSOT: 최종 랭킹 결과 (sink 입력)
type ScoredInstrument struct {
	Instrument  Instrument         `json:"instrument"`
	Metrics     MetricsResult      `json:"metrics"`
	Score       float64            `json:"score"`
	Rank        int                `json:"rank"`    // 1-based
	Weights     map[string]float64 `json:"weights"` // weights actually applied, sum 1
	Normalized  map[string]float64 `json:"normalized"`
	Holdings    []Holding          `json:"holdings,omitempty"`
	Manager     *Manager           `json:"manager,omitempty"`
	Recommended bool               `json:"recommended"`
}

// Pipeline stages, used in exclusion reasons
const (
	StageUniverse  = "universe"
	StageRanking   = "ranking"
	StagePrefilter = "prefilter"
	StageDetail    = "detail"
	StageMetrics   = "metrics"
	StageThreshold = "threshold"
	StageScoring   = "scoring"
)

// Exclusion explains why an instrument is absent from the ranking
type Exclusion struct {
	InstrumentID string `json:"instrument_id"`
	Stage        string `json:"stage"`
	Kind         string `json:"kind"` // error kind or filter rule
	Reason       string `json:"reason"`
}

// RunStats summarizes one run
type RunStats struct {
	Universe       int            `json:"universe"`
	PrefilterPass  int            `json:"prefilter_pass"`
	DetailFetched  int            `json:"detail_fetched"`
	Ranked         int            `json:"ranked"`
	Excluded       int            `json:"excluded"`
	SkippedWindows []string       `json:"skipped_windows,omitempty"`
	Sources        map[string]int `json:"sources"` // provider name → successes
}

// Report is the output of one pipeline run
type Report struct {
	RunID       string             `json:"run_id"`
	StrategyID  string             `json:"strategy_id"`
	ConfigHash  string             `json:"config_hash"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Ranked      []ScoredInstrument `json:"ranked"`
	Excluded    []Exclusion        `json:"excluded"`
	Stats       RunStats           `json:"stats"`
	Cancelled   bool               `json:"cancelled"`
}

// ReportSink writes a finished report (CSV, Excel, DB ...)
type ReportSink interface {
	Name() string
	Write(ctx context.Context, report *Report) error
}
