package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/external/eastmoney"
	"github.com/wonny/fundscope/internal/fetch"
	"github.com/wonny/fundscope/internal/performance"
	"github.com/wonny/fundscope/internal/selection"
	"github.com/wonny/fundscope/internal/worker"
	"github.com/wonny/fundscope/pkg/logger"
)

// fetcherFunc adapts a function to fetch.Fetcher
type fetcherFunc[T any] func(ctx context.Context, p fetch.Params) fetch.Outcome[T]

func (f fetcherFunc[T]) Fetch(ctx context.Context, p fetch.Params) fetch.Outcome[T] { return f(ctx, p) }

type staticUniverse []contracts.Instrument

func (u staticUniverse) ListInstruments(ctx context.Context) ([]contracts.Instrument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return u, nil
}

type recordingSink struct {
	mu      sync.Mutex
	name    string
	reports []*contracts.Report
	err     error
	delay   time.Duration
	ctxErr  error // ctx state seen by Write
}

func (s *recordingSink) Name() string {
	if s.name == "" {
		return "recording"
	}
	return s.name
}

func (s *recordingSink) Write(ctx context.Context, r *contracts.Report) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	s.ctxErr = ctx.Err()
	return s.err
}

// rankingPage puts each listed id at the given 1-based rank among total rows
func rankingPage(window string, total int, ranks map[string]int) contracts.RankingPage {
	rows := make([]contracts.RankedID, total)
	for i := range rows {
		rows[i] = contracts.RankedID{ID: fmt.Sprintf("F%03d", i+1)}
	}
	for id, r := range ranks {
		rows[r-1] = contracts.RankedID{ID: id}
	}
	return contracts.RankingPage{Window: window, Total: total, Rows: rows}
}

// navSeries alternates up/down daily returns for n points
func navSeries(id string, n int, up, down float64) contracts.Series {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	pts := make([]contracts.TimePoint, n)
	v := 1.0
	for i := range pts {
		pts[i] = contracts.TimePoint{Date: start.AddDate(0, 0, i), Value: v}
		if i%2 == 0 {
			v *= 1 + up
		} else {
			v *= 1 + down
		}
	}
	return contracts.NewSeries(id, pts)
}

func testConfig() Config {
	return Config{
		StrategyID: "test",
		Screener: selection.ScreenerConfig{
			Windows:       selection.DefaultWindowRules(),
			MissingWindow: selection.MissingWindowSkip,
		},
		Weights: contracts.ScoreWeights{
			contracts.MetricAnnualReturn: 0.5,
			contracts.MetricSharpe:       0.5,
		},
		Recommend:    selection.DefaultRecommendRule(),
		Metrics:      performance.DefaultParams(),
		FundType:     "hh",
		HistoryYears: 3,
		FetchFee:     true,
		Policy:       fetch.Policy{MaxAttempts: 1, Timeout: time.Second, RateLimitFactor: 1},
		RunDeadline:  time.Minute,
	}
}

// scenarioSources: A passes every window, B fails 6m (40th percentile),
// the 2y snapshot cannot be loaded, C passes the rest
func scenarioSources(navCalls *int32) Sources {
	pages := map[string]contracts.RankingPage{
		"3y": rankingPage("3y", 100, map[string]int{"A": 20, "B": 10, "C": 5}),
		"1y": rankingPage("1y", 100, map[string]int{"A": 10, "B": 12, "C": 8}),
		"6m": rankingPage("6m", 100, map[string]int{"A": 30, "B": 40, "C": 3}),
		"3m": rankingPage("3m", 100, map[string]int{"A": 25, "B": 1, "C": 30}),
	}
	series := map[string]contracts.Series{
		"A": navSeries("A", 300, 0.002, -0.001),
		"B": navSeries("B", 300, 0.004, -0.001),
		"C": navSeries("C", 300, 0.003, -0.001),
	}

	return Sources{
		Universe: staticUniverse{{ID: "A", Name: "Alpha"}, {ID: "B", Name: "Beta"}, {ID: "C", Name: "Gamma"}},
		Ranking: fetcherFunc[contracts.RankingPage](func(_ context.Context, p fetch.Params) fetch.Outcome[contracts.RankingPage] {
			page, ok := pages[p.Get(eastmoney.ParamWindow)]
			if !ok {
				return fetch.Failure[contracts.RankingPage](&fetch.Error{Kind: fetch.KindAllSourcesExhausted, Op: "ranking"})
			}
			return fetch.Success(page, "fake-ranking")
		}),
		NAV: fetcherFunc[contracts.Series](func(_ context.Context, p fetch.Params) fetch.Outcome[contracts.Series] {
			if navCalls != nil {
				atomic.AddInt32(navCalls, 1)
			}
			return fetch.Success(series[p.InstrumentID], "fake-nav")
		}),
		Fee: fetcherFunc[float64](func(context.Context, fetch.Params) fetch.Outcome[float64] {
			return fetch.Success(1.5, "fake-fee")
		}),
	}
}

func newTestPipeline(t *testing.T, cfg Config, sources Sources, sinks ...contracts.ReportSink) *Pipeline {
	t.Helper()
	pool, err := worker.New(3, nil, logger.Nop(), nil)
	require.NoError(t, err)
	p, err := New(cfg, sources, pool, sinks, logger.Nop(), nil)
	require.NoError(t, err)
	return p
}

func TestRun_EndToEndScenario(t *testing.T) {
	var navCalls int32
	sink := &recordingSink{}
	p := newTestPipeline(t, testConfig(), scenarioSources(&navCalls), sink)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	// pre-filter {A, C}; B never reaches detail fetch
	assert.Equal(t, 3, report.Stats.Universe)
	assert.Equal(t, 2, report.Stats.PrefilterPass)
	assert.Equal(t, []string{"2y"}, report.Stats.SkippedWindows)
	assert.Equal(t, int32(2), atomic.LoadInt32(&navCalls))

	// C has the higher return and Sharpe
	require.Len(t, report.Ranked, 2)
	assert.Equal(t, "C", report.Ranked[0].Instrument.ID)
	assert.Equal(t, "Gamma", report.Ranked[0].Instrument.Name)
	assert.Equal(t, "A", report.Ranked[1].Instrument.ID)
	assert.Greater(t, report.Ranked[0].Score, report.Ranked[1].Score)
	assert.Equal(t, 1, report.Ranked[0].Rank)
	require.NotNil(t, report.Ranked[0].Metrics.Fee)
	assert.Equal(t, 1.5, *report.Ranked[0].Metrics.Fee)

	require.Len(t, report.Excluded, 1)
	assert.Equal(t, "B", report.Excluded[0].InstrumentID)
	assert.Equal(t, contracts.StagePrefilter, report.Excluded[0].Stage)

	assert.False(t, report.Cancelled)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Stats.Sources["fake-nav"])
	assert.Equal(t, 4, report.Stats.Sources["fake-ranking"])

	require.Len(t, sink.reports, 1)
	assert.Same(t, report, sink.reports[0])
}

func TestRun_DetailFailureExcludesWithKind(t *testing.T) {
	sources := scenarioSources(nil)
	good := sources.NAV
	sources.NAV = fetcherFunc[contracts.Series](func(ctx context.Context, p fetch.Params) fetch.Outcome[contracts.Series] {
		if p.InstrumentID == "A" {
			return fetch.Failure[contracts.Series](&fetch.Error{Kind: fetch.KindAllSourcesExhausted, Op: "nav_history"})
		}
		return good.Fetch(ctx, p)
	})
	cfg := testConfig()
	cfg.Weights = contracts.ScoreWeights{contracts.MetricFee: 0.5, contracts.MetricAnnualReturn: 0.5}

	report, err := newTestPipeline(t, cfg, sources).Run(context.Background())
	require.NoError(t, err)

	// C alone: every metric has a single value, so nothing is usable
	assert.Empty(t, report.Ranked)
	kinds := map[string]string{}
	for _, ex := range report.Excluded {
		kinds[ex.InstrumentID] = ex.Stage + "/" + ex.Kind
	}
	assert.Equal(t, "detail/AllSourcesExhausted", kinds["A"])
	assert.Equal(t, "scoring/InsufficientData", kinds["C"])
}

func TestRun_ManagerAndConcentration(t *testing.T) {
	var managerCalls int32
	sources := scenarioSources(nil)
	sources.Holdings = fetcherFunc[[]contracts.Holding](func(_ context.Context, p fetch.Params) fetch.Outcome[[]contracts.Holding] {
		if p.InstrumentID == "A" {
			return fetch.Success([]contracts.Holding{{Code: "600519", Weight: 40}, {Code: "000858", Weight: 30}}, "fake-holdings")
		}
		return fetch.Success([]contracts.Holding{{Code: "600036", Weight: 10}, {Code: "601318", Weight: 5}}, "fake-holdings")
	})
	sources.Manager = fetcherFunc[contracts.Manager](func(_ context.Context, p fetch.Params) fetch.Outcome[contracts.Manager] {
		atomic.AddInt32(&managerCalls, 1)
		if p.InstrumentID == "A" {
			return fetch.Success(contracts.Manager{Name: "张坤", TenureYears: 0.5}, "fake-manager")
		}
		return fetch.Failure[contracts.Manager](&fetch.Error{Kind: fetch.KindUnavailable, Op: "manager"})
	})

	cfg := testConfig()
	cfg.FetchHoldings = true
	cfg.FetchManager = true
	cfg.Weights = contracts.ScoreWeights{contracts.MetricConcentration: 0.5, contracts.MetricManagerTenure: 0.5}

	report, err := newTestPipeline(t, cfg, sources).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&managerCalls))

	// 운용역 실패는 해당 지표만 비움; tenure는 A 하나뿐이라 제외
	require.Len(t, report.Ranked, 2)
	c, a := report.Ranked[0], report.Ranked[1]
	assert.Equal(t, "C", c.Instrument.ID)
	require.NotNil(t, c.Metrics.Concentration)
	assert.Equal(t, 15.0, *c.Metrics.Concentration)
	assert.Nil(t, c.Metrics.ManagerTenure)
	assert.Nil(t, c.Manager)
	assert.Equal(t, map[string]float64{contracts.MetricConcentration: 1}, c.Weights)

	require.NotNil(t, a.Manager)
	assert.Equal(t, "张坤", a.Manager.Name)
	require.NotNil(t, a.Metrics.ManagerTenure)
	assert.Equal(t, 0.5, *a.Metrics.ManagerTenure)

	// detail.manager off → 호출 없음
	cfg.FetchManager = false
	report, err = newTestPipeline(t, cfg, sources).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&managerCalls))
	for _, r := range report.Ranked {
		assert.Nil(t, r.Metrics.ManagerTenure)
	}
}

func TestRun_DetailLimitAndThresholds(t *testing.T) {
	cfg := testConfig()
	cfg.DetailLimit = 1
	cfg.Thresholds = selection.Thresholds{MaxFee: contracts.Float(1.0)}

	report, err := newTestPipeline(t, cfg, scenarioSources(nil)).Run(context.Background())
	require.NoError(t, err)

	// C ranks first in 3y so A is cut by the limit; C then fails max fee
	assert.Empty(t, report.Ranked)
	stages := map[string]string{}
	for _, ex := range report.Excluded {
		stages[ex.InstrumentID] = ex.Stage
	}
	assert.Equal(t, contracts.StageDetail, stages["A"])
	assert.Equal(t, contracts.StageThreshold, stages["C"])
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	sink := &recordingSink{}
	p := newTestPipeline(t, testConfig(), scenarioSources(nil), sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx)
	require.Error(t, err)
	assert.True(t, report.Cancelled)
	assert.Empty(t, report.Ranked)
	require.Len(t, report.Excluded, 1)
	assert.Equal(t, contracts.StageUniverse, report.Excluded[0].Stage)
	assert.Equal(t, string(fetch.KindCancelled), report.Excluded[0].Kind)

	// sinks still receive the partial report
	assert.Len(t, sink.reports, 1)
}

func TestRun_CancelledDuringDetail(t *testing.T) {
	sources := scenarioSources(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sources.NAV = fetcherFunc[contracts.Series](func(fctx context.Context, _ fetch.Params) fetch.Outcome[contracts.Series] {
		cancel()
		<-fctx.Done()
		return fetch.Failure[contracts.Series](&fetch.Error{Kind: fetch.KindCancelled, Op: "nav_history", Err: fctx.Err()})
	})

	report, err := newTestPipeline(t, testConfig(), sources).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	for _, ex := range report.Excluded {
		if ex.Stage == contracts.StageDetail {
			assert.Equal(t, string(fetch.KindCancelled), ex.Kind)
		}
	}
}

func TestRun_SinkErrorReturned(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	report, err := newTestPipeline(t, testConfig(), scenarioSources(nil), sink).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, report.Ranked, 2)
}

func TestRun_SinkFailuresIsolated(t *testing.T) {
	csv := &recordingSink{name: "csv", err: errors.New("disk full")}
	db := &recordingSink{name: "postgres", err: errors.New("connection refused")}
	mem := &recordingSink{name: "memory", delay: 20 * time.Millisecond} // finishes after the failures

	report, err := newTestPipeline(t, testConfig(), scenarioSources(nil), csv, db, mem).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink csv: disk full")
	assert.Contains(t, err.Error(), "sink postgres: connection refused")
	require.NotNil(t, report)

	for _, s := range []*recordingSink{csv, db, mem} {
		assert.Len(t, s.reports, 1, s.name)
	}
	assert.NoError(t, mem.ctxErr, "a failing sink does not cancel the others")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no strategy id", func(c *Config) { c.StrategyID = "" }},
		{"bad weights", func(c *Config) { c.Weights[contracts.MetricSharpe] = 0.9 }},
		{"no missing policy", func(c *Config) { c.Screener.MissingWindow = "" }},
		{"zero attempts", func(c *Config) { c.Policy.MaxAttempts = 0 }},
		{"deadline too short", func(c *Config) { c.RunDeadline = time.Second }},
		{"min observations", func(c *Config) { c.Metrics.MinObservations = 0 }},
	}

	require.NoError(t, testConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
