// Package pipeline runs one screening pass: universe, ranking snapshots,
// percentile pre-filter, detail fetch, metrics, thresholds and scoring.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/external/eastmoney"
	"github.com/wonny/fundscope/internal/fetch"
	"github.com/wonny/fundscope/internal/performance"
	"github.com/wonny/fundscope/internal/selection"
	"github.com/wonny/fundscope/internal/worker"
	"github.com/wonny/fundscope/pkg/logger"
	"github.com/wonny/fundscope/pkg/telemetry"
)

// sinkTimeout bounds report writes, which run even after cancellation
const sinkTimeout = 2 * time.Minute

// Sources are the fetchers one run consumes. Fee, Holdings, Manager and
// Benchmark are optional.
type Sources struct {
	Universe  contracts.UniverseProvider
	Ranking   fetch.Fetcher[contracts.RankingPage]
	NAV       fetch.Fetcher[contracts.Series]
	Fee       fetch.Fetcher[float64]
	Holdings  fetch.Fetcher[[]contracts.Holding]
	Manager   fetch.Fetcher[contracts.Manager]
	Benchmark fetch.Fetcher[contracts.Series]
}

// Detail is everything fetched for one pre-filter survivor
type Detail struct {
	Series   contracts.Series
	Fee      *float64
	Holdings []contracts.Holding
	Manager  *contracts.Manager
}

// Pipeline orchestrates a run
// ⭐ SSOT: 스크리닝 단계 순서는 여기서만
type Pipeline struct {
	cfg      Config
	sources  Sources
	pool     *worker.Pool
	screener *selection.Screener
	ranker   *selection.Ranker
	sinks    []contracts.ReportSink
	logger   *logger.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// New creates a pipeline; cfg must come from NewConfig or pass Validate
func New(cfg Config, sources Sources, pool *worker.Pool, sinks []contracts.ReportSink, log *logger.Logger, m *telemetry.Metrics) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sources.Universe == nil || sources.Ranking == nil || sources.NAV == nil {
		return nil, errors.New("pipeline: universe, ranking and nav sources are required")
	}
	if pool == nil {
		return nil, errors.New("pipeline: worker pool is required")
	}

	log = log.Component("pipeline")
	return &Pipeline{
		cfg:      cfg,
		sources:  sources,
		pool:     pool,
		screener: selection.NewScreener(cfg.Screener, log),
		ranker:   selection.NewRanker(cfg.Weights, cfg.Recommend, log),
		sinks:    sinks,
		logger:   log,
		metrics:  m,
		now:      time.Now,
	}, nil
}

// Run executes one screening pass. The returned report is never nil;
// the error reports a universe failure or sink failures.
func (p *Pipeline) Run(ctx context.Context) (*contracts.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RunDeadline)
	defer cancel()

	report := &contracts.Report{
		RunID:      uuid.New().String(),
		StrategyID: p.cfg.StrategyID,
		ConfigHash: p.cfg.ConfigHash,
		StartedAt:  p.now(),
		Stats:      contracts.RunStats{Sources: map[string]int{}},
	}
	log := p.logger.WithField("run_id", report.RunID)
	log.Info("Run started")

	runErr := p.run(ctx, report, log)

	report.CompletedAt = p.now()
	report.Cancelled = ctx.Err() != nil
	report.Stats.Ranked = len(report.Ranked)
	report.Stats.Excluded = len(report.Excluded)
	p.metrics.SetRanked(len(report.Ranked))

	sinkErr := p.write(ctx, report)

	log.WithFields(map[string]interface{}{
		"ranked":    report.Stats.Ranked,
		"excluded":  report.Stats.Excluded,
		"cancelled": report.Cancelled,
		"duration":  report.CompletedAt.Sub(report.StartedAt).String(),
	}).Info("Run completed")

	return report, errors.Join(runErr, sinkErr)
}

func (p *Pipeline) run(ctx context.Context, report *contracts.Report, log *logger.Logger) error {
	asOf := p.now()

	// === 1. Universe ===
	stageStart := time.Now()
	universe, err := p.sources.Universe.ListInstruments(ctx)
	p.metrics.ObserveStage(contracts.StageUniverse, time.Since(stageStart))
	if err != nil {
		report.Excluded = append(report.Excluded, contracts.Exclusion{
			Stage:  contracts.StageUniverse,
			Kind:   string(fetch.Classify(err)),
			Reason: err.Error(),
		})
		return fmt.Errorf("load universe: %w", err)
	}
	report.Stats.Universe = len(universe)
	byID := make(map[string]contracts.Instrument, len(universe))
	for _, inst := range universe {
		byID[inst.ID] = inst
	}

	// === 2. Ranking snapshots ===
	snapshots := p.fetchSnapshots(ctx, asOf, report, log)

	// === 3. Pre-filter ===
	screened := p.screener.Screen(universe, snapshots)
	report.Excluded = append(report.Excluded, screened.Excluded...)
	report.Stats.SkippedWindows = screened.SkippedWindows
	report.Stats.PrefilterPass = len(screened.Passed)

	survivors := screened.Passed
	if p.cfg.DetailLimit > 0 && len(survivors) > p.cfg.DetailLimit {
		for _, id := range survivors[p.cfg.DetailLimit:] {
			report.Excluded = append(report.Excluded, contracts.Exclusion{
				InstrumentID: id,
				Stage:        contracts.StageDetail,
				Kind:         "DetailLimit",
				Reason:       fmt.Sprintf("outside top %d pre-filter survivors", p.cfg.DetailLimit),
			})
		}
		survivors = survivors[:p.cfg.DetailLimit]
	}

	// === 4. Detail fetch ===
	from := asOf.AddDate(-p.cfg.HistoryYears, 0, 0)
	benchmark := p.fetchBenchmark(ctx, from, asOf, report, log)
	details := p.fetchDetails(ctx, survivors, from, asOf, report)

	// === 5. Metrics ===
	candidates := make([]selection.Candidate, 0, len(survivors))
	for _, id := range survivors {
		d, ok := details[id]
		if !ok {
			continue
		}
		m := performance.Compute(d.Series, benchmark, d.Fee, p.cfg.Metrics)
		m = performance.WithProfile(m, d.Manager, d.Holdings)
		candidates = append(candidates, selection.Candidate{
			Instrument: byID[id],
			Metrics:    m,
			Holdings:   d.Holdings,
			Manager:    d.Manager,
		})
	}

	// === 6. Thresholds ===
	candidates, thresholdExcluded := p.cfg.Thresholds.Apply(candidates, log)
	report.Excluded = append(report.Excluded, thresholdExcluded...)

	// === 7. Scoring ===
	ranked, scoreExcluded := p.ranker.Rank(candidates)
	report.Ranked = ranked
	report.Excluded = append(report.Excluded, scoreExcluded...)

	return nil
}

// fetchSnapshots loads every configured window; failed windows are nil
func (p *Pipeline) fetchSnapshots(ctx context.Context, asOf time.Time, report *contracts.Report, log *logger.Logger) map[string]*contracts.RankingSnapshot {
	tasks := make([]worker.Task[contracts.RankingPage], 0, len(p.cfg.Screener.Windows))
	for _, rule := range p.cfg.Screener.Windows {
		params := fetch.Params{Values: map[string]string{
			eastmoney.ParamWindow:   rule.Window,
			eastmoney.ParamAsOf:     asOf.Format("2006-01-02"),
			eastmoney.ParamFundType: p.cfg.FundType,
		}}
		tasks = append(tasks, worker.Task[contracts.RankingPage]{
			Key: rule.Window,
			Run: func(ctx context.Context) fetch.Outcome[contracts.RankingPage] {
				return p.sources.Ranking.Fetch(ctx, params)
			},
		})
	}

	outcomes := worker.Run(ctx, p.pool, contracts.StageRanking, tasks)

	snapshots := make(map[string]*contracts.RankingSnapshot, len(outcomes))
	for window, out := range outcomes {
		if !out.OK() {
			log.WithError(out.Err).WithField("window", window).Warn("Ranking window unavailable")
			snapshots[window] = nil
			continue
		}
		snap, err := out.Value.Snapshot()
		if err != nil {
			log.WithError(err).WithField("window", window).Warn("Ranking window unusable")
			snapshots[window] = nil
			continue
		}
		report.Stats.Sources[out.Source]++
		snapshots[window] = snap
	}
	return snapshots
}

// fetchBenchmark returns nil when beta is disabled or the index is unavailable
func (p *Pipeline) fetchBenchmark(ctx context.Context, from, to time.Time, report *contracts.Report, log *logger.Logger) *contracts.Series {
	if p.cfg.BenchmarkID == "" || p.sources.Benchmark == nil {
		return nil
	}
	out := p.sources.Benchmark.Fetch(ctx, rangeParams(p.cfg.BenchmarkID, from, to))
	if !out.OK() {
		log.WithError(out.Err).WithField("benchmark", p.cfg.BenchmarkID).Warn("Benchmark unavailable, beta disabled for this run")
		return nil
	}
	report.Stats.Sources[out.Source]++
	s := out.Value
	return &s
}

// fetchDetails runs NAV (required), fee, holdings and manager (optional) per survivor
func (p *Pipeline) fetchDetails(ctx context.Context, ids []string, from, to time.Time, report *contracts.Report) map[string]Detail {
	tasks := make([]worker.Task[Detail], 0, len(ids))
	for _, id := range ids {
		params := rangeParams(id, from, to)
		tasks = append(tasks, worker.Task[Detail]{
			Key: id,
			Run: func(ctx context.Context) fetch.Outcome[Detail] {
				return p.fetchDetail(ctx, params)
			},
		})
	}

	outcomes := worker.Run(ctx, p.pool, contracts.StageDetail, tasks)

	details := make(map[string]Detail, len(outcomes))
	failed := make([]string, 0)
	for id, out := range outcomes {
		if !out.OK() {
			failed = append(failed, id)
			continue
		}
		report.Stats.Sources[out.Source]++
		details[id] = out.Value
	}

	// deterministic exclusion order
	sort.Strings(failed)
	for _, id := range failed {
		out := outcomes[id]
		report.Excluded = append(report.Excluded, contracts.Exclusion{
			InstrumentID: id,
			Stage:        contracts.StageDetail,
			Kind:         string(out.Err.Kind),
			Reason:       out.Err.Error(),
		})
	}
	report.Stats.DetailFetched = len(details)
	return details
}

func (p *Pipeline) fetchDetail(ctx context.Context, params fetch.Params) fetch.Outcome[Detail] {
	nav := p.sources.NAV.Fetch(ctx, params)
	if !nav.OK() {
		return fetch.Failure[Detail](nav.Err)
	}
	d := Detail{Series: nav.Value}

	// fee / holdings / manager 실패는 해당 지표만 비움
	if p.cfg.FetchFee && p.sources.Fee != nil {
		if out := p.sources.Fee.Fetch(ctx, fetch.Params{InstrumentID: params.InstrumentID}); out.OK() {
			fee := out.Value
			d.Fee = &fee
		} else {
			p.logger.WithError(out.Err).WithField("code", params.InstrumentID).Debug("Fee unavailable")
		}
	}
	if p.cfg.FetchHoldings && p.sources.Holdings != nil {
		if out := p.sources.Holdings.Fetch(ctx, fetch.Params{InstrumentID: params.InstrumentID}); out.OK() {
			d.Holdings = out.Value
		} else {
			p.logger.WithError(out.Err).WithField("code", params.InstrumentID).Debug("Holdings unavailable")
		}
	}
	if p.cfg.FetchManager && p.sources.Manager != nil {
		if out := p.sources.Manager.Fetch(ctx, fetch.Params{InstrumentID: params.InstrumentID}); out.OK() {
			manager := out.Value
			d.Manager = &manager
		} else {
			p.logger.WithError(out.Err).WithField("code", params.InstrumentID).Debug("Manager unavailable")
		}
	}
	return fetch.Success(d, nav.Source)
}

// write sends the report to every sink concurrently. Sinks run on a
// context detached from the run deadline so a cancelled run still
// reports what it has.
func (p *Pipeline) write(ctx context.Context, report *contracts.Report) error {
	if len(p.sinks) == 0 {
		return nil
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	// WithContext 미사용: 한 sink 실패가 다른 sink를 취소하지 않음
	var g errgroup.Group
	errs := make([]error, len(p.sinks))
	for i, sink := range p.sinks {
		i, sink := i, sink
		g.Go(func() error {
			if err := sink.Write(wctx, report); err != nil {
				p.logger.WithError(err).WithField("sink", sink.Name()).Error("Report sink failed")
				errs[i] = fmt.Errorf("sink %s: %w", sink.Name(), err)
				return errs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err == nil {
		return nil
	}
	return errors.Join(errs...)
}

func rangeParams(id string, from, to time.Time) fetch.Params {
	return fetch.Params{
		InstrumentID: id,
		Values: map[string]string{
			eastmoney.ParamFrom: from.Format("2006-01-02"),
			eastmoney.ParamTo:   to.Format("2006-01-02"),
		},
	}
}
