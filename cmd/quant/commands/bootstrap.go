package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/wonny/fundscope/internal/cache"
	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/external/eastmoney"
	"github.com/wonny/fundscope/internal/fetch"
	"github.com/wonny/fundscope/internal/pipeline"
	"github.com/wonny/fundscope/internal/report"
	"github.com/wonny/fundscope/internal/strategyconfig"
	"github.com/wonny/fundscope/internal/worker"
	"github.com/wonny/fundscope/pkg/config"
	"github.com/wonny/fundscope/pkg/database"
	"github.com/wonny/fundscope/pkg/httputil"
	"github.com/wonny/fundscope/pkg/logger"
	"github.com/wonny/fundscope/pkg/redis"
	"github.com/wonny/fundscope/pkg/telemetry"
)

// app holds process-wide dependencies shared by the commands
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *telemetry.Metrics
	cache   *cache.Cache
	store   persistentStore // nil for the memory backend
	redis   *redis.Client
	db      *database.DB // nil unless postgres sink is enabled
	closers []func() error
}

// bootstrap loads config and opens shared resources
// ⭐ 초기화 순서: config → logger → metrics → redis → cache → db
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if strategyPath != "" {
		cfg.StrategyPath = strategyPath
	}

	a := &app{cfg: cfg, log: logger.New(cfg)}
	if cfg.MetricsEnabled {
		a.metrics = telemetry.New()
	}

	a.redis, err = redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, a.redis.Close)

	a.cache, err = a.newCache()
	if err != nil {
		a.Close()
		return nil, err
	}

	if wantsFormat(cfg.Report.Formats, "postgres") {
		a.db, err = database.New(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, func() error { a.db.Close(); return nil })
	}

	return a, nil
}

// Close releases resources in reverse order
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("Failed to close resource")
		}
	}
	a.closers = nil
}

// persistentStore is the backing cache store as seen by "cache" commands
type persistentStore interface {
	cache.Store
	Count(ctx context.Context) (int, error)
	Purge(ctx context.Context) error
}

// newCache picks the store behind the in-memory cache
func (a *app) newCache() (*cache.Cache, error) {
	opts := []cache.Option{cache.WithLogger(a.log), cache.WithMetrics(a.metrics)}

	switch a.cfg.Cache.Backend {
	case "redis":
		a.store = redis.NewStore(a.redis, "fundscope")
	case "badger":
		store, err := cache.OpenBadger(a.cfg.Cache.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("open badger cache: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.store = store
	}
	if a.store != nil {
		opts = append(opts, cache.WithStore(a.store))
	}

	a.log.WithField("backend", a.cfg.Cache.Backend).Debug("Cache initialized")
	return cache.New(opts...), nil
}

// limiters returns (pool dispatch limiter, per-attempt limiter).
// With Redis the per-attempt budget is shared across processes.
func (a *app) limiters() (fetch.Limiter, fetch.Limiter) {
	dispatch := worker.IntervalLimiter(a.cfg.Worker.MinInterval)

	attempt := worker.Limiters{worker.IntervalLimiter(a.cfg.Fetch.MinInterval)}
	if a.redis.Enabled() {
		budget := redis.EastmoneyRateLimit
		if a.cfg.Worker.BudgetLimit > 0 {
			budget.Limit = a.cfg.Worker.BudgetLimit
		}
		if a.cfg.Worker.BudgetWindow > 0 {
			budget.Window = a.cfg.Worker.BudgetWindow
		}
		attempt = append(attempt, redis.NewBudget(redis.NewRateLimiter(a.redis, "fundscope:ratelimit"), budget))
	}
	return dispatch, attempt
}

// loadStrategy reads and validates the strategy file
func (a *app) loadStrategy() (*strategyconfig.Config, error) {
	strategy, _, err := strategyconfig.Load(a.cfg.StrategyPath)
	if err != nil {
		return nil, fmt.Errorf("load strategy %s: %w", a.cfg.StrategyPath, err)
	}
	for _, w := range strategyconfig.Warn(strategy) {
		a.log.WithField("code", w.Code).Warn(w.Message)
	}
	return strategy, nil
}

// sources builds every fetch chain the pipeline consumes
func (a *app) sources(strategy *strategyconfig.Config, policy fetch.Policy) pipeline.Sources {
	_, attemptLimiter := a.limiters()
	retrier := fetch.NewRetrier(policy,
		fetch.WithLimiter(attemptLimiter),
		fetch.WithHook(fetch.LogHook(a.log, a.metrics)),
	)

	client := eastmoney.NewClient(httputil.New(a.cfg, a.log), a.cfg.Eastmoney, a.log)
	ttl := a.cfg.Cache
	breakers := fetch.DefaultBreakerSettings

	universeChain := fetch.NewChain("universe", retrier, client.FundListProvider()).
		WithLogger(a.log).
		WithBreakers(breakers, a.metrics)
	rankingChain := fetch.NewChain("ranking", retrier, client.RankingProvider()).
		WithValidator(eastmoney.ValidateRanking).
		WithLogger(a.log).
		WithBreakers(breakers, a.metrics)
	navChain := fetch.NewChain("nav", retrier, client.NAVProviders()...).
		WithValidator(eastmoney.MinPoints(strategy.Metrics.MinObservations+1)).
		WithLogger(a.log).
		WithBreakers(breakers, a.metrics)

	src := pipeline.Sources{
		Universe: eastmoney.NewUniverse(
			fetch.NewCached(universeChain, a.cache, ttl.MetadataTTL),
			strategy.Universe.Categories, a.log),
		Ranking: fetch.NewCached(rankingChain, a.cache, ttl.RankingTTL),
		NAV:     fetch.NewCached(navChain, a.cache, ttl.HistoryTTL),
	}

	if strategy.Detail.Fee {
		feeChain := fetch.NewChain("fee", retrier, client.FeeProviders()...).
			WithValidator(eastmoney.ValidateFee).
			WithLogger(a.log).
			WithBreakers(breakers, a.metrics)
		src.Fee = fetch.NewCached(feeChain, a.cache, ttl.MetadataTTL)
	}
	if strategy.Detail.Holdings {
		holdingsChain := fetch.NewChain("holdings", retrier, client.HoldingsProvider()).
			WithLogger(a.log).
			WithBreakers(breakers, a.metrics)
		src.Holdings = fetch.NewCached(holdingsChain, a.cache, ttl.MetadataTTL)
	}
	if strategy.Detail.Manager {
		managerChain := fetch.NewChain("manager", retrier, client.ManagerProvider()).
			WithLogger(a.log).
			WithBreakers(breakers, a.metrics)
		src.Manager = fetch.NewCached(managerChain, a.cache, ttl.MetadataTTL)
	}
	if strategy.Benchmark.Enabled {
		benchmarkChain := fetch.NewChain("benchmark", retrier, client.BenchmarkProvider()).
			WithValidator(eastmoney.MinPoints(2)).
			WithLogger(a.log).
			WithBreakers(breakers, a.metrics)
		src.Benchmark = fetch.NewCached(benchmarkChain, a.cache, ttl.HistoryTTL)
	}
	return src
}

// buildPipeline wires strategy, sources, pool and sinks into a pipeline
func (a *app) buildPipeline(strategy *strategyconfig.Config, sinks []contracts.ReportSink) (*pipeline.Pipeline, error) {
	cfg, err := pipeline.NewConfig(a.cfg, strategy)
	if err != nil {
		return nil, err
	}

	dispatch, _ := a.limiters()
	pool, err := worker.New(a.cfg.Worker.Count, dispatch, a.log, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return pipeline.New(cfg, a.sources(strategy, cfg.Policy), pool, sinks, a.log, a.metrics)
}

// sinks builds report sinks from config; mem may be nil
func (a *app) sinks(ctx context.Context, mem *report.Memory, consoleTop int) ([]contracts.ReportSink, error) {
	deps := report.Deps{Stdout: os.Stdout, Memory: mem, ConsoleTop: consoleTop}
	if a.db != nil {
		pg := report.NewPostgres(a.db.Pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare report schema: %w", err)
		}
		deps.DB = a.db.Pool
	}
	return report.NewSinks(a.cfg.Report, deps)
}

func wantsFormat(formats []string, name string) bool {
	for _, f := range formats {
		if f == name {
			return true
		}
	}
	return false
}
