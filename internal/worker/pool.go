// Package worker runs independent fetch tasks on a fixed-size pool.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/fundscope/internal/fetch"
	"github.com/wonny/fundscope/pkg/logger"
	"github.com/wonny/fundscope/pkg/telemetry"
)

// Task is one (instrument, operation) unit of work
type Task[T any] struct {
	Key string // instrument id, unique within a batch
	Run func(ctx context.Context) fetch.Outcome[T]
}

// Pool bounds parallelism and spaces out dispatches
// ⭐ SSOT: 외부 호출 병렬도는 여기서만 제어
type Pool struct {
	workers int
	limiter fetch.Limiter
	logger  *logger.Logger
	metrics *telemetry.Metrics
}

// New creates a pool of n workers. limiter may be nil.
func New(n int, limiter fetch.Limiter, log *logger.Logger, m *telemetry.Metrics) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("worker pool size must be > 0, got %d", n)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pool{
		workers: n,
		limiter: limiter,
		logger:  log.Component("pool"),
		metrics: m,
	}, nil
}

// Workers returns the pool size
func (p *Pool) Workers() int { return p.workers }

// Run executes every task and returns outcomes keyed by Task.Key.
// Results carry no ordering. A failed task never stops the batch; tasks
// not started when ctx ends get a Cancelled outcome.
func Run[T any](ctx context.Context, p *Pool, stage string, tasks []Task[T]) map[string]fetch.Outcome[T] {
	start := time.Now()
	results := make(map[string]fetch.Outcome[T], len(tasks))
	var mu sync.Mutex
	record := func(key string, out fetch.Outcome[T]) {
		mu.Lock()
		results[key] = out
		mu.Unlock()
	}

	p.logger.WithFields(map[string]interface{}{
		"stage":   stage,
		"tasks":   len(tasks),
		"workers": p.workers,
	}).Info("Starting batch")

	taskCh := make(chan Task[T])
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				if err := ctx.Err(); err != nil {
					record(task.Key, cancelled[T](stage, err))
					continue
				}
				record(task.Key, runTask(ctx, stage, task))
			}
		}()
	}

	// dispatch; once ctx ends the rest are marked cancelled
dispatch:
	for i, task := range tasks {
		if err := p.wait(ctx); err != nil {
			markCancelled(tasks[i:], stage, err, record)
			break
		}
		select {
		case taskCh <- task:
		case <-ctx.Done():
			markCancelled(tasks[i:], stage, ctx.Err(), record)
			break dispatch
		}
	}
	close(taskCh)
	wg.Wait()

	ok, failed := 0, 0
	for _, out := range results {
		result := "ok"
		if out.OK() {
			ok++
		} else {
			failed++
			result = string(out.Err.Kind)
		}
		p.metrics.TaskOutcome(stage, result)
	}
	p.metrics.ObserveStage(stage, time.Since(start))

	p.logger.WithFields(map[string]interface{}{
		"stage":    stage,
		"success":  ok,
		"failed":   failed,
		"total":    len(results),
		"duration": time.Since(start).String(),
	}).Info("Batch completed")

	return results
}

func (p *Pool) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		if fetch.LimiterStopped(ctx, err) {
			p.logger.WithError(err).Warn("Dispatch stopped: limiter wait outlasts deadline")
			return err
		}
		// shared budget unavailable (Redis down): keep going unthrottled
		p.logger.WithError(err).Warn("dispatch limiter failed")
	}
	return nil
}

func runTask[T any](ctx context.Context, stage string, task Task[T]) (out fetch.Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = fetch.Failure[T](&fetch.Error{
				Kind: fetch.KindParse,
				Op:   stage,
				Err:  fmt.Errorf("task %s panicked: %v", task.Key, r),
			})
		}
	}()
	return task.Run(ctx)
}

func cancelled[T any](stage string, err error) fetch.Outcome[T] {
	return fetch.Failure[T](&fetch.Error{Kind: fetch.KindCancelled, Op: stage, Err: err})
}

func markCancelled[T any](tasks []Task[T], stage string, err error, record func(string, fetch.Outcome[T])) {
	if err == nil {
		err = context.Canceled
	}
	for _, t := range tasks {
		record(t.Key, cancelled[T](stage, err))
	}
}

// IntervalLimiter enforces a minimum spacing between dispatches.
// A non-positive interval disables spacing.
func IntervalLimiter(interval time.Duration) fetch.Limiter {
	if interval <= 0 {
		return nil
	}
	return intervalLimiter{rate.NewLimiter(rate.Every(interval), 1)}
}

type intervalLimiter struct {
	limiter *rate.Limiter
}

// Wait maps rate's "would exceed context deadline" refusal, which leaves
// ctx alive, onto context.DeadlineExceeded.
func (l intervalLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return nil
}

// Limiters waits on every limiter in order (local floor + shared budget)
type Limiters []fetch.Limiter

func (ls Limiters) Wait(ctx context.Context) error {
	for _, l := range ls {
		if l == nil {
			continue
		}
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
