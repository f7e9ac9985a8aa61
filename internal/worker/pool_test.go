package worker

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

	"github.com/wonny/fundscope/internal/fetch"
	"github.com/wonny/fundscope/pkg/logger"
	"github.com/wonny/fundscope/pkg/telemetry"
)

func okTask(key string, v int) Task[int] {
	return Task[int]{Key: key, Run: func(context.Context) fetch.Outcome[int] {
		return fetch.Success(v, "stub")
	}}
}

func TestNew_RejectsNonPositiveSize(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := New(n, nil, nil, nil)
		assert.Error(t, err)
	}

	p, err := New(3, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Workers())
}

func TestRun_AllTasksKeyed(t *testing.T) {
	p, _ := New(4, nil, logger.Nop(), telemetry.New())

	tasks := make([]Task[int], 50)
	for i := range tasks {
		tasks[i] = okTask(fmt.Sprintf("%06d", i), i)
	}

	results := Run(context.Background(), p, "detail", tasks)

	require.Len(t, results, 50)
	for i := range tasks {
		out := results[fmt.Sprintf("%06d", i)]
		require.True(t, out.OK())
		assert.Equal(t, i, out.Value)
	}
}

func TestRun_BoundedParallelism(t *testing.T) {
	const workers = 3
	p, _ := New(workers, nil, nil, nil)

	var inFlight, peak atomic.Int32
	tasks := make([]Task[int], 30)
	for i := range tasks {
		tasks[i] = Task[int]{Key: fmt.Sprint(i), Run: func(context.Context) fetch.Outcome[int] {
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return fetch.Success(1, "stub")
		}}
	}

	Run(context.Background(), p, "detail", tasks)
	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Greater(t, peak.Load(), int32(1), "tasks should overlap")
}

func TestRun_FailureDoesNotAbortBatch(t *testing.T) {
	p, _ := New(2, nil, nil, nil)

	tasks := []Task[int]{
		okTask("A", 1),
		{Key: "B", Run: func(context.Context) fetch.Outcome[int] {
			return fetch.Failure[int](&fetch.Error{Kind: fetch.KindAllSourcesExhausted})
		}},
		{Key: "C", Run: func(context.Context) fetch.Outcome[int] { panic("extractor bug") }},
		okTask("D", 4),
	}

	results := Run(context.Background(), p, "detail", tasks)

	require.Len(t, results, 4)
	assert.True(t, results["A"].OK())
	assert.Equal(t, fetch.KindAllSourcesExhausted, results["B"].Kind())
	assert.Equal(t, fetch.KindParse, results["C"].Kind())
	assert.True(t, results["D"].OK())
}

func TestRun_CancelMarksUnstartedTasks(t *testing.T) {
	p, _ := New(1, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started sync.Map
	tasks := make([]Task[int], 10)
	for i := range tasks {
		key := fmt.Sprint(i)
		tasks[i] = Task[int]{Key: key, Run: func(ctx context.Context) fetch.Outcome[int] {
			started.Store(key, true)
			if key == "2" {
				cancel()
			}
			return fetch.Success(1, "stub")
		}}
	}

	results := Run(ctx, p, "detail", tasks)

	require.Len(t, results, 10, "every task gets an outcome")
	cancelledCount := 0
	for key, out := range results {
		if _, ran := started.Load(key); ran {
			assert.True(t, out.OK(), "task %s ran to completion", key)
			continue
		}
		assert.Equal(t, fetch.KindCancelled, out.Kind(), "task %s", key)
		cancelledCount++
	}
	assert.GreaterOrEqual(t, cancelledCount, 6)
}

func TestRun_AlreadyCancelled(t *testing.T) {
	p, _ := New(2, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	results := Run(ctx, p, "ranking", []Task[int]{
		{Key: "x", Run: func(context.Context) fetch.Outcome[int] { ran = true; return fetch.Success(1, "s") }},
	})

	assert.False(t, ran)
	assert.Equal(t, fetch.KindCancelled, results["x"].Kind())
}

func TestRun_DispatchSpacing(t *testing.T) {
	p, _ := New(4, IntervalLimiter(10*time.Millisecond), nil, nil)

	tasks := make([]Task[int], 5)
	for i := range tasks {
		tasks[i] = okTask(fmt.Sprint(i), i)
	}

	start := time.Now()
	Run(context.Background(), p, "ranking", tasks)
	// burst of 1, then 4 more at 10ms spacing
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestRun_LimiterPastDeadlineCancels(t *testing.T) {
	// spacing of an hour cannot fit in a one-minute deadline: the first
	// task uses the burst token, the rest must not run unthrottled
	p, _ := New(2, IntervalLimiter(time.Hour), logger.Nop(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var ran int32
	task := func(key string) Task[int] {
		return Task[int]{Key: key, Run: func(context.Context) fetch.Outcome[int] {
			atomic.AddInt32(&ran, 1)
			return fetch.Success(1, "stub")
		}}
	}

	start := time.Now()
	results := Run(ctx, p, "detail", []Task[int]{task("a"), task("b"), task("c")})

	assert.Less(t, time.Since(start), 5*time.Second, "refused wait returns at once")
	require.NoError(t, ctx.Err(), "ctx itself is still alive")
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
	require.Len(t, results, 3)
	assert.True(t, results["a"].OK())
	for _, key := range []string{"b", "c"} {
		require.False(t, results[key].OK())
		assert.Equal(t, fetch.KindCancelled, results[key].Err.Kind)
		assert.ErrorIs(t, results[key].Err, context.DeadlineExceeded)
	}
}

func TestIntervalLimiter_RefusalIsDeadline(t *testing.T) {
	lim := IntervalLimiter(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	require.NoError(t, lim.Wait(ctx))
	err := lim.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, fetch.LimiterStopped(ctx, err))
}

type brokenLimiter struct{ calls int }

func (b *brokenLimiter) Wait(context.Context) error {
	b.calls++
	return errors.New("redis down")
}

func TestRun_BrokenLimiterDegrades(t *testing.T) {
	lim := &brokenLimiter{}
	p, _ := New(2, Limiters{nil, lim}, logger.Nop(), nil)

	results := Run(context.Background(), p, "ranking", []Task[int]{okTask("a", 1), okTask("b", 2)})

	assert.True(t, results["a"].OK())
	assert.True(t, results["b"].OK())
	assert.Equal(t, 2, lim.calls)
}

func TestIntervalLimiter_Disabled(t *testing.T) {
	assert.Nil(t, IntervalLimiter(0))
}
