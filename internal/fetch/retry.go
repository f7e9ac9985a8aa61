package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/wonny/fundscope/pkg/config"
	"github.com/wonny/fundscope/pkg/httputil"
	"github.com/wonny/fundscope/pkg/logger"
	"github.com/wonny/fundscope/pkg/telemetry"
)

// Policy bounds retries for one logical request
type Policy struct {
	MaxAttempts     int
	Timeout         time.Duration // per attempt
	BaseDelay       time.Duration
	BackoffStep     time.Duration
	MaxJitter       time.Duration
	RateLimitFactor float64
	// Retry-After is honored up to this cap; <= 0 ignores the header
	MaxRetryAfter time.Duration
}

// PolicyFromConfig converts env config into a Policy
func PolicyFromConfig(cfg config.FetchConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		Timeout:         cfg.Timeout,
		BaseDelay:       cfg.BaseDelay,
		BackoffStep:     cfg.BackoffStep,
		MaxJitter:       cfg.MaxJitter,
		RateLimitFactor: cfg.RateLimitFactor,
		MaxRetryAfter:   cfg.MaxRetryAfter,
	}
}

// Validate rejects policies that could loop forever or never wait
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if p.BaseDelay < 0 || p.BackoffStep < 0 || p.MaxJitter < 0 || p.MaxRetryAfter < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	if p.RateLimitFactor < 1 {
		return fmt.Errorf("rate limit factor must be >= 1, got %v", p.RateLimitFactor)
	}
	return nil
}

// Delay is the sleep before the retry following attempt index i (0-based):
// base + i*step + jitter, stretched by RateLimitFactor after a 429.
func (p Policy) Delay(i int, kind Kind, jitter time.Duration) time.Duration {
	d := p.BaseDelay + time.Duration(i)*p.BackoffStep + jitter
	if kind == KindRateLimited {
		d = time.Duration(float64(d) * p.RateLimitFactor)
	}
	return d
}

// RetryAfter returns the server-requested wait clamped to MaxRetryAfter,
// or false when the policy ignores the header.
func (p Policy) RetryAfter(requested time.Duration) (time.Duration, bool) {
	if p.MaxRetryAfter <= 0 || requested <= 0 {
		return 0, false
	}
	if requested > p.MaxRetryAfter {
		return p.MaxRetryAfter, true
	}
	return requested, true
}

// WorstCase is the longest a single request can take when every
// attempt times out and every retry is rate limited with the longest
// Retry-After the policy accepts.
func (p Policy) WorstCase() time.Duration {
	total := time.Duration(p.MaxAttempts) * p.Timeout
	for i := 0; i < p.MaxAttempts-1; i++ {
		d := p.Delay(i, KindRateLimited, p.MaxJitter)
		if p.MaxRetryAfter > d {
			d = p.MaxRetryAfter
		}
		total += d
	}
	return total
}

// Limiter spaces out requests (x/time/rate, Redis budget)
type Limiter interface {
	Wait(ctx context.Context) error
}

// LimiterStopped reports whether a limiter error means the caller must
// stop: ctx ended, or the limiter refused a wait that would outlast the
// ctx deadline (x/time/rate returns early without ending ctx).
func LimiterStopped(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() != nil ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// Attempt describes one finished attempt
type Attempt struct {
	Op      string
	Source  string
	Target  string
	Number  int // 1-based
	Elapsed time.Duration
	Err     error
	Kind    Kind // "" on success
}

// AttemptHook observes every attempt, success or not
type AttemptHook func(Attempt)

// LogHook logs one line per attempt and records attempt metrics
func LogHook(log *logger.Logger, m *telemetry.Metrics) AttemptHook {
	log = log.Component("fetch")
	return func(a Attempt) {
		result := "ok"
		if a.Kind != "" {
			result = string(a.Kind)
		}
		m.ObserveAttempt(a.Op, a.Source, result, a.Elapsed)

		l := log.WithFields(map[string]interface{}{
			"op":         a.Op,
			"source":     a.Source,
			"target":     a.Target,
			"attempt":    a.Number,
			"elapsed_ms": a.Elapsed.Milliseconds(),
			"result":     result,
		})
		if a.Err != nil {
			l.WithError(a.Err).Warn("fetch attempt failed")
			return
		}
		l.Debug("fetch attempt succeeded")
	}
}

// Retrier runs calls under a Policy
type Retrier struct {
	policy  Policy
	limiter Limiter
	hook    AttemptHook
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func(max time.Duration) time.Duration
}

// RetrierOption configures a Retrier
type RetrierOption func(*Retrier)

// WithLimiter enforces a minimum spacing before every attempt
func WithLimiter(l Limiter) RetrierOption { return func(r *Retrier) { r.limiter = l } }

func WithHook(h AttemptHook) RetrierOption { return func(r *Retrier) { r.hook = h } }

// WithSleep replaces the context-aware sleep (tests)
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) { r.sleep = fn }
}

// WithJitter replaces the random jitter source (tests)
func WithJitter(fn func(max time.Duration) time.Duration) RetrierOption {
	return func(r *Retrier) { r.jitter = fn }
}

// NewRetrier creates a Retrier; the policy must already be validated
func NewRetrier(p Policy, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		policy: p,
		hook:   func(Attempt) {},
		sleep:  sleepCtx,
		jitter: randomJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the retry policy
func (r *Retrier) Policy() Policy { return r.policy }

// Request is one logical call
type Request[T any] struct {
	Op     string
	Source string
	Target string // instrument id or URL, for logs
	Call   func(ctx context.Context) (T, error)
}

// Do runs req until it succeeds, fails non-transiently, runs out of
// attempts, or ctx ends. Cancellation is checked before every attempt
// and during every backoff sleep.
func Do[T any](ctx context.Context, r *Retrier, req Request[T]) Outcome[T] {
	var lastErr error

	fail := func(kind Kind, attempts int, err error) Outcome[T] {
		return Failure[T](&Error{Kind: kind, Op: req.Op, Source: req.Source, Attempts: attempts, Err: err})
	}

	for i := 0; i < r.policy.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return fail(KindCancelled, i, firstNonNil(lastErr, err))
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				if LimiterStopped(ctx, err) {
					return fail(KindCancelled, i, firstNonNil(lastErr, err))
				}
				// limiter failures other than cancellation degrade to unthrottled
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
		start := time.Now()
		v, err := req.Call(attemptCtx)
		elapsed := time.Since(start)
		cancel()

		if err == nil {
			r.hook(Attempt{Op: req.Op, Source: req.Source, Target: req.Target, Number: i + 1, Elapsed: elapsed})
			return Success(v, req.Source)
		}

		kind := Classify(err)
		if ctx.Err() != nil {
			kind = KindCancelled
		}
		r.hook(Attempt{Op: req.Op, Source: req.Source, Target: req.Target, Number: i + 1, Elapsed: elapsed, Err: err, Kind: kind})
		lastErr = err

		if kind == KindCancelled {
			return fail(KindCancelled, i+1, err)
		}
		if !kind.Transient() {
			return fail(kind, i+1, err)
		}
		if i == r.policy.MaxAttempts-1 {
			break
		}

		delay := r.policy.Delay(i, kind, r.jitter(r.policy.MaxJitter))
		var se *httputil.StatusError
		if errors.As(err, &se) {
			if ra, ok := r.policy.RetryAfter(se.RetryAfter); ok && ra > delay {
				delay = ra
			}
		}
		if err := r.sleep(ctx, delay); err != nil {
			return fail(KindCancelled, i+1, lastErr)
		}
	}

	return fail(KindRetriesExhausted, r.policy.MaxAttempts, lastErr)
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}
