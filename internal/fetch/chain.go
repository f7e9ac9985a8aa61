package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/fundscope/pkg/logger"
	"github.com/wonny/fundscope/pkg/telemetry"
)

// Validator rejects semantically unusable payloads (e.g. a series that
// is too short). Wrap ErrInsufficientData or ErrParse to set the kind.
type Validator[T any] func(T) error

// BreakerSettings configures per-provider circuit breakers
type BreakerSettings struct {
	ConsecutiveFailures uint32        // trip threshold
	OpenTimeout         time.Duration // open → half-open
}

// DefaultBreakerSettings trips after 5 consecutive transport failures
var DefaultBreakerSettings = BreakerSettings{
	ConsecutiveFailures: 5,
	OpenTimeout:         30 * time.Second,
}

// Chain tries providers strictly in order and returns the first
// success that passes validation.
type Chain[T any] struct {
	op        string
	providers []Provider[T]
	breakers  []*gobreaker.CircuitBreaker
	retrier   *Retrier
	validate  Validator[T]
	logger    *logger.Logger
}

// NewChain creates a chain for one logical operation
func NewChain[T any](op string, retrier *Retrier, providers ...Provider[T]) *Chain[T] {
	return &Chain[T]{
		op:        op,
		providers: providers,
		retrier:   retrier,
		logger:    logger.Nop(),
	}
}

// WithValidator sets the semantic validator
func (c *Chain[T]) WithValidator(v Validator[T]) *Chain[T] {
	c.validate = v
	return c
}

// WithLogger sets the logger used for validation rejections
func (c *Chain[T]) WithLogger(l *logger.Logger) *Chain[T] {
	c.logger = l.Component("chain")
	return c
}

// WithBreakers puts a circuit breaker in front of every provider.
// Only transient failures count against a breaker; a parse error means
// the source answered.
func (c *Chain[T]) WithBreakers(s BreakerSettings, m *telemetry.Metrics) *Chain[T] {
	c.breakers = make([]*gobreaker.CircuitBreaker, len(c.providers))
	for i, p := range c.providers {
		name := fmt.Sprintf("%s/%s", c.op, p.Name())
		threshold := s.ConsecutiveFailures

		c.breakers[i] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: s.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !Classify(err).Transient()
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				m.SetBreakerState(name, float64(to))
				c.logger.WithFields(map[string]interface{}{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("circuit breaker state changed")
			},
		})
		m.SetBreakerState(name, float64(gobreaker.StateClosed))
	}
	return c
}

// Op returns the logical operation name
func (c *Chain[T]) Op() string { return c.op }

// Providers returns provider names in order
func (c *Chain[T]) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Fetch tries each provider in order. A provider fails on any Failure
// outcome or on a validator rejection; later providers are never called
// once one succeeds.
func (c *Chain[T]) Fetch(ctx context.Context, p Params) Outcome[T] {
	var last *Error

	for i, provider := range c.providers {
		if err := ctx.Err(); err != nil {
			return Failure[T](&Error{Kind: KindCancelled, Op: c.op, Err: err})
		}

		out := Do(ctx, c.retrier, Request[T]{
			Op:     c.op,
			Source: provider.Name(),
			Target: p.InstrumentID,
			Call:   c.call(i, provider, p),
		})

		if !out.OK() {
			if out.Err.Kind == KindCancelled {
				return out
			}
			last = out.Err
			continue
		}

		if c.validate != nil {
			if err := c.validate(out.Value); err != nil {
				kind := KindParse
				if errors.Is(err, ErrInsufficientData) {
					kind = KindInsufficientData
				}
				last = &Error{Kind: kind, Op: c.op, Source: provider.Name(), Attempts: 1, Err: err}
				c.logger.WithError(err).WithFields(map[string]interface{}{
					"op":     c.op,
					"source": provider.Name(),
					"target": p.InstrumentID,
				}).Warn("payload rejected by validator")
				continue
			}
		}

		return out
	}

	var lastErr error
	if last != nil {
		lastErr = last
	}
	return Failure[T](&Error{Kind: KindAllSourcesExhausted, Op: c.op, Attempts: len(c.providers), Err: lastErr})
}

func (c *Chain[T]) call(i int, provider Provider[T], p Params) func(ctx context.Context) (T, error) {
	if c.breakers == nil {
		return func(ctx context.Context) (T, error) { return provider.Fetch(ctx, p) }
	}

	cb := c.breakers[i]
	return func(ctx context.Context) (T, error) {
		v, err := cb.Execute(func() (interface{}, error) {
			return provider.Fetch(ctx, p)
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return v.(T), nil
	}
}
