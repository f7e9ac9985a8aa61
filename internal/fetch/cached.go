package fetch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wonny/fundscope/internal/cache"
)

// opChain is the subset of Chain that Cached needs
type opChain[T any] interface {
	Fetcher[T]
	Op() string
}

// Cached puts the cache in front of a chain. Payloads are stored as JSON
// under cache.Key(op, instrument, params).
type Cached[T any] struct {
	chain opChain[T]
	cache *cache.Cache
	ttl   time.Duration
}

// NewCached wraps chain with c; ttl applies to every stored payload
func NewCached[T any](chain *Chain[T], c *cache.Cache, ttl time.Duration) *Cached[T] {
	return &Cached[T]{chain: chain, cache: c, ttl: ttl}
}

// Fetch serves from cache when fresh, otherwise runs the chain and
// stores successful values. Failures are never cached.
func (c *Cached[T]) Fetch(ctx context.Context, p Params) Outcome[T] {
	key := cache.Key(c.chain.Op(), p.InstrumentID, p.Tuple()...)

	if raw, ok := c.cache.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return Success(v, SourceCache)
		}
	}

	out := c.chain.Fetch(ctx, p)
	if !out.OK() {
		return out
	}

	if raw, err := json.Marshal(out.Value); err == nil {
		c.cache.Put(ctx, key, raw, c.ttl)
	}
	return out
}
