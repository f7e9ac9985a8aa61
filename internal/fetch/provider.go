package fetch

import (
	"context"
	"fmt"
	"sort"
)

// Params identifies what to fetch for one logical operation
type Params struct {
	InstrumentID string
	Values       map[string]string // window, date range, page size ...
}

// Get returns a parameter value or ""
func (p Params) Get(key string) string {
	return p.Values[key]
}

// Tuple renders Values as sorted "k=v" pairs (cache key input)
func (p Params) Tuple() []string {
	out := make([]string, 0, len(p.Values))
	for k, v := range p.Values {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

// Provider is one interchangeable source for a logical operation
type Provider[T any] interface {
	Name() string
	Fetch(ctx context.Context, p Params) (T, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc[T any] struct {
	ProviderName string
	Fn           func(ctx context.Context, p Params) (T, error)
}

func (f ProviderFunc[T]) Name() string { return f.ProviderName }

func (f ProviderFunc[T]) Fetch(ctx context.Context, p Params) (T, error) {
	return f.Fn(ctx, p)
}

// Fetcher is anything that resolves Params to an Outcome (Chain, Cached)
type Fetcher[T any] interface {
	Fetch(ctx context.Context, p Params) Outcome[T]
}
