package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// failingStore fails every call
type failingStore struct{ gets, sets int }

func (s *failingStore) Get(context.Context, string) ([]byte, bool, error) {
	s.gets++
	return nil, false, errors.New("disk on fire")
}

func (s *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	s.sets++
	return errors.New("disk on fire")
}

func (s *failingStore) Name() string { return "failing" }

func TestGetAfterPut(t *testing.T) {
	c := New()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		key := Key("nav_history", fmt.Sprintf("%06d", i))
		val := []byte(fmt.Sprintf("payload-%d", i))

		c.Put(ctx, key, val, time.Minute)

		got, ok := c.Get(ctx, key)
		require.True(t, ok)
		assert.Equal(t, val, got)
	}
}

func TestLazyExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(WithClock(clock.Now))
	ctx := context.Background()

	c.Put(ctx, "k", []byte("v"), time.Hour)

	clock.Advance(59 * time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	// expired entries are not swept, only ignored
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestPut_LastWriteWins(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.Put(ctx, "k", []byte("first"), time.Minute)
	c.Put(ctx, "k", []byte("second"), time.Minute)

	got, _ := c.Get(ctx, "k")
	assert.Equal(t, "second", string(got))
}

func TestPut_NonPositiveTTL(t *testing.T) {
	c := New()
	c.Put(context.Background(), "k", []byte("v"), 0)

	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestPut_CopiesValue(t *testing.T) {
	c := New()
	buf := []byte("abc")
	c.Put(context.Background(), "k", buf, time.Minute)
	buf[0] = 'X'

	got, _ := c.Get(context.Background(), "k")
	assert.Equal(t, "abc", string(got))
}

func TestKey(t *testing.T) {
	a := Key("ranking", "", "window=1y", "type=hh")
	b := Key("ranking", "", "type=hh", "window=1y")
	assert.Equal(t, a, b, "parameter order must not matter")
	assert.Len(t, a, 64)

	assert.NotEqual(t, Key("nav_history", "000001"), Key("nav_history", "000002"))
	assert.NotEqual(t, Key("fee", "000001"), Key("nav_history", "000001"))
	// separator prevents ("ab","c") colliding with ("a","bc")
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestStoreFailureDegradesToMiss(t *testing.T) {
	store := &failingStore{}
	c := New(WithStore(store))
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	// write-through fails but memory layer still serves
	c.Put(ctx, "k", []byte("v"), time.Minute)
	got, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", string(got))

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.StoreErrors)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := Key("op", fmt.Sprintf("%d", i%20))
				c.Put(ctx, key, []byte{byte(w)}, time.Minute)
				c.Get(ctx, key)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 20, c.Stats().Entries)
}

func TestEntryEnvelope(t *testing.T) {
	e := Entry{
		Value:     []byte("payload"),
		FetchedAt: time.Unix(1700000000, 123),
		TTL:       90 * time.Minute,
	}

	got, err := decodeEntry(encodeEntry(e))
	require.NoError(t, err)
	assert.Equal(t, e.Value, got.Value)
	assert.True(t, e.FetchedAt.Equal(got.FetchedAt))
	assert.Equal(t, e.TTL, got.TTL)

	_, err = decodeEntry([]byte("short"))
	assert.Error(t, err)
}
