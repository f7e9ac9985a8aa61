// Package cache is the content-addressed payload cache shared by every fetch.
//
// Entries carry their fetch time and TTL; expiry is checked when an entry is
// read, nothing is swept in the background. An optional Store (Redis, Badger)
// persists entries across runs. Store failures degrade to a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/fundscope/pkg/logger"
	"github.com/wonny/fundscope/pkg/telemetry"
)

// Store is a persistent byte store with TTL
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Name() string
}

// Entry is an immutable cached payload
type Entry struct {
	Value     []byte
	FetchedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is past its TTL at now
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.FetchedAt.Add(e.TTL))
}

// Stats counts lookups since the cache was created
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	StoreErrors int64 `json:"store_errors"`
	Entries     int   `json:"entries"`
}

// Cache is safe for concurrent use
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	store   Store
	now     func() time.Time
	logger  *logger.Logger
	metrics *telemetry.Metrics

	hits, misses, storeErrors atomic.Int64
}

// Option configures a Cache
type Option func(*Cache)

// WithStore adds a persistent layer (read-through, write-through)
func WithStore(s Store) Option { return func(c *Cache) { c.store = s } }

// WithClock overrides time.Now (tests)
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

func WithLogger(l *logger.Logger) Option { return func(c *Cache) { c.logger = l.Component("cache") } }

func WithMetrics(m *telemetry.Metrics) Option { return func(c *Cache) { c.metrics = m } }

// New creates an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		now:     time.Now,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key hashes (operation, instrument id, parameters). Parameters are
// sorted first so the key does not depend on argument order.
func Key(op, instrumentID string, params ...string) string {
	sorted := append([]string(nil), params...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(op))
	h.Write([]byte{0})
	h.Write([]byte(instrumentID))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the payload for key, or false if absent or expired
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && !e.Expired(now) {
		c.hit()
		return e.Value, true
	}

	if c.store != nil {
		if e, ok := c.loadFromStore(ctx, key); ok && !e.Expired(now) {
			c.mu.Lock()
			c.entries[key] = e
			c.mu.Unlock()
			c.hit()
			return e.Value, true
		}
	}

	c.misses.Add(1)
	c.metrics.CacheLookup("miss")
	return nil, false
}

// Put stores value unconditionally; last write wins.
// A non-positive ttl stores nothing.
func (c *Cache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	e := Entry{
		Value:     append([]byte(nil), value...),
		FetchedAt: c.now(),
		TTL:       ttl,
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, key, encodeEntry(e), ttl); err != nil {
		c.storeError(err, "set", key)
	}
}

// Stats returns lookup counters and the in-memory entry count
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		StoreErrors: c.storeErrors.Load(),
		Entries:     n,
	}
}

func (c *Cache) hit() {
	c.hits.Add(1)
	c.metrics.CacheLookup("hit")
}

func (c *Cache) loadFromStore(ctx context.Context, key string) (Entry, bool) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.storeError(err, "get", key)
		return Entry{}, false
	}
	if !found {
		return Entry{}, false
	}

	e, err := decodeEntry(raw)
	if err != nil {
		c.storeError(err, "decode", key)
		return Entry{}, false
	}
	return e, true
}

func (c *Cache) storeError(err error, op, key string) {
	c.storeErrors.Add(1)
	c.metrics.CacheLookup("store_error")
	c.logger.WithError(err).WithFields(map[string]interface{}{
		"store": c.store.Name(),
		"op":    op,
		"key":   key,
	}).Warn("cache store failed, treating as miss")
}

// envelope layout: fetched_at unix nanos (8) | ttl nanos (8) | payload
const headerLen = 16

var errShortEntry = errors.New("cache entry shorter than header")

func encodeEntry(e Entry) []byte {
	buf := make([]byte, headerLen+len(e.Value))
	binary.BigEndian.PutUint64(buf[0:8], uint64(e.FetchedAt.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.TTL))
	copy(buf[headerLen:], e.Value)
	return buf
}

func decodeEntry(raw []byte) (Entry, error) {
	if len(raw) < headerLen {
		return Entry{}, errShortEntry
	}
	return Entry{
		FetchedAt: time.Unix(0, int64(binary.BigEndian.Uint64(raw[0:8]))),
		TTL:       time.Duration(binary.BigEndian.Uint64(raw[8:16])),
		Value:     append([]byte(nil), raw[headerLen:]...),
	}, nil
}
