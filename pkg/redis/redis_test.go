package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundscope/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on disabled client = %v", err)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	client, _ := New(&config.Config{})
	limiter := NewRateLimiter(client, "test")

	// When Redis is disabled, all requests should be allowed
	allowed, remaining, err := limiter.Allow(context.Background(), EastmoneyRateLimit)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Error("Expected request to be allowed when Redis disabled")
	}
	if remaining != EastmoneyRateLimit.Limit {
		t.Errorf("Expected remaining = %d, got %d", EastmoneyRateLimit.Limit, remaining)
	}

	budget := NewBudget(limiter, EastmoneyRateLimit)
	if err := budget.Wait(context.Background()); err != nil {
		t.Errorf("Budget.Wait() error = %v", err)
	}
}

func TestStore_Disabled(t *testing.T) {
	client, _ := New(&config.Config{})
	store := NewStore(client, "test")

	val, found, err := store.Get(context.Background(), "key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)

	assert.NoError(t, store.Set(context.Background(), "key", []byte("v"), time.Minute))
}

func TestStore_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewStore(NewFromClient(db), "fundscope")
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("fundscope:cache:abc").SetVal("payload")

		val, found, err := store.Get(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "payload", string(val))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("fundscope:cache:missing").RedisNil()

		val, found, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, val)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error", func(t *testing.T) {
		mock.ExpectGet("fundscope:cache:broken").SetErr(errors.New("connection reset"))

		_, found, err := store.Get(ctx, "broken")
		assert.Error(t, err)
		assert.False(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Set(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewStore(NewFromClient(db), "fundscope")
	ctx := context.Background()

	mock.ExpectSet("fundscope:cache:abc", []byte("payload"), time.Hour).SetVal("OK")
	require.NoError(t, store.Set(ctx, "abc", []byte("payload"), time.Hour))

	mock.ExpectSet("fundscope:cache:abc", []byte("payload"), time.Hour).SetErr(errors.New("READONLY"))
	assert.Error(t, store.Set(ctx, "abc", []byte("payload"), time.Hour))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CountAndPurge(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewStore(NewFromClient(db), "fundscope")
	ctx := context.Background()

	// two SCAN pages
	mock.ExpectScan(0, "fundscope:cache:*", scanBatch).SetVal([]string{"fundscope:cache:a", "fundscope:cache:b"}, 7)
	mock.ExpectScan(7, "fundscope:cache:*", scanBatch).SetVal([]string{"fundscope:cache:c"}, 0)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mock.ExpectScan(0, "fundscope:cache:*", scanBatch).SetVal([]string{"fundscope:cache:a"}, 0)
	mock.ExpectDel("fundscope:cache:a").SetVal(1)
	require.NoError(t, store.Purge(ctx))

	mock.ExpectScan(0, "fundscope:cache:*", scanBatch).SetErr(errors.New("LOADING"))
	_, err = store.Count(ctx)
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
