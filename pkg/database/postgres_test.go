package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundscope/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	return &config.Config{
		Database: config.DatabaseConfig{
			URL:             url,
			MaxConns:        2,
			MinConns:        1,
			MaxConnLifetime: time.Minute,
			MaxConnIdleTime: time.Minute,
		},
	}
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)

	db, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, db.Ping(ctx))
}

func TestHealthCheck(t *testing.T) {
	cfg := testConfig(t)

	db, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer db.Close()

	status, err := db.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.GreaterOrEqual(t, status.TotalConns, int32(1))
}

func TestNew_InvalidURL(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{URL: "::not a url::"}}

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
