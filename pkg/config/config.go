package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production, test

	// Database (report sink, optional)
	Database DatabaseConfig

	// Redis (cache store + shared rate budget, optional)
	Redis RedisConfig

	// Acquisition
	Fetch     FetchConfig
	Worker    WorkerConfig
	Cache     CacheConfig
	Eastmoney EastmoneyConfig

	// Output
	Report ReportConfig

	// Strategy file (windows, thresholds, weights)
	StrategyPath string

	// Cron expression for scheduled runs (empty = disabled)
	Schedule string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// FetchConfig holds the retry policy applied to every external request
type FetchConfig struct {
	MaxAttempts     int
	Timeout         time.Duration // per attempt
	BaseDelay       time.Duration
	BackoffStep     time.Duration // added per retry index
	MaxJitter       time.Duration
	RateLimitFactor float64       // backoff multiplier for 429 responses
	MaxRetryAfter   time.Duration // cap on a server Retry-After, 0 = ignore header
	MinInterval     time.Duration
	RunDeadline     time.Duration
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	Count       int
	MinInterval time.Duration // floor on dispatch spacing
	// Redis sliding window budget (used only when Redis is enabled)
	BudgetLimit  int
	BudgetWindow time.Duration
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	Backend     string // memory, redis, badger
	BadgerDir   string
	RankingTTL  time.Duration
	HistoryTTL  time.Duration
	MetadataTTL time.Duration
}

// EastmoneyConfig holds source endpoints
type EastmoneyConfig struct {
	FundURL    string // fund.eastmoney.com
	F10URL     string // fundf10.eastmoney.com
	APIURL     string // api.fund.eastmoney.com
	KlineURL   string // push2his.eastmoney.com
	UserAgents []string
}

// ReportConfig holds sink configuration
type ReportConfig struct {
	OutputDir string
	Formats   []string // console, csv, excel, postgres
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Fetch: FetchConfig{
			MaxAttempts:     getEnvAsInt("FETCH_MAX_ATTEMPTS", 5),
			Timeout:         getEnvAsDuration("FETCH_TIMEOUT", "15s"),
			BaseDelay:       getEnvAsDuration("FETCH_BASE_DELAY", "1s"),
			BackoffStep:     getEnvAsDuration("FETCH_BACKOFF_STEP", "5s"),
			MaxJitter:       getEnvAsDuration("FETCH_MAX_JITTER", "1s"),
			RateLimitFactor: getEnvAsFloat("FETCH_RATE_LIMIT_FACTOR", 2.0),
			MaxRetryAfter:   getEnvAsDuration("FETCH_MAX_RETRY_AFTER", "30s"),
			MinInterval:     getEnvAsDuration("FETCH_MIN_INTERVAL", "0s"),
			RunDeadline:     getEnvAsDuration("FETCH_RUN_DEADLINE", "2h"),
		},

		Worker: WorkerConfig{
			Count:        getEnvAsInt("WORKER_COUNT", 8),
			MinInterval:  getEnvAsDuration("WORKER_MIN_INTERVAL", "100ms"),
			BudgetLimit:  getEnvAsInt("WORKER_BUDGET_LIMIT", 10),
			BudgetWindow: getEnvAsDuration("WORKER_BUDGET_WINDOW", "1s"),
		},

		Cache: CacheConfig{
			Backend:     getEnv("CACHE_BACKEND", "memory"),
			BadgerDir:   getEnv("CACHE_BADGER_DIR", "./data/cache"),
			RankingTTL:  getEnvAsDuration("CACHE_RANKING_TTL", "6h"),
			HistoryTTL:  getEnvAsDuration("CACHE_HISTORY_TTL", "12h"),
			MetadataTTL: getEnvAsDuration("CACHE_METADATA_TTL", "168h"),
		},

		Eastmoney: EastmoneyConfig{
			FundURL:    getEnv("EASTMONEY_FUND_URL", "http://fund.eastmoney.com"),
			F10URL:     getEnv("EASTMONEY_F10_URL", "https://fundf10.eastmoney.com"),
			APIURL:     getEnv("EASTMONEY_API_URL", "https://api.fund.eastmoney.com"),
			KlineURL:   getEnv("EASTMONEY_KLINE_URL", "https://push2his.eastmoney.com"),
			UserAgents: getEnvAsList("EASTMONEY_USER_AGENTS", nil),
		},

		Report: ReportConfig{
			OutputDir: getEnv("REPORT_OUTPUT_DIR", "./output"),
			Formats:   getEnvAsList("REPORT_FORMATS", []string{"console", "csv"}),
		},

		StrategyPath: getEnv("STRATEGY_PATH", "config/strategy.yaml"),
		Schedule:     getEnv("SCHEDULE", ""),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be >= 1")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be > 0")
	}
	if c.Fetch.RateLimitFactor < 1 {
		return fmt.Errorf("FETCH_RATE_LIMIT_FACTOR must be >= 1")
	}
	if c.Fetch.MaxRetryAfter < 0 {
		return fmt.Errorf("FETCH_MAX_RETRY_AFTER must be >= 0")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("WORKER_COUNT must be >= 1")
	}

	switch c.Cache.Backend {
	case "memory", "badger":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("CACHE_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of: memory, redis, badger")
	}

	for _, f := range c.Report.Formats {
		switch f {
		case "console", "csv", "excel":
		case "postgres":
			if c.Database.URL == "" {
				return fmt.Errorf("REPORT_FORMATS=postgres requires DATABASE_URL")
			}
		default:
			return fmt.Errorf("unknown report format: %s", f)
		}
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
