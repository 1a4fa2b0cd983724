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
	Env string // development, staging, production

	Database  DatabaseConfig
	Redis     RedisConfig
	Provider  ProviderConfig
	Breaker   BreakerConfig
	Cache     CacheConfig
	Recommend RecommendConfig
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Ops (metrics + breaker/limiter introspection)
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Prefix   string
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

// ProviderConfig holds upstream data provider throttling settings.
// Tier and margin are read once at startup; there is no hot reload.
type ProviderConfig struct {
	AccountPoints  int           // subscription points, selects the rate tier
	SafetyMargin   float64       // fraction of the nominal quota actually used
	RateLimitFile  string        // optional YAML with tiers and per-interface caps
	AcquireTimeout time.Duration // default wait for request-serving paths
	PacerBurst     int           // token-bucket burst, 0 disables smoothing
	GlobalMaxCalls int
	GlobalWindow   time.Duration
}

// BreakerConfig holds circuit breaker defaults
type BreakerConfig struct {
	Threshold int
	Timeout   time.Duration
}

// CacheConfig holds factor cache TTLs
type CacheConfig struct {
	HotTTL     time.Duration // composite rankings
	WarmTTL    time.Duration // secondary lookups, factor records in memory
	PersistTTL time.Duration // shared KV tier, one trading day
	MaxEntries int
}

// RecommendConfig holds orchestrator settings
type RecommendConfig struct {
	PersistTopN          int
	MarketContextTimeout time.Duration
	ExplainTimeout       time.Duration
	Concurrency          int
	PreferredSectorBoost float64
	Holidays             []string // YYYY-MM-DD, market closed
	MarketTimezone       string   // 거래소 기준 시간대
	MarketClose          string   // HH:MM, 이 시각 이전이면 직전 거래일
	ProfileFile          string   // optional YAML screening profile (weights, limits, targets)
	ShortHoldSessions    int      // 단기 추천 성과 평가까지의 거래일 수
	LongHoldSessions     int      // 장기 추천 성과 평가까지의 거래일 수
}

// SchedulerConfig holds cron expressions for background jobs
type SchedulerConfig struct {
	DailyRunSpec string
	WarmupSpec   string
	EvaluateSpec string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "picks"),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		Provider: ProviderConfig{
			AccountPoints:  getEnvAsInt("PROVIDER_ACCOUNT_POINTS", 2000),
			SafetyMargin:   getEnvAsFloat("PROVIDER_SAFETY_MARGIN", 0.9),
			RateLimitFile:  getEnv("PROVIDER_RATE_LIMIT_FILE", ""),
			AcquireTimeout: getEnvAsDuration("PROVIDER_ACQUIRE_TIMEOUT", "5s"),
			PacerBurst:     getEnvAsInt("PROVIDER_PACER_BURST", 0),
			GlobalMaxCalls: getEnvAsInt("PROVIDER_GLOBAL_MAX_CALLS", 500),
			GlobalWindow:   getEnvAsDuration("PROVIDER_GLOBAL_WINDOW", "60s"),
		},

		Breaker: BreakerConfig{
			Threshold: getEnvAsInt("BREAKER_THRESHOLD", 5),
			Timeout:   getEnvAsDuration("BREAKER_TIMEOUT", "60s"),
		},

		Cache: CacheConfig{
			HotTTL:     getEnvAsDuration("CACHE_HOT_TTL", "5m"),
			WarmTTL:    getEnvAsDuration("CACHE_WARM_TTL", "15m"),
			PersistTTL: getEnvAsDuration("CACHE_PERSIST_TTL", "24h"),
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 20000),
		},

		Recommend: RecommendConfig{
			PersistTopN:          getEnvAsInt("RECOMMEND_PERSIST_TOP_N", 5),
			MarketContextTimeout: getEnvAsDuration("RECOMMEND_MARKET_CONTEXT_TIMEOUT", "3s"),
			ExplainTimeout:       getEnvAsDuration("RECOMMEND_EXPLAIN_TIMEOUT", "20s"),
			Concurrency:          getEnvAsInt("RECOMMEND_CONCURRENCY", 8),
			PreferredSectorBoost: getEnvAsFloat("RECOMMEND_PREFERRED_SECTOR_BOOST", 5.0),
			Holidays:             getEnvAsList("MARKET_HOLIDAYS"),
			MarketTimezone:       getEnv("MARKET_TIMEZONE", "Asia/Shanghai"),
			MarketClose:          getEnv("MARKET_CLOSE", "15:00"),
			ProfileFile:          getEnv("STRATEGY_FILE", ""),
			ShortHoldSessions:    getEnvAsInt("EVAL_SHORT_HOLD_SESSIONS", 5),
			LongHoldSessions:     getEnvAsInt("EVAL_LONG_HOLD_SESSIONS", 20),
		},

		Scheduler: SchedulerConfig{
			DailyRunSpec: getEnv("SCHEDULER_DAILY_RUN", "0 30 16 * * 1-5"),
			WarmupSpec:   getEnv("SCHEDULER_WARMUP", "0 0 9 * * 1-5"),
			EvaluateSpec: getEnv("SCHEDULER_EVALUATE", "0 0 17 * * 1-5"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Provider.SafetyMargin <= 0 || c.Provider.SafetyMargin > 1 {
		return fmt.Errorf("PROVIDER_SAFETY_MARGIN must be in (0, 1], got %v", c.Provider.SafetyMargin)
	}

	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("BREAKER_THRESHOLD must be >= 1")
	}

	if c.Recommend.Concurrency < 1 {
		return fmt.Errorf("RECOMMEND_CONCURRENCY must be >= 1")
	}

	if c.Recommend.ShortHoldSessions < 1 || c.Recommend.LongHoldSessions < 1 {
		return fmt.Errorf("EVAL_SHORT_HOLD_SESSIONS and EVAL_LONG_HOLD_SESSIONS must be >= 1")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

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
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
