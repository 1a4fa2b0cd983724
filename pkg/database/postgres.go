package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-picks/pkg/config"
)

// DB wraps the pgxpool.Pool
// ⭐ SSOT: DB 연결은 이 패키지에서만 생성
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool
func New(ctx context.Context, cfg *config.Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks if the database is accessible
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Migrate creates the schemas and tables this service owns. Every statement
// is idempotent so it can run on each start.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i, err)
		}
	}
	return nil
}

// PoolStats represents connection pool statistics
type PoolStats struct {
	AcquireCount  int64 `json:"acquire_count"`
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	MaxConns      int32 `json:"max_conns"`
	TotalConns    int32 `json:"total_conns"`
}

// Stats returns the current pool statistics
func (db *DB) Stats() PoolStats {
	stats := db.Pool.Stat()
	return PoolStats{
		AcquireCount:  stats.AcquireCount(),
		AcquiredConns: stats.AcquiredConns(),
		IdleConns:     stats.IdleConns(),
		MaxConns:      stats.MaxConns(),
		TotalConns:    stats.TotalConns(),
	}
}

var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS factor`,
	`CREATE SCHEMA IF NOT EXISTS reco`,
	`CREATE SCHEMA IF NOT EXISTS market`,

	// one row per asset per trade date; recomputation overwrites
	`CREATE TABLE IF NOT EXISTS factor.asset_factors (
		asset_code  TEXT        NOT NULL,
		trade_date  DATE        NOT NULL,
		asset_type  TEXT        NOT NULL,
		factors     JSONB       NOT NULL,
		short_score DOUBLE PRECISION,
		long_score  DOUBLE PRECISION,
		computed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (asset_code, trade_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_asset_factors_date_short ON factor.asset_factors (trade_date, short_score DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_asset_factors_date_long ON factor.asset_factors (trade_date, long_score DESC)`,

	`CREATE TABLE IF NOT EXISTS reco.recommendation_records (
		id                BIGSERIAL PRIMARY KEY,
		run_id            UUID             NOT NULL,
		asset_code        TEXT             NOT NULL,
		asset_name        TEXT             NOT NULL DEFAULT '',
		asset_type        TEXT             NOT NULL,
		rec_type          TEXT             NOT NULL,
		rec_date          DATE             NOT NULL,
		rec_rank          INT              NOT NULL,
		rec_score         DOUBLE PRECISION NOT NULL,
		target_return_pct DOUBLE PRECISION NOT NULL,
		stop_loss_pct     DOUBLE PRECISION NOT NULL,
		entry_price       DOUBLE PRECISION,
		realized_return   DOUBLE PRECISION,
		created_at        TIMESTAMPTZ      NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reco_records_date ON reco.recommendation_records (rec_date, rec_type)`,

	// locally collected market data, read by the pg-backed source
	`CREATE TABLE IF NOT EXISTS market.stocks (
		code          TEXT PRIMARY KEY,
		name          TEXT    NOT NULL,
		sector        TEXT    NOT NULL DEFAULT '',
		is_st         BOOLEAN NOT NULL DEFAULT FALSE,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS market.daily_bars (
		code       TEXT   NOT NULL,
		trade_date DATE   NOT NULL,
		open       DOUBLE PRECISION NOT NULL,
		high       DOUBLE PRECISION NOT NULL,
		low        DOUBLE PRECISION NOT NULL,
		close      DOUBLE PRECISION NOT NULL,
		volume     DOUBLE PRECISION NOT NULL,
		amount     DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (code, trade_date)
	)`,
	`CREATE TABLE IF NOT EXISTS market.daily_basic (
		code          TEXT NOT NULL,
		trade_date    DATE NOT NULL,
		market_cap    DOUBLE PRECISION,
		pe            DOUBLE PRECISION,
		pb            DOUBLE PRECISION,
		turnover_rate DOUBLE PRECISION,
		PRIMARY KEY (code, trade_date)
	)`,
	`CREATE TABLE IF NOT EXISTS market.financials (
		code           TEXT NOT NULL,
		report_date    DATE NOT NULL,
		roe            DOUBLE PRECISION,
		gross_margin   DOUBLE PRECISION,
		net_margin     DOUBLE PRECISION,
		debt_ratio     DOUBLE PRECISION,
		revenue_yoy    DOUBLE PRECISION,
		profit_yoy     DOUBLE PRECISION,
		PRIMARY KEY (code, report_date)
	)`,
	`CREATE TABLE IF NOT EXISTS market.funds (
		code          TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		fund_type     TEXT NOT NULL DEFAULT '',
		size_billion  DOUBLE PRECISION,
		manager       TEXT NOT NULL DEFAULT '',
		manager_since DATE,
		manager_aum   DOUBLE PRECISION,
		manager_best  DOUBLE PRECISION,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS market.fund_nav (
		code     TEXT NOT NULL,
		nav_date DATE NOT NULL,
		unit_nav DOUBLE PRECISION NOT NULL,
		acc_nav  DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (code, nav_date)
	)`,
}
