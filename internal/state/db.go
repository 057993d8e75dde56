// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS vault_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			idle_threshold NUMERIC(40, 0) NOT NULL,
			min_profit_for_harvest NUMERIC(40, 0) NOT NULL,
			max_tvl NUMERIC(40, 0) NOT NULL,
			min_deposit NUMERIC(40, 0) NOT NULL,
			min_allocation_threshold_bps BIGINT NOT NULL,
			max_allocation_per_strategy_bps BIGINT NOT NULL,
			rebalance_min_tvl NUMERIC(40, 0) NOT NULL,
			rebalance_skew_threshold_bps BIGINT NOT NULL,
			rebalance_overhead NUMERIC(40, 0) NOT NULL,
			rebalance_profit_multiplier BIGINT NOT NULL,
			performance_fee_bps BIGINT NOT NULL,
			treasury_split_bps BIGINT NOT NULL,
			founder_split_bps BIGINT NOT NULL,
			keeper_incentive_bps BIGINT NOT NULL,
			CONSTRAINT uq_vault_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_vault_parameters_config_active ON vault_parameters(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS vault_events (
			event_id SERIAL PRIMARY KEY,
			event_type VARCHAR(50) NOT NULL,
			event_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			attributes JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_vault_events_timestamp ON vault_events(event_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_vault_events_type ON vault_events(event_type);

		CREATE TABLE IF NOT EXISTS harvest_records (
			harvest_id SERIAL PRIMARY KEY,
			harvested_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			profit NUMERIC(40, 0) NOT NULL,
			fee NUMERIC(40, 0) NOT NULL,
			cumulative_profit NUMERIC(40, 0) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_harvest_records_timestamp ON harvest_records(harvested_at DESC);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
