package config

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ValidatorOptions contains options for startup validation
type ValidatorOptions struct {
	VerifyConnectivity bool // ping the database, Redis and the backtest engine
	RequireEngine      bool // fail instead of warn when the engine is unreachable
	Timeout            time.Duration
}

// DefaultValidatorOptions returns default validator options for startup
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{
		VerifyConnectivity: true,
		RequireEngine:      false,
		Timeout:            5 * time.Second,
	}
}

// Validator checks that the configured dependencies are reachable before
// services start
type Validator struct {
	config  *Config
	options ValidatorOptions
	client  *http.Client
}

// NewValidator creates a new startup validator
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	if options.Timeout <= 0 {
		options.Timeout = 5 * time.Second
	}
	return &Validator{
		config:  config,
		options: options,
		client:  &http.Client{Timeout: options.Timeout},
	}
}

// ValidateStartup performs startup validation. Disabled dependencies are
// skipped.
func (v *Validator) ValidateStartup(ctx context.Context) error {
	log.Info().Msg("Validating configuration...")

	if isPlaceholderValue(v.config.Backtest.APIKey) {
		log.Warn().Msg("Backtest engine API key looks like a placeholder")
	}

	if !v.options.VerifyConnectivity {
		log.Info().Msg("Connectivity checks skipped")
		return nil
	}

	if v.config.Database.Enabled {
		if err := v.checkDatabaseConnectivity(ctx); err != nil {
			return fmt.Errorf("database connectivity check failed: %w", err)
		}
	}
	if v.config.Redis.Enabled {
		if err := v.checkRedisConnectivity(ctx); err != nil {
			return fmt.Errorf("redis connectivity check failed: %w", err)
		}
	}
	if err := v.checkEngineConnectivity(ctx); err != nil {
		if v.options.RequireEngine {
			return fmt.Errorf("backtest engine connectivity check failed: %w", err)
		}
		log.Warn().Err(err).Str("url", v.config.Backtest.BaseURL).Msg("Backtest engine unreachable, runs will fail until it is up")
	}

	log.Info().Msg("Configuration validation completed successfully")
	return nil
}

// checkDatabaseConnectivity tests the database connection with a timeout
func (v *Validator) checkDatabaseConnectivity(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	pool, err := pgxpool.New(connCtx, v.config.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}
	defer pool.Close()

	var dbName string
	if err := pool.QueryRow(connCtx, "SELECT current_database()").Scan(&dbName); err != nil {
		return fmt.Errorf("failed to query database: %w", err)
	}

	log.Info().Str("database", dbName).Msg("Database connectivity check passed")
	return nil
}

// checkRedisConnectivity tests the Redis connection with a timeout
func (v *Validator) checkRedisConnectivity(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	client := redis.NewClient(v.config.Redis.Options())
	defer client.Close()

	if err := client.Ping(connCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().
		Str("addr", v.config.Redis.GetRedisAddr()).
		Int("db", v.config.Redis.DB).
		Msg("Redis connectivity check passed")
	return nil
}

// checkEngineConnectivity calls the engine's health endpoint
func (v *Validator) checkEngineConnectivity(ctx context.Context) error {
	healthURL := strings.TrimRight(v.config.Backtest.BaseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health check failed with status: %d", resp.StatusCode)
	}

	log.Info().Str("endpoint", healthURL).Msg("Backtest engine connectivity verified")
	return nil
}

// isPlaceholderValue checks if a value is likely a placeholder
func isPlaceholderValue(value string) bool {
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	for _, p := range []string{"your_api_key", "changeme", "placeholder", "example", "sample", "demo"} {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
