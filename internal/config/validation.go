package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Configuration validation failed with %d error(s):\n\n", len(ve))
	for i, err := range ve {
		fmt.Fprintf(&sb, "  %d. %s: %s\n", i+1, err.Field, err.Message)
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

var validEnvironments = []string{"development", "staging", "production"}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateApp()...)
	errs = append(errs, c.validateDatabase()...)
	errs = append(errs, c.validateRedis()...)
	errs = append(errs, c.validateAPI()...)
	errs = append(errs, c.validateEngine()...)
	errs = append(errs, c.validateBacktest()...)
	errs = append(errs, c.validateOptimizer()...)
	errs = append(errs, c.validateEnvironmentRequirements()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validPort(field string, port int) ValidationErrors {
	if port < 1 || port > 65535 {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", port)}}
	}
	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errs ValidationErrors

	if c.App.Name == "" {
		errs = append(errs, ValidationError{Field: "app.name", Message: "Application name is required"})
	}
	if !slices.Contains(validEnvironments, c.App.Environment) {
		errs = append(errs, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvironments),
		})
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.App.LogLevel)); err != nil || c.App.LogLevel == "" {
		errs = append(errs, ValidationError{
			Field:   "app.log_level",
			Message: fmt.Sprintf("Invalid log level '%s' (debug, info, warn, error)", c.App.LogLevel),
		})
	}
	if c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errs = append(errs, ValidationError{Field: "app.log_format", Message: "Log format must be json or console"})
	}

	return errs
}

func (c *Config) validateDatabase() ValidationErrors {
	if !c.Database.Enabled {
		return nil
	}

	var errs ValidationErrors
	if c.Database.URL == "" {
		if c.Database.Host == "" {
			errs = append(errs, ValidationError{Field: "database.host", Message: "Database host is required"})
		}
		errs = append(errs, validPort("database.port", c.Database.Port)...)
		if c.Database.Database == "" {
			errs = append(errs, ValidationError{Field: "database.database", Message: "Database name is required"})
		}
		if c.Database.User == "" {
			errs = append(errs, ValidationError{Field: "database.user", Message: "Database user is required"})
		}
	}
	if c.Database.PoolSize < 1 || c.Database.PoolSize > 100 {
		errs = append(errs, ValidationError{
			Field:   "database.pool_size",
			Message: fmt.Sprintf("Pool size %d must be between 1 and 100", c.Database.PoolSize),
		})
	}
	return errs
}

func (c *Config) validateRedis() ValidationErrors {
	if !c.Redis.Enabled {
		return nil
	}

	var errs ValidationErrors
	if c.Redis.Host == "" {
		errs = append(errs, ValidationError{Field: "redis.host", Message: "Redis host is required"})
	}
	errs = append(errs, validPort("redis.port", c.Redis.Port)...)
	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		errs = append(errs, ValidationError{Field: "redis.db", Message: fmt.Sprintf("Invalid Redis DB %d. Must be between 0-15", c.Redis.DB)})
	}
	if c.Redis.TTL < 0 {
		errs = append(errs, ValidationError{Field: "redis.ttl", Message: "Cache TTL cannot be negative"})
	}
	return errs
}

func (c *Config) validateAPI() ValidationErrors {
	errs := validPort("api.port", c.API.Port)

	if c.API.PreviewLimit < 1 {
		errs = append(errs, ValidationError{Field: "api.preview_limit", Message: "Preview limit must be positive"})
	}
	if c.API.Auth.Enabled {
		if len(c.API.Auth.KeyHashes) == 0 {
			errs = append(errs, ValidationError{Field: "api.auth.key_hashes", Message: "At least one API key hash is required when auth is enabled"})
		}
		for name, hash := range c.API.Auth.KeyHashes {
			if len(hash) != 64 {
				errs = append(errs, ValidationError{
					Field:   "api.auth.key_hashes." + name,
					Message: "API key hash must be a 64-character SHA-256 hex digest",
				})
			}
		}
	}
	if rl := c.API.RateLimit; rl.Enabled {
		if rl.GlobalMaxRequests < 1 || rl.RunMaxRequests < 1 {
			errs = append(errs, ValidationError{Field: "api.rate_limit", Message: "Rate limit budgets must be positive"})
		}
		if rl.Window <= 0 {
			errs = append(errs, ValidationError{Field: "api.rate_limit.window", Message: "Rate limit window must be positive"})
		}
	}
	return errs
}

func (c *Config) validateEngine() ValidationErrors {
	var errs ValidationErrors
	if c.Engine.MaxVariables < 1 {
		errs = append(errs, ValidationError{Field: "engine.max_variables", Message: "Variable capacity must be positive"})
	}
	if c.Engine.MaxCombinations < 0 {
		errs = append(errs, ValidationError{Field: "engine.max_combinations", Message: "Combination cap cannot be negative (0 means unbounded)"})
	}
	return errs
}

func (c *Config) validateBacktest() ValidationErrors {
	var errs ValidationErrors

	if u, err := url.Parse(c.Backtest.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "backtest.base_url",
			Message: fmt.Sprintf("Invalid backtest engine URL '%s'", c.Backtest.BaseURL),
		})
	}
	if c.Backtest.Timeout <= 0 || c.Backtest.Timeout > 10*time.Minute {
		errs = append(errs, ValidationError{Field: "backtest.timeout", Message: "Timeout must be between 0 and 10m"})
	}
	if r := c.Backtest.Breaker.FailureRatio; r <= 0 || r > 1 {
		errs = append(errs, ValidationError{Field: "backtest.breaker.failure_ratio", Message: fmt.Sprintf("Failure ratio %.2f must be in (0, 1]", r)})
	}
	return errs
}

func (c *Config) validateOptimizer() ValidationErrors {
	var errs ValidationErrors
	if c.Optimizer.Parallelism < 1 || c.Optimizer.Parallelism > 64 {
		errs = append(errs, ValidationError{Field: "optimizer.parallelism", Message: "Parallelism must be between 1 and 64"})
	}
	if c.Optimizer.RatePerSecond < 0 {
		errs = append(errs, ValidationError{Field: "optimizer.rate_per_second", Message: "Rate cannot be negative (0 means unlimited)"})
	}
	if c.Optimizer.StoredResults < 1 {
		errs = append(errs, ValidationError{Field: "optimizer.stored_results", Message: "At least one result must be stored"})
	}
	if c.Optimizer.MinTrades < 0 {
		errs = append(errs, ValidationError{Field: "optimizer.min_trades", Message: "Minimum trades cannot be negative"})
	}
	return errs
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	if c.App.Environment != "production" {
		return nil
	}

	errs := ValidateProductionSecrets(c)
	if c.Database.Enabled && c.Database.URL == "" && c.Database.SSLMode == "disable" {
		errs = append(errs, ValidationError{Field: "database.ssl_mode", Message: "SSL must be enabled for database in production"})
	}
	if !c.API.Auth.Enabled {
		errs = append(errs, ValidationError{Field: "api.auth.enabled", Message: "API key auth must be enabled in production"})
	}
	if slices.Contains(c.API.AllowedOrigins, "*") {
		errs = append(errs, ValidationError{Field: "api.allowed_origins", Message: "Wildcard CORS origin is not allowed in production"})
	}
	return errs
}
