package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	API        APIConfig        `mapstructure:"api"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Optimizer  OptimizerConfig  `mapstructure:"optimizer"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json or console
}

// DatabaseConfig contains PostgreSQL settings. The database is optional;
// without one, strategies and runs live in memory.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains settings of the backtest metrics cache
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host           string          `mapstructure:"host"`
	Port           int             `mapstructure:"port"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	PreviewLimit   int             `mapstructure:"preview_limit"`
	Auth           APIAuthConfig   `mapstructure:"auth"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds requests per client IP over a sliding window
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	GlobalMaxRequests int           `mapstructure:"global_max_requests"`
	RunMaxRequests    int           `mapstructure:"run_max_requests"`
	Window            time.Duration `mapstructure:"window"`
}

// APIAuthConfig guards the mutating endpoints with API keys. Keys are stored
// as SHA-256 hex digests by key name.
type APIAuthConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	HeaderName string            `mapstructure:"header_name"`
	KeyHashes  map[string]string `mapstructure:"key_hashes"`
}

// EngineConfig bounds the strategy variable engine
type EngineConfig struct {
	MaxVariables    int `mapstructure:"max_variables"`
	MaxCombinations int `mapstructure:"max_combinations"`
}

// BacktestConfig points at the external backtest engine
type BacktestConfig struct {
	BaseURL string               `mapstructure:"base_url"`
	APIKey  string               `mapstructure:"api_key"`
	Timeout time.Duration        `mapstructure:"timeout"`
	Breaker CircuitBreakerConfig `mapstructure:"breaker"`
}

// CircuitBreakerConfig holds the thresholds of the engine circuit breaker
type CircuitBreakerConfig struct {
	MinRequests     uint32        `mapstructure:"min_requests"`
	FailureRatio    float64       `mapstructure:"failure_ratio"`
	OpenTimeout     time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxReqs uint32        `mapstructure:"half_open_max_requests"`
	CountInterval   time.Duration `mapstructure:"count_interval"`
}

// OptimizerConfig tunes the grid-search worker pool
type OptimizerConfig struct {
	Parallelism   int     `mapstructure:"parallelism"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	StoredResults int     `mapstructure:"stored_results"`
	Objective     string  `mapstructure:"objective"`
	MinTrades     int     `mapstructure:"min_trades"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	MetricsPort    int           `mapstructure:"metrics_port"`
	EnableMetrics  bool          `mapstructure:"enable_metrics"`
	UpdateInterval time.Duration `mapstructure:"update_interval"`
}

// Load loads configuration from file and environment variables.
// Environment variables use the STRATFORGE_ prefix with dots replaced by
// underscores, e.g. STRATFORGE_ENGINE_MAX_VARIABLES.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STRATFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// DATABASE_URL is the conventional override used by migrate and compose
	if url := os.Getenv("DATABASE_URL"); url != "" && cfg.Database.URL == "" {
		cfg.Database.URL = url
		cfg.Database.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stratforge")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", PostgresPort)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "stratforge")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", RedisPort)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", APIServerPort)
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("api.preview_limit", 20)
	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.auth.header_name", "X-API-Key")
	v.SetDefault("api.rate_limit.enabled", false)
	v.SetDefault("api.rate_limit.global_max_requests", 300)
	v.SetDefault("api.rate_limit.run_max_requests", 10)
	v.SetDefault("api.rate_limit.window", "1m")

	v.SetDefault("engine.max_variables", 10)
	v.SetDefault("engine.max_combinations", 10000)

	v.SetDefault("backtest.base_url", "http://localhost:8090")
	v.SetDefault("backtest.timeout", 60*time.Second)
	v.SetDefault("backtest.breaker.min_requests", 5)
	v.SetDefault("backtest.breaker.failure_ratio", 0.6)
	v.SetDefault("backtest.breaker.open_timeout", 30*time.Second)
	v.SetDefault("backtest.breaker.half_open_max_requests", 3)
	v.SetDefault("backtest.breaker.count_interval", 60*time.Second)

	v.SetDefault("optimizer.parallelism", 4)
	v.SetDefault("optimizer.rate_per_second", 0)
	v.SetDefault("optimizer.burst", 1)
	v.SetDefault("optimizer.stored_results", 50)
	v.SetDefault("optimizer.objective", "composite")
	v.SetDefault("optimizer.min_trades", 0)

	v.SetDefault("monitoring.metrics_port", MetricsPort)
	v.SetDefault("monitoring.enable_metrics", true)
	v.SetDefault("monitoring.update_interval", 15*time.Second)
}

// GetDSN returns the PostgreSQL connection string. An explicit URL wins.
func (c *DatabaseConfig) GetDSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Options returns go-redis client options
func (c *RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:     c.GetRedisAddr(),
		Password: c.Password,
		DB:       c.DB,
	}
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
