package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/api"
	"github.com/ajitpratap0/stratforge/internal/config"
	"github.com/ajitpratap0/stratforge/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config.yaml or ./configs/config.yaml)")
	envFile := flag.String("env", ".env", "Env file loaded before the config")
	flag.Parse()

	envErr := loadEnvFile(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("No env file loaded")
	}
	log.Info().
		Str("version", config.Version).
		Str("environment", cfg.App.Environment).
		Str("addr", cfg.API.GetAPIAddr()).
		Msg("Starting Stratforge API Server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validator := config.NewValidator(cfg, config.DefaultValidatorOptions())
	if err := validator.ValidateStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("Startup validation failed")
	}

	deps, err := buildDependencies(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize dependencies")
	}
	defer deps.Close()

	server := api.NewServer(api.Config{
		Host:           cfg.API.Host,
		Port:           cfg.API.Port,
		Runs:           deps.runs,
		Strategies:     deps.strategies,
		Checks:         deps.checks,
		MaxVariables:   cfg.Engine.MaxVariables,
		PreviewLimit:   cfg.API.PreviewLimit,
		AllowedOrigins: cfg.API.AllowedOrigins,
		Auth: api.AuthConfig{
			Enabled:    cfg.API.Auth.Enabled,
			HeaderName: cfg.API.Auth.HeaderName,
			KeyHashes:  cfg.API.Auth.KeyHashes,
		},
		RateLimit: api.RateLimitConfig{
			Enabled:           cfg.API.RateLimit.Enabled,
			GlobalMaxRequests: cfg.API.RateLimit.GlobalMaxRequests,
			RunMaxRequests:    cfg.API.RateLimit.RunMaxRequests,
			Window:            cfg.API.RateLimit.Window,
		},
	})

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics && cfg.Monitoring.MetricsPort != cfg.API.Port {
		metricsServer = metrics.NewServer(cfg.Monitoring.MetricsPort, config.Version, log.Logger)
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start metrics server")
		}
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	var shutdownErr error
	if err := server.Stop(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}
	if deps.runs != nil {
		if err := deps.runs.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("failed to drain optimization runs: %w", err))
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}

	if shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("Failed to stop server gracefully")
		deps.Close()
		os.Exit(1)
	}

	log.Info().Msg("Server stopped successfully")
}

// loadEnvFile loads KEY=VALUE pairs into the environment without overriding
// variables that are already set
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("env file %s not found", path)
	}
	return godotenv.Load(path)
}
