package backtest

import (
	"github.com/ajitpratap0/stratforge/internal/config"
)

// ClientConfigFrom maps the backtest section of the application config to
// client settings
func ClientConfigFrom(cfg config.BacktestConfig) ClientConfig {
	return ClientConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
		Breaker: BreakerSettings{
			MinRequests:     cfg.Breaker.MinRequests,
			FailureRatio:    cfg.Breaker.FailureRatio,
			OpenTimeout:     cfg.Breaker.OpenTimeout,
			HalfOpenMaxReqs: cfg.Breaker.HalfOpenMaxReqs,
			CountInterval:   cfg.Breaker.CountInterval,
		},
	}
}
