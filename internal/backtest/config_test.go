package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/stratforge/internal/config"
)

func TestClientConfigFrom(t *testing.T) {
	got := ClientConfigFrom(config.BacktestConfig{
		BaseURL: "http://engine:8090",
		APIKey:  "k",
		Timeout: 30 * time.Second,
		Breaker: config.CircuitBreakerConfig{
			MinRequests:     4,
			FailureRatio:    0.5,
			OpenTimeout:     10 * time.Second,
			HalfOpenMaxReqs: 2,
			CountInterval:   time.Minute,
		},
	})

	assert.Equal(t, "http://engine:8090", got.BaseURL)
	assert.Equal(t, 30*time.Second, got.Timeout)
	assert.Equal(t, BreakerSettings{
		MinRequests:     4,
		FailureRatio:    0.5,
		OpenTimeout:     10 * time.Second,
		HalfOpenMaxReqs: 2,
		CountInterval:   time.Minute,
	}, got.Breaker)
}
