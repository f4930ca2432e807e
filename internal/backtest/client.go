package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/stratforge/internal/metrics"
	"github.com/ajitpratap0/stratforge/internal/optimization"
	"github.com/ajitpratap0/stratforge/internal/strategy"
)

// Breaker defaults for the backtest engine
const (
	EngineMinRequests     = 5
	EngineFailureRatio    = 0.6
	EngineOpenTimeout     = 30 * time.Second
	EngineHalfOpenMaxReqs = 2
	EngineCountInterval   = 10 * time.Second

	// maxErrorBody bounds how much of an error response is kept
	maxErrorBody = 4 << 10
)

// BreakerSettings holds circuit breaker thresholds
type BreakerSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// DefaultBreakerSettings returns the engine defaults
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:     EngineMinRequests,
		FailureRatio:    EngineFailureRatio,
		OpenTimeout:     EngineOpenTimeout,
		HalfOpenMaxReqs: EngineHalfOpenMaxReqs,
		CountInterval:   EngineCountInterval,
	}
}

// ClientConfig configures the engine client
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Breaker BreakerSettings
}

// EngineError is a non-2xx response from the engine
type EngineError struct {
	StatusCode int
	Message    string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("backtest engine returned status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying could succeed
func (e *EngineError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Request is the body sent to the engine
type Request struct {
	Strategy *strategy.Strategy     `json:"strategy"`
	Run      optimization.RunConfig `json:"run"`
}

// Client calls the backtest engine over HTTP behind a circuit breaker. It
// implements optimization.Evaluator.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates an engine client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backtest engine base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	settings := cfg.Breaker
	if settings.MinRequests == 0 {
		settings = DefaultBreakerSettings()
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backtest_engine",
		MaxRequests: settings.HalfOpenMaxReqs,
		Interval:    settings.CountInterval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= settings.MinRequests && failureRatio >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// rejected requests say nothing about engine health
			var engineErr *EngineError
			if errors.As(err, &engineErr) {
				return !engineErr.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.UpdateCircuitBreaker(name, int(to))
			if to == gobreaker.StateOpen {
				metrics.RecordCircuitBreakerTrip(name)
			}
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	metrics.UpdateCircuitBreaker("backtest_engine", int(c.breaker.State()))

	return c, nil
}

// State returns the breaker state
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Evaluate sends a fully scalar strategy to the engine and returns its metrics
func (c *Client) Evaluate(ctx context.Context, s *strategy.Strategy, run optimization.RunConfig) (*optimization.Metrics, error) {
	if s == nil {
		return nil, errors.New("strategy is nil")
	}
	if !s.IsConcrete() {
		return nil, fmt.Errorf("invalid request: strategy %s still references variables %v", s.Metadata.ID, s.ReferencedVariables())
	}

	body, err := json.Marshal(Request{Strategy: s, Run: run})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backtest request: %w", err)
	}

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, "/v1/backtests", body)
	})
	metrics.RecordBacktestCall(float64(time.Since(start).Milliseconds()), err)
	if err != nil {
		return nil, fmt.Errorf("backtest failed: %w", err)
	}
	return out.(*optimization.Metrics), nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*optimization.Metrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &EngineError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var m optimization.Metrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode backtest metrics: %w", err)
	}
	return &m, nil
}

// Health checks that the engine answers GET /health
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &EngineError{StatusCode: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}
