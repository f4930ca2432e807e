package backtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratforge/internal/optimization"
	"github.com/ajitpratap0/stratforge/internal/strategy"
)

func concreteStrategy(t *testing.T) *strategy.Strategy {
	t.Helper()
	s, _, err := testStrategy(t).Concretize(map[string]float64{"var_1": 12})
	require.NoError(t, err)
	return s
}

func engineServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		BaseURL: srv.URL + "/",
		APIKey:  "secret",
		Timeout: time.Second,
		Breaker: BreakerSettings{
			MinRequests:     2,
			FailureRatio:    0.5,
			OpenTimeout:     time.Minute,
			HalfOpenMaxReqs: 1,
			CountInterval:   time.Minute,
		},
	})
	require.NoError(t, err)
	return client, srv
}

func TestClient_Evaluate(t *testing.T) {
	var got Request
	client, _ := engineServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/backtests", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(optimization.Metrics{WinRate: 55, ProfitFactor: 1.4, TotalTrades: 31})
	})

	s := concreteStrategy(t)
	m, err := client.Evaluate(context.Background(), s, optimization.RunConfig{Symbol: "ETH/USDT", InitialCapital: 5000})
	require.NoError(t, err)

	assert.Equal(t, 55.0, m.WinRate)
	assert.Equal(t, 31, m.TotalTrades)
	assert.Equal(t, "ETH/USDT", got.Run.Symbol)
	require.NotNil(t, got.Strategy)
	assert.True(t, got.Strategy.IsConcrete())
	assert.Equal(t, "RSI(12)", got.Strategy.EntryRules.Conditions[0].Left.Label)
}

func TestClient_RejectsStrategyWithReferences(t *testing.T) {
	var calls int32
	client, _ := engineServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.Evaluate(context.Background(), testStrategy(t), optimization.RunConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "var_1")
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClient_EngineErrors(t *testing.T) {
	client, _ := engineServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown symbol", http.StatusUnprocessableEntity)
	})

	_, err := client.Evaluate(context.Background(), concreteStrategy(t), optimization.RunConfig{})
	require.Error(t, err)
	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, http.StatusUnprocessableEntity, engineErr.StatusCode)
	assert.Equal(t, "unknown symbol", engineErr.Message)
	assert.False(t, engineErr.Temporary())

	// client errors never open the breaker
	for i := 0; i < 5; i++ {
		_, _ = client.Evaluate(context.Background(), concreteStrategy(t), optimization.RunConfig{})
	}
	assert.Equal(t, gobreaker.StateClosed, client.State())
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	client, _ := engineServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 2; i++ {
		_, err := client.Evaluate(context.Background(), concreteStrategy(t), optimization.RunConfig{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	_, err := client.Evaluate(context.Background(), concreteStrategy(t), optimization.RunConfig{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_MalformedResponse(t *testing.T) {
	client, _ := engineServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})

	_, err := client.Evaluate(context.Background(), concreteStrategy(t), optimization.RunConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestClient_Health(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	client, _ := engineServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	assert.NoError(t, client.Health(context.Background()))
	healthy.Store(false)
	assert.Error(t, client.Health(context.Background()))
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}
