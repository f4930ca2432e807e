package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ajitpratap0/stratforge/internal/backtest"
	"github.com/ajitpratap0/stratforge/internal/config"
	"github.com/ajitpratap0/stratforge/internal/optimization"
	"github.com/ajitpratap0/stratforge/internal/strategy"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

// writeStrategy exports an RSI strategy whose period (10..20 step 2) and stop
// loss (1..2 step 1) are variables, 12 combinations in all
func writeStrategy(t *testing.T) string {
	t.Helper()

	s := strategy.NewDefaultStrategy("RSI sweep")
	period := variables.Variable{
		ID: "var_1", Name: "Period", CurrentValue: 14, Enabled: true,
		Range: &variables.Range{Min: 10, Max: 20, Step: 2},
	}
	stop := variables.Variable{
		ID: "var_2", Name: "Stop", CurrentValue: 2, Enabled: true,
		Range: &variables.Range{Min: 1, Max: 2, Step: 1},
	}
	s.Variables = []variables.Variable{period, stop}
	require.NoError(t, s.EntryRules.Conditions[0].Left.SetParameter("period", variables.RefTo(period), s.Lookup()))
	s.Risk.StopLoss.Value = variables.RefTo(stop)

	path := filepath.Join(t.TempDir(), "rsi.yaml")
	require.NoError(t, strategy.ExportToFile(s, path, strategy.DefaultExportOptions()))
	return path
}

// fakeEngine scores each backtest by its stop loss and counts the calls
func fakeEngine(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req backtest.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		stop, _ := req.Strategy.Risk.StopLoss.Value.Float()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(optimization.Metrics{
			SharpeRatio:    stop,
			TotalReturnPct: stop * 5,
			TotalTrades:    20,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(engineURL string) *config.Config {
	return &config.Config{
		Engine:    config.EngineConfig{MaxVariables: 10, MaxCombinations: 100},
		Backtest:  config.BacktestConfig{BaseURL: engineURL, Timeout: time.Second},
		Optimizer: config.OptimizerConfig{Parallelism: 2, Burst: 1, Objective: "sharpe"},
	}
}

func testOptions(t *testing.T, args ...string) options {
	t.Helper()
	opts, err := parseFlags(append([]string{"-strategy", writeStrategy(t)}, args...), io.Discard)
	require.NoError(t, err)
	return opts
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-strategy", "s.yaml"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "s.yaml", opts.strategyPath)
	assert.Equal(t, 0, opts.maxCombinations)
	assert.Equal(t, 10, opts.top)
	assert.Equal(t, -1, opts.minTrades)
	assert.Equal(t, "exclude", opts.policy)
	assert.False(t, opts.dryRun)

	opts, err = parseFlags([]string{"-strategy", "s.json", "-max", "50", "-dry-run", "-top", "3", "-xlsx", "out.xlsx"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 50, opts.maxCombinations)
	assert.True(t, opts.dryRun)
	assert.Equal(t, 3, opts.top)
	assert.Equal(t, "out.xlsx", opts.xlsxPath)
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing strategy", nil, "-strategy flag is required"},
		{"negative max", []string{"-strategy", "s.yaml", "-max", "-1"}, "-max must not be negative"},
		{"negative top", []string{"-strategy", "s.yaml", "-top", "-2"}, "-top must not be negative"},
		{"unknown policy", []string{"-strategy", "s.yaml", "-policy", "drop"}, "invalid -policy"},
		{"unknown flag", []string{"-strategy", "s.yaml", "-bogus"}, "bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, io.Discard)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_DryRun(t *testing.T) {
	srv, calls := fakeEngine(t)

	var out bytes.Buffer
	err := run(context.Background(), testConfig(srv.URL), testOptions(t, "-dry-run"), &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "SEARCH SPACE")
	assert.Contains(t, out.String(), "Period")
	assert.Contains(t, out.String(), "12 combinations")
	assert.NotContains(t, out.String(), "warning")
	assert.Zero(t, calls.Load())
}

func TestRun_RanksAndExports(t *testing.T) {
	srv, calls := fakeEngine(t)
	xlsx := filepath.Join(t.TempDir(), "reports", "rsi.xlsx")

	var out bytes.Buffer
	err := run(context.Background(), testConfig(srv.URL), testOptions(t, "-top", "3", "-xlsx", xlsx), &out)
	require.NoError(t, err)

	assert.Equal(t, int32(12), calls.Load())
	assert.Contains(t, out.String(), "RSI SWEEP")
	assert.Contains(t, out.String(), "objective sharpe | evaluated 12 of 12 | failed 0")

	fx, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer fx.Close()

	rows, err := fx.GetRows("Ranking")
	require.NoError(t, err)
	assert.Len(t, rows, 13)
}

func TestRun_CapTruncates(t *testing.T) {
	srv, calls := fakeEngine(t)

	var out bytes.Buffer
	err := run(context.Background(), testConfig(srv.URL), testOptions(t, "-max", "4"), &out)
	require.NoError(t, err)

	assert.Equal(t, int32(4), calls.Load())
	assert.Contains(t, out.String(), "12 combinations | capped at 4")
	assert.Contains(t, out.String(), "warning: search space truncated: evaluating 4 of 12 combinations")
	assert.Contains(t, out.String(), "evaluated 4 of 12")
}

func TestRun_ConfigCapApplies(t *testing.T) {
	srv, calls := fakeEngine(t)
	cfg := testConfig(srv.URL)
	cfg.Engine.MaxCombinations = 5

	err := run(context.Background(), cfg, testOptions(t), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, int32(5), calls.Load())
}

func TestRun_CachesMetricsInRedis(t *testing.T) {
	srv, calls := fakeEngine(t)
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := testConfig(srv.URL)
	cfg.Redis = config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port, TTL: time.Hour}
	opts := testOptions(t)

	require.NoError(t, run(context.Background(), cfg, opts, io.Discard))
	require.NoError(t, run(context.Background(), cfg, opts, io.Discard))

	assert.Equal(t, int32(12), calls.Load())
}

func TestRun_Errors(t *testing.T) {
	srv, _ := fakeEngine(t)

	t.Run("missing strategy file", func(t *testing.T) {
		opts, err := parseFlags([]string{"-strategy", filepath.Join(t.TempDir(), "none.yaml")}, io.Discard)
		require.NoError(t, err)
		err = run(context.Background(), testConfig(srv.URL), opts, io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read strategy file")
	})

	t.Run("end before start", func(t *testing.T) {
		opts := testOptions(t, "-start", "2024-03-01", "-end", "2024-01-01")
		err := run(context.Background(), testConfig(srv.URL), opts, io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "-end must be after -start")
	})

	t.Run("bad date", func(t *testing.T) {
		opts := testOptions(t, "-start", "March")
		err := run(context.Background(), testConfig(srv.URL), opts, io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid start date format")
	})

	t.Run("unknown objective", func(t *testing.T) {
		opts := testOptions(t, "-objective", "luck")
		err := run(context.Background(), testConfig(srv.URL), opts, io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown objective")
	})

	t.Run("engine url missing", func(t *testing.T) {
		err := run(context.Background(), testConfig(""), testOptions(t), io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "base URL is required")
	})
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, loadEnvFile(""))
	assert.Error(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STRATFORGE_OPTIMIZE_TEST=on\n"), 0o600))
	t.Setenv("STRATFORGE_OPTIMIZE_TEST", "")
	require.NoError(t, os.Unsetenv("STRATFORGE_OPTIMIZE_TEST"))

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "on", os.Getenv("STRATFORGE_OPTIMIZE_TEST"))
}
