package optimization

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratforge/internal/indicators"
	"github.com/ajitpratap0/stratforge/internal/strategy"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

// rsiStrategy binds the entry RSI period to var_1 and the stop loss to var_2
func rsiStrategy(t *testing.T) *strategy.Strategy {
	t.Helper()

	s := strategy.NewDefaultStrategy("Grid")
	period := variables.Variable{
		ID: "var_1", Name: "Period", CurrentValue: 14, Enabled: true,
		Range: &variables.Range{Min: 10, Max: 14, Step: 2},
	}
	stop := variables.Variable{
		ID: "var_2", Name: "Stop", CurrentValue: 2, Enabled: true,
		Range: &variables.Range{Min: 1, Max: 2, Step: 1},
	}
	s.Variables = []variables.Variable{period, stop}
	require.NoError(t, s.EntryRules.Conditions[0].Left.SetParameter("period", variables.RefTo(period), s.Lookup()))
	s.Risk.StopLoss.Value = variables.RefTo(stop)
	return s
}

// periodEvaluator scores a strategy by its concrete entry RSI period
func periodEvaluator(t *testing.T) EvaluatorFunc {
	return func(_ context.Context, s *strategy.Strategy, _ RunConfig) (*Metrics, error) {
		if !s.IsConcrete() {
			return nil, errors.New("strategy still has references")
		}
		p := s.EntryRules.Conditions[0].Left.Parameters.(*indicators.RSIParams)
		period, _ := p.Period.Float()
		stop, _ := s.Risk.StopLoss.Value.Float()
		return &Metrics{
			WinRate:        period * 4,
			ProfitFactor:   stop,
			MaxDrawdownPct: 10,
			TotalTrades:    30,
		}, nil
	}
}

func TestRunner_Run(t *testing.T) {
	s := rsiStrategy(t)
	cfg := ConfigFromRegistry(s.Lookup(), 0)

	var progress []Progress
	var mu sync.Mutex
	runner := NewRunner(periodEvaluator(t), 3, 0, 0)
	summary, err := runner.Run(context.Background(), s, cfg, RunOptions{
		OnProgress: func(p Progress) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	assert.Equal(t, s.Metadata.ID, summary.StrategyID)
	assert.Equal(t, DefaultObjective, summary.Objective)
	assert.Equal(t, uint64(6), summary.TotalCombinations)
	assert.Equal(t, 6, summary.Evaluated)
	assert.Zero(t, summary.Failed)
	assert.False(t, summary.Truncated)
	require.Len(t, summary.Results, 6)

	require.NotNil(t, summary.Best)
	assert.Equal(t, Assignment{"var_1": 14, "var_2": 2}, summary.Best.Assignment)
	assert.Equal(t, 1, summary.Best.Rank)

	assert.Len(t, progress, 6)
	assert.Len(t, summary.Top(2), 2)

	// original strategy untouched
	assert.False(t, s.IsConcrete())
}

func TestRunner_Truncated(t *testing.T) {
	s := rsiStrategy(t)
	cfg := ConfigFromRegistry(s.Lookup(), 4)

	summary, err := NewRunner(periodEvaluator(t), 2, 0, 0).Run(context.Background(), s, cfg, RunOptions{})
	require.NoError(t, err)
	assert.True(t, summary.Truncated)
	assert.Equal(t, uint64(6), summary.TotalCombinations)
	assert.Equal(t, 4, summary.Evaluated)

	var seen []int
	for _, r := range summary.Results {
		seen = append(seen, r.Index)
	}
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, seen)
}

func TestRunner_EvaluationErrorsAreRecorded(t *testing.T) {
	s := rsiStrategy(t)
	inner := periodEvaluator(t)
	flaky := EvaluatorFunc(func(ctx context.Context, st *strategy.Strategy, run RunConfig) (*Metrics, error) {
		stop, _ := st.Risk.StopLoss.Value.Float()
		if stop == 1 {
			return nil, errors.New("engine returned status 500")
		}
		return inner(ctx, st, run)
	})

	summary, err := NewRunner(flaky, 4, 0, 0).Run(context.Background(), s, ConfigFromRegistry(s.Lookup(), 0), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Evaluated)
	assert.Equal(t, 3, summary.Failed)

	for _, r := range summary.Results[3:] {
		assert.True(t, r.Excluded)
		assert.Contains(t, r.Error, "status 500")
	}
}

func TestRunner_BoundedParallelism(t *testing.T) {
	s := rsiStrategy(t)
	inner := periodEvaluator(t)
	var active, peak int32
	slow := EvaluatorFunc(func(ctx context.Context, st *strategy.Strategy, run RunConfig) (*Metrics, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return inner(ctx, st, run)
	})

	_, err := NewRunner(slow, 2, 0, 0).Run(context.Background(), s, ConfigFromRegistry(s.Lookup(), 0), RunOptions{})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunner_Cancellation(t *testing.T) {
	s := rsiStrategy(t)
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	cancelling := EvaluatorFunc(func(ctx context.Context, _ *strategy.Strategy, _ RunConfig) (*Metrics, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			cancel()
		}
		return nil, ctx.Err()
	})

	summary, err := NewRunner(cancelling, 1, 0, 0).Run(ctx, s, ConfigFromRegistry(s.Lookup(), 0), RunOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Less(t, summary.Evaluated+summary.Failed, 6)
}

func TestRunner_RateLimited(t *testing.T) {
	s := rsiStrategy(t)
	start := time.Now()
	_, err := NewRunner(periodEvaluator(t), 6, 50, 1).Run(context.Background(), s, ConfigFromRegistry(s.Lookup(), 0), RunOptions{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRunner_DanglingWarnings(t *testing.T) {
	s := rsiStrategy(t)
	s.Risk.TakeProfit.Value = variables.Ref("var_gone", "Target")

	summary, err := NewRunner(periodEvaluator(t), 2, 0, 0).Run(context.Background(), s, ConfigFromRegistry(s.Lookup(), 0), RunOptions{})
	require.NoError(t, err)
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, "risk.take_profit.value", summary.Warnings[0].Path)
}

func TestRunner_InvalidInput(t *testing.T) {
	runner := NewRunner(periodEvaluator(t), 0, 0, 0)
	assert.Equal(t, DefaultParallelism, runner.Parallelism())

	_, err := runner.Run(context.Background(), nil, Config{}, RunOptions{})
	assert.Error(t, err)

	s := rsiStrategy(t)
	_, err = runner.Run(context.Background(), s, Config{Variables: []VariableRange{{VariableID: "var_1", Step: -1}}}, RunOptions{})
	assert.Error(t, err)

	_, err = runner.Run(context.Background(), s, Config{}, RunOptions{Objective: "luck"})
	assert.Error(t, err)

	_, err = runner.Run(context.Background(), s, Config{}, RunOptions{Rank: RankOptions{Policy: "drop"}})
	assert.Error(t, err)
}

func TestRunner_RejectsIneligibleSpace(t *testing.T) {
	runner := NewRunner(periodEvaluator(t), 2, 0, 0)

	s := rsiStrategy(t)
	s.Variables[0].Enabled = false
	disabled := Config{Variables: []VariableRange{{VariableID: "var_1", Min: 10, Max: 20, Step: 5}}}
	_, err := runner.Run(context.Background(), s, disabled, RunOptions{})
	require.ErrorIs(t, err, ErrNotOptimizable)
	assert.Contains(t, err.Error(), "var_1 (Period)")

	s = rsiStrategy(t)
	s.Variables[1].Range = nil
	unranged := Config{Variables: []VariableRange{{VariableID: "var_2", Min: 1, Max: 3, Step: 1}}}
	_, err = runner.Run(context.Background(), s, unranged, RunOptions{})
	require.ErrorIs(t, err, ErrNotOptimizable)

	unknown := Config{Variables: []VariableRange{{VariableID: "nope", Min: 1, Max: 2, Step: 1}}}
	_, err = runner.Run(context.Background(), rsiStrategy(t), unknown, RunOptions{})
	require.ErrorIs(t, err, variables.ErrVariableNotFound)
}

func TestRunner_ObjectiveByName(t *testing.T) {
	s := rsiStrategy(t)
	summary, err := NewRunner(periodEvaluator(t), 2, 0, 0).Run(context.Background(), s, ConfigFromRegistry(s.Lookup(), 0), RunOptions{Objective: "profit_factor"})
	require.NoError(t, err)
	assert.Equal(t, "profit_factor", summary.Objective)
	assert.Equal(t, 2.0, summary.Best.Score)
	// tie on profit factor resolved by enumeration index
	assert.Equal(t, Assignment{"var_1": 10, "var_2": 2}, summary.Best.Assignment)
}
