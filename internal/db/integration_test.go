//go:build integration

package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratforge/internal/backtest"
	"github.com/ajitpratap0/stratforge/internal/db"
	"github.com/ajitpratap0/stratforge/internal/db/testhelpers"
	"github.com/ajitpratap0/stratforge/internal/optimization"
	"github.com/ajitpratap0/stratforge/internal/strategy"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

func sweepStrategy(t *testing.T) *strategy.Strategy {
	t.Helper()
	s := strategy.NewDefaultStrategy("Integration sweep")
	period := variables.Variable{
		ID: "var_1", Name: "Period", CurrentValue: 14, Enabled: true,
		Range: &variables.Range{Min: 10, Max: 20, Step: 5},
	}
	s.Variables = []variables.Variable{period}
	require.NoError(t, s.EntryRules.Conditions[0].Left.SetParameter("period", variables.RefTo(period), s.Lookup()))
	return s
}

func TestMigrationsWithTestcontainers(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)

	applied, err := tc.ApplyMigrations()
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	applied, err = tc.ApplyMigrations()
	require.NoError(t, err)
	assert.Zero(t, applied, "second run is a no-op")

	sqlDB, err := db.OpenSQL(tc.ConnectionStr)
	require.NoError(t, err)
	defer sqlDB.Close()

	statuses, err := db.NewMigrator(sqlDB, nil).Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for _, s := range statuses {
		assert.True(t, s.Applied, s.Filename)
		assert.NotNil(t, s.AppliedAt)
	}

	assert.NoError(t, tc.DB.Ping(context.Background()))
}

func TestStrategyRepositoryWithTestcontainers(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	_, err := tc.ApplyMigrations()
	require.NoError(t, err)

	ctx := context.Background()
	repo := db.NewStrategyRepository(tc.DB.Pool())
	s := sweepStrategy(t)

	s.Metadata.Version = "1.0.0"
	require.NoError(t, repo.Save(ctx, s))
	s.Metadata.Version = "1.1.0"
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.GetByID(ctx, s.Metadata.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", got.Metadata.Version)
	assert.Equal(t, s.References(), got.References())

	list, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	history, err := repo.History(ctx, s.Metadata.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "1.1.0", history[0].Metadata.Version)

	require.NoError(t, repo.Delete(ctx, s.Metadata.ID))
	_, err = repo.GetByID(ctx, s.Metadata.ID)
	assert.ErrorIs(t, err, strategy.ErrStrategyNotFound)
	_, err = repo.History(ctx, s.Metadata.ID, 10)
	assert.ErrorIs(t, err, strategy.ErrStrategyNotFound, "history cascades")

	other := sweepStrategy(t)
	other.Metadata.ID = ""
	require.NoError(t, repo.Save(ctx, other))
	require.NoError(t, tc.TruncateAllTables())
	list, err = repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRunStoreWithTestcontainers(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	_, err := tc.ApplyMigrations()
	require.NoError(t, err)

	ctx := context.Background()
	store := backtest.NewRunStore(tc.DB.Pool())
	s := sweepStrategy(t)

	run := &backtest.Run{
		Name:      "Period sweep",
		Strategy:  s,
		Space:     optimization.ConfigFromRegistry(s.Lookup(), 0),
		Objective: "sharpe",
		Backtest: optimization.RunConfig{
			Symbol:         "ETH/USDT",
			Timeframe:      "4h",
			Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:            time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			InitialCapital: 5000,
		},
		Ranking: optimization.DefaultRankOptions(),
	}
	require.NoError(t, store.Create(ctx, run))
	require.NoError(t, store.UpdateStatus(ctx, run.ID, backtest.RunStatusRunning, ""))

	best := 1.4
	run.Status = backtest.RunStatusCompleted
	run.Evaluated = 3
	run.BestScore = &best
	run.Results = []optimization.Result{
		{Index: 2, Assignment: optimization.Assignment{"var_1": 20}, Score: 1.4, Rank: 1},
	}
	require.NoError(t, store.SaveResults(ctx, run))

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, backtest.RunStatusCompleted, got.Status)
	assert.Equal(t, uint64(3), got.TotalCombinations)
	require.Len(t, got.Results, 1)
	assert.Equal(t, 20.0, got.Results[0].Assignment["var_1"])
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	runs, total, err := store.List(ctx, s.Metadata.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, runs, 1)

	require.NoError(t, store.Delete(ctx, run.ID))
	_, err = store.Get(ctx, run.ID)
	assert.ErrorIs(t, err, backtest.ErrRunNotFound)
}
