package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratforge/internal/strategy"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

func testStrategy(t *testing.T) *strategy.Strategy {
	t.Helper()
	s := strategy.NewDefaultStrategy("Mean reversion")
	s.Metadata.Version = "1.2.0"
	s.SetVariables([]variables.Variable{
		{ID: "var_1", Name: "Period", CurrentValue: 14, Enabled: true},
	})
	return s
}

func TestStrategyRepository_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := testStrategy(t)
	s.Metadata.Tags = nil

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO strategies").
		WithArgs(
			s.Metadata.ID, "Mean reversion", s.Metadata.Description, strategy.SchemaVersion,
			pgxmock.AnyArg(), 1, s.Metadata.Author, "1.2.0", []string{}, s.Metadata.Source,
			pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO strategy_history").
		WithArgs(s.Metadata.ID, pgxmock.AnyArg(), "1.2.0", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, NewStrategyRepository(mock).Save(context.Background(), s))
	assert.False(t, s.Metadata.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepository_SaveAssignsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := testStrategy(t)
	s.Metadata.ID = ""

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO strategies").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO strategy_history").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, NewStrategyRepository(mock).Save(context.Background(), s))
	assert.NotEmpty(t, s.Metadata.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepository_SaveRollsBackOnHistoryFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO strategies").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO strategy_history").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = NewStrategyRepository(mock).Save(context.Background(), testStrategy(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := testStrategy(t)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT config FROM strategies WHERE id").
		WithArgs(s.Metadata.ID).
		WillReturnRows(pgxmock.NewRows([]string{"config"}).AddRow(data))

	got, err := NewStrategyRepository(mock).GetByID(context.Background(), s.Metadata.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Metadata.ID, got.Metadata.ID)
	require.Len(t, got.Variables, 1)
	assert.Equal(t, "Period", got.Variables[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepository_GetByIDMigratesOldDocuments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := testStrategy(t)
	s.Metadata.SchemaVersion = "1.0"
	s.Metadata.Source = ""
	data, err := json.Marshal(s)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT config FROM strategies").
		WithArgs(s.Metadata.ID).
		WillReturnRows(pgxmock.NewRows([]string{"config"}).AddRow(data))

	got, err := NewStrategyRepository(mock).GetByID(context.Background(), s.Metadata.ID)
	require.NoError(t, err)
	assert.Equal(t, strategy.SchemaVersion, got.Metadata.SchemaVersion)
	assert.Equal(t, "migrated", got.Metadata.Source)
}

func TestStrategyRepository_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT config FROM strategies").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"config"}))

	_, err = NewStrategyRepository(mock).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, strategy.ErrStrategyNotFound)
}

func TestStrategyRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a, b := testStrategy(t), testStrategy(t)
	b.Metadata.Name = "Breakout"
	dataA, err := json.Marshal(a)
	require.NoError(t, err)
	dataB, err := json.Marshal(b)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT config FROM strategies").
		WithArgs(100, 0).
		WillReturnRows(pgxmock.NewRows([]string{"config"}).AddRow(dataB).AddRow(dataA))

	list, err := NewStrategyRepository(mock).List(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Breakout", list[0].Metadata.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM strategies").
		WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM strategies").
		WithArgs("s2").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewStrategyRepository(mock)
	assert.NoError(t, repo.Delete(context.Background(), "s1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "s2"), strategy.ErrStrategyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepository_History(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := testStrategy(t)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT config FROM strategy_history").
		WithArgs(s.Metadata.ID, 20).
		WillReturnRows(pgxmock.NewRows([]string{"config"}).AddRow(data))
	mock.ExpectQuery("SELECT config FROM strategy_history").
		WithArgs("missing", 5).
		WillReturnRows(pgxmock.NewRows([]string{"config"}))

	repo := NewStrategyRepository(mock)
	history, err := repo.History(context.Background(), s.Metadata.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = repo.History(context.Background(), "missing", 5)
	assert.ErrorIs(t, err, strategy.ErrStrategyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
