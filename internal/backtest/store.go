package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/metrics"
	"github.com/ajitpratap0/stratforge/internal/optimization"
	"github.com/ajitpratap0/stratforge/internal/strategy"
)

// PoolInterface defines the database operations the store needs; both
// *pgxpool.Pool and pgxmock pools satisfy it
type PoolInterface interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// RunStore persists optimization runs in the optimization_runs table
type RunStore struct {
	db PoolInterface
}

// NewRunStore creates a run store
func NewRunStore(db PoolInterface) *RunStore {
	return &RunStore{db: db}
}

// Create inserts a pending run, assigning its id and timestamps
func (s *RunStore) Create(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now
	run.Status = RunStatusPending

	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRun, err)
	}
	run.TotalCombinations = optimization.CountCombinations(run.Space)

	strategyJSON, err := json.Marshal(run.Strategy)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy: %w", err)
	}
	spaceJSON, err := json.Marshal(run.Space)
	if err != nil {
		return fmt.Errorf("failed to marshal search space: %w", err)
	}
	backtestJSON, err := json.Marshal(run.Backtest)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest config: %w", err)
	}

	query := `
		INSERT INTO optimization_runs (
			id, name, status, strategy_id, strategy, search_space, backtest_config,
			objective, min_trades, min_trades_policy, total_combinations,
			created_at, updated_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	start := time.Now()
	_, err = s.db.Exec(ctx, query,
		run.ID, run.Name, run.Status, run.StrategyID(), strategyJSON, spaceJSON, backtestJSON,
		run.Objective, run.Ranking.MinTrades, string(run.Ranking.Policy),
		toBigint(run.TotalCombinations),
		run.CreatedAt, run.UpdatedAt, run.CreatedBy,
	)
	metrics.RecordDatabaseQuery("insert", float64(time.Since(start).Milliseconds()))
	if err != nil {
		return fmt.Errorf("failed to insert optimization run: %w", err)
	}

	log.Info().
		Str("run_id", run.ID.String()).
		Str("name", run.Name).
		Str("strategy_id", run.StrategyID()).
		Msg("Created optimization run")

	return nil
}

// Get retrieves a run by id, including its stored results
func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, name, status, strategy, search_space, backtest_config,
		       objective, min_trades, min_trades_policy,
		       total_combinations, evaluated, failed, truncated, best_score, results,
		       error_message, created_at, started_at, completed_at, updated_at, created_by
		FROM optimization_runs
		WHERE id = $1
	`

	var run Run
	var strategyJSON, spaceJSON, backtestJSON, resultsJSON []byte
	var policy string
	var total int64

	start := time.Now()
	err := s.db.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Name, &run.Status, &strategyJSON, &spaceJSON, &backtestJSON,
		&run.Objective, &run.Ranking.MinTrades, &policy,
		&total, &run.Evaluated, &run.Failed, &run.Truncated, &run.BestScore, &resultsJSON,
		&run.ErrorMessage, &run.CreatedAt, &run.StartedAt, &run.CompletedAt, &run.UpdatedAt, &run.CreatedBy,
	)
	metrics.RecordDatabaseQuery("select", float64(time.Since(start).Milliseconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve optimization run: %w", err)
	}
	run.Ranking.Policy = optimization.MinTradesPolicy(policy)
	run.TotalCombinations = uint64(total)

	run.Strategy = &strategy.Strategy{}
	if err := json.Unmarshal(strategyJSON, run.Strategy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal strategy: %w", err)
	}
	if err := json.Unmarshal(spaceJSON, &run.Space); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search space: %w", err)
	}
	if err := json.Unmarshal(backtestJSON, &run.Backtest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backtest config: %w", err)
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &run.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
	}

	return &run, nil
}

// List retrieves a page of runs without their strategy documents or
// results, newest first. An empty strategyID lists every run.
func (s *RunStore) List(ctx context.Context, strategyID string, limit, offset int) ([]*Run, int, error) {
	whereClause := ""
	args := []interface{}{}
	argPos := 1

	if strategyID != "" {
		whereClause = fmt.Sprintf("WHERE strategy_id = $%d", argPos)
		args = append(args, strategyID)
		argPos++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM optimization_runs %s", whereClause)
	var total int
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count optimization runs: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, name, status, objective,
		       total_combinations, evaluated, failed, truncated, best_score,
		       error_message, created_at, started_at, completed_at, updated_at, created_by
		FROM optimization_runs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)

	start := time.Now()
	rows, err := s.db.Query(ctx, query, args...)
	metrics.RecordDatabaseQuery("select", float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query optimization runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		var run Run
		var combos int64
		if err := rows.Scan(
			&run.ID, &run.Name, &run.Status, &run.Objective,
			&combos, &run.Evaluated, &run.Failed, &run.Truncated, &run.BestScore,
			&run.ErrorMessage, &run.CreatedAt, &run.StartedAt, &run.CompletedAt, &run.UpdatedAt, &run.CreatedBy,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan optimization run: %w", err)
		}
		run.TotalCombinations = uint64(combos)
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate optimization runs: %w", err)
	}

	return runs, total, nil
}

// UpdateStatus moves a run to status, stamping started_at or completed_at
func (s *RunStore) UpdateStatus(ctx context.Context, id uuid.UUID, status RunStatus, errorMsg string) error {
	now := time.Now()

	var startedAt, completedAt *time.Time
	switch status {
	case RunStatusRunning:
		startedAt = &now
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		completedAt = &now
	}

	query := `
		UPDATE optimization_runs
		SET status = $1,
		    started_at = COALESCE($2, started_at),
		    completed_at = COALESCE($3, completed_at),
		    error_message = $4,
		    updated_at = $5
		WHERE id = $6
	`

	tag, err := s.db.Exec(ctx, query, status, startedAt, completedAt, errorMsg, now, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// SaveResults stores the ranked outcome of a run together with its final
// status
func (s *RunStore) SaveResults(ctx context.Context, run *Run) error {
	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	now := time.Now()
	query := `
		UPDATE optimization_runs
		SET results = $1,
		    total_combinations = $2,
		    evaluated = $3,
		    failed = $4,
		    truncated = $5,
		    best_score = $6,
		    status = $7,
		    error_message = $8,
		    completed_at = $9,
		    updated_at = $10
		WHERE id = $11
	`

	start := time.Now()
	tag, err := s.db.Exec(ctx, query,
		resultsJSON,
		toBigint(run.TotalCombinations),
		run.Evaluated,
		run.Failed,
		run.Truncated,
		run.BestScore,
		run.Status,
		run.ErrorMessage,
		now,
		now,
		run.ID,
	)
	metrics.RecordDatabaseQuery("update", float64(time.Since(start).Milliseconds()))
	if err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	run.CompletedAt = &now
	run.UpdatedAt = now

	log.Info().
		Str("run_id", run.ID.String()).
		Str("status", string(run.Status)).
		Int("evaluated", run.Evaluated).
		Int("failed", run.Failed).
		Msg("Saved optimization results")

	return nil
}

// toBigint clamps a combination count to the BIGINT range
func toBigint(n uint64) int64 {
	if n > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}

// Delete removes a run
func (s *RunStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.Exec(ctx, `DELETE FROM optimization_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete optimization run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	log.Info().
		Str("run_id", id.String()).
		Msg("Deleted optimization run")

	return nil
}
