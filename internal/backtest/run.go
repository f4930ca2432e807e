// Package backtest is the boundary to the external backtest engine: an HTTP
// client, a Redis cache for its metrics, a Postgres store for optimization
// runs and a manager that executes runs in the background.
package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/stratforge/internal/optimization"
	"github.com/ajitpratap0/stratforge/internal/strategy"
)

// RunStatus represents the status of an optimization run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// ErrRunNotFound is returned for unknown run ids
var ErrRunNotFound = errors.New("optimization run not found")

// ErrInvalidRun wraps validation failures of a run being created
var ErrInvalidRun = errors.New("invalid run configuration")

// DefaultStoredResults is how many ranked results a run keeps
const DefaultStoredResults = 50

// Run is a persisted grid search over one strategy
type Run struct {
	ID        uuid.UUID                `json:"id"`
	Name      string                   `json:"name"`
	Status    RunStatus                `json:"status"`
	Strategy  *strategy.Strategy       `json:"strategy"`
	Space     optimization.Config      `json:"space"`
	Backtest  optimization.RunConfig   `json:"backtest"`
	Objective string                   `json:"objective"`
	Ranking   optimization.RankOptions `json:"ranking"`

	TotalCombinations uint64                `json:"total_combinations"`
	Evaluated         int                   `json:"evaluated"`
	Failed            int                   `json:"failed"`
	Truncated         bool                  `json:"truncated"`
	BestScore         *float64              `json:"best_score,omitempty"`
	Results           []optimization.Result `json:"results,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CreatedBy    string     `json:"created_by,omitempty"`
}

// StrategyID returns the id of the optimized strategy
func (r *Run) StrategyID() string {
	if r.Strategy == nil {
		return ""
	}
	return r.Strategy.Metadata.ID
}

// Validate checks a run before it is stored
func (r *Run) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("run name is required")
	}
	if r.Strategy == nil {
		return fmt.Errorf("strategy is required")
	}
	if err := r.Space.Validate(); err != nil {
		return fmt.Errorf("invalid search space: %w", err)
	}
	if r.Backtest.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !r.Backtest.Start.IsZero() && !r.Backtest.End.After(r.Backtest.Start) {
		return fmt.Errorf("end must be after start")
	}
	if r.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}
	if _, err := optimization.ScorerByName(r.Objective); err != nil {
		return err
	}
	if !r.Ranking.Policy.Valid() {
		return fmt.Errorf("invalid min trades policy %q", r.Ranking.Policy)
	}
	return nil
}

// ApplySummary copies the outcome of a grid search onto the run, keeping at
// most keep results (ranked first)
func (r *Run) ApplySummary(summary *optimization.Summary, keep int) {
	r.TotalCombinations = summary.TotalCombinations
	r.Evaluated = summary.Evaluated
	r.Failed = summary.Failed
	r.Truncated = summary.Truncated
	r.BestScore = nil
	if summary.Best != nil {
		score := summary.Best.Score
		r.BestScore = &score
	}
	if keep <= 0 || keep > len(summary.Results) {
		keep = len(summary.Results)
	}
	r.Results = append([]optimization.Result(nil), summary.Results[:keep]...)
}
