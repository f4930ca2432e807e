package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/stratforge/internal/optimization"
)

// MemoryStore keeps runs in process memory. It backs the API when no
// database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*Run
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]*Run)}
}

// Create implements Store
func (s *MemoryStore) Create(_ context.Context, run *Run) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("optimization run %s already exists", run.ID)
	}
	stored := *run
	s.runs[run.ID] = &stored
	return nil
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	out := *run
	out.Results = append([]optimization.Result(nil), run.Results...)
	return &out, nil
}

// List implements Store
func (s *MemoryStore) List(_ context.Context, strategyID string, limit, offset int) ([]*Run, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		if strategyID != "" && run.StrategyID() != strategyID {
			continue
		}
		summary := *run
		summary.Strategy = nil
		summary.Results = nil
		matched = append(matched, &summary)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

// UpdateStatus implements Store
func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status RunStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	now := time.Now()
	switch status {
	case RunStatusRunning:
		run.StartedAt = &now
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		run.CompletedAt = &now
	}
	run.Status = status
	run.ErrorMessage = errorMsg
	run.UpdatedAt = now
	return nil
}

// SaveResults implements Store
func (s *MemoryStore) SaveResults(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	now := time.Now()
	stored.Results = append([]optimization.Result(nil), run.Results...)
	stored.TotalCombinations = run.TotalCombinations
	stored.Evaluated = run.Evaluated
	stored.Failed = run.Failed
	stored.Truncated = run.Truncated
	stored.BestScore = run.BestScore
	stored.Status = run.Status
	stored.ErrorMessage = run.ErrorMessage
	stored.CompletedAt = &now
	stored.UpdatedAt = now
	run.CompletedAt = &now
	run.UpdatedAt = now
	return nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	delete(s.runs, id)
	return nil
}
