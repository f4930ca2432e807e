package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/stratforge/internal/strategy"
)

// StrategyStore persists strategy documents; db.StrategyRepository and
// MemoryStrategyStore implement it
type StrategyStore interface {
	Save(ctx context.Context, s *strategy.Strategy) error
	GetByID(ctx context.Context, id string) (*strategy.Strategy, error)
	List(ctx context.Context, limit, offset int) ([]*strategy.Strategy, error)
	Delete(ctx context.Context, id string) error
	History(ctx context.Context, id string, limit int) ([]*strategy.Strategy, error)
}

// MemoryStrategyStore keeps strategies in process memory
type MemoryStrategyStore struct {
	mu         sync.RWMutex
	strategies map[string]*strategy.Strategy
	history    map[string][]*strategy.Strategy
}

// NewMemoryStrategyStore creates an empty store
func NewMemoryStrategyStore() *MemoryStrategyStore {
	return &MemoryStrategyStore{
		strategies: make(map[string]*strategy.Strategy),
		history:    make(map[string][]*strategy.Strategy),
	}
}

// Save implements StrategyStore
func (m *MemoryStrategyStore) Save(_ context.Context, s *strategy.Strategy) error {
	if s.Metadata.ID == "" {
		s.Metadata.ID = uuid.New().String()
	}
	if s.Metadata.CreatedAt.IsZero() {
		s.Metadata.CreatedAt = time.Now()
	}
	s.Metadata.UpdatedAt = time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[s.Metadata.ID] = s.DeepCopy()
	m.history[s.Metadata.ID] = append(m.history[s.Metadata.ID], s.DeepCopy())
	return nil
}

// GetByID implements StrategyStore
func (m *MemoryStrategyStore) GetByID(_ context.Context, id string) (*strategy.Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", strategy.ErrStrategyNotFound, id)
	}
	return s.DeepCopy(), nil
}

// List implements StrategyStore, most recently updated first
func (m *MemoryStrategyStore) List(_ context.Context, limit, offset int) ([]*strategy.Strategy, error) {
	m.mu.RLock()
	all := make([]*strategy.Strategy, 0, len(m.strategies))
	for _, s := range m.strategies {
		all = append(all, s.DeepCopy())
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].Metadata.UpdatedAt.After(all[j].Metadata.UpdatedAt)
	})
	if offset > len(all) {
		offset = len(all)
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// Delete implements StrategyStore
func (m *MemoryStrategyStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.strategies[id]; !ok {
		return fmt.Errorf("%w: %s", strategy.ErrStrategyNotFound, id)
	}
	delete(m.strategies, id)
	delete(m.history, id)
	return nil
}

// History implements StrategyStore, newest revision first
func (m *MemoryStrategyStore) History(_ context.Context, id string, limit int) ([]*strategy.Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	revisions, ok := m.history[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", strategy.ErrStrategyNotFound, id)
	}
	if limit <= 0 {
		limit = 20
	}
	out := make([]*strategy.Strategy, 0, min(limit, len(revisions)))
	for i := len(revisions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, revisions[i].DeepCopy())
	}
	return out, nil
}
