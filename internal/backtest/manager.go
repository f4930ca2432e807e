package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stratforge/internal/config"
	"github.com/ajitpratap0/stratforge/internal/metrics"
	"github.com/ajitpratap0/stratforge/internal/optimization"
)

// ErrRunFinished is returned when cancelling a run that already ended
var ErrRunFinished = errors.New("optimization run already finished")

// Store is the persistence the run manager needs; RunStore and MemoryStore
// implement it
type Store interface {
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, strategyID string, limit, offset int) ([]*Run, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status RunStatus, errorMsg string) error
	SaveResults(ctx context.Context, run *Run) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RunEvent reports the state of an executing run. Progress is published
// after every evaluation; the event with a terminal status is the last one.
type RunEvent struct {
	RunID    uuid.UUID             `json:"run_id"`
	Status   RunStatus             `json:"status"`
	Progress optimization.Progress `json:"progress"`
	Error    string                `json:"error,omitempty"`
}

// Final reports whether no further events follow for the run
func (e RunEvent) Final() bool { return e.Status.Terminal() }

// RunManager executes optimization runs in the background
type RunManager struct {
	store  Store
	runner *optimization.Runner
	keep   int
	log    zerolog.Logger

	ctx       context.Context
	stop      context.CancelFunc
	mu        sync.Mutex
	active    map[uuid.UUID]context.CancelFunc
	progress  map[uuid.UUID]optimization.Progress
	listeners []func(RunEvent)
	wg        sync.WaitGroup
}

// NewRunManager creates a manager; keep bounds the stored results per run
func NewRunManager(store Store, runner *optimization.Runner, keep int) *RunManager {
	if keep <= 0 {
		keep = DefaultStoredResults
	}
	ctx, stop := context.WithCancel(context.Background())
	return &RunManager{
		store:  store,
		runner: runner,
		keep:   keep,
		log:    config.NewLogger("run_manager"),
		ctx:    ctx,
		stop:   stop,
		active:   make(map[uuid.UUID]context.CancelFunc),
		progress: make(map[uuid.UUID]optimization.Progress),
	}
}

// OnEvent registers fn for the events of every run. fn runs on the run's
// goroutine, in order, and must not block.
func (m *RunManager) OnEvent(fn func(RunEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *RunManager) publish(ev RunEvent) {
	m.mu.Lock()
	if ev.Final() {
		delete(m.progress, ev.RunID)
	} else {
		m.progress[ev.RunID] = ev.Progress
	}
	listeners := m.listeners
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// Progress returns the latest progress of a run executing in this process
func (m *RunManager) Progress(id uuid.UUID) (optimization.Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[id]
	return p, ok
}

// Submit stores a new run and starts executing it
func (m *RunManager) Submit(ctx context.Context, run *Run) (*Run, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, errors.New("run manager is shut down")
	}
	if err := m.store.Create(ctx, run); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(m.ctx)
	m.mu.Lock()
	m.active[run.ID] = cancel
	m.mu.Unlock()

	snapshot := *run
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(run.ID)
		m.execute(runCtx, &snapshot)
	}()

	return run, nil
}

func (m *RunManager) release(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.active[id]; ok {
		cancel()
		delete(m.active, id)
	}
}

func (m *RunManager) execute(ctx context.Context, run *Run) {
	start := time.Now()
	metrics.ActiveOptimizationRuns.Inc()
	defer metrics.ActiveOptimizationRuns.Dec()

	// status writes outlive cancellation of the run itself
	storeCtx := context.WithoutCancel(ctx)

	if err := m.store.UpdateStatus(storeCtx, run.ID, RunStatusRunning, ""); err != nil {
		m.log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to mark run as running")
	}
	run.Status = RunStatusRunning
	total := optimization.NewEnumerator(run.Space).Len()
	m.publish(RunEvent{RunID: run.ID, Status: RunStatusRunning, Progress: optimization.Progress{Total: total}})

	m.log.Info().
		Str("run_id", run.ID.String()).
		Str("strategy_id", run.StrategyID()).
		Msg("Optimization run started")

	summary, err := m.runner.Run(ctx, run.Strategy, run.Space, optimization.RunOptions{
		Run:        run.Backtest,
		Rank:       run.Ranking,
		Objective:  run.Objective,
		OnProgress: func(p optimization.Progress) {
			m.publish(RunEvent{RunID: run.ID, Status: RunStatusRunning, Progress: p})
		},
	})

	switch {
	case err == nil:
		run.Status = RunStatusCompleted
		run.ErrorMessage = ""
	case errors.Is(err, context.Canceled):
		run.Status = RunStatusCancelled
		run.ErrorMessage = "cancelled"
	default:
		run.Status = RunStatusFailed
		run.ErrorMessage = err.Error()
	}
	if summary != nil {
		run.ApplySummary(summary, m.keep)
	}

	if err := m.store.SaveResults(storeCtx, run); err != nil {
		m.log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to save optimization results")
	}
	metrics.RecordOptimizationRun(string(run.Status), time.Since(start).Seconds())

	done := optimization.Progress{Completed: run.Evaluated + run.Failed, Failed: run.Failed, Total: total}
	m.publish(RunEvent{RunID: run.ID, Status: run.Status, Progress: done, Error: run.ErrorMessage})

	m.log.Info().
		Str("run_id", run.ID.String()).
		Str("status", string(run.Status)).
		Int("evaluated", run.Evaluated).
		Int("failed", run.Failed).
		Dur("duration", time.Since(start)).
		Msg("Optimization run finished")
}

// Get returns a run from the store
func (m *RunManager) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	return m.store.Get(ctx, id)
}

// List returns a page of runs from the store
func (m *RunManager) List(ctx context.Context, strategyID string, limit, offset int) ([]*Run, int, error) {
	return m.store.List(ctx, strategyID, limit, offset)
}

// IsActive reports whether the run is executing in this process
func (m *RunManager) IsActive(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// Cancel stops an executing run. Runs that are pending in the store but not
// executing here are marked cancelled directly.
func (m *RunManager) Cancel(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	cancel, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		cancel()
		m.log.Info().Str("run_id", id.String()).Msg("Optimization run cancellation requested")
		return nil
	}

	run, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrRunFinished, id, run.Status)
	}
	return m.store.UpdateStatus(ctx, id, RunStatusCancelled, "cancelled")
}

// Delete cancels the run if it is executing and removes it
func (m *RunManager) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	cancel, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return m.store.Delete(ctx, id)
}

// Wait blocks until every submitted run has finished
func (m *RunManager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels every executing run and waits for them to record their
// final status, or for ctx to expire
func (m *RunManager) Shutdown(ctx context.Context) error {
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info().Msg("Run manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
