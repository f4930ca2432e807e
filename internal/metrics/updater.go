package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// runStatuses are every status the run store writes; statuses absent from a
// query result are reset to zero so stale gauges do not linger
var runStatuses = []string{"pending", "running", "completed", "failed", "cancelled"}

// StatsQuerier is the subset of pgxpool.Pool the updater needs
type StatsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Updater periodically updates gauges from the database
type Updater struct {
	db       StatsQuerier
	pool     *pgxpool.Pool
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates a new metrics updater
func NewUpdater(pool *pgxpool.Pool, interval time.Duration) *Updater {
	return &Updater{
		db:       pool,
		pool:     pool,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the metrics update loop; it blocks until Stop or ctx is done
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update(ctx context.Context) {
	log.Debug().Msg("Updating metrics from database")

	if err := u.updateRunMetrics(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to fetch optimization run metrics")
	}
	u.updateDatabaseMetrics()
}

// updateRunMetrics refreshes the runs-by-status gauge
func (u *Updater) updateRunMetrics(ctx context.Context) error {
	start := time.Now()
	rows, err := u.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM optimization_runs
		GROUP BY status
	`)
	if err != nil {
		RecordError("query", "metrics_updater")
		return err
	}
	defer rows.Close()

	counts := make(map[string]int64, len(runStatuses))
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return err
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return err
	}
	RecordDatabaseQuery("run_status_counts", float64(time.Since(start).Milliseconds()))

	for _, status := range runStatuses {
		OptimizationRunsByStatus.WithLabelValues(status).Set(float64(counts[status]))
	}
	return nil
}

func (u *Updater) updateDatabaseMetrics() {
	if u.pool == nil {
		return
	}
	stat := u.pool.Stat()
	UpdateDatabaseConnections(stat.AcquiredConns(), stat.IdleConns())
}
