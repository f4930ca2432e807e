package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/metrics"
	"github.com/ajitpratap0/stratforge/internal/strategy"
)

// TxQuerier is a Querier that can open transactions
type TxQuerier interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// StrategyRepository stores strategy documents in the strategies table and
// every saved revision in strategy_history
type StrategyRepository struct {
	db TxQuerier
}

// NewStrategyRepository creates a new strategy repository
func NewStrategyRepository(db TxQuerier) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// Save creates or updates a strategy and appends the revision to its history
func (r *StrategyRepository) Save(ctx context.Context, s *strategy.Strategy) error {
	if r.db == nil {
		return errors.New("database connection not available")
	}

	if s.Metadata.ID == "" {
		s.Metadata.ID = uuid.New().String()
	}
	now := time.Now()
	if s.Metadata.CreatedAt.IsZero() {
		s.Metadata.CreatedAt = now
	}
	s.Metadata.UpdatedAt = now

	configJSON, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy: %w", err)
	}

	tags := s.Metadata.Tags
	if tags == nil {
		tags = []string{}
	}

	start := time.Now()
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO strategies (id, name, description, schema_version, config, variable_count, author, version, tags, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			schema_version = EXCLUDED.schema_version,
			config = EXCLUDED.config,
			variable_count = EXCLUDED.variable_count,
			author = EXCLUDED.author,
			version = EXCLUDED.version,
			tags = EXCLUDED.tags,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at
	`
	_, err = tx.Exec(ctx, query,
		s.Metadata.ID,
		s.Metadata.Name,
		s.Metadata.Description,
		s.Metadata.SchemaVersion,
		configJSON,
		len(s.Variables),
		s.Metadata.Author,
		s.Metadata.Version,
		tags,
		s.Metadata.Source,
		s.Metadata.CreatedAt,
		s.Metadata.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save strategy: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO strategy_history (strategy_id, config, version, created_at)
		VALUES ($1, $2, $3, $4)
	`, s.Metadata.ID, configJSON, s.Metadata.Version, s.Metadata.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save strategy history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	metrics.RecordDatabaseQuery("strategy_save", float64(time.Since(start).Milliseconds()))

	log.Debug().
		Str("strategy_id", s.Metadata.ID).
		Str("strategy_name", s.Metadata.Name).
		Int("variables", len(s.Variables)).
		Msg("Strategy saved to database")

	return nil
}

// GetByID retrieves a strategy by its ID
func (r *StrategyRepository) GetByID(ctx context.Context, id string) (*strategy.Strategy, error) {
	if r.db == nil {
		return nil, errors.New("database connection not available")
	}

	var configJSON []byte
	err := r.db.QueryRow(ctx, `SELECT config FROM strategies WHERE id = $1`, id).Scan(&configJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", strategy.ErrStrategyNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}

	return decodeStrategy(configJSON)
}

// List retrieves a page of strategies, most recently updated first
func (r *StrategyRepository) List(ctx context.Context, limit, offset int) ([]*strategy.Strategy, error) {
	if r.db == nil {
		return nil, errors.New("database connection not available")
	}

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT config FROM strategies
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	return scanStrategies(rows)
}

// Delete removes a strategy; its history goes with it
func (r *StrategyRepository) Delete(ctx context.Context, id string) error {
	if r.db == nil {
		return errors.New("database connection not available")
	}

	result, err := r.db.Exec(ctx, `DELETE FROM strategies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete strategy: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", strategy.ErrStrategyNotFound, id)
	}

	log.Info().
		Str("strategy_id", id).
		Msg("Strategy deleted from database")

	return nil
}

// History returns saved revisions of a strategy, newest first
func (r *StrategyRepository) History(ctx context.Context, id string, limit int) ([]*strategy.Strategy, error) {
	if r.db == nil {
		return nil, errors.New("database connection not available")
	}

	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT config FROM strategy_history
		WHERE strategy_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy history: %w", err)
	}
	history, err := scanStrategies(rows)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: %s", strategy.ErrStrategyNotFound, id)
	}
	return history, nil
}

func scanStrategies(rows pgx.Rows) ([]*strategy.Strategy, error) {
	defer rows.Close()

	strategies := []*strategy.Strategy{}
	for rows.Next() {
		var configJSON []byte
		if err := rows.Scan(&configJSON); err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		s, err := decodeStrategy(configJSON)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategies: %w", err)
	}
	return strategies, nil
}

// decodeStrategy unmarshals a stored document, upgrading older schema
// versions on the way out
func decodeStrategy(data []byte) (*strategy.Strategy, error) {
	var s strategy.Strategy
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal strategy: %w", err)
	}
	if s.Metadata.SchemaVersion != strategy.SchemaVersion {
		if err := strategy.Migrate(&s); err != nil {
			return nil, fmt.Errorf("failed to migrate stored strategy: %w", err)
		}
	}
	return &s, nil
}
