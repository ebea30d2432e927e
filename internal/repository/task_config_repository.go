package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/dashclone/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTaskConfigNotFound is returned when no configuration exists for the
// requested database type.
var ErrTaskConfigNotFound = errors.New("task config not found")

type taskConfigRepository struct {
	pool *pgxpool.Pool
}

// NewTaskConfigRepository wires a repository backed by pgxpool.
func NewTaskConfigRepository(pool *pgxpool.Pool) TaskConfigRepository {
	return &taskConfigRepository{pool: pool}
}

func (r *taskConfigRepository) Upsert(ctx context.Context, config domain.TaskConfig) (domain.TaskConfig, error) {
	if r.pool == nil {
		return domain.TaskConfig{}, fmt.Errorf("task config repository not initialized")
	}

	var targetCollection any
	if config.TargetCollectionID != nil {
		targetCollection = *config.TargetCollectionID
	}

	err := r.pool.QueryRow(
		ctx,
		`INSERT INTO task_config (database_type, template_dashboard_id, target_collection_id, enabled, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (database_type) DO UPDATE
		 SET template_dashboard_id = EXCLUDED.template_dashboard_id,
		     target_collection_id = EXCLUDED.target_collection_id,
		     enabled = EXCLUDED.enabled,
		     updated_at = NOW()
		 RETURNING updated_at`,
		config.DatabaseType,
		config.TemplateDashboardID,
		targetCollection,
		config.Enabled,
	).Scan(&config.UpdatedAt)
	if err != nil {
		return domain.TaskConfig{}, fmt.Errorf("failed to upsert task config for %q: %w", config.DatabaseType, err)
	}

	return config, nil
}

func (r *taskConfigRepository) Get(ctx context.Context, databaseType string) (domain.TaskConfig, error) {
	if r.pool == nil {
		return domain.TaskConfig{}, fmt.Errorf("task config repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`SELECT database_type, template_dashboard_id, target_collection_id, enabled, updated_at
		 FROM task_config
		 WHERE database_type = $1`,
		databaseType,
	)

	config, err := scanTaskConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TaskConfig{}, ErrTaskConfigNotFound
		}
		return domain.TaskConfig{}, fmt.Errorf("failed to get task config for %q: %w", databaseType, err)
	}

	return config, nil
}

func (r *taskConfigRepository) List(ctx context.Context) ([]domain.TaskConfig, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("task config repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT database_type, template_dashboard_id, target_collection_id, enabled, updated_at
		 FROM task_config
		 ORDER BY database_type`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list task configs: %w", err)
	}
	defer rows.Close()

	configs := []domain.TaskConfig{}
	for rows.Next() {
		config, scanErr := scanTaskConfig(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan task config: %w", scanErr)
		}
		configs = append(configs, config)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate task configs: %w", rowsErr)
	}

	return configs, nil
}

func (r *taskConfigRepository) Delete(ctx context.Context, databaseType string) error {
	if r.pool == nil {
		return fmt.Errorf("task config repository not initialized")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM task_config WHERE database_type = $1`, databaseType)
	if err != nil {
		return fmt.Errorf("failed to delete task config for %q: %w", databaseType, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskConfigNotFound
	}

	return nil
}

func scanTaskConfig(row pgx.Row) (domain.TaskConfig, error) {
	var (
		config           domain.TaskConfig
		targetCollection pgtype.Int4
		updatedAt        pgtype.Timestamptz
	)
	if err := row.Scan(
		&config.DatabaseType,
		&config.TemplateDashboardID,
		&targetCollection,
		&config.Enabled,
		&updatedAt,
	); err != nil {
		return domain.TaskConfig{}, err
	}

	if targetCollection.Valid {
		value := int(targetCollection.Int32)
		config.TargetCollectionID = &value
	}
	if updatedAt.Valid {
		config.UpdatedAt = updatedAt.Time
	}

	return config, nil
}
