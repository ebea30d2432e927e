package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/dashclone/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type activityLogRepository struct {
	pool *pgxpool.Pool
}

// NewActivityLogRepository wires a repository backed by pgxpool.
func NewActivityLogRepository(pool *pgxpool.Pool) ActivityLogRepository {
	return &activityLogRepository{pool: pool}
}

func (r *activityLogRepository) Record(ctx context.Context, entry domain.ActivityEntry) (domain.ActivityEntry, error) {
	if r.pool == nil {
		return domain.ActivityEntry{}, fmt.Errorf("activity log repository not initialized")
	}

	var dashboardID any
	if entry.DashboardID != nil {
		dashboardID = *entry.DashboardID
	}

	err := r.pool.QueryRow(
		ctx,
		`INSERT INTO activity_log (run_id, database_id, database_name, database_type, dashboard_id, dashboard_name, dashboard_url, status, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		entry.RunID,
		entry.DatabaseID,
		entry.DatabaseName,
		entry.DatabaseType,
		dashboardID,
		entry.DashboardName,
		entry.DashboardURL,
		string(entry.Status),
		entry.ErrorMessage,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return domain.ActivityEntry{}, fmt.Errorf("failed to record activity entry: %w", err)
	}

	return entry, nil
}

func (r *activityLogRepository) List(ctx context.Context, limit int, offset int) ([]domain.ActivityEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("activity log repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, run_id, database_id, database_name, database_type, dashboard_id, dashboard_name, dashboard_url, status, error_message, created_at
		 FROM activity_log
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity entries: %w", err)
	}
	defer rows.Close()

	return scanActivityEntries(rows)
}

func (r *activityLogRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.ActivityEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("activity log repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, run_id, database_id, database_name, database_type, dashboard_id, dashboard_name, dashboard_url, status, error_message, created_at
		 FROM activity_log
		 WHERE run_id = $1
		 ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run activity: %w", err)
	}
	defer rows.Close()

	return scanActivityEntries(rows)
}

func (r *activityLogRepository) Stats(ctx context.Context, since time.Time) (domain.ActivityStats, error) {
	if r.pool == nil {
		return domain.ActivityStats{}, fmt.Errorf("activity log repository not initialized")
	}

	var stats domain.ActivityStats
	err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'success'),
		        COUNT(*) FILTER (WHERE status = 'failed'),
		        COUNT(*) FILTER (WHERE status = 'deleted')
		 FROM activity_log
		 WHERE created_at >= $1`,
		since,
	).Scan(&stats.Total, &stats.Success, &stats.Failed, &stats.Deleted)
	if err != nil {
		return domain.ActivityStats{}, fmt.Errorf("failed to compute activity stats: %w", err)
	}

	return stats, nil
}

func (r *activityLogRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("activity log repository not initialized")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM activity_log WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune activity log: %w", err)
	}

	return tag.RowsAffected(), nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanActivityEntries(rows pgxRows) ([]domain.ActivityEntry, error) {
	entries := []domain.ActivityEntry{}
	for rows.Next() {
		var (
			entry       domain.ActivityEntry
			dashboardID pgtype.Int4
			status      string
			createdAt   pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.DatabaseID,
			&entry.DatabaseName,
			&entry.DatabaseType,
			&dashboardID,
			&entry.DashboardName,
			&entry.DashboardURL,
			&status,
			&entry.ErrorMessage,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", scanErr)
		}

		if dashboardID.Valid {
			value := int(dashboardID.Int32)
			entry.DashboardID = &value
		}
		entry.Status = domain.ActivityStatus(status)
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		entries = append(entries, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate activity entries: %w", rowsErr)
	}

	return entries, nil
}
