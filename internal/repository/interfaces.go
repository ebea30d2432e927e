package repository

import (
	"context"
	"time"

	"github.com/rpattn/dashclone/internal/domain"

	"github.com/google/uuid"
)

// ActivityLogRepository defines the interface for run-history operations
type ActivityLogRepository interface {
	Record(ctx context.Context, entry domain.ActivityEntry) (domain.ActivityEntry, error)
	List(ctx context.Context, limit int, offset int) ([]domain.ActivityEntry, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.ActivityEntry, error)
	Stats(ctx context.Context, since time.Time) (domain.ActivityStats, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// TaskConfigRepository defines the interface for scheduler task configuration
type TaskConfigRepository interface {
	Upsert(ctx context.Context, config domain.TaskConfig) (domain.TaskConfig, error)
	Get(ctx context.Context, databaseType string) (domain.TaskConfig, error)
	List(ctx context.Context) ([]domain.TaskConfig, error)
	Delete(ctx context.Context, databaseType string) error
}
