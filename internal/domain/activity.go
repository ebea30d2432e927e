package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityStatus is the outcome recorded for one scheduler task.
type ActivityStatus string

const (
	ActivitySuccess ActivityStatus = "success"
	ActivityFailed  ActivityStatus = "failed"
	ActivityDeleted ActivityStatus = "deleted"
)

// ActivityEntry is one row of the auto-clone run history.
type ActivityEntry struct {
	ID            int64          `json:"id"`
	RunID         uuid.UUID      `json:"run_id"`
	DatabaseID    int            `json:"database_id"`
	DatabaseName  string         `json:"database_name"`
	DatabaseType  string         `json:"database_type"`
	DashboardID   *int           `json:"dashboard_id,omitempty"`
	DashboardName string         `json:"dashboard_name"`
	DashboardURL  string         `json:"dashboard_url,omitempty"`
	Status        ActivityStatus `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ActivityStats aggregates run-history outcomes for the status endpoint.
type ActivityStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Deleted int `json:"deleted"`
}

// TaskConfig tells the scheduler which template dashboard to stamp out for
// databases of one identified type, and where clones land.
type TaskConfig struct {
	DatabaseType        string    `json:"database_type"`
	TemplateDashboardID int       `json:"template_dashboard_id"`
	TargetCollectionID  *int      `json:"target_collection_id,omitempty"`
	Enabled             bool      `json:"enabled"`
	UpdatedAt           time.Time `json:"updated_at"`
}
