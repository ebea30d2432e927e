package metabase

import (
	"context"

	"github.com/rpattn/dashclone/internal/domain"
)

// API is the surface of the Metabase platform consumed by the engine and
// the auto-clone service. *Client implements it; tests substitute stubs.
type API interface {
	ListDatabases(ctx context.Context) ([]domain.Database, error)
	FindDatabaseByName(ctx context.Context, name string) (*domain.Database, error)
	GetDatabaseMetadata(ctx context.Context, databaseID int) (*domain.DatabaseMetadata, error)

	GetDashboard(ctx context.Context, id int) (*domain.Dashboard, error)
	ListDashboards(ctx context.Context) ([]domain.Dashboard, error)
	CreateDashboard(ctx context.Context, name, description string, collectionID *int) (*domain.Dashboard, error)
	UpdateDashboard(ctx context.Context, id int, payload map[string]any) error
	DeleteDashboard(ctx context.Context, id int) error

	GetCard(ctx context.Context, id int) (*domain.Card, error)
	ListCards(ctx context.Context) ([]domain.Card, error)
	CreateCard(ctx context.Context, payload map[string]any) (*domain.Card, error)

	ListCollections(ctx context.Context) ([]domain.Collection, error)
	CreateCollection(ctx context.Context, name string, parentID *int) (*domain.Collection, error)
}
