package cloner

import (
	"context"
	"fmt"

	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/metabase"
)

// fakeAPI is an in-memory Metabase. Created entities get ids from 100
// upward so clone-side ids never collide with source-side fixtures.
type fakeAPI struct {
	databases   []domain.Database
	metadata    map[int]*domain.DatabaseMetadata
	dashboards  map[int]*domain.Dashboard
	cards       map[int]*domain.Card
	collections []domain.Collection

	// failCreates holds question names whose creation keeps failing the
	// given number of times (-1 fails forever).
	failCreates map[string]int

	updates map[int][]map[string]any

	nextDashboardID int
	nextCardID      int
	nextCollection  int
	nextTabID       int
	nextDashcardID  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		metadata:        map[int]*domain.DatabaseMetadata{},
		dashboards:      map[int]*domain.Dashboard{},
		cards:           map[int]*domain.Card{},
		failCreates:     map[string]int{},
		updates:         map[int][]map[string]any{},
		nextDashboardID: 100,
		nextCardID:      200,
		nextCollection:  300,
		nextTabID:       400,
		nextDashcardID:  500,
	}
}

var _ metabase.API = (*fakeAPI)(nil)

func (f *fakeAPI) ListDatabases(ctx context.Context) ([]domain.Database, error) {
	return f.databases, nil
}

func (f *fakeAPI) FindDatabaseByName(ctx context.Context, name string) (*domain.Database, error) {
	for i := range f.databases {
		if f.databases[i].Name == name {
			return &f.databases[i], nil
		}
	}
	return nil, fmt.Errorf("database %q: %w", name, metabase.ErrNotFound)
}

func (f *fakeAPI) GetDatabaseMetadata(ctx context.Context, databaseID int) (*domain.DatabaseMetadata, error) {
	meta, ok := f.metadata[databaseID]
	if !ok {
		return nil, fmt.Errorf("metadata %d: %w", databaseID, metabase.ErrNotFound)
	}
	return meta, nil
}

func (f *fakeAPI) GetDashboard(ctx context.Context, id int) (*domain.Dashboard, error) {
	dash, ok := f.dashboards[id]
	if !ok {
		return nil, fmt.Errorf("dashboard %d: %w", id, metabase.ErrNotFound)
	}
	dup := *dash
	return &dup, nil
}

func (f *fakeAPI) ListDashboards(ctx context.Context) ([]domain.Dashboard, error) {
	var out []domain.Dashboard
	for _, dash := range f.dashboards {
		out = append(out, *dash)
	}
	return out, nil
}

func (f *fakeAPI) CreateDashboard(ctx context.Context, name, description string, collectionID *int) (*domain.Dashboard, error) {
	f.nextDashboardID++
	dash := &domain.Dashboard{
		ID:           f.nextDashboardID,
		Name:         name,
		Description:  description,
		CollectionID: collectionID,
	}
	f.dashboards[dash.ID] = dash
	return dash, nil
}

// UpdateDashboard materializes the payload the way the platform does:
// placeholder tab ids become real ids, dashcards get stable ids, and the
// stored dashboard reflects the update on the next read.
func (f *fakeAPI) UpdateDashboard(ctx context.Context, id int, payload map[string]any) error {
	dash, ok := f.dashboards[id]
	if !ok {
		return fmt.Errorf("dashboard %d: %w", id, metabase.ErrNotFound)
	}
	f.updates[id] = append(f.updates[id], payload)

	if params, ok := payload["parameters"].([]map[string]any); ok {
		dash.Parameters = params
	}

	placeholders := map[int]int{}
	if raw, ok := payload["tabs"]; ok {
		switch tabs := raw.(type) {
		case []map[string]any:
			dash.Tabs = nil
			for _, tp := range tabs {
				f.nextTabID++
				tab := domain.Tab{ID: f.nextTabID}
				tab.Name, _ = tp["name"].(string)
				tab.Position, _ = tp["position"].(int)
				if ph, ok := tp["id"].(int); ok && ph < 0 {
					placeholders[ph] = tab.ID
				}
				dash.Tabs = append(dash.Tabs, tab)
			}
		case []domain.Tab:
			dash.Tabs = tabs
		}
	}

	if cards, ok := payload["dashcards"].([]map[string]any); ok {
		dash.DashCards = nil
		for _, cp := range cards {
			f.nextDashcardID++
			dc := domain.DashCard{ID: f.nextDashcardID}
			if cid, ok := cp["card_id"].(int); ok {
				cardID := cid
				dc.CardID = &cardID
				dc.Card = f.cards[cid]
			}
			dc.Row, _ = cp["row"].(int)
			dc.Col, _ = cp["col"].(int)
			dc.SizeX, _ = cp["size_x"].(int)
			dc.SizeY, _ = cp["size_y"].(int)
			if viz, ok := cp["visualization_settings"].(map[string]any); ok {
				dc.VisualizationSettings = viz
			}
			if pm, ok := cp["parameter_mappings"].([]map[string]any); ok {
				dc.ParameterMappings = pm
			}
			if series, ok := cp["series"].([]any); ok {
				dc.Series = series
			}
			if tid, ok := cp["dashboard_tab_id"].(int); ok {
				real := tid
				if mapped, ok := placeholders[tid]; ok {
					real = mapped
				}
				dc.DashboardTabID = &real
			}
			dash.DashCards = append(dash.DashCards, dc)
		}
	}
	return nil
}

func (f *fakeAPI) DeleteDashboard(ctx context.Context, id int) error {
	if _, ok := f.dashboards[id]; !ok {
		return fmt.Errorf("dashboard %d: %w", id, metabase.ErrNotFound)
	}
	delete(f.dashboards, id)
	return nil
}

func (f *fakeAPI) GetCard(ctx context.Context, id int) (*domain.Card, error) {
	card, ok := f.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %d: %w", id, metabase.ErrNotFound)
	}
	dup := *card
	return &dup, nil
}

func (f *fakeAPI) ListCards(ctx context.Context) ([]domain.Card, error) {
	var out []domain.Card
	for _, card := range f.cards {
		out = append(out, *card)
	}
	return out, nil
}

func (f *fakeAPI) CreateCard(ctx context.Context, payload map[string]any) (*domain.Card, error) {
	name, _ := payload["name"].(string)
	if remaining, ok := f.failCreates[name]; ok && remaining != 0 {
		if remaining > 0 {
			f.failCreates[name] = remaining - 1
		}
		return nil, &metabase.RemoteError{Op: "POST /api/card", Status: 503, Err: fmt.Errorf("injected failure")}
	}

	f.nextCardID++
	card := &domain.Card{ID: f.nextCardID, Name: name}
	card.Description, _ = payload["description"].(string)
	card.Display, _ = payload["display"].(string)
	if query, ok := payload["dataset_query"].(map[string]any); ok {
		card.DatasetQuery = query
		if dbID, ok := query["database"].(int); ok {
			card.DatabaseID = dbID
		}
	}
	if viz, ok := payload["visualization_settings"].(map[string]any); ok {
		card.VisualizationSettings = viz
	}
	if cid, ok := payload["collection_id"].(int); ok {
		collectionID := cid
		card.CollectionID = &collectionID
	}
	f.cards[card.ID] = card
	return card, nil
}

func (f *fakeAPI) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	return f.collections, nil
}

func (f *fakeAPI) CreateCollection(ctx context.Context, name string, parentID *int) (*domain.Collection, error) {
	f.nextCollection++
	col := domain.Collection{ID: f.nextCollection, Name: name, ParentID: parentID}
	f.collections = append(f.collections, col)
	return &col, nil
}
