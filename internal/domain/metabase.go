package domain

// Database is a Metabase data source as returned by the database listing.
type Database struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Engine string `json:"engine"`
}

// Field is a column within a table's metadata.
type Field struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	BaseType    string `json:"base_type"`
}

// Table is a table within a database's metadata.
type Table struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Schema      string  `json:"schema"`
	DisplayName string  `json:"display_name"`
	Fields      []Field `json:"fields"`
}

// DatabaseMetadata is the full structural metadata of one database.
// Read-only after construction; the schema resolver consumes it once per
// source/target pair.
type DatabaseMetadata struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Tables []Table `json:"tables"`
}

// Collection is a named container for dashboards and questions.
type Collection struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ParentID *int   `json:"parent_id,omitempty"`
	Location string `json:"location,omitempty"`
}

// Tab is a dashboard tab. Tab ids are scoped to their dashboard: two clones
// of two dashboards each get independent tab id spaces.
type Tab struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// Card is a saved question: a query document plus display configuration.
// DatasetQuery and VisualizationSettings stay loosely typed; the remap
// package parses them into typed expression trees before rewriting.
type Card struct {
	ID                    int            `json:"id"`
	Name                  string         `json:"name"`
	Description           string         `json:"description"`
	Display               string         `json:"display"`
	DatabaseID            int            `json:"database_id"`
	CollectionID          *int           `json:"collection_id,omitempty"`
	DatasetQuery          map[string]any `json:"dataset_query"`
	VisualizationSettings map[string]any `json:"visualization_settings"`
}

// DashCard places one card on one dashboard. Card is nil for text and other
// virtual cards, which carry their content in VisualizationSettings.
type DashCard struct {
	ID                    int              `json:"id"`
	CardID                *int             `json:"card_id"`
	Card                  *Card            `json:"card,omitempty"`
	Row                   int              `json:"row"`
	Col                   int              `json:"col"`
	SizeX                 int              `json:"size_x"`
	SizeY                 int              `json:"size_y"`
	DashboardTabID        *int             `json:"dashboard_tab_id,omitempty"`
	ParameterMappings     []map[string]any `json:"parameter_mappings"`
	VisualizationSettings map[string]any   `json:"visualization_settings"`
	Series                []any            `json:"series,omitempty"`
}

// Dashboard is a full dashboard definition. Depending on the Metabase
// version the card list arrives as "dashcards" or "ordered_cards".
type Dashboard struct {
	ID           int              `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	CollectionID *int             `json:"collection_id,omitempty"`
	Parameters   []map[string]any `json:"parameters,omitempty"`
	Tabs         []Tab            `json:"tabs,omitempty"`
	DashCards    []DashCard       `json:"dashcards,omitempty"`
	OrderedCards []DashCard       `json:"ordered_cards,omitempty"`
}

// Cards returns the dashboard's dashcards regardless of which key the API
// populated.
func (d *Dashboard) Cards() []DashCard {
	if len(d.DashCards) > 0 {
		return d.DashCards
	}
	return d.OrderedCards
}
