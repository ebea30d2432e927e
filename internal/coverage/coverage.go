// Package coverage reports which databases are served by at least one
// dashboard. The auto-clone service uses the report to decide which
// databases still need a clone; operators export it as a spreadsheet.
package coverage

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/rpattn/dashclone/internal/identify"
	"github.com/rpattn/dashclone/internal/metabase"
)

// DatabaseCoverage describes one database and the dashboards that draw
// from it.
type DatabaseCoverage struct {
	DatabaseID   int      `json:"database_id"`
	DatabaseName string   `json:"database_name"`
	Type         string   `json:"type,omitempty"`
	Dashboards   []string `json:"dashboards,omitempty"`
}

// Report is a full coverage snapshot of the platform.
type Report struct {
	Covered   []DatabaseCoverage `json:"covered"`
	Uncovered []DatabaseCoverage `json:"uncovered"`
}

// Totals returns the overall database count and how many are covered.
func (r *Report) Totals() (total, covered int) {
	return len(r.Covered) + len(r.Uncovered), len(r.Covered)
}

// Checker builds coverage reports from the platform's dashboard graph.
type Checker struct {
	api metabase.API
}

func New(api metabase.API) *Checker {
	return &Checker{api: api}
}

// Build walks every dashboard's cards and attributes the dashboard to the
// databases its cards query. Classification results, when supplied, label
// each database with its migration type. An unreadable dashboard is skipped
// with a warning.
func (c *Checker) Build(ctx context.Context, infos []identify.DatabaseInfo) (*Report, error) {
	databases, err := c.api.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	dashboards, err := c.api.ListDashboards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}
	log.Printf("[COVERAGE] analyzing %d dashboards across %d databases", len(dashboards), len(databases))

	types := map[int]string{}
	for _, info := range infos {
		if info.Type != "" {
			types[info.ID] = info.Type
		}
	}

	// database id -> dashboard names, each name at most once per database
	usedBy := map[int][]string{}
	for _, summary := range dashboards {
		dash, err := c.api.GetDashboard(ctx, summary.ID)
		if err != nil {
			log.Printf("[COVERAGE] warning: could not analyze dashboard %d: %v", summary.ID, err)
			continue
		}
		for _, dc := range dash.Cards() {
			if dc.Card == nil || dc.Card.DatabaseID == 0 {
				continue
			}
			dbID := dc.Card.DatabaseID
			if !contains(usedBy[dbID], dash.Name) {
				usedBy[dbID] = append(usedBy[dbID], dash.Name)
			}
		}
	}

	report := &Report{}
	for _, db := range databases {
		entry := DatabaseCoverage{
			DatabaseID:   db.ID,
			DatabaseName: db.Name,
			Type:         types[db.ID],
			Dashboards:   usedBy[db.ID],
		}
		if len(entry.Dashboards) > 0 {
			report.Covered = append(report.Covered, entry)
		} else {
			report.Uncovered = append(report.Uncovered, entry)
		}
	}
	sortByName(report.Covered)
	sortByName(report.Uncovered)

	total, covered := report.Totals()
	log.Printf("[COVERAGE] %d/%d databases covered", covered, total)
	return report, nil
}

// UncoveredByType groups the uncovered databases by migration type, with
// untyped databases under "unknown".
func (r *Report) UncoveredByType() map[string][]DatabaseCoverage {
	grouped := map[string][]DatabaseCoverage{}
	for _, entry := range r.Uncovered {
		key := entry.Type
		if key == "" {
			key = "unknown"
		}
		grouped[key] = append(grouped[key], entry)
	}
	return grouped
}

func sortByName(entries []DatabaseCoverage) {
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].DatabaseName < entries[b].DatabaseName
	})
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
