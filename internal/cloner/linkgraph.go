package cloner

import (
	"context"
	"log"

	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/mbql"
)

// FindAllLinkedDashboards discovers every dashboard transitively reachable
// from startID via click-behavior targets, depth first, and returns them
// deepest first: a dashboard with no further unvisited links appears before
// anything that links to it. startID itself is excluded; the caller clones
// it last. Cycles (including self-links) are handled by the visited set and
// are not an error: the resulting order is a best-effort topological
// approximation, which is why the reconcile pass is mandatory.
func (o *Orchestrator) FindAllLinkedDashboards(ctx context.Context, startID int) ([]int, error) {
	visited := map[int]bool{}
	appended := map[int]bool{}
	var order []int
	if err := o.walkLinks(ctx, startID, visited, appended, &order); err != nil {
		return nil, err
	}
	return order, nil
}

func (o *Orchestrator) walkLinks(ctx context.Context, id int, visited, appended map[int]bool, order *[]int) error {
	if visited[id] {
		return nil
	}
	visited[id] = true

	if err := ctx.Err(); err != nil {
		return err
	}

	targets, err := o.directLinks(ctx, id)
	if err != nil {
		// Discovery is best-effort; a dashboard that cannot be read simply
		// contributes no further links.
		log.Printf("[CLONE] warning: could not analyze links of dashboard %d: %v", id, err)
		return nil
	}

	for _, target := range targets {
		if visited[target] {
			continue
		}
		if err := o.walkLinks(ctx, target, visited, appended, order); err != nil {
			return err
		}
		if !appended[target] {
			appended[target] = true
			*order = append(*order, target)
		}
	}
	return nil
}

func (o *Orchestrator) directLinks(ctx context.Context, id int) ([]int, error) {
	dash, err := o.api.GetDashboard(ctx, id)
	if err != nil {
		return nil, err
	}
	return linkedDashboardTargets(dash), nil
}

// linkedDashboardTargets collects dashboard-kind click-behavior targets
// from a dashboard's cards: the dashcard's top level, its per-column
// settings, and the underlying card's own visualization settings.
func linkedDashboardTargets(dash *domain.Dashboard) []int {
	var targets []int
	seen := map[int]bool{}

	addFrom := func(viz map[string]any) {
		if viz == nil {
			return
		}
		if id, ok := dashboardTarget(viz["click_behavior"]); ok && !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
		if columns, ok := viz["column_settings"].(map[string]any); ok {
			for _, raw := range columns {
				colSettings, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				if id, ok := dashboardTarget(colSettings["click_behavior"]); ok && !seen[id] {
					seen[id] = true
					targets = append(targets, id)
				}
			}
		}
	}

	for _, dc := range dash.Cards() {
		addFrom(dc.VisualizationSettings)
		if dc.Card != nil {
			addFrom(dc.Card.VisualizationSettings)
		}
	}
	return targets
}

func dashboardTarget(raw any) (int, bool) {
	cb, ok := raw.(map[string]any)
	if !ok {
		return 0, false
	}
	if kind, _ := cb["linkType"].(string); kind != "dashboard" {
		return 0, false
	}
	id, ok := mbql.AsInt(cb["targetId"])
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}
