package cloner

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"strings"

	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/remap"
	"github.com/rpattn/dashclone/internal/schema"
)

// CloneDashboard clones a single dashboard onto the target database and
// runs the reconcile pass over the clone. The returned state holds the
// run's complete identity maps.
func (o *Orchestrator) CloneDashboard(ctx context.Context, req Request) (*Result, error) {
	r := newRun()
	dash, err := o.cloneOne(ctx, r, req.SourceDashboardID, req.NewName, req.TargetDatabaseID, req.DashboardCollectionID, req.QuestionsCollectionID)
	if err != nil {
		return &Result{State: r.state}, err
	}
	o.reconcile(ctx, r)
	return &Result{Dashboard: dash, State: r.state}, nil
}

// CloneWithAllLinked clones a dashboard and every dashboard it transitively
// links to. Linked dashboards are cloned deepest first, the root last; a
// dashboard that fails to clone is reported and skipped, the rest of the
// set proceeds. Once every dashboard has a clone identity, the reconcile
// pass rewrites all click behaviors a second time with the complete maps.
func (o *Orchestrator) CloneWithAllLinked(ctx context.Context, req Request) (*Result, error) {
	r := newRun()

	linked, err := o.FindAllLinkedDashboards(ctx, req.SourceDashboardID)
	if err != nil {
		return &Result{State: r.state}, fmt.Errorf("failed to discover linked dashboards: %w", err)
	}
	order := append(linked, req.SourceDashboardID)
	log.Printf("[CLONE] cloning %d dashboards (root %d last)", len(order), req.SourceDashboardID)

	names := map[int]string{}
	for _, id := range order {
		if dash, err := o.api.GetDashboard(ctx, id); err == nil {
			names[id] = dash.Name
		}
	}

	var root *domain.Dashboard
	for i, id := range order {
		// Cooperative stop point between dashboards in the clone order.
		if err := ctx.Err(); err != nil {
			return &Result{Dashboard: root, State: r.state}, err
		}

		name := req.NewName
		collection := req.DashboardCollectionID
		if id == req.SourceDashboardID {
			if req.MainDashboardCollectionID != nil {
				collection = req.MainDashboardCollectionID
			}
		} else if original := names[id]; original != "" {
			name = req.NewName + " - " + original
		}

		log.Printf("[CLONE] [%d/%d] cloning dashboard %d as %q", i+1, len(order), id, name)
		dash, err := o.cloneOne(ctx, r, id, name, req.TargetDatabaseID, collection, req.QuestionsCollectionID)
		if err != nil {
			log.Printf("[CLONE] error: dashboard %d failed: %v", id, err)
			continue
		}
		if id == req.SourceDashboardID {
			root = dash
		}
	}

	o.reconcile(ctx, r)

	if root == nil {
		return &Result{State: r.state}, fmt.Errorf("failed to clone root dashboard %d", req.SourceDashboardID)
	}
	return &Result{Dashboard: root, State: r.state}, nil
}

// cloneOne clones a single dashboard: schema maps, hidden filter-source
// questions, visible questions, then tabs and dashcards attached in one
// atomic update. Question failures are absorbed (the card is skipped);
// dashboard creation or attachment failures are fatal to this dashboard
// only and are recorded on the run state.
func (o *Orchestrator) cloneOne(ctx context.Context, r *run, sourceID int, newName string, targetDatabaseID int, dashboardCollectionID, questionsCollectionID *int) (*domain.Dashboard, error) {
	source, err := o.api.GetDashboard(ctx, sourceID)
	if err != nil {
		err = fmt.Errorf("failed to fetch source dashboard %d: %w", sourceID, err)
		r.state.RecordFailure(domain.FailureDashboard, sourceID, newName, err)
		return nil, err
	}
	cards := source.Cards()

	if sourceDB := sourceDatabaseID(cards); sourceDB != 0 {
		if err := o.ensureSchemaMaps(ctx, r, sourceDB, targetDatabaseID); err != nil {
			// Best-effort: an unmappable schema degrades to unrewritten
			// field references, it does not block the clone.
			log.Printf("[CLONE] warning: %v", err)
		}
	} else {
		log.Printf("[CLONE] warning: could not determine source database of dashboard %d", sourceID)
	}

	newDash, err := o.api.CreateDashboard(ctx, newName, source.Description, dashboardCollectionID)
	if err != nil {
		err = fmt.Errorf("failed to create dashboard %q: %w", newName, err)
		r.state.RecordFailure(domain.FailureDashboard, sourceID, newName, err)
		return nil, err
	}
	// Recorded before any card is processed so self-referencing click
	// behaviors already resolve to the clone's own identity in this pass.
	r.state.Dashboards.Record(sourceID, newDash.ID)

	if len(source.Parameters) > 0 {
		o.cloneFilterSourceQuestions(ctx, r, source.Parameters, targetDatabaseID, questionsCollectionID)
	}

	for _, dc := range cards {
		if dc.Card == nil || dc.Card.ID == 0 {
			continue // text or virtual card
		}
		if _, ok := r.state.Questions.Resolve(dc.Card.ID); ok {
			continue
		}
		created, err := o.cloneQuestion(ctx, r, dc.Card.ID, dc.Card.Name, targetDatabaseID, questionsCollectionID)
		if err != nil {
			log.Printf("[CLONE] error: %v", err)
			r.state.RecordFailure(domain.FailureQuestion, dc.Card.ID, dc.Card.Name, err)
			continue
		}
		r.state.Questions.Record(dc.Card.ID, created.ID)
	}

	// Filters are applied only after every question clone is known, since
	// their dropdown sources reference cloned card ids.
	if len(source.Parameters) > 0 {
		params := remap.DashboardParameters(source.Parameters, r.state)
		if err := o.api.UpdateDashboard(ctx, newDash.ID, map[string]any{"parameters": params}); err != nil {
			log.Printf("[CLONE] warning: failed to apply %d filters to dashboard %d: %v", len(params), newDash.ID, err)
		}
	}

	tabPayloads, placeholderTabs := placeholderTabPayloads(source.Tabs)
	dashcards := o.buildDashcards(r, cards, placeholderTabs)

	if len(dashcards) > 0 || len(tabPayloads) > 0 {
		payload := map[string]any{"dashcards": dashcards}
		if len(tabPayloads) > 0 {
			payload["tabs"] = tabPayloads
		}
		if err := o.api.UpdateDashboard(ctx, newDash.ID, payload); err != nil {
			err = fmt.Errorf("failed to attach %d cards to dashboard %d: %w", len(dashcards), newDash.ID, err)
			r.state.RecordFailure(domain.FailureAttach, sourceID, newName, err)
			return nil, err
		}

		if len(source.Tabs) > 0 {
			tabMap, err := o.resolveTabIdentities(ctx, newDash.ID, source.Tabs)
			if err != nil {
				log.Printf("[CLONE] warning: could not resolve tab identities for dashboard %d: %v", newDash.ID, err)
			}
			r.state.RecordTabs(newDash.ID, tabMap)

			// Click behaviors written with placeholder tab ids get the real
			// ids now that the platform assigned them.
			if len(tabMap) > 0 {
				if err := o.updateClickBehaviors(ctx, r, newDash.ID); err != nil {
					log.Printf("[CLONE] warning: %v", err)
				}
			}
		}
	}

	log.Printf("[CLONE] dashboard %q cloned (%d -> %d)", newName, sourceID, newDash.ID)
	return newDash, nil
}

func (o *Orchestrator) ensureSchemaMaps(ctx context.Context, r *run, sourceDB, targetDB int) error {
	pair := [2]int{sourceDB, targetDB}
	if r.schemaPairs[pair] {
		return nil
	}
	if err := schema.BuildMappings(ctx, o.api, sourceDB, targetDB, r.state); err != nil {
		return fmt.Errorf("failed to build schema maps for %d -> %d: %w", sourceDB, targetDB, err)
	}
	r.schemaPairs[pair] = true
	return nil
}

func sourceDatabaseID(cards []domain.DashCard) int {
	for _, dc := range cards {
		if dc.Card != nil && dc.Card.DatabaseID != 0 {
			return dc.Card.DatabaseID
		}
	}
	return 0
}

// placeholderTabPayloads prepares the new tabs with temporary negative ids
// for the atomic update, and a map from source tab id to placeholder id
// used for the dashcards in that same call.
func placeholderTabPayloads(tabs []domain.Tab) ([]map[string]any, domain.IdentityMap) {
	if len(tabs) == 0 {
		return nil, nil
	}
	payloads := make([]map[string]any, 0, len(tabs))
	placeholders := domain.IdentityMap{}
	for i, tab := range tabs {
		payloads = append(payloads, map[string]any{
			"id":       -(i + 1),
			"name":     tab.Name,
			"position": tab.Position,
		})
		placeholders[tab.ID] = -(i + 1)
	}
	return payloads, placeholders
}

// buildDashcards prepares the dashcard payloads for the atomic attach. Text
// cards keep their settings verbatim; question cards get remapped parameter
// mappings, series, and click-behavior-only visualization settings.
func (o *Orchestrator) buildDashcards(r *run, cards []domain.DashCard, placeholderTabs domain.IdentityMap) []map[string]any {
	payloads := make([]map[string]any, 0, len(cards))

	for _, dc := range cards {
		if dc.Card == nil || dc.Card.ID == 0 {
			payload := map[string]any{
				"id":                     -(len(payloads) + 1),
				"card_id":                nil,
				"row":                    dc.Row,
				"col":                    dc.Col,
				"size_x":                 dc.SizeX,
				"size_y":                 dc.SizeY,
				"parameter_mappings":     []map[string]any{},
				"visualization_settings": dc.VisualizationSettings,
				"series":                 []any{},
			}
			setTabID(payload, dc.DashboardTabID, placeholderTabs)
			payloads = append(payloads, payload)
			continue
		}

		newCardID, ok := r.state.Questions.Resolve(dc.Card.ID)
		if !ok {
			log.Printf("[CLONE] warning: skipping card %d, no cloned version", dc.Card.ID)
			continue
		}

		viz := remap.ClickBehaviors(dc.VisualizationSettings, r.state, nil)
		payload := map[string]any{
			"id":                     -(len(payloads) + 1),
			"card_id":                newCardID,
			"row":                    dc.Row,
			"col":                    dc.Col,
			"size_x":                 dc.SizeX,
			"size_y":                 dc.SizeY,
			"parameter_mappings":     remap.ParameterMappings(dc.ParameterMappings, newCardID, r.state),
			"visualization_settings": clickBehaviorOnly(viz),
			"series":                 remap.Series(dc.Series, r.state),
		}
		setTabID(payload, dc.DashboardTabID, placeholderTabs)
		payloads = append(payloads, payload)
	}
	return payloads
}

func setTabID(payload map[string]any, tabID *int, placeholderTabs domain.IdentityMap) {
	if tabID == nil {
		return
	}
	if mapped, ok := placeholderTabs.Resolve(*tabID); ok {
		payload["dashboard_tab_id"] = mapped
	} else {
		payload["dashboard_tab_id"] = *tabID
	}
}

// clickBehaviorOnly strips visualization settings down to their click
// behaviors. Copying the full settings onto the dashcard conflicts with
// dashboard-level filters; links are the only part worth carrying.
func clickBehaviorOnly(viz map[string]any) map[string]any {
	clean := map[string]any{}
	if viz == nil {
		return clean
	}
	if cb, ok := viz["click_behavior"]; ok {
		clean["click_behavior"] = cb
	}
	if columns, ok := viz["column_settings"].(map[string]any); ok {
		cleanColumns := map[string]any{}
		for key, raw := range columns {
			colSettings, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if cb, ok := colSettings["click_behavior"]; ok {
				cleanColumns[key] = map[string]any{"click_behavior": cb}
			}
		}
		if len(cleanColumns) > 0 {
			clean["column_settings"] = cleanColumns
		}
	}
	return clean
}

// resolveTabIdentities reads back the dashboard after the atomic update and
// matches created tabs to source tabs: positionally when the counts agree,
// by case-insensitive name otherwise. The platform offers no correlation
// token, so an ambiguous response leaves tabs unmapped with a warning.
func (o *Orchestrator) resolveTabIdentities(ctx context.Context, dashboardID int, sourceTabs []domain.Tab) (domain.IdentityMap, error) {
	updated, err := o.api.GetDashboard(ctx, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("failed to read back dashboard %d: %w", dashboardID, err)
	}

	tabMap := domain.IdentityMap{}
	if len(updated.Tabs) == len(sourceTabs) {
		for i, source := range sourceTabs {
			tabMap.Record(source.ID, updated.Tabs[i].ID)
		}
		return tabMap, nil
	}

	byName := map[string]int{}
	for _, tab := range updated.Tabs {
		byName[strings.ToLower(tab.Name)] = tab.ID
	}
	for _, source := range sourceTabs {
		if id, ok := byName[strings.ToLower(source.Name)]; ok {
			tabMap.Record(source.ID, id)
		} else {
			log.Printf("[CLONE] warning: tab %q has no match on dashboard %d", source.Name, dashboardID)
		}
	}
	return tabMap, nil
}

// reconcile re-applies the click-behavior rewrite to every cloned dashboard
// now that the dashboard, question and tab maps are complete. This corrects
// links to dashboards that had no clone identity when their referencing
// dashcard was first written.
func (o *Orchestrator) reconcile(ctx context.Context, r *run) {
	for sourceID, cloneID := range r.state.Dashboards {
		if err := o.updateClickBehaviors(ctx, r, cloneID); err != nil {
			log.Printf("[CLONE] warning: reconcile of dashboard %d (clone of %d) failed: %v", cloneID, sourceID, err)
		}
	}
}

// updateClickBehaviors rewrites the click behaviors of an already-cloned
// dashboard in place, persisting only when something changed.
func (o *Orchestrator) updateClickBehaviors(ctx context.Context, r *run, dashboardID int) error {
	dash, err := o.api.GetDashboard(ctx, dashboardID)
	if err != nil {
		return fmt.Errorf("failed to fetch dashboard %d for click-behavior update: %w", dashboardID, err)
	}
	cards := dash.Cards()
	if len(cards) == 0 {
		return nil
	}

	changed := false
	updates := make([]map[string]any, 0, len(cards))
	for _, dc := range cards {
		viz := dc.VisualizationSettings
		if viz != nil {
			remapped := remap.ClickBehaviors(viz, r.state, r.state.FallbackTabs)
			if !reflect.DeepEqual(remapped, viz) {
				changed = true
				viz = remapped
			}
		}

		update := map[string]any{
			"id":                     dc.ID,
			"row":                    dc.Row,
			"col":                    dc.Col,
			"size_x":                 dc.SizeX,
			"size_y":                 dc.SizeY,
			"parameter_mappings":     dc.ParameterMappings,
			"visualization_settings": viz,
			"series":                 dc.Series,
		}
		if dc.CardID != nil {
			update["card_id"] = *dc.CardID
		}
		if dc.DashboardTabID != nil {
			update["dashboard_tab_id"] = *dc.DashboardTabID
		}
		updates = append(updates, update)
	}

	if !changed {
		return nil
	}

	payload := map[string]any{"dashcards": updates}
	if len(dash.Tabs) > 0 {
		payload["tabs"] = dash.Tabs
	}
	if err := o.api.UpdateDashboard(ctx, dashboardID, payload); err != nil {
		return fmt.Errorf("failed to persist click-behavior updates on dashboard %d: %w", dashboardID, err)
	}
	return nil
}
