package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/dashclone/internal/cloner"
	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/identify"
)

// cloneAttempts is how many times one database's clone is retried before
// the failure is logged. Platform hiccups clear up within a cycle.
const cloneAttempts = 3

// activityRetention is how long run-history rows are kept before the
// post-check sweep drops them.
const activityRetention = 90 * 24 * time.Hour

type cloneTask struct {
	database     domain.Database
	databaseType string
	config       domain.TaskConfig
}

// RunCheck executes one full check cycle. At most one cycle runs at a
// time; a second call while one is in flight is a no-op. Cancelling the
// context stops the cycle after the task in progress completes.
func (s *Service) RunCheck(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !s.beginRun(cancel) {
		log.Printf("[SERVICE] check already running, skipping")
		return
	}

	status := "Completed"
	defer func() { s.endRun(status) }()

	runID := uuid.New()
	log.Printf("[SERVICE] starting dashboard check (run %s)", runID)

	configs, err := s.enabledTasks(runCtx)
	if err != nil {
		status = fmt.Sprintf("Error: %v", err)
		log.Printf("[SERVICE] error: %v", err)
		return
	}
	if len(configs) == 0 {
		status = "No tasks configured"
		log.Printf("[SERVICE] no enabled task configs, nothing to do")
		return
	}

	s.setStatus("Loading database info...")
	infos, err := s.identifier.ScanAll(runCtx)
	if err != nil {
		status = fmt.Sprintf("Error: %v", err)
		log.Printf("[SERVICE] error: %v", err)
		return
	}
	if err := runCtx.Err(); err != nil {
		status = "Stopped by user"
		return
	}

	collectionIDs := make([]int, 0, len(configs))
	collectionTypes := map[int]string{}
	for _, config := range configs {
		if config.TargetCollectionID != nil {
			collectionIDs = append(collectionIDs, *config.TargetCollectionID)
			collectionTypes[*config.TargetCollectionID] = config.DatabaseType
		}
	}

	s.setStatus("Checking existing dashboards...")
	covered, empty, err := s.dashboardsInCollections(runCtx, collectionIDs)
	if err != nil {
		status = fmt.Sprintf("Error: %v", err)
		log.Printf("[SERVICE] error: %v", err)
		return
	}

	s.cleanupEmptyDashboards(runCtx, runID, empty, collectionTypes)

	tasks := buildTasks(configs, infos, covered)
	if len(tasks) == 0 {
		status = "All databases have dashboards"
		log.Printf("[SERVICE] no databases need dashboards")
		return
	}
	log.Printf("[SERVICE] found %d databases needing dashboards", len(tasks))

	for i, task := range tasks {
		if err := runCtx.Err(); err != nil {
			status = "Stopped by user"
			log.Printf("[SERVICE] stopped by user after %d/%d databases", i, len(tasks))
			return
		}
		s.setStatus(fmt.Sprintf("Cloning %d/%d: %s", i+1, len(tasks), task.database.Name))
		s.cloneForDatabase(runCtx, runID, task)
	}

	status = fmt.Sprintf("Completed - processed %d databases", len(tasks))
	log.Printf("[SERVICE] check complete")
	s.pruneActivity(runCtx)
}

func (s *Service) pruneActivity(ctx context.Context) {
	if s.activity == nil {
		return
	}
	removed, err := s.activity.Prune(ctx, time.Now().Add(-activityRetention))
	if err != nil {
		log.Printf("[SERVICE] warning: failed to prune activity log: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("[SERVICE] pruned %d old activity entries", removed)
	}
}

func (s *Service) enabledTasks(ctx context.Context) ([]domain.TaskConfig, error) {
	all, err := s.tasks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load task configs: %w", err)
	}
	var enabled []domain.TaskConfig
	for _, config := range all {
		if config.Enabled && config.TemplateDashboardID != 0 {
			enabled = append(enabled, config)
		}
	}
	return enabled, nil
}

// buildTasks pairs every classified database that has no dashboard yet
// with its type's task config, in stable type order.
func buildTasks(configs []domain.TaskConfig, infos []identify.DatabaseInfo, covered map[int]bool) []cloneTask {
	byType := map[string]domain.TaskConfig{}
	types := make([]string, 0, len(configs))
	for _, config := range configs {
		byType[config.DatabaseType] = config
		types = append(types, config.DatabaseType)
	}
	sort.Strings(types)

	var tasks []cloneTask
	for _, dbType := range types {
		config := byType[dbType]
		for _, info := range infos {
			if info.Type != dbType || covered[info.ID] {
				continue
			}
			tasks = append(tasks, cloneTask{
				database:     domain.Database{ID: info.ID, Name: info.Name, Engine: info.Engine},
				databaseType: dbType,
				config:       config,
			})
		}
	}
	return tasks
}

// cloneForDatabase stamps the task's template onto one database, retrying
// the whole clone with a growing pause. The database name doubles as the
// customer name, unchanged.
func (s *Service) cloneForDatabase(ctx context.Context, runID uuid.UUID, task cloneTask) {
	dashboardName := task.database.Name + " Dashboard"
	log.Printf("[SERVICE] cloning for %q", task.database.Name)

	var result *cloner.Result
	var lastErr error
	for attempt := 1; attempt <= cloneAttempts; attempt++ {
		if attempt > 1 {
			log.Printf("[SERVICE] retry attempt %d/%d for %q", attempt, cloneAttempts, task.database.Name)
			s.sleepFn(time.Duration(attempt) * 3 * time.Second)
		}
		if err := ctx.Err(); err != nil {
			return
		}
		result, lastErr = s.cloneOnce(ctx, task, dashboardName)
		if lastErr == nil {
			break
		}
		log.Printf("[SERVICE] attempt %d failed for %q: %v", attempt, task.database.Name, lastErr)
	}

	entry := domain.ActivityEntry{
		RunID:         runID,
		DatabaseID:    task.database.ID,
		DatabaseName:  task.database.Name,
		DatabaseType:  task.databaseType,
		DashboardName: dashboardName,
	}
	if lastErr == nil && result != nil && result.Dashboard != nil {
		id := result.Dashboard.ID
		entry.DashboardID = &id
		entry.DashboardURL = fmt.Sprintf("%s/dashboard/%d", s.baseURL, id)
		entry.Status = domain.ActivitySuccess
		log.Printf("[SERVICE] created %q (ID %d)", dashboardName, id)
	} else {
		entry.Status = domain.ActivityFailed
		entry.ErrorMessage = fmt.Sprintf("failed after %d attempts: %v", cloneAttempts, lastErr)
		log.Printf("[SERVICE] error: could not create dashboard for %q: %v", task.database.Name, lastErr)
	}
	s.recordActivity(ctx, entry)
}

// cloneOnce is one full clone attempt: customer collection, link
// discovery, then the single or multi-dashboard clone. Each attempt
// starts from fresh identity maps.
func (s *Service) cloneOnce(ctx context.Context, task cloneTask, dashboardName string) (*cloner.Result, error) {
	var parentCollection *int
	if source, err := s.api.GetDashboard(ctx, task.config.TemplateDashboardID); err == nil {
		parentCollection = source.CollectionID
	}

	collection, err := s.orchestrator.GetOrCreateCollection(ctx, task.database.Name+" Collection", parentCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare customer collection: %w", err)
	}

	linked, err := s.orchestrator.FindAllLinkedDashboards(ctx, task.config.TemplateDashboardID)
	if err != nil {
		return nil, err
	}

	req := cloner.Request{
		SourceDashboardID:     task.config.TemplateDashboardID,
		NewName:               dashboardName,
		TargetDatabaseID:      task.database.ID,
		QuestionsCollectionID: &collection.ID,
	}
	if len(linked) > 0 {
		// Linked dashboards live in the customer collection; only the root
		// goes to the type's shared dashboards collection.
		req.DashboardCollectionID = &collection.ID
		req.MainDashboardCollectionID = task.config.TargetCollectionID
		return s.orchestrator.CloneWithAllLinked(ctx, req)
	}
	req.DashboardCollectionID = task.config.TargetCollectionID
	return s.orchestrator.CloneDashboard(ctx, req)
}

// dashboardsInCollections reports which databases already have a dashboard
// inside the target collections, and the dashboards there with no question
// cards at all. Every question on a dashboard hits the same database, so
// the first card is enough.
func (s *Service) dashboardsInCollections(ctx context.Context, collectionIDs []int) (map[int]bool, []domain.Dashboard, error) {
	covered := map[int]bool{}
	if len(collectionIDs) == 0 {
		return covered, nil, nil
	}
	wanted := map[int]bool{}
	for _, id := range collectionIDs {
		wanted[id] = true
	}

	all, err := s.api.ListDashboards(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list dashboards: %w", err)
	}

	var empty []domain.Dashboard
	for _, summary := range all {
		if summary.CollectionID == nil || !wanted[*summary.CollectionID] {
			continue
		}
		dash, err := s.api.GetDashboard(ctx, summary.ID)
		if err != nil {
			log.Printf("[SERVICE] warning: could not check dashboard %d: %v", summary.ID, err)
			continue
		}

		dbID := 0
		questions := 0
		for _, dc := range dash.Cards() {
			if dc.Card == nil || dc.Card.ID == 0 {
				continue
			}
			questions++
			if dbID == 0 {
				dbID = dc.Card.DatabaseID
				if dbID == 0 {
					if card, err := s.api.GetCard(ctx, dc.Card.ID); err == nil {
						dbID = card.DatabaseID
					}
				}
			}
		}

		switch {
		case questions == 0:
			dash.CollectionID = summary.CollectionID
			empty = append(empty, *dash)
		case dbID != 0:
			covered[dbID] = true
		}
	}

	log.Printf("[SERVICE] found %d databases with existing dashboards", len(covered))
	return covered, empty, nil
}

// cleanupEmptyDashboards deletes dashboards left behind after their
// database was decomposed, recording each deletion.
func (s *Service) cleanupEmptyDashboards(ctx context.Context, runID uuid.UUID, empty []domain.Dashboard, collectionTypes map[int]string) {
	if len(empty) == 0 {
		return
	}
	s.setStatus(fmt.Sprintf("Cleaning up %d empty dashboards...", len(empty)))
	log.Printf("[SERVICE] cleaning up %d empty dashboards", len(empty))

	for _, dash := range empty {
		if err := s.api.DeleteDashboard(ctx, dash.ID); err != nil {
			log.Printf("[SERVICE] error: failed to delete dashboard %d: %v", dash.ID, err)
			continue
		}
		dbType := "unknown"
		if dash.CollectionID != nil {
			if t, ok := collectionTypes[*dash.CollectionID]; ok {
				dbType = t
			}
		}
		id := dash.ID
		s.recordActivity(ctx, domain.ActivityEntry{
			RunID:         runID,
			DatabaseName:  "(decomposed)",
			DatabaseType:  dbType,
			DashboardID:   &id,
			DashboardName: dash.Name,
			Status:        domain.ActivityDeleted,
			ErrorMessage:  "empty dashboard, database decomposed",
		})
		log.Printf("[SERVICE] deleted empty dashboard %q (ID %d)", dash.Name, dash.ID)
	}
}

func (s *Service) recordActivity(ctx context.Context, entry domain.ActivityEntry) {
	if s.activity == nil {
		return
	}
	if _, err := s.activity.Record(ctx, entry); err != nil {
		log.Printf("[SERVICE] warning: failed to record activity: %v", err)
	}
}
