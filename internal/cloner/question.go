package cloner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/remap"
)

// cloneQuestion creates a remote copy of one question with its query,
// template tags and click behaviors rewritten for the target database.
// Each attempt rebuilds the payload from the source question, so a retry
// is simply a fresh attempt with no partial state to reset. Creation is a
// single remote call; a failed attempt leaves no partial entity behind.
// An empty newName keeps the source question's name.
func (o *Orchestrator) cloneQuestion(ctx context.Context, r *run, questionID int, newName string, targetDatabaseID int, collectionID *int) (*domain.Card, error) {
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if attempt > 1 {
			o.sleep(time.Duration(attempt-1) * o.backoff)
		}

		card, err := o.cloneQuestionOnce(ctx, r, questionID, newName, targetDatabaseID, collectionID)
		if err == nil {
			return card, nil
		}
		lastErr = err
		if attempt < o.maxAttempts {
			log.Printf("[CLONE] warning: attempt %d/%d failed for question %d: %v", attempt, o.maxAttempts, questionID, err)
		}
	}
	return nil, fmt.Errorf("failed to clone question %d after %d attempts: %w", questionID, o.maxAttempts, lastErr)
}

func (o *Orchestrator) cloneQuestionOnce(ctx context.Context, r *run, questionID int, newName string, targetDatabaseID int, collectionID *int) (*domain.Card, error) {
	original, err := o.api.GetCard(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch question %d: %w", questionID, err)
	}
	if newName == "" {
		newName = original.Name
	}

	query := remap.Query(original.DatasetQuery, targetDatabaseID, r.state)
	// Fresh tag ids keep the clone from colliding with the source's tags.
	remap.RegenerateTemplateTags(query)
	viz := remap.ClickBehaviors(original.VisualizationSettings, r.state, nil)

	display := original.Display
	if display == "" {
		display = "table"
	}

	payload := map[string]any{
		"name":                   newName,
		"dataset_query":          query,
		"display":                display,
		"visualization_settings": viz,
		"description":            original.Description,
	}
	if collectionID != nil {
		payload["collection_id"] = *collectionID
	}

	created, err := o.api.CreateCard(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create question %q: %w", newName, err)
	}
	log.Printf("[CLONE] cloned question %q (%d -> %d)", newName, questionID, created.ID)
	return created, nil
}

// GetOrCreateCollection finds a collection by case-insensitive exact name
// or creates it. Idempotent: re-running the same lookup never creates a
// duplicate (name uniqueness under race is enforced by the platform).
func (o *Orchestrator) GetOrCreateCollection(ctx context.Context, name string, parentID *int) (*domain.Collection, error) {
	collections, err := o.api.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	for i := range collections {
		if strings.EqualFold(collections[i].Name, name) {
			return &collections[i], nil
		}
	}
	created, err := o.api.CreateCollection(ctx, name, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	return created, nil
}

// cloneFilterSourceQuestions clones the hidden questions referenced only by
// dashboard filter dropdown configurations. These never appear on any
// dashboard but must exist before the filters themselves are remapped.
func (o *Orchestrator) cloneFilterSourceQuestions(ctx context.Context, r *run, params []map[string]any, targetDatabaseID int, collectionID *int) {
	ids := remap.FilterSourceCardIDs(params)
	if len(ids) == 0 {
		return
	}
	log.Printf("[CLONE] cloning %d filter-source questions", len(ids))

	for _, id := range ids {
		if _, ok := r.state.Questions.Resolve(id); ok {
			continue
		}
		created, err := o.cloneQuestion(ctx, r, id, "", targetDatabaseID, collectionID)
		if err != nil {
			log.Printf("[CLONE] error: %v", err)
			r.state.RecordFailure(domain.FailureQuestion, id, "filter source", err)
			continue
		}
		r.state.Questions.Record(id, created.ID)
	}
}
