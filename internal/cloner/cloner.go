// Package cloner drives the end-to-end clone of a dashboard graph onto a
// different data source: question cloning, collection lookup-or-create,
// linked-dashboard discovery, and the orchestration run that ties them
// together with a corrective reconcile pass.
package cloner

import (
	"time"

	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/metabase"
)

// Orchestrator clones dashboards through the platform API. It is stateless
// between runs; every run owns a fresh CloneState.
type Orchestrator struct {
	api metabase.API

	maxAttempts int
	backoff     time.Duration
	sleep       func(time.Duration)
}

// New creates an orchestrator with the default retry policy (3 attempts,
// linear backoff).
func New(api metabase.API) *Orchestrator {
	return &Orchestrator{
		api:         api,
		maxAttempts: 3,
		backoff:     2 * time.Second,
		sleep:       time.Sleep,
	}
}

// Request describes one clone invocation.
type Request struct {
	SourceDashboardID int
	NewName           string
	TargetDatabaseID  int

	// DashboardCollectionID receives cloned dashboards;
	// QuestionsCollectionID receives cloned questions. For linked-set
	// clones, MainDashboardCollectionID overrides the destination of the
	// root dashboard only.
	DashboardCollectionID     *int
	QuestionsCollectionID     *int
	MainDashboardCollectionID *int
}

// Result carries the clone of the root dashboard plus the run's complete
// identity maps for audit and logging.
type Result struct {
	Dashboard *domain.Dashboard
	State     *domain.CloneState
}

// run bundles the per-invocation state. Schema map pairs are cached so a
// linked set sharing one data source pair resolves metadata once.
type run struct {
	state       *domain.CloneState
	schemaPairs map[[2]int]bool
}

func newRun() *run {
	return &run{
		state:       domain.NewCloneState(),
		schemaPairs: map[[2]int]bool{},
	}
}
