// Package service runs the auto-clone loop: on a schedule it classifies
// databases, finds the ones without a dashboard in their type's target
// collection, and stamps out a clone of the configured template for each.
// Every outcome lands in the activity log.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rpattn/dashclone/internal/cloner"
	"github.com/rpattn/dashclone/internal/coverage"
	"github.com/rpattn/dashclone/internal/identify"
	"github.com/rpattn/dashclone/internal/metabase"
	"github.com/rpattn/dashclone/internal/repository"
)

// Service owns the check cycle and its observable state.
type Service struct {
	api          metabase.API
	orchestrator *cloner.Orchestrator
	identifier   *identify.Identifier
	checker      *coverage.Checker
	activity     repository.ActivityLogRepository
	tasks        repository.TaskConfigRepository
	baseURL      string
	sleepFn      func(time.Duration)

	mu        sync.Mutex
	running   bool
	status    string
	lastRun   time.Time
	nextRun   time.Time
	cancelRun context.CancelFunc
}

// New wires a service over the platform API and the persistence layer.
func New(api metabase.API, activity repository.ActivityLogRepository, tasks repository.TaskConfigRepository, baseURL string) *Service {
	return &Service{
		api:          api,
		orchestrator: cloner.New(api),
		identifier:   identify.New(api),
		checker:      coverage.New(api),
		activity:     activity,
		tasks:        tasks,
		baseURL:      strings.TrimRight(baseURL, "/"),
		sleepFn:      time.Sleep,
		status:       "Idle",
	}
}

// WithSignatures swaps the database-type signatures used by the check
// cycle's classification step. Returns the service for chaining.
func (s *Service) WithSignatures(signatures identify.Signatures) *Service {
	if len(signatures) > 0 {
		s.identifier = identify.NewWithSignatures(s.api, signatures)
	}
	return s
}

// Status is the service state reported by the status endpoint.
type Status struct {
	Running          bool       `json:"is_running"`
	CurrentStatus    string     `json:"current_status"`
	LastRun          *time.Time `json:"last_run,omitempty"`
	NextRun          *time.Time `json:"next_run,omitempty"`
	SecondsUntilNext *int       `json:"seconds_until_next,omitempty"`
}

// Status returns a snapshot of the service state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:       s.running,
		CurrentStatus: s.status,
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		status.LastRun = &last
	}
	if !s.nextRun.IsZero() {
		next := s.nextRun
		status.NextRun = &next
		seconds := int(time.Until(next).Seconds())
		if seconds < 0 {
			seconds = 0
		}
		status.SecondsUntilNext = &seconds
	}
	return status
}

// Stop cancels the in-flight check, if any. The run stops after the task
// currently in progress completes.
func (s *Service) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.cancelRun == nil {
		return false
	}
	s.status = "Stopping..."
	s.cancelRun()
	return true
}

// beginRun transitions to running and installs the run's cancel function.
// Returns false when a check is already in flight.
func (s *Service) beginRun(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.cancelRun = cancel
	s.status = "Running check..."
	s.lastRun = time.Now()
	return true
}

func (s *Service) endRun(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.cancelRun = nil
	s.status = status
}

func (s *Service) setStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// runContext is the parent context for checks triggered over HTTP; the
// run must not die with the request that started it.
func (s *Service) runContext() context.Context {
	return context.Background()
}

func (s *Service) setNextRun(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun = t
}
