package service

import (
	"context"
	"log"
	"time"
)

// Scheduler triggers the service's check cycle on wall-clock slots: with a
// four-hour interval the checks land at 00:00, 04:00, 08:00 and so on.
type Scheduler struct {
	service  *Service
	interval time.Duration
}

func NewScheduler(service *Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 4 * time.Hour
	}
	return &Scheduler{service: service, interval: interval}
}

// NextRun returns the next slot boundary after t.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	return t.Truncate(s.interval).Add(s.interval)
}

// Run blocks until the context is cancelled, firing a check at each slot
// boundary. A slot whose check is still running is skipped by RunCheck's
// own single-flight guard.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("[SCHEDULER] running every %s", s.interval)
	for {
		next := s.NextRun(time.Now())
		s.service.setNextRun(next)
		log.Printf("[SCHEDULER] next check at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("[SCHEDULER] stopped")
			return
		case <-timer.C:
		}

		log.Printf("[SCHEDULER] scheduled check triggered")
		s.service.RunCheck(ctx)
	}
}
