// Package sweep runs the overdue sweep on a schedule, independent of read
// traffic, so lapsed assignments rotate forward even when nobody is looking.
package sweep

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper is the idempotent maintenance operation the scheduler drives.
type Sweeper interface {
	SweepOverdue() (int, error)
}

// Scheduler wraps a cron runner around the overdue sweep. onSwept, when
// set, is called with the escalation count after each run that rotated
// something, so the server can push a change event to connected dashboards.
type Scheduler struct {
	sweeper Sweeper
	onSwept func(count int)
	logger  *slog.Logger
	cron    *cron.Cron
}

func NewScheduler(sweeper Sweeper, onSwept func(count int), logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		onSwept: onSwept,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start registers the sweep at the given cron schedule (robfig/cron syntax,
// descriptors like "@every 1h" included) and begins running it.
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, s.run)
	if err != nil {
		return fmt.Errorf("add sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("sweep scheduler started", "schedule", schedule)
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) run() {
	n, err := s.sweeper.SweepOverdue()
	if err != nil {
		s.logger.Error("scheduled sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("scheduled sweep escalated assignments", "count", n)
		if s.onSwept != nil {
			s.onSwept(n)
		}
	}
}
