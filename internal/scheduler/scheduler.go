// Package scheduler runs periodic ledger jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RecurringRunner materializes due recurring expenses.
type RecurringRunner interface {
	RunRecurring(ctx context.Context, now time.Time) (int, error)
}

// Scheduler triggers the recurring-expense sweep on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	runner  RecurringRunner
	timeout time.Duration
	now     func() time.Time
}

// New schedules the sweep using a standard 5-field cron spec.
// Overlapping runs are skipped.
func New(spec string, runner RecurringRunner, timeout time.Duration) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		runner:  runner,
		timeout: timeout,
		now:     time.Now,
	}
	if _, err := s.cron.AddFunc(spec, s.Run); err != nil {
		return nil, fmt.Errorf("schedule recurring sweep %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for a running sweep to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		slog.Warn("Scheduler stop timed out")
	}
}

// Run performs one sweep.
func (s *Scheduler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.runner.RunRecurring(ctx, s.now())
	if err != nil {
		slog.Error("Recurring sweep failed", "created", n, "error", err)
		return
	}
	if n > 0 {
		slog.Info("Recurring sweep finished", "created", n)
	}
}
