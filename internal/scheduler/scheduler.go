// Package scheduler runs the sync and report jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/danielolaszy/jiradigest/internal/logging"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 10 * time.Minute

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs jobs one at a time: a tick that fires while another job is
// still running is skipped. Sync and report share the database file, so they
// never overlap.
type Scheduler struct {
	c       *cron.Cron
	mu      sync.Mutex
	timeout time.Duration
}

// New creates a scheduler evaluating cron expressions in loc.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		c:       cron.New(cron.WithLocation(loc), cron.WithParser(parser)),
		timeout: DefaultJobTimeout,
	}
}

// Add registers job under name on the five-field cron expression spec.
func (s *Scheduler) Add(spec, name string, job Job) error {
	if _, err := s.c.AddFunc(spec, s.wrap(name, job)); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	logging.Info("scheduled job", "job", name, "cron", spec)
	return nil
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		if !s.mu.TryLock() {
			logging.Warn("skipping job, another job is still running", "job", name)
			return
		}
		defer s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		started := time.Now()
		logging.Info("job started", "job", name)
		if err := job(ctx); err != nil {
			logging.Error("job failed", "job", name, "error", err, "elapsed", time.Since(started))
			return
		}
		logging.Info("job finished", "job", name, "elapsed", time.Since(started))
	}
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.c.Start()
	<-ctx.Done()
	logging.Info("stopping scheduler")
	<-s.c.Stop().Done()
}
