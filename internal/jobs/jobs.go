// Package jobs runs the client's periodic background work on cron
// schedules: refreshing dashboard statistics and pruning stale message
// drafts.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// JobFunc is called when a scheduled job fires.
type JobFunc func(ctx context.Context)

// Runner manages named cron jobs for the client.
type Runner struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]cron.EntryID
	logger *slog.Logger

	ctx context.Context
}

// New creates a job runner.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cron:   cron.New(),
		jobs:   make(map[string]cron.EntryID),
		logger: logger.With("component", "jobs"),
	}
}

// Add registers a named job. The schedule is a standard cron expression
// (5 fields) or a predefined one like @every 1m. Re-adding a name
// replaces the previous schedule.
func (r *Runner) Add(name, schedule string, fn JobFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.jobs[name]; ok {
		r.cron.Remove(old)
	}
	id, err := r.cron.AddFunc(schedule, func() {
		r.mu.Lock()
		ctx := r.ctx
		r.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		r.logger.Debug("job fired", "job", name)
		fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("jobs: invalid schedule %q for %s: %w", schedule, name, err)
	}
	r.jobs[name] = id
	r.logger.Info("job registered", "job", name, "schedule", schedule)
	return nil
}

// Remove unregisters a named job. Unknown names are ignored.
func (r *Runner) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.jobs[name]; ok {
		r.cron.Remove(id)
		delete(r.jobs, name)
	}
}

// Count returns the number of registered jobs.
func (r *Runner) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Start begins firing jobs and blocks until ctx is cancelled. The same
// ctx is handed to every JobFunc so in-flight work stops with the
// runner.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.cron.Start()
	r.logger.Info("job runner started")

	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.logger.Info("job runner stopped")
	return ctx.Err()
}
