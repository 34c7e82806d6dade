// Package scheduler wires the pipeline jobs onto cron schedules with a
// single-flight guard per job and distributor.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs registered jobs on cron schedules. Every entry is
// wrapped in cron.SkipIfStillRunning, so a slow crawl is skipped over by
// the next tick instead of piling up a second instance.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New builds a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))
	return &Scheduler{
		cron:    c,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Register schedules fn under the given name and cron spec.
// Re-registering a name replaces its schedule; a bad spec leaves the
// existing registration in place.
func (s *Scheduler) Register(name, spec string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger.With(zap.String("job", name))))
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(func() {
		if err := fn(s.ctx); err != nil {
			s.logger.Error("Scheduled job failed",
				zap.String("job", name), zap.Error(err))
		}
	}))

	id, err := s.cron.AddJob(spec, job)
	if err != nil {
		return fmt.Errorf("schedule job %q with spec %q: %w", name, spec, err)
	}
	if old, exists := s.entries[name]; exists {
		s.cron.Remove(old)
	}
	s.entries[name] = id
	s.logger.Info("Job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Start begins dispatching scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for in-flight invocations to
// finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}
