package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "iconcal/internal/log"
)

// Scheduler runs a Job on a cron spec in a fixed timezone.
type Scheduler struct {
	cron *cron.Cron
	job  *Job
	ctx  context.Context
}

// NewScheduler parses spec (standard 5-field or @descriptor) and prepares
// the cron runner. A tick that fires while the previous run is still
// working is skipped.
func NewScheduler(spec string, loc *time.Location, job *Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		job: job,
		ctx: context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule: spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running ticks in the background. ctx is handed to every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		appLog.Info("scheduler started", "next", e.Next.Format(time.RFC3339))
	}
}

// Stop halts the scheduler and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	appLog.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	if err := s.job.Run(s.ctx); err != nil {
		appLog.Error("scheduled run failed", err)
	}
}

// cronLogger routes cron's own logging into the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
