// Package refresh re-reads ICS feeds on a cron schedule so layout requests
// are served from parsed events instead of fetching on every call.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "timetable/internal/log"
)

// Job is one refresh run.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	cron *cron.Cron
	job  Job

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	lastErr error
	lastRun time.Time
}

// New validates spec (standard 5-field cron or a descriptor such as
// "@every 5m") and prepares a stopped scheduler.
func New(spec string, loc *time.Location, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("refresh: job is nil")
	}
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
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("refresh: schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins scheduling. Runs receive a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	appLog.Info("refresh scheduler started", "next", s.Next().Format(time.RFC3339))
}

// Stop cancels the running job, if any, and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

// RunNow runs the job synchronously, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.record(s.job(ctx))
}

// Next is the next scheduled run, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Last returns when the job last finished and its error.
func (s *Scheduler) Last() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.record(s.job(ctx)); err != nil {
		appLog.Error("scheduled refresh failed", err)
	}
}

func (s *Scheduler) record(err error) error {
	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
