// Package scheduler runs the periodic retention and health jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teachhub/telemetry/internal/pkg/logger"
)

// Retainer is implemented by each tracker: Cleanup drops records past the
// tracker's retention horizon.
type Retainer interface {
	Name() string
	Cleanup(ctx context.Context)
}

type JobFunc func(ctx context.Context)

type job struct {
	name     string
	schedule string
	fn       JobFunc
	running  sync.Mutex
}

// Supervisor owns the cron runner. A job that is still running when its
// next tick fires is skipped for that tick.
type Supervisor struct {
	cron       *cron.Cron
	jobTimeout time.Duration
	log        *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job
	ctx  context.Context
	stop context.CancelFunc
}

func New(jobTimeout time.Duration) *Supervisor {
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Supervisor{
		cron:       cron.New(),
		jobTimeout: jobTimeout,
		log:        logger.Component("scheduler"),
		jobs:       make(map[string]*job),
		ctx:        ctx,
		stop:       stop,
	}
}

// Register adds a job under a unique name. schedule uses the cron syntax,
// including descriptors such as "@every 1h".
func (s *Supervisor) Register(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	j := &job{name: name, schedule: schedule, fn: fn}
	if _, err := s.cron.AddFunc(schedule, func() { s.run(s.ctx, j, false) }); err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", name, schedule, err)
	}
	s.jobs[name] = j
	return nil
}

// RegisterRetention schedules "cleanup:<name>" for every retainer.
func (s *Supervisor) RegisterRetention(schedule string, retainers ...Retainer) error {
	for _, r := range retainers {
		if err := s.Register("cleanup:"+r.Name(), schedule, r.Cleanup); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) Start() {
	s.log.Info("scheduler started", "jobs", s.Jobs())
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs, or for ctx to end.
func (s *Supervisor) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.stop()
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.stop()
		return ctx.Err()
	}
}

// RunNow executes a registered job synchronously and waits for any
// scheduled run of the same job to finish first.
func (s *Supervisor) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	s.run(ctx, j, true)
	return nil
}

// RunAll executes every job whose name has the given prefix, in name order.
func (s *Supervisor) RunAll(ctx context.Context, prefix string) int {
	ran := 0
	for _, name := range s.Jobs() {
		if len(name) < len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		if err := s.RunNow(ctx, name); err == nil {
			ran++
		}
	}
	return ran
}

func (s *Supervisor) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Supervisor) run(ctx context.Context, j *job, wait bool) {
	if wait {
		j.running.Lock()
	} else if !j.running.TryLock() {
		s.log.Warn("job still running, skipping tick", "job", j.name)
		return
	}
	defer j.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", "job", j.name, "panic", r)
		}
	}()
	j.fn(ctx)
	s.log.Debug("job finished", "job", j.name, "duration", time.Since(start).String())
}
