package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stone-age-io/inventory-agent/internal/config"
	"github.com/stone-age-io/inventory-agent/internal/tasks"
	"go.uber.org/zap"
)

const jobName = "inventory-report"

// Cycle is the work run on every schedule tick
type Cycle interface {
	RunCycle(ctx context.Context) tasks.CycleResult
}

// Scheduler runs the reporting cycle once a day
type Scheduler struct {
	scheduler  gocron.Scheduler
	job        gocron.Job
	logger     *zap.Logger
	clock      clockwork.Clock
	at         string
	hour       int
	minute     int
	runOnStart bool
}

// New creates a scheduler for the daily cycle. clock may be nil to use the
// wall clock.
func New(ctx context.Context, logger *zap.Logger, cycle Cycle, cfg config.ScheduleConfig, clock clockwork.Clock) (*Scheduler, error) {
	hour, minute, err := config.ParseClock(cfg.At)
	if err != nil {
		return nil, err
	}

	opts := []gocron.SchedulerOption{
		gocron.WithLogger(newLogger(logger)),
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	opts = append(opts, gocron.WithClock(clock))

	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	job, err := s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), uint(minute), 0))),
		gocron.NewTask(func() {
			cycle.RunCycle(ctx)
		}),
		gocron.WithName(jobName),
		// A slow cycle skips the next tick instead of stacking up
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithEventListeners(
			gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, name string, recoverData any) {
				logger.Error("Panic recovered in scheduled job",
					zap.String("job", name),
					zap.String("job_id", jobID.String()),
					zap.Any("panic", recoverData))
			}),
		),
	)
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("failed to schedule inventory job: %w", err)
	}

	return &Scheduler{
		scheduler:  s,
		job:        job,
		logger:     logger,
		clock:      clock,
		at:         cfg.At,
		hour:       hour,
		minute:     minute,
		runOnStart: cfg.RunOnStart,
	}, nil
}

// Start begins scheduling and, if configured, runs a cycle right away
func (s *Scheduler) Start() {
	s.scheduler.Start()

	// gocron arms the job asynchronously, so log the computed instant
	s.logger.Info("Scheduler started",
		zap.String("at", s.at),
		zap.Time("next_run", NextOccurrence(s.clock.Now(), s.hour, s.minute)))

	if s.runOnStart {
		s.logger.Info("Running inventory cycle on start")
		if err := s.RunNow(); err != nil {
			s.logger.Error("Failed to run inventory cycle on start", zap.Error(err))
		}
	}
}

// RunNow triggers an immediate cycle without changing the daily schedule.
// It is a no-op while a cycle is already running.
func (s *Scheduler) RunNow() error {
	if err := s.job.RunNow(); err != nil {
		return fmt.Errorf("failed to run inventory job: %w", err)
	}
	return nil
}

// NextRun returns the next scheduled instant
func (s *Scheduler) NextRun() (time.Time, error) {
	return s.job.NextRun()
}

// Shutdown stops scheduling and waits for a running cycle to finish
func (s *Scheduler) Shutdown() error {
	s.logger.Info("Stopping scheduler")
	err := s.scheduler.Shutdown()
	if errors.Is(err, gocron.ErrStopSchedulerTimedOut) {
		s.logger.Warn("Scheduler shutdown timed out waiting for running cycle")
		return nil
	}
	return err
}

// NextOccurrence returns the first instant strictly after now that falls on
// hour:minute in now's location
func NextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return next
}
