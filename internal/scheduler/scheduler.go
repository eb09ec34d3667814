// Package scheduler runs the periodic maintenance jobs of event delivery on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named periodic task.
type Job struct {
	Name     string
	Schedule string
	Enabled  bool
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on their cron schedules. A job still running when its next tick
// fires is skipped for that tick, and a panicking job is logged and recovered.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	names  []string

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// parser accepts standard five field specs, an optional seconds field and descriptors
// such as "@every 5s" or "@daily".
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler with the enabled jobs. It fails on an invalid schedule.
func New(logger *slog.Logger, jobs ...Job) (*Scheduler, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cronLogger := NewCronLogger(logger)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   c,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	var errs []error
	for _, job := range jobs {
		if !job.Enabled {
			logger.Info("scheduled job disabled", slog.String("job", job.Name))
			continue
		}
		if job.Run == nil {
			errs = append(errs, fmt.Errorf("job %s has no run function", job.Name))
			continue
		}
		if _, err := c.AddFunc(strings.TrimSpace(job.Schedule), s.wrap(job)); err != nil {
			errs = append(errs, fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err))
			continue
		}
		s.names = append(s.names, job.Name)
	}

	if len(errs) > 0 {
		cancel()
		return nil, errors.Join(errs...)
	}

	return s, nil
}

// Jobs returns the names of the scheduled jobs in registration order.
func (s *Scheduler) Jobs() []string {
	return append([]string(nil), s.names...)
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", slog.Any("jobs", s.names))
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs. When ctx expires first the
// running jobs see their context cancelled and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.logger.Info("stopping scheduler")
		done := s.cron.Stop()

		select {
		case <-done.Done():
		case <-ctx.Done():
			s.cancel()
			<-done.Done()
			err = ctx.Err()
		}
		s.cancel()
	})
	return err
}

func (s *Scheduler) wrap(job Job) func() {
	return func() {
		start := time.Now()
		if err := job.Run(s.ctx); err != nil {
			s.logger.Error("scheduled job failed",
				slog.String("job", job.Name),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)
			return
		}
		s.logger.Debug("scheduled job finished",
			slog.String("job", job.Name),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
