// Package schedule fires the daily pipeline at a fixed wall-clock time.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// PipelineRunner is satisfied by *job.Pipeline.
type PipelineRunner interface {
	Run(ctx context.Context, runDate time.Time, forecast, monitor bool) error
}

// Scheduler runs the pipeline once a day for today minus the configured lag.
// The forecast unit only joins the run on the configured day of the month.
type Scheduler struct {
	cron     *gocron.Scheduler
	pipeline PipelineRunner
	cfg      config.ScheduleConfig
	loc      *time.Location
	// now is replaced in tests.
	now func() time.Time
	// ctx is the parent of every scheduled run.
	ctx context.Context
}

// New creates a stopped scheduler in cfg.Timezone.
func New(cfg config.ScheduleConfig, pipeline PipelineRunner) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, exception.NewConfigurationError("schedule", fmt.Sprintf("invalid timezone %q", cfg.Timezone), err)
	}
	cron := gocron.NewScheduler(loc)
	// A run still going at the next trigger is never doubled.
	cron.SingletonModeAll()
	return &Scheduler{
		cron:     cron,
		pipeline: pipeline,
		cfg:      cfg,
		loc:      loc,
		now:      time.Now,
		ctx:      context.Background(),
	}, nil
}

// Start registers the daily job and starts the scheduler in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	if _, err := s.cron.Every(1).Day().At(s.cfg.At).Tag("daily").Do(s.tick); err != nil {
		return exception.NewConfigurationError("schedule", fmt.Sprintf("failed to schedule daily run at %s", s.cfg.At), err)
	}
	s.cron.StartAsync()
	logger.Infof("Scheduler started: daily at %s %s, forecast on day %d, next run %s.", s.cfg.At, s.cfg.Timezone, s.cfg.ForecastDayOfMonth, s.NextRun().Format(time.RFC3339))
	return nil
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop stops the scheduler. A run in progress is not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	logger.Infof("Scheduler stopped.")
}

// NextRun is the next trigger time, zero before Start.
func (s *Scheduler) NextRun() time.Time {
	jobs := s.cron.Jobs()
	if len(jobs) == 0 {
		return time.Time{}
	}
	return jobs[0].NextRun()
}

// RunDate is the run date a trigger at now processes.
func (s *Scheduler) RunDate(now time.Time) time.Time {
	return config.DefaultRunDate(now.In(s.loc), s.cfg.LagDays)
}

// ForecastDue reports whether a trigger at now includes the forecast unit.
func (s *Scheduler) ForecastDue(now time.Time) bool {
	return s.cfg.Forecast && now.In(s.loc).Day() == s.cfg.ForecastDayOfMonth
}

// Trigger runs the pipeline for the current run date.
func (s *Scheduler) Trigger(ctx context.Context) error {
	now := s.now()
	runDate := s.RunDate(now)
	forecast := s.ForecastDue(now)
	logger.Infof("Scheduled run for %s starting (forecast: %t, monitor: %t).", runDate.Format(time.DateOnly), forecast, s.cfg.Monitor)
	if err := s.pipeline.Run(ctx, runDate, forecast, s.cfg.Monitor); err != nil {
		logger.Errorf("Scheduled run for %s failed: %v", runDate.Format(time.DateOnly), err)
		return err
	}
	return nil
}

func (s *Scheduler) tick() {
	// Failures are logged by Trigger; the next day runs regardless.
	_ = s.Trigger(s.ctx)
}
