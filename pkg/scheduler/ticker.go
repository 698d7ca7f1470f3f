package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/observability"
)

// Window is the inclusive date range a scheduled run requests
type Window struct {
	Start time.Time
	End   time.Time
}

// Runner performs one acquisition for a job over window
type Runner func(ctx context.Context, job JobConfig, window Window) error

// scheduledJob is a job with its parsed schedule
type scheduledJob struct {
	ID       string
	Config   JobConfig
	schedule cron.Schedule
	nextRun  *time.Time // Cached next run time to avoid tracker lookups
}

//nolint:gochecknoglobals // parser is stateless
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// parseSchedule accepts standard five-field cron expressions and
// descriptors such as @daily or @every 6h
func parseSchedule(schedule string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule format: %w", err)
	}

	return sched, nil
}

// windowFor returns the lookback window ending on the day containing now
func windowFor(now time.Time, lookback time.Duration) Window {
	end := now.UTC().Truncate(24 * time.Hour)

	return Window{Start: end.Add(-lookback).Truncate(24 * time.Hour), End: end}
}

// ticker launches due jobs, never running the same job twice at once
type ticker struct {
	log     logrus.FieldLogger
	tracker Tracker
	runner  Runner
	timeout time.Duration
	jobs    []*scheduledJob
	now     func() time.Time

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

func newTicker(log logrus.FieldLogger, tracker Tracker, runner Runner, timeout time.Duration, configs []JobConfig) (*ticker, error) {
	jobs := make([]*scheduledJob, 0, len(configs))

	for _, cfg := range configs {
		sched, err := parseSchedule(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", cfg.Name, err)
		}

		jobs = append(jobs, &scheduledJob{
			ID:       cfg.Name,
			Config:   cfg,
			schedule: sched,
		})
	}

	return &ticker{
		log:     log.WithField("component", "ticker"),
		tracker: tracker,
		runner:  runner,
		timeout: timeout,
		jobs:    jobs,
		now:     time.Now,
		running: make(map[string]bool),
	}, nil
}

func (t *ticker) checkSchedules(ctx context.Context) {
	now := t.now().UTC()

	for _, job := range t.jobs {
		// Fast path: skip if we already know the job isn't due yet
		if job.nextRun != nil && now.Before(*job.nextRun) {
			continue
		}

		lastRun, err := t.tracker.GetLastRun(ctx, job.ID)
		if err != nil {
			t.log.WithError(err).WithField("job_id", job.ID).Warn("Failed to get last run, will retry next tick")
			continue
		}

		if !lastRun.IsZero() {
			nextRun := job.schedule.Next(lastRun)
			job.nextRun = &nextRun

			if now.Before(nextRun) {
				continue
			}
		}

		if !t.claim(job.ID) {
			t.log.WithField("job_id", job.ID).Debug("Job still running, skipping")
			continue
		}

		if err := t.tracker.SetLastRun(ctx, job.ID, now); err != nil {
			t.log.WithError(err).WithField("job_id", job.ID).Error("Failed to update last run timestamp")
		}

		nextRun := job.schedule.Next(now)
		job.nextRun = &nextRun

		t.wg.Add(1)
		go t.run(ctx, job, now)
	}
}

func (t *ticker) claim(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running[id] {
		return false
	}
	t.running[id] = true

	return true
}

func (t *ticker) release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.running, id)
}

func (t *ticker) run(ctx context.Context, job *scheduledJob, now time.Time) {
	defer t.wg.Done()
	defer t.release(job.ID)

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	window := windowFor(now, job.Config.Lookback)
	log := t.log.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"dataset": job.Config.Dataset,
		"start":   window.Start.Format(time.DateOnly),
		"end":     window.End.Format(time.DateOnly),
	})

	log.Info("Running scheduled acquisition")
	started := time.Now()

	if err := t.runner(ctx, job.Config, window); err != nil {
		log.WithError(err).Error("Scheduled acquisition failed")
		observability.RecordScheduledRun(job.ID, "failed")
		observability.RecordError("scheduler", "run_failed")

		return
	}

	log.WithField("duration", time.Since(started)).Info("Scheduled acquisition complete")
	observability.RecordScheduledRun(job.ID, "success")
}

// wait blocks until every launched run has returned
func (t *ticker) wait() {
	t.wg.Wait()
}
