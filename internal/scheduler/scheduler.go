package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks alongside the monitoring loop
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]cron.EntryID
	timezone *time.Location
	timeout  time.Duration
	log      zerolog.Logger
}

// New creates a new scheduler with the given timezone. Each job run is
// bounded by timeout.
func New(timezone string, timeout time.Duration, log zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	return &Scheduler{
		cron:     c,
		jobs:     make(map[string]cron.EntryID),
		timezone: loc,
		timeout:  timeout,
		log:      log.With().Str("component", "scheduler").Logger(),
	}, nil
}

// AddJob adds a job with a cron schedule
// schedule format: "0 3 * * *" (at 3:00 AM daily)
func (s *Scheduler) AddJob(ctx context.Context, name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		jobCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		s.log.Debug().Str("job", name).Msg("starting job")
		start := time.Now()

		if err := job(jobCtx); err != nil {
			s.log.Warn().Err(err).Str("job", name).Msg("job failed")
		} else {
			s.log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job completed")
		}
	})

	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.log.Info().Str("job", name).Str("schedule", schedule).Msg("added job")

	return nil
}

// AddEvery adds a job that runs at a fixed interval
func (s *Scheduler) AddEvery(ctx context.Context, name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s for job %s", interval, name)
	}
	return s.AddJob(ctx, name, "@every "+interval.String(), job)
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.log.Debug().Msg("starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.log.Debug().Msg("stopping scheduler")
	return s.cron.Stop()
}

// RunNow immediately executes a job
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.log.Debug().Str("job", name).Msg("running job now")
	return job(ctx)
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(entries))

	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}

	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}
