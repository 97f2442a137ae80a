package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Intervals configures how often each job runs.
type Intervals struct {
	Sessions  time.Duration
	Holds     time.Duration
	Reminders time.Duration
}

// DefaultIntervals suits a single small deployment.
var DefaultIntervals = Intervals{
	Sessions:  5 * time.Minute,
	Holds:     time.Minute,
	Reminders: 10 * time.Minute,
}

// Scheduler owns the gocron scheduler running the jobs.
type Scheduler struct {
	s   gocron.Scheduler
	log *zap.Logger
}

// Start registers the jobs and starts the scheduler.  Each job runs in
// singleton mode so a slow run is never overlapped by the next one.
func Start(ctx context.Context, jobs *Jobs, every Intervals, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	defs := []struct {
		name  string
		every time.Duration
		run   func()
	}{
		{"session-reaper", every.Sessions, func() { jobs.ReapSessions() }},
		{"hold-expiry", every.Holds, func() {
			if _, err := jobs.ExpireHolds(ctx); err != nil {
				log.Error("hold expiry job failed", zap.Error(err))
			}
		}},
		{"pickup-reminders", every.Reminders, func() {
			if _, err := jobs.SendReminders(ctx); err != nil {
				log.Error("pickup reminder job failed", zap.Error(err))
			}
		}},
	}
	for _, d := range defs {
		if d.every <= 0 {
			continue
		}
		j, err := s.NewJob(
			gocron.DurationJob(d.every),
			gocron.NewTask(d.run),
			gocron.WithName(d.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = s.Shutdown()
			return nil, err
		}
		log.Info("job scheduled", zap.String("name", d.name), zap.String("id", j.ID().String()), zap.Duration("every", d.every))
	}
	s.Start()
	return &Scheduler{s: s, log: log}, nil
}

// Stop waits for running jobs and stops the scheduler.
func (s *Scheduler) Stop() error {
	return s.s.Shutdown()
}
