package scheduler

import (
	"context"
	"sync"
	"time"

	"subscription_reminder_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper runs one pass over the due reminders.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (app.SweepResult, error)
}

type ReminderScheduler struct {
	cronEngine *cron.Cron
	sweeper    Sweeper
	logger     *logrus.Entry
	cronSpec   string
	timeout    time.Duration
	now        func() time.Time

	mu      sync.Mutex // Serialises sweeps between cron and the HTTP trigger
	running bool
}

func NewReminderScheduler(
	sweeper Sweeper,
	logger *logrus.Entry,
	cronSpec string, // e.g., "*/5 * * * *" (every 5 minutes)
	timeout time.Duration,
) *ReminderScheduler {
	return &ReminderScheduler{
		// Schedules are stored in UTC; the cron zone only affects when sweeps tick.
		cronEngine: cron.New(cron.WithLocation(time.UTC)),
		sweeper:    sweeper,
		logger:     logger,
		cronSpec:   cronSpec,
		timeout:    timeout,
		now:        time.Now,
	}
}

func (s *ReminderScheduler) Start() error {
	s.logger.Info("Starting reminder scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Debug("Cron job triggered for reminder sweep.")
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.WithError(err).Error("Error during reminder sweep")
		}
	})
	if err != nil {
		return err
	}

	s.cronEngine.Start()
	s.logger.WithField("spec", s.cronSpec).Info("Reminder scheduler started.")
	return nil
}

// RunOnce sweeps immediately. A call made while another sweep is in flight
// returns an empty result without sweeping.
func (s *ReminderScheduler) RunOnce(ctx context.Context) (app.SweepResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Previous sweep still running, skipping.")
		return app.SweepResult{}, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	return s.sweeper.Sweep(ctx, s.now().UTC())
}

func (s *ReminderScheduler) Stop() {
	s.logger.Info("Stopping reminder scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Reminder scheduler gracefully stopped.")
}
