package discovery

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler re-runs discovery for all registered applications on a cron
// schedule, tolerating per-application failure.
type Scheduler struct {
	coordinator *Coordinator
	cron        *cron.Cron
	logger      *logrus.Logger
	timeout     time.Duration
}

// NewScheduler creates a discovery scheduler.
func NewScheduler(coordinator *Coordinator, logger *logrus.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		coordinator: coordinator,
		cron:        cron.New(),
		logger:      logger,
		timeout:     timeout,
	}
}

// Start registers the batch job on the given cron schedule and starts the
// scheduler.
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		results, err := s.coordinator.DiscoverAll(ctx, true)
		if err != nil {
			s.logger.WithError(err).Error("scheduled discovery failed")
			return
		}
		var failed int
		for _, res := range results {
			if res.Status == StatusFailed {
				failed++
			}
		}
		s.logger.WithFields(logrus.Fields{
			"apps":   len(results),
			"failed": failed,
		}).Info("scheduled discovery completed")
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
