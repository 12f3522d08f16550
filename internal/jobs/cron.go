package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"churchhub/internal/services"
	mem "churchhub/pkg/memcache"
	"churchhub/pkg/metrics"
)

const (
	JobExpirySweep      = "expiry_sweep"
	JobReminders        = "near_expiry_reminders"
	JobIdempotencyPurge = "idempotency_purge"

	purgeSchedule = "@hourly"
)

type Schedules struct {
	ExpirySweep string
	Reminders   string
}

// CronManager runs the billing jobs for every subscription kind.
type CronManager struct {
	cron      *cron.Cron
	schedules Schedules
	services  []services.SubscriptionService
	keys      mem.IdempotencyStore
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

func NewCronManager(
	svcs services.SubscriptionServices,
	keys mem.IdempotencyStore,
	m *metrics.Metrics,
	logger *logrus.Logger,
	schedules Schedules,
	loc *time.Location,
) *CronManager {
	if loc == nil {
		loc = time.UTC
	}
	cl := cron.PrintfLogger(logger)
	return &CronManager{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		schedules: schedules,
		services:  svcs.All(),
		keys:      keys,
		metrics:   m,
		logger:    logger,
	}
}

// SetupJobs registers every job on its schedule.
func (cm *CronManager) SetupJobs() error {
	jobs := []struct {
		name     string
		schedule string
		timeout  time.Duration
		run      func(ctx context.Context) error
	}{
		{JobExpirySweep, cm.schedules.ExpirySweep, 10 * time.Minute, func(ctx context.Context) error {
			_, err := cm.RunExpirySweep(ctx)
			return err
		}},
		{JobReminders, cm.schedules.Reminders, 30 * time.Minute, func(ctx context.Context) error {
			_, err := cm.RunReminders(ctx)
			return err
		}},
		{JobIdempotencyPurge, purgeSchedule, time.Minute, func(ctx context.Context) error {
			cm.RunIdempotencyPurge()
			return nil
		}},
	}

	for _, j := range jobs {
		if _, err := cm.cron.AddFunc(j.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
			defer cancel()
			if err := j.run(ctx); err != nil {
				cm.logger.WithField("job", j.name).WithError(err).Error("job finished with errors")
			}
		}); err != nil {
			return err
		}
		cm.logger.WithFields(logrus.Fields{"job": j.name, "schedule": j.schedule}).Info("job scheduled")
	}
	return nil
}

// RunExpirySweep expires overdue active subscriptions of every kind. A
// failing kind does not stop the others.
func (cm *CronManager) RunExpirySweep(ctx context.Context) (int, error) {
	defer cm.observe(JobExpirySweep, time.Now())

	total := 0
	var firstErr error
	for _, svc := range cm.services {
		n, err := svc.SweepExpired(ctx)
		total += n
		if err != nil {
			cm.logger.WithFields(logrus.Fields{"job": JobExpirySweep, "kind": svc.Kind()}).WithError(err).Error("sweep failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	cm.logger.WithFields(logrus.Fields{"job": JobExpirySweep, "expired": total}).Info("expiry sweep done")
	return total, firstErr
}

// RunReminders mails near expiry reminders for every kind.
func (cm *CronManager) RunReminders(ctx context.Context) (int, error) {
	defer cm.observe(JobReminders, time.Now())

	total := 0
	var firstErr error
	for _, svc := range cm.services {
		n, err := svc.SendReminders(ctx)
		total += n
		if err != nil {
			cm.logger.WithFields(logrus.Fields{"job": JobReminders, "kind": svc.Kind()}).WithError(err).Warn("some reminders failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	cm.logger.WithFields(logrus.Fields{"job": JobReminders, "sent": total}).Info("reminders done")
	return total, firstErr
}

func (cm *CronManager) RunIdempotencyPurge() int {
	defer cm.observe(JobIdempotencyPurge, time.Now())

	n := cm.keys.Purge()
	cm.logger.WithFields(logrus.Fields{"job": JobIdempotencyPurge, "purged": n}).Debug("idempotency keys purged")
	return n
}

func (cm *CronManager) observe(job string, start time.Time) {
	cm.metrics.ObserveJob(job, time.Since(start))
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Info("starting cron scheduler")
	cm.cron.Start()
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (cm *CronManager) Stop(ctx context.Context) error {
	cm.logger.Info("stopping cron scheduler")
	select {
	case <-cm.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries lists the registered jobs.
func (cm *CronManager) Entries() []cron.Entry {
	return cm.cron.Entries()
}
