package jobs_fx

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.uber.org/fx"

	"churchhub/internal/config"
	"churchhub/internal/jobs"
	"churchhub/internal/services"
	mem "churchhub/pkg/memcache"
	"churchhub/pkg/metrics"
)

var Module = fx.Options(
	fx.Provide(provideCronManager),
	fx.Invoke(registerCron),
)

func provideCronManager(cfg *config.Config, svcs services.SubscriptionServices, keys mem.IdempotencyStore, m *metrics.Metrics, log *logrus.Logger) *jobs.CronManager {
	return jobs.NewCronManager(svcs, keys, m, log, jobs.Schedules{
		ExpirySweep: cfg.Jobs.ExpirySweepSchedule,
		Reminders:   cfg.Jobs.ReminderSchedule,
	}, cfg.Location())
}

func registerCron(lc fx.Lifecycle, cfg *config.Config, cm *jobs.CronManager, log *logrus.Logger) error {
	if !cfg.Jobs.Enabled {
		log.Info("JOBS_ENABLED=false, scheduled jobs are off")
		return nil
	}
	if err := cm.SetupJobs(); err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			cm.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return cm.Stop(ctx)
		},
	})
	return nil
}
