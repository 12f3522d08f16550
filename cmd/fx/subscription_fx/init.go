package subscription_fx

import (
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"churchhub/internal/config"
	"churchhub/internal/entitlement"
	"churchhub/internal/repositories"
	"churchhub/internal/services"
	mem "churchhub/pkg/memcache"
	"churchhub/pkg/metrics"
)

var Module = fx.Provide(
	provideSubscriptionServices, providePlanService)

type deps struct {
	fx.In

	Config   *config.Config
	DB       *gorm.DB
	Catalogs entitlement.Catalogs
	Clock    entitlement.Clock
	Keys     mem.IdempotencyStore
	Mail     services.IMailService
	Metrics  *metrics.Metrics
	Log      *logrus.Logger
}

func provideSubscriptionServices(d deps) (services.SubscriptionServices, error) {
	opts := services.SubscriptionOptions{
		NearExpiryDays: d.Config.Billing.NearExpiryDays,
		IdempotencyTTL: d.Config.Billing.IdempotencyTTL,
		AppBaseURL:     d.Config.AppBaseURL,
	}
	build := func(kind entitlement.Kind) (services.SubscriptionService, error) {
		cat, err := d.Catalogs.For(kind)
		if err != nil {
			return nil, err
		}
		repo, err := repositories.NewSubscriptionRepository(d.DB, kind)
		if err != nil {
			return nil, err
		}
		engine := entitlement.NewEngine(cat, d.Clock, d.Config.Location())
		return services.NewSubscriptionService(engine, repo, d.Keys, d.Mail, d.Metrics, d.Log, opts)
	}

	church, err := build(entitlement.KindChurch)
	if err != nil {
		return services.SubscriptionServices{}, err
	}
	user, err := build(entitlement.KindUser)
	if err != nil {
		return services.SubscriptionServices{}, err
	}
	return services.SubscriptionServices{Church: church, User: user}, nil
}

func providePlanService(catalogs entitlement.Catalogs) services.PlanServiceInterface {
	return services.NewPlanService(catalogs)
}
