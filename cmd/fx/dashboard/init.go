package dashboard

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"churchhub/internal/config"
	"churchhub/internal/entitlement"
	"churchhub/internal/repositories"
	"churchhub/internal/services"
)

var Module = fx.Provide(
	provideDashboardRepo, provideDashboardService,
)

func provideDashboardRepo(db *gorm.DB) repositories.DashboardRepository {
	return repositories.NewDashboardRepository(db)
}

func provideDashboardService(dashboardRepo repositories.DashboardRepository, clock entitlement.Clock, cfg *config.Config) services.DashboardService {
	return services.NewDashboardService(dashboardRepo, clock, cfg.Location(), cfg.Billing.NearExpiryDays)
}
