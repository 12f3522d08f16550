package catalog_fx

import (
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"

	"churchhub/internal/config"
	"churchhub/internal/entitlement"
)

var Module = fx.Provide(
	provideCatalogs, provideClock)

// provideCatalogs loads CATALOG_PATH when set, otherwise the built-in tiers.
func provideCatalogs(cfg *config.Config, log *logrus.Logger) (entitlement.Catalogs, error) {
	if cfg.Billing.CatalogPath == "" {
		return entitlement.DefaultCatalogs(), nil
	}
	cats, err := entitlement.LoadCatalogs(cfg.Billing.CatalogPath)
	if err != nil {
		return entitlement.Catalogs{}, err
	}
	log.WithField("path", cfg.Billing.CatalogPath).Info("plan catalog loaded")
	return cats, nil
}

func provideClock() entitlement.Clock {
	return entitlement.SystemClock
}
