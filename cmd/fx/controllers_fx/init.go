package controllers_fx

import (
	"go.uber.org/fx"

	"churchhub/internal/api/controllers"
)

var Module = fx.Options(
	fx.Provide(controllers.NewSubscriptionControllers),
	fx.Provide(controllers.NewPlansController),
	fx.Provide(controllers.NewDashboardController))
