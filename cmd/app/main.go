package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"

	"churchhub/cmd/fx/catalog_fx"
	"churchhub/cmd/fx/config_fx"
	"churchhub/cmd/fx/controllers_fx"
	"churchhub/cmd/fx/dashboard"
	"churchhub/cmd/fx/db_fx"
	"churchhub/cmd/fx/jobs_fx"
	"churchhub/cmd/fx/logger_fx"
	"churchhub/cmd/fx/mail_fx"
	"churchhub/cmd/fx/memcache_fx"
	"churchhub/cmd/fx/metrics_fx"
	"churchhub/cmd/fx/subscription_fx"
	"churchhub/internal/api/controllers"
	"churchhub/internal/config"
	"churchhub/pkg/metrics"
	"churchhub/pkg/middleware"
	"churchhub/pkg/utils"
)

func main() {
	app := fx.New(
		config_fx.Module,
		logger_fx.Module,
		db_fx.Module,
		catalog_fx.Module,
		metrics_fx.Module,
		memcache_fx.Module,
		mail_fx.Module,
		subscription_fx.Module,
		dashboard.Module,
		controllers_fx.Module,
		jobs_fx.Module,

		fx.Provide(ProvideRouter),
		fx.Invoke(StartServer),
		fx.NopLogger,
	)

	app.Run()
}

func StartServer(lc fx.Lifecycle, cfg *config.Config, engine *gin.Engine, log *logrus.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.WithField("addr", srv.Addr).Info("starting HTTP server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.WithError(err).Fatal("failed to start server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}

func ProvideRouter(
	cfg *config.Config,
	log *logrus.Logger,
	m *metrics.Metrics,
	subscriptionControllers *controllers.SubscriptionControllers,
	plansController *controllers.PlansController,
	dashboardController *controllers.DashboardController) *gin.Engine {

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.TraceIDMiddleware())
	r.Use(middleware.RequestLogger(log))
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(m.Middleware())

	RegisterRoutes(r, []byte(cfg.JWTSecret), m, subscriptionControllers, plansController, dashboardController)

	return r
}

func RegisterRoutes(r *gin.Engine,
	secret []byte,
	m *metrics.Metrics,
	subscriptionControllers *controllers.SubscriptionControllers,
	plansController *controllers.PlansController,
	dashboardController *controllers.DashboardController) {

	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	adminOnly := middleware.RoleMiddleware(utils.RoleAdmin)

	api := r.Group("/", middleware.JWTAuthMiddleware(secret))

	subscriptionControllers.Church.RegisterRoutes(api.Group("/church-subscriptions"), adminOnly)
	subscriptionControllers.User.RegisterRoutes(api.Group("/user-subscriptions"), adminOnly)

	plansGroup := api.Group("/plans")
	plansGroup.GET("/:kind", plansController.GetPlans)
	plansGroup.GET("/:kind/:plan", plansController.GetPlanInfo)

	dashboardGroup := api.Group("/dashboard", adminOnly)
	dashboardGroup.GET("/subscriptions", dashboardController.GetDashboard)
}
