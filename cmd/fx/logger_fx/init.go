package logger_fx

import (
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"

	"churchhub/internal/config"
	"churchhub/pkg/logger"
)

var Module = fx.Provide(provideLogger)

func provideLogger(cfg *config.Config) *logrus.Logger {
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.WithFields(logrus.Fields{"environment": cfg.Environment, "level": log.GetLevel().String()}).Info("logger ready")
	return log
}
