package mail_fx

import (
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"

	"churchhub/internal/config"
	"churchhub/internal/services"
)

var Module = fx.Provide(provideMailService)

func provideMailService(cfg *config.Config, log *logrus.Logger) (services.IMailService, error) {
	if !cfg.MailEnabled() {
		log.Warn("SMTP_HOST or SMTP_FROM not set, reminder mails will only be logged")
		return services.NewLogMailService(log), nil
	}

	mailService, err := services.NewSMTPMailService(services.SMTPConfig{
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port, // 587 for STARTTLS; use 465 with UseSSL=true for SMTPS
		Username:   cfg.SMTP.Username,
		Password:   cfg.SMTP.Password,
		From:       cfg.SMTP.From,
		FromName:   cfg.SMTP.FromName,
		UseSSL:     cfg.SMTP.UseSSL,
		RequireTLS: cfg.SMTP.RequireTLS,

		AppName:    cfg.AppName,
		AppBaseURL: cfg.AppBaseURL,
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"host": cfg.SMTP.Host, "port": cfg.SMTP.Port}).Info("smtp mail service ready")
	return mailService, nil
}
