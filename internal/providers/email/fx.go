package email

import (
	"github.com/smallbiznis/collecta/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
		log.Warn("email.disabled",
			zap.String("reason", "smtp host or from address missing"),
		)
		return Disabled{}
	}
	return NewSMTP(Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		SSL:      cfg.SMTPSSL,
	})
}
