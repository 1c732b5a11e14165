package email

import (
	"context"
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SSL      bool
}

// SMTPProvider sends through a relay with the degradation rules plain
// internal relays need: STARTTLS is opportunistic, credentials are only
// presented when the server advertises AUTH, and a genuine credential
// rejection surfaces as a send failure. The dialer carries a fixed short
// connect timeout.
type SMTPProvider struct {
	cfg    Config
	dialer *gomail.Dialer
}

func NewSMTP(cfg Config) *SMTPProvider {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.SSL
	return &SMTPProvider{cfg: cfg, dialer: dialer}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("send mail: no recipients")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", p.cfg.From)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := p.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
